// Package vaulterrors defines the error taxonomy shared by every vault
// engine component (§7 of the design). Sentinels cover errors with no
// useful payload; the parameterized kinds carry enough context for a caller
// to act (which files, which status) without parsing a message string.
package vaulterrors

import (
	"errors"
	"fmt"
)

var (
	// ErrWrongPassword is returned when unwrapping the master key fails,
	// the sole wrong-password detector (spec §4.1).
	ErrWrongPassword = errors.New("wrong password")

	// ErrAuthenticationFailed covers biometric cancellation/denial and any
	// other non-"not available" biometric failure.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrBiometricsUnavailable covers not-enrolled / not-supported.
	ErrBiometricsUnavailable = errors.New("biometrics unavailable")

	// ErrVaultNotFound is a programmer error: an unknown vault id was used.
	ErrVaultNotFound = errors.New("vault not found")

	// ErrManifestCorrupted means the manifest file could not be parsed.
	ErrManifestCorrupted = errors.New("manifest corrupted")

	// ErrInsufficientDiskSpace surfaces from pre-flight checks or write failures.
	ErrInsufficientDiskSpace = errors.New("insufficient disk space")

	// ErrCannotEnumerate covers permission/I/O failures while walking a vault folder.
	ErrCannotEnumerate = errors.New("cannot enumerate directory")

	// ErrDecryptionFailed is the combined-blob AEAD failure (malformed blob,
	// tag mismatch, wrong key).
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrEncryptionFailed covers AEAD seal failures (should only happen on
	// CSPRNG exhaustion).
	ErrEncryptionFailed = errors.New("encryption failed")

	// ErrVaultAlreadyExists signals add-vault was called for a folder already tracked.
	ErrVaultAlreadyExists = errors.New("vault already exists for this folder")

	// ErrInvalidStateTransition signals an operation was attempted from a
	// state that does not allow it (§4.5).
	ErrInvalidStateTransition = errors.New("invalid vault state transition")
)

// FilesInUseError reports that one or more files under the vault folder are
// held open by another process; lock must not proceed (§4.4.6).
type FilesInUseError struct {
	Paths []string
}

func (e *FilesInUseError) Error() string {
	return fmt.Sprintf("files in use: %v", e.Paths)
}

// EncryptedFileMissingError reports that the manifest names a ciphertext
// file that does not exist on disk during a decrypt pass (§4.4.3).
type EncryptedFileMissingError struct {
	RelativePath string
}

func (e *EncryptedFileMissingError) Error() string {
	return fmt.Sprintf("encrypted file missing: %s", e.RelativePath)
}

// StoreOp names the secret-store operation that failed, for StoreError.
type StoreOp string

const (
	StoreOpWrite  StoreOp = "write"
	StoreOpRead   StoreOp = "read"
	StoreOpDelete StoreOp = "delete"
)

// StoreError wraps a secret-store failure with the OS-reported status
// (§4.2's store-write-failed / store-read-failed / store-delete-failed).
type StoreError struct {
	Op     StoreOp
	Status string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store-%s-failed(%s)", e.Op, e.Status)
}

// ErrStoreNotFound is the Status value StoreError carries when a read
// targets a missing entry (§4.2: "a missing entry is an error, not an empty result").
const ErrStoreNotFound = "not-found"
