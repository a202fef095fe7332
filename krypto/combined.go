package krypto

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// Seal encrypts plaintext under key and returns the combined blob
// (nonce ‖ ciphertext ‖ tag) alongside the nonce and tag split out, since
// the manifest records nonce and tag separately from the ciphertext file
// (spec §4.1). Nonce generation uses the package CSPRNG; there is no
// fallback on failure.
func Seal(key, plaintext []byte) (combined, nonce, tag []byte, err error) {
	nonce, ciphertext, err := EncryptAESGCM(key, plaintext, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("seal: %w", err)
	}
	if len(ciphertext) < TagSize {
		return nil, nil, nil, errors.New("seal: ciphertext shorter than tag")
	}
	tag = append([]byte(nil), ciphertext[len(ciphertext)-TagSize:]...)

	combined = make([]byte, 0, len(nonce)+len(ciphertext))
	combined = append(combined, nonce...)
	combined = append(combined, ciphertext...)
	return combined, nonce, tag, nil
}

// Open parses a combined blob (nonce ‖ ciphertext ‖ tag) and verifies it
// under key, returning the plaintext. Any failure — malformed blob,
// mismatched tag, or wrong key — returns a non-nil error whose message
// names the failing step; the callers in this module report every such
// error as one kind (decryption-failed in the pipeline, wrong-password on
// unwrap).
func Open(key, combined []byte) ([]byte, error) {
	if len(combined) < NonceSize+TagSize {
		return nil, errors.New("open: combined blob too short")
	}
	nonce := combined[:NonceSize]
	ciphertext := combined[NonceSize:]

	plaintext, err := DecryptAESGCM(key, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return plaintext, nil
}

// WrapMasterKey seals a 32-byte master key under a 256-bit wrapping key,
// producing the blob that the secret store persists as wrapped-master-key.
func WrapMasterKey(wrappingKey, masterKey []byte) ([]byte, error) {
	if len(masterKey) != 32 {
		return nil, errors.New("wrap: master key must be 32 bytes")
	}
	combined, _, _, err := Seal(wrappingKey, masterKey)
	if err != nil {
		return nil, fmt.Errorf("wrap master key: %w", err)
	}
	return combined, nil
}

// UnwrapMasterKey opens a wrapped-master-key blob under a wrapping key.
// Any failure here is the sole wrong-password signal (spec §4.1/§4.3).
func UnwrapMasterKey(wrappingKey, wrapped []byte) ([]byte, error) {
	mek, err := Open(wrappingKey, wrapped)
	if err != nil {
		return nil, err
	}
	if len(mek) != 32 {
		return nil, errors.New("unwrap: unexpected master key length")
	}
	return mek, nil
}

// NewMasterKey generates a fresh 256-bit master key from the CSPRNG.
// There is no fallback on failure — a key generation failure is fatal.
func NewMasterKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	return key, nil
}

// NewSalt generates a 16-byte salt. Salts are public, so on CSPRNG failure
// a best-effort fallback (math/rand, seeded from time) is acceptable; keys
// and nonces have no such fallback.
func NewSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fallbackSalt(salt), nil
	}
	return salt, nil
}
