// Package manifest implements the crash-recoverable per-vault manifest
// (spec §3, §4.4.4, §6): an ordered record of every file touched by a lock
// pass, persisted as pretty-printed, key-sorted JSON with atomic
// write-temp-then-rename semantics.
package manifest

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/loganross/coffer/internal/vaulterrors"
)

// Filename is the manifest's fixed name inside the vault folder.
const Filename = ".coffer-manifest.json"

// Version is the current manifest schema version.
const Version = 1

// Status is the lifecycle status of a lock/unlock pass.
type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusInterrupted Status = "interrupted"
)

// FileEntry records the per-file bookkeeping needed to encrypt, decrypt, or
// resume a single file (spec §3). Field order matches spec §6's
// alphabetized schema sample, since encoding/json emits keys in struct
// declaration order rather than sorting them itself.
type FileEntry struct {
	EncryptedSize    int64  `json:"encryptedSize"`
	IsEncrypted      bool   `json:"isEncrypted"`
	Nonce            string `json:"nonce"`
	OriginalSize     int64  `json:"originalSize"`
	PosixPermissions uint32 `json:"posixPermissions"`
	RelativePath     string `json:"relativePath"`
	Tag              string `json:"tag"`
}

// Manifest is the full per-vault document (spec §3, §6). Field order
// matches spec §6's alphabetized schema sample for the same reason.
type Manifest struct {
	CompletedAt *time.Time  `json:"completedAt"`
	Files       []FileEntry `json:"files"`
	StartedAt   time.Time   `json:"startedAt"`
	Status      Status      `json:"status"`
	VaultID     uuid.UUID   `json:"vaultID"`
	Version     int         `json:"version"`
}

// New builds the initial in-progress manifest for a fresh lock pass (spec
// §4.4.2 step 2). Entries are sorted lexicographically by relative path,
// matching the enumeration order (spec §4.4.1).
func New(vaultID uuid.UUID, files []FileEntry) *Manifest {
	sorted := append([]FileEntry(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RelativePath < sorted[j].RelativePath })
	return &Manifest{
		VaultID:   vaultID,
		Version:   Version,
		StartedAt: time.Now().UTC(),
		Status:    StatusInProgress,
		Files:     sorted,
	}
}

// Path returns the manifest's full path inside a vault folder.
func Path(vaultFolder string) string {
	return filepath.Join(vaultFolder, Filename)
}

// Load reads and parses the manifest from a vault folder. A parse failure
// surfaces as ErrManifestCorrupted.
func Load(vaultFolder string) (*Manifest, error) {
	data, err := os.ReadFile(Path(vaultFolder))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", vaulterrors.ErrManifestCorrupted, err)
	}
	return &m, nil
}

// Save persists the manifest atomically: write to a sibling temp file,
// flush, rename over the final path (spec §4.4.4), pretty-printed via
// json.MarshalIndent. encoding/json emits object keys in struct
// declaration order, so Manifest/FileEntry's field order above is what
// determines the on-disk key order.
func Save(vaultFolder string, m *Manifest) error {
	if err := os.MkdirAll(vaultFolder, 0o700); err != nil {
		return fmt.Errorf("create vault folder: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	tmp, err := os.CreateTemp(vaultFolder, ".coffer-manifest-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, Path(vaultFolder)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

// Remove deletes the manifest file, tolerating its absence.
func Remove(vaultFolder string) error {
	err := os.Remove(Path(vaultFolder))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove manifest: %w", err)
	}
	return nil
}

// HasInterrupted reports whether the vault folder holds a manifest whose
// status means a pass never reached completion (spec §4.4.4, property 5).
func HasInterrupted(vaultFolder string) (bool, error) {
	m, err := Load(vaultFolder)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return m.Status == StatusInProgress || m.Status == StatusInterrupted, nil
}

// MarkCompleted sets status=completed and stamps completedAt (spec §4.4.2 step 5).
func (m *Manifest) MarkCompleted() {
	now := time.Now().UTC()
	m.CompletedAt = &now
	m.Status = StatusCompleted
}

// SetSealed records the result of sealing this file's contents: encrypted
// size plus base64-encoded nonce/tag, and flips IsEncrypted (spec §3
// invariant: is-encrypted=true ⇒ nonce/tag non-empty and encryptedSize > 0).
func (f *FileEntry) SetSealed(encryptedSize int64, nonce, tag []byte) {
	f.EncryptedSize = encryptedSize
	f.Nonce = base64.StdEncoding.EncodeToString(nonce)
	f.Tag = base64.StdEncoding.EncodeToString(tag)
	f.IsEncrypted = true
}

// DecodedNonce base64-decodes the stored nonce.
func (f *FileEntry) DecodedNonce() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Nonce)
}

// DecodedTag base64-decodes the stored tag.
func (f *FileEntry) DecodedTag() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Tag)
}

// EntryIndex returns a relativePath -> slice-index map for in-place updates
// during the encryption pass (spec §4.4.2 step 3d).
func (m *Manifest) EntryIndex() map[string]int {
	idx := make(map[string]int, len(m.Files))
	for i, f := range m.Files {
		idx[f.RelativePath] = i
	}
	return idx
}
