package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/loganross/coffer/internal/manifest"
	"github.com/loganross/coffer/internal/vaulterrors"
	"github.com/loganross/coffer/krypto"
)

// IndexingBlockerName is the empty marker file that opts the vault folder
// out of desktop search indexing (spec §4.4.2 step 4, §6).
const IndexingBlockerName = ".metadata_never_index"

// ProgressFunc is invoked after each file completes, with the running count
// and the total file count for the pass.
type ProgressFunc func(done, total int)

// Lock runs the encryption pass over folder (spec §4.4.2): enumerate,
// write an initial in-progress manifest, seal each file to a `.cfr`
// sibling, rewrite the manifest after each file, securely delete the
// original, and finally mark the manifest completed and drop the
// indexing-blocker file.
func Lock(folder string, vaultID uuid.UUID, masterKey []byte, progress ProgressFunc) (*manifest.Manifest, error) {
	paths, err := CollectRegularFiles(folder)
	if err != nil {
		return nil, err
	}

	entries := make([]manifest.FileEntry, 0, len(paths))
	for _, p := range paths {
		rel, err := RelativePath(folder, p)
		if err != nil {
			return nil, err
		}
		size, perm := statOrDefault(p)
		entries = append(entries, manifest.FileEntry{
			RelativePath:     rel,
			OriginalSize:     size,
			PosixPermissions: perm,
		})
	}

	m := manifest.New(vaultID, entries)
	if err := manifest.Save(folder, m); err != nil {
		return nil, fmt.Errorf("persist initial manifest: %w", err)
	}

	idx := m.EntryIndex()
	total := len(m.Files)
	for i, entry := range m.Files {
		abs := filepath.Join(folder, filepath.FromSlash(entry.RelativePath))

		plaintext, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.RelativePath, err)
		}

		combined, nonce, tag, err := krypto.Seal(masterKey, plaintext)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", vaulterrors.ErrEncryptionFailed, entry.RelativePath, err)
		}

		ciphertextPath := abs + CiphertextExt
		if err := writeFileAtomic(ciphertextPath, combined, 0o600); err != nil {
			return nil, fmt.Errorf("write ciphertext %s: %w", entry.RelativePath, err)
		}

		pos := idx[entry.RelativePath]
		m.Files[pos].SetSealed(int64(len(combined)), nonce, tag)
		if err := manifest.Save(folder, m); err != nil {
			return nil, fmt.Errorf("persist manifest after %s: %w", entry.RelativePath, err)
		}

		if err := SecureDelete(abs); err != nil {
			return nil, fmt.Errorf("secure delete %s: %w", entry.RelativePath, err)
		}

		if progress != nil {
			progress(i+1, total)
		}
	}

	if err := writeFileAtomic(filepath.Join(folder, IndexingBlockerName), nil, 0o600); err != nil {
		return nil, fmt.Errorf("write indexing blocker: %w", err)
	}

	m.MarkCompleted()
	if err := manifest.Save(folder, m); err != nil {
		return nil, fmt.Errorf("persist completed manifest: %w", err)
	}

	return m, nil
}

// statOrDefault reads a file's size and POSIX permission bits, falling back
// to (0, 0o644) on stat failure (spec §4.4.2 step 2: "best-effort defaults").
func statOrDefault(path string) (int64, uint32) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0o644
	}
	return info.Size(), uint32(info.Mode().Perm())
}

// writeFileAtomic writes data to a temp file in the same directory as path,
// then renames it into place, so a crash never leaves a partially-written
// file at the destination (spec §4.4.2 step 3c).
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".coffer-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
