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

// Unlock runs the decryption pass over folder (spec §4.4.3): read the
// manifest, decrypt each `.cfr` file back to its original path, restore
// permissions, remove the ciphertext, and finally drop the manifest and
// indexing-blocker files. No manifest rewrite happens during this pass — a
// mid-decrypt crash leaves a mix of plaintext and ciphertext that a resume
// can finish, since the manifest and remaining `.cfr` files are untouched.
func Unlock(folder string, vaultID uuid.UUID, masterKey []byte, progress ProgressFunc) (*manifest.Manifest, error) {
	m, err := manifest.Load(folder)
	if err != nil {
		return nil, err
	}

	var encrypted []manifest.FileEntry
	for _, f := range m.Files {
		if f.IsEncrypted {
			encrypted = append(encrypted, f)
		}
	}

	total := len(encrypted)
	for i, entry := range encrypted {
		originalPath := filepath.Join(folder, filepath.FromSlash(entry.RelativePath))
		ciphertextPath := originalPath + CiphertextExt

		if _, err := os.Stat(ciphertextPath); err != nil {
			if os.IsNotExist(err) {
				return nil, &vaulterrors.EncryptedFileMissingError{RelativePath: entry.RelativePath}
			}
			return nil, fmt.Errorf("stat %s: %w", ciphertextPath, err)
		}

		combined, err := os.ReadFile(ciphertextPath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", ciphertextPath, err)
		}

		plaintext, err := krypto.Open(masterKey, combined)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", vaulterrors.ErrDecryptionFailed, entry.RelativePath)
		}

		perm := os.FileMode(entry.PosixPermissions)
		if err := writeFileAtomic(originalPath, plaintext, perm); err != nil {
			return nil, fmt.Errorf("restore %s: %w", entry.RelativePath, err)
		}

		if err := os.Remove(ciphertextPath); err != nil {
			return nil, fmt.Errorf("remove ciphertext %s: %w", entry.RelativePath, err)
		}

		if progress != nil {
			progress(i+1, total)
		}
	}

	if err := manifest.Remove(folder); err != nil {
		return nil, err
	}
	_ = os.Remove(filepath.Join(folder, IndexingBlockerName)) // best-effort

	return m, nil
}

// VaultIDFromManifest reads the vault identifier recorded in folder's
// manifest, so a caller can confirm the manifest on disk matches the vault
// it believes it is operating on (spec §3: "vault identifier matches the
// parent vault").
func VaultIDFromManifest(folder string) (uuid.UUID, error) {
	m, err := manifest.Load(folder)
	if err != nil {
		return uuid.Nil, err
	}
	return m.VaultID, nil
}
