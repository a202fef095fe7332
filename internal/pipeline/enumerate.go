// Package pipeline implements the vault file tree transform: enumeration,
// the encryption and decryption passes, secure delete, and the open-handle
// probe (spec §4.4).
package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loganross/coffer/internal/vaulterrors"
)

// CiphertextExt is the suffix applied to every sealed file (spec §4.4.1/§6).
const CiphertextExt = ".cfr"

var reservedNames = map[string]struct{}{
	".coffer-manifest.json": {},
	".metadata_never_index": {},
	".DS_Store":             {},
}

// CollectRegularFiles walks root and returns every eligible regular file,
// sorted lexicographically by absolute path (spec §4.4.1).
//
// Skipped: symlinks, non-regular entries, hidden entries at the top level,
// reserved filenames, and anything already bearing the ciphertext extension.
func CollectRegularFiles(root string) ([]string, error) {
	var out []string

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vaulterrors.ErrCannotEnumerate, err)
	}

	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue // hidden entries at the top level are always skipped
		}
		full := filepath.Join(root, name)
		if err := walkInto(full, &out); err != nil {
			return nil, err
		}
	}

	sort.Strings(out)
	return out, nil
}

// walkInto recurses into a non-top-level path, applying the same skip rules
// minus the "hidden at top level" one (hidden subdirectories/files below the
// root are walked normally, matching typical vault content like dotfiles a
// user placed deliberately inside a subfolder).
func walkInto(path string, out *[]string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", vaulterrors.ErrCannotEnumerate, err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return nil // never follow or include symlinks
	}

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return fmt.Errorf("%w: %v", vaulterrors.ErrCannotEnumerate, err)
		}
		for _, e := range entries {
			if _, reserved := reservedNames[e.Name()]; reserved {
				continue
			}
			if err := walkInto(filepath.Join(path, e.Name()), out); err != nil {
				return err
			}
		}
		return nil
	}

	if !info.Mode().IsRegular() {
		return nil // skip devices, sockets, pipes, etc.
	}
	if strings.EqualFold(filepath.Ext(path), CiphertextExt) {
		return nil // already encrypted
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %v", vaulterrors.ErrCannotEnumerate, err)
	}
	*out = append(*out, abs)
	return nil
}

// CollectEncryptedFiles returns the .cfr files under root, sorted.
func CollectEncryptedFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), CiphertextExt) {
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			out = append(out, abs)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vaulterrors.ErrCannotEnumerate, err)
	}
	sort.Strings(out)
	return out, nil
}

// RelativePath converts an absolute file path under root into the
// forward-slash relative path the manifest stores (spec §3).
func RelativePath(root, absPath string) (string, error) {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return "", fmt.Errorf("compute relative path: %w", err)
	}
	return filepath.ToSlash(rel), nil
}
