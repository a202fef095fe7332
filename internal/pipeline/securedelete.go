package pipeline

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
)

const secureDeleteChunkSize = 64 * 1024

// SecureDelete best-effort overwrites a file's full length with CSPRNG
// bytes in 64 KiB chunks before unlinking it (spec §4.4.5). Inadequate on
// flash/copy-on-write media — this is advisory, not a secure-erase
// guarantee. On any write error, unlink is still attempted.
func SecureDelete(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open for secure delete: %w", err)
	}

	info, statErr := f.Stat()
	var writeErr error
	if statErr != nil {
		writeErr = fmt.Errorf("stat for secure delete: %w", statErr)
	} else {
		writeErr = overwriteWithRandom(f, info.Size())
	}

	if syncErr := f.Sync(); syncErr != nil && writeErr == nil {
		writeErr = fmt.Errorf("sync during secure delete: %w", syncErr)
	}
	f.Close()

	if rmErr := os.Remove(path); rmErr != nil {
		if writeErr != nil {
			return writeErr
		}
		return fmt.Errorf("unlink after secure delete: %w", rmErr)
	}
	return writeErr
}

func overwriteWithRandom(f *os.File, size int64) error {
	buf := make([]byte, secureDeleteChunkSize)
	var written int64
	for written < size {
		n := int64(len(buf))
		if remaining := size - written; remaining < n {
			n = remaining
		}
		if _, err := io.ReadFull(rand.Reader, buf[:n]); err != nil {
			return fmt.Errorf("generate overwrite bytes: %w", err)
		}
		if _, err := f.WriteAt(buf[:n], written); err != nil {
			return fmt.Errorf("overwrite file contents: %w", err)
		}
		written += n
	}
	return nil
}
