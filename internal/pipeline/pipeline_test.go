package pipeline_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/loganross/coffer/internal/manifest"
	"github.com/loganross/coffer/internal/pipeline"
	"github.com/loganross/coffer/internal/vaulterrors"
	"github.com/loganross/coffer/krypto"
)

func writeVault(t *testing.T, dir string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b.bin"), []byte{0xDE, 0xAD}, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestRoundTripSmallFolder(t *testing.T) {
	dir := t.TempDir()
	writeVault(t, dir)
	vaultID := uuid.New()
	mek, err := krypto.NewMasterKey()
	if err != nil {
		t.Fatal(err)
	}

	m, err := pipeline.Lock(dir, vaultID, mek, nil)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if m.Status != manifest.StatusCompleted {
		t.Fatalf("expected completed status, got %s", m.Status)
	}
	if len(m.Files) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(m.Files))
	}
	if m.Files[0].RelativePath != "a.txt" || m.Files[1].RelativePath != "sub/b.bin" {
		t.Fatalf("unexpected entry order: %+v", m.Files)
	}

	if _, err := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected original a.txt to be gone")
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt"+pipeline.CiphertextExt)); err != nil {
		t.Fatalf("expected ciphertext file: %v", err)
	}

	if _, err := pipeline.Unlock(dir, vaultID, mek, nil); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	gotA, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil || string(gotA) != "hello" {
		t.Fatalf("a.txt round-trip failed: %q err=%v", gotA, err)
	}
	infoA, err := os.Stat(filepath.Join(dir, "a.txt"))
	if err != nil || infoA.Mode().Perm() != 0o644 {
		t.Fatalf("a.txt permission mismatch: %v err=%v", infoA, err)
	}

	gotB, err := os.ReadFile(filepath.Join(dir, "sub", "b.bin"))
	if err != nil || len(gotB) != 2 || gotB[0] != 0xDE || gotB[1] != 0xAD {
		t.Fatalf("sub/b.bin round-trip failed: %v err=%v", gotB, err)
	}

	if _, err := os.Stat(filepath.Join(dir, "a.txt"+pipeline.CiphertextExt)); !os.IsNotExist(err) {
		t.Fatalf("expected ciphertext removed after unlock")
	}
	if _, err := os.Stat(manifestPath(dir)); !os.IsNotExist(err) {
		t.Fatalf("expected manifest removed after unlock")
	}
}

func TestWrongPasswordLeavesFilesUntouched(t *testing.T) {
	dir := t.TempDir()
	writeVault(t, dir)
	vaultID := uuid.New()
	mek, _ := krypto.NewMasterKey()
	wrong, _ := krypto.NewMasterKey()

	if _, err := pipeline.Lock(dir, vaultID, mek, nil); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	before, _ := os.ReadFile(filepath.Join(dir, "a.txt"+pipeline.CiphertextExt))

	_, err := pipeline.Unlock(dir, vaultID, wrong, nil)
	if err == nil {
		t.Fatalf("expected decryption failure with wrong key")
	}

	after, _ := os.ReadFile(filepath.Join(dir, "a.txt"+pipeline.CiphertextExt))
	if string(before) != string(after) {
		t.Fatalf("ciphertext mutated on failed unlock")
	}
	if _, statErr := os.Stat(manifestPath(dir)); statErr != nil {
		t.Fatalf("expected manifest to remain after failed unlock: %v", statErr)
	}
}

func TestCollectRegularFilesSkipsReservedAndSymlinks(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".DS_Store"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "c"+pipeline.CiphertextExt), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(dir, "a.txt"), filepath.Join(dir, "link")); err != nil {
		t.Skipf("symlinks unsupported in this environment: %v", err)
	}

	files, err := pipeline.CollectRegularFiles(dir)
	if err != nil {
		t.Fatalf("CollectRegularFiles: %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "a.txt" {
		t.Fatalf("expected only a.txt, got %v", files)
	}
}

func TestUnlockMissingCiphertext(t *testing.T) {
	dir := t.TempDir()
	writeVault(t, dir)
	vaultID := uuid.New()
	mek, _ := krypto.NewMasterKey()

	if _, err := pipeline.Lock(dir, vaultID, mek, nil); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "a.txt"+pipeline.CiphertextExt)); err != nil {
		t.Fatal(err)
	}

	_, err := pipeline.Unlock(dir, vaultID, mek, nil)
	var missing *vaulterrors.EncryptedFileMissingError
	if err == nil {
		t.Fatalf("expected encrypted-file-missing error")
	}
	if !asMissing(err, &missing) {
		t.Fatalf("expected EncryptedFileMissingError, got %T: %v", err, err)
	}
}

func asMissing(err error, target **vaulterrors.EncryptedFileMissingError) bool {
	if e, ok := err.(*vaulterrors.EncryptedFileMissingError); ok {
		*target = e
		return true
	}
	return false
}

func manifestPath(dir string) string {
	return filepath.Join(dir, manifest.Filename)
}
