package vaultmanager_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/loganross/coffer/internal/authenticator"
	"github.com/loganross/coffer/internal/keyderiv"
	"github.com/loganross/coffer/internal/secretstore"
	"github.com/loganross/coffer/internal/vaultconfig"
	"github.com/loganross/coffer/internal/vaultmanager"
	"github.com/loganross/coffer/internal/vaulterrors"
)

func newManager(t *testing.T) (*vaultmanager.Manager, string) {
	t.Helper()
	configDir := t.TempDir()
	store := secretstore.NewMemoryStore()
	auth := authenticator.New(store, keyderiv.StrategyHKDF)
	mgr, err := vaultmanager.New(configDir, store, auth, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return mgr, configDir
}

func writeFolder(t *testing.T, dir string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAddVaultThenLockThenUnlock(t *testing.T) {
	mgr, _ := newManager(t)
	dir := t.TempDir()
	writeFolder(t, dir)

	v, err := mgr.AddVault("Docs", dir, "Tr0ub4dor&3Zebra!", false, 0, false)
	if err != nil {
		t.Fatalf("AddVault: %v", err)
	}
	if v.State != vaultconfig.StateUnlocked {
		t.Fatalf("expected unlocked after add, got %s", v.State)
	}
	if v.CachedFileCount != 1 {
		t.Fatalf("expected 1 cached file, got %d", v.CachedFileCount)
	}

	if err := mgr.LockVault(v.ID, "Tr0ub4dor&3Zebra!", nil); err != nil {
		t.Fatalf("LockVault: %v", err)
	}
	locked := mgr.List()[0]
	if locked.State != vaultconfig.StateLocked {
		t.Fatalf("expected locked, got %s", locked.State)
	}

	if err := mgr.UnlockVaultPassword(v.ID, "Tr0ub4dor&3Zebra!", nil); err != nil {
		t.Fatalf("UnlockVaultPassword: %v", err)
	}
	unlocked := mgr.List()[0]
	if unlocked.State != vaultconfig.StateUnlocked {
		t.Fatalf("expected unlocked, got %s", unlocked.State)
	}
	if unlocked.LastUnlockedAt == nil {
		t.Fatalf("expected last-unlocked-at to be set")
	}

	got, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil || string(got) != "hello" {
		t.Fatalf("file did not round-trip: %q err=%v", got, err)
	}
}

func TestAddVaultDuplicateFolderRejected(t *testing.T) {
	mgr, _ := newManager(t)
	dir := t.TempDir()
	writeFolder(t, dir)

	if _, err := mgr.AddVault("Docs", dir, "Tr0ub4dor&3Zebra!", false, 0, false); err != nil {
		t.Fatalf("AddVault: %v", err)
	}
	_, err := mgr.AddVault("Docs2", dir, "AnotherStr0ng&Pass9!", false, 0, false)
	if err != vaulterrors.ErrVaultAlreadyExists {
		t.Fatalf("expected ErrVaultAlreadyExists, got %v", err)
	}
}

func TestLockVaultWrongPasswordEntersErrorState(t *testing.T) {
	mgr, _ := newManager(t)
	dir := t.TempDir()
	writeFolder(t, dir)

	v, err := mgr.AddVault("Docs", dir, "Tr0ub4dor&3Zebra!", false, 0, false)
	if err != nil {
		t.Fatalf("AddVault: %v", err)
	}

	err = mgr.LockVault(v.ID, "wrong", nil)
	if err != vaulterrors.ErrWrongPassword {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
	got := mgr.List()[0]
	if got.State != vaultconfig.StateError {
		t.Fatalf("expected error state after failed lock, got %s", got.State)
	}
}

func TestUnlockVaultPasswordWrongPasswordLeavesLockedState(t *testing.T) {
	mgr, _ := newManager(t)
	dir := t.TempDir()
	writeFolder(t, dir)

	v, err := mgr.AddVault("Docs", dir, "Tr0ub4dor&3Zebra!", false, 0, true)
	if err != nil {
		t.Fatalf("AddVault: %v", err)
	}
	if v.State != vaultconfig.StateLocked {
		t.Fatalf("expected locked after lock-immediately add, got %s", v.State)
	}

	err = mgr.UnlockVaultPassword(v.ID, "wrong", nil)
	if err != vaulterrors.ErrWrongPassword {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
	got := mgr.List()[0]
	if got.State != vaultconfig.StateLocked {
		t.Fatalf("expected state to remain locked after wrong password, got %s", got.State)
	}
}

func TestRemoveVaultLockedUnlocksFirst(t *testing.T) {
	mgr, _ := newManager(t)
	dir := t.TempDir()
	writeFolder(t, dir)

	v, err := mgr.AddVault("Docs", dir, "Tr0ub4dor&3Zebra!", false, 0, true)
	if err != nil {
		t.Fatalf("AddVault: %v", err)
	}

	pw := "Tr0ub4dor&3Zebra!"
	if err := mgr.RemoveVault(v.ID, &pw); err != nil {
		t.Fatalf("RemoveVault: %v", err)
	}
	if len(mgr.List()) != 0 {
		t.Fatalf("expected vault removed from config")
	}
	got, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil || string(got) != "hello" {
		t.Fatalf("expected file restored before removal: %q err=%v", got, err)
	}
}

func TestLockAllLocksEveryUnlockedVault(t *testing.T) {
	mgr, _ := newManager(t)
	dirA, dirB := t.TempDir(), t.TempDir()
	writeFolder(t, dirA)
	writeFolder(t, dirB)

	if _, err := mgr.AddVault("A", dirA, "Tr0ub4dor&3Zebra!", false, 0, false); err != nil {
		t.Fatalf("AddVault A: %v", err)
	}
	if _, err := mgr.AddVault("B", dirB, "Tr0ub4dor&3Zebra!", false, 0, false); err != nil {
		t.Fatalf("AddVault B: %v", err)
	}

	if err := mgr.LockAll("Tr0ub4dor&3Zebra!"); err != nil {
		t.Fatalf("LockAll: %v", err)
	}
	for _, v := range mgr.List() {
		if v.State != vaultconfig.StateLocked {
			t.Fatalf("expected all vaults locked, got %s=%s", v.Name, v.State)
		}
	}
}

func TestLockVaultBlockedByOpenFileHandles(t *testing.T) {
	mgr, _ := newManager(t)
	dir := t.TempDir()
	writeFolder(t, dir)

	v, err := mgr.AddVault("Docs", dir, "Tr0ub4dor&3Zebra!", false, 0, false)
	if err != nil {
		t.Fatalf("AddVault: %v", err)
	}

	blocked := filepath.Join(dir, "a.txt")
	orig := vaultmanager.OpenFileHandlesProbe
	vaultmanager.OpenFileHandlesProbe = func(folder string) ([]string, error) {
		return []string{blocked}, nil
	}
	defer func() { vaultmanager.OpenFileHandlesProbe = orig }()

	err = mgr.LockVault(v.ID, "Tr0ub4dor&3Zebra!", nil)
	var inUse *vaulterrors.FilesInUseError
	if !errors.As(err, &inUse) {
		t.Fatalf("expected *vaulterrors.FilesInUseError, got %v", err)
	}
	if len(inUse.Paths) != 1 || inUse.Paths[0] != blocked {
		t.Fatalf("expected reported path %q, got %v", blocked, inUse.Paths)
	}

	got := mgr.List()[0]
	if got.State != vaultconfig.StateUnlocked {
		t.Fatalf("expected state to remain unlocked when blocked by open handles, got %s", got.State)
	}
}

func TestInterruptedVaultsReportsNone(t *testing.T) {
	mgr, _ := newManager(t)
	dir := t.TempDir()
	writeFolder(t, dir)

	if _, err := mgr.AddVault("Docs", dir, "Tr0ub4dor&3Zebra!", false, 0, false); err != nil {
		t.Fatalf("AddVault: %v", err)
	}

	interrupted, err := mgr.InterruptedVaults()
	if err != nil {
		t.Fatalf("InterruptedVaults: %v", err)
	}
	if len(interrupted) != 0 {
		t.Fatalf("expected no interrupted vaults, got %v", interrupted)
	}
}
