package vaultconfig_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/loganross/coffer/internal/vaultconfig"
	"github.com/loganross/coffer/internal/vaulterrors"
)

func TestLoadMissingFileYieldsEmptyDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := vaultconfig.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Vaults) != 0 {
		t.Fatalf("expected empty vault list, got %d", len(cfg.Vaults))
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	id := uuid.New()
	now := time.Now().UTC().Truncate(time.Second)

	cfg := &vaultconfig.Config{
		Vaults: []vaultconfig.Vault{{
			ID:               id,
			Name:             "Documents",
			FolderPath:       "/t/v",
			State:            vaultconfig.StateUnlocked,
			CreatedAt:        now,
			AutoLockMinutes:  15,
			BiometricEnabled: true,
		}},
		Settings: vaultconfig.GlobalSettings{LockOnSleep: true, DefaultAutoLockMinutes: 10},
	}
	if err := vaultconfig.Save(dir, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := vaultconfig.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Vaults) != 1 {
		t.Fatalf("expected 1 vault, got %d", len(got.Vaults))
	}
	v := got.Vaults[0]
	if v.ID != id || v.Name != "Documents" || v.State != vaultconfig.StateUnlocked {
		t.Fatalf("unexpected round-tripped vault: %+v", v)
	}
	if !v.CreatedAt.Equal(now) {
		t.Fatalf("timestamp mismatch: got %v want %v", v.CreatedAt, now)
	}
	if !got.Settings.LockOnSleep || got.Settings.DefaultAutoLockMinutes != 10 {
		t.Fatalf("settings mismatch: %+v", got.Settings)
	}
}

func TestSaveEmitsSpecFieldNames(t *testing.T) {
	dir := t.TempDir()
	id := uuid.New()
	cfg := &vaultconfig.Config{
		Vaults: []vaultconfig.Vault{{
			ID:               id,
			Name:             "Documents",
			FolderPath:       "/t/v",
			State:            vaultconfig.StateLocked,
			BiometricEnabled: true,
			CachedFileCount:  12,
			CachedTotalBytes: 4096,
		}},
		Settings: vaultconfig.GlobalSettings{
			LockOnSleep:            true,
			LockOnScreenLock:       true,
			DefaultAutoLockMinutes: 5,
			ShowDockIcon:           true,
			ShowMenubarIcon:        true,
		},
	}
	if err := vaultconfig.Save(dir, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(vaultconfig.Path(dir))
	if err != nil {
		t.Fatalf("read config file: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal raw config: %v", err)
	}

	settings, ok := doc["globalSettings"].(map[string]any)
	if !ok {
		t.Fatalf("expected top-level \"globalSettings\" key, got keys %v", keys(doc))
	}
	for _, key := range []string{"autoLockOnSleep", "autoLockOnScreenLock", "defaultAutoLockMinutes", "showDockIcon", "showMenubarIcon"} {
		if _, ok := settings[key]; !ok {
			t.Fatalf("expected globalSettings.%s, got keys %v", key, keys(settings))
		}
	}

	vaults, ok := doc["vaults"].([]any)
	if !ok || len(vaults) != 1 {
		t.Fatalf("expected one entry under top-level \"vaults\", got %v", doc["vaults"])
	}
	vault, ok := vaults[0].(map[string]any)
	if !ok {
		t.Fatalf("expected vault entry to be an object")
	}
	for _, key := range []string{"useTouchID", "fileCount", "totalSize", "folderPath"} {
		if _, ok := vault[key]; !ok {
			t.Fatalf("expected vaults[0].%s, got keys %v", key, keys(vault))
		}
	}
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestSaveIsAtomicAcrossRewrite(t *testing.T) {
	dir := t.TempDir()
	cfg := &vaultconfig.Config{}
	if err := vaultconfig.Save(dir, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cfg.Vaults = append(cfg.Vaults, vaultconfig.Vault{ID: uuid.New(), Name: "v2"})
	if err := vaultconfig.Save(dir, cfg); err != nil {
		t.Fatalf("Save rewrite: %v", err)
	}

	entries, err := filepath.Glob(filepath.Join(dir, "vaults-*.json"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no leftover temp files, found %v", entries)
	}
}

func TestFindByIDAndFolder(t *testing.T) {
	id := uuid.New()
	cfg := &vaultconfig.Config{Vaults: []vaultconfig.Vault{
		{ID: id, FolderPath: "/t/a"},
		{ID: uuid.New(), FolderPath: "/t/b"},
	}}
	if cfg.FindByID(id) != 0 {
		t.Fatalf("expected index 0 for known id")
	}
	if cfg.FindByFolder("/t/b") != 1 {
		t.Fatalf("expected index 1 for known folder")
	}
	if cfg.FindByID(uuid.New()) != -1 {
		t.Fatalf("expected -1 for unknown id")
	}
}

func TestStateMachineTransitions(t *testing.T) {
	cases := []struct {
		from  vaultconfig.State
		event string
		want  vaultconfig.State
	}{
		{vaultconfig.StateUnlocked, "lock-start", vaultconfig.StateEncrypting},
		{vaultconfig.StateEncrypting, "lock-success", vaultconfig.StateLocked},
		{vaultconfig.StateEncrypting, "lock-failure", vaultconfig.StateError},
		{vaultconfig.StateLocked, "unlock-start", vaultconfig.StateDecrypting},
		{vaultconfig.StateDecrypting, "unlock-success", vaultconfig.StateUnlocked},
		{vaultconfig.StateDecrypting, "unlock-failure", vaultconfig.StateError},
	}
	for _, c := range cases {
		got, err := vaultconfig.Apply(c.from, c.event)
		if err != nil {
			t.Fatalf("Apply(%s, %s): %v", c.from, c.event, err)
		}
		if got != c.want {
			t.Fatalf("Apply(%s, %s) = %s, want %s", c.from, c.event, got, c.want)
		}
	}
}

func TestStateMachineRejectsIllegalTransition(t *testing.T) {
	_, err := vaultconfig.Apply(vaultconfig.StateLocked, "lock-start")
	if err != vaulterrors.ErrInvalidStateTransition {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}
