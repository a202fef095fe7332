// Package vaultconfig is the atomic JSON persistence layer for the vault
// list and global settings (spec §4.7), generalizing the single-header
// write-temp-then-rename pattern the teacher uses for its own header.json
// (store/vaultfs.go) to a multi-vault document.
package vaultconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/loganross/coffer/internal/vaulterrors"
)

// Filename is the config document's name at its stable user-scoped location.
const Filename = "vaults.json"

// State is a vault's place in the lifecycle state machine (spec §4.5).
type State string

const (
	StateLocked     State = "locked"
	StateUnlocked   State = "unlocked"
	StateEncrypting State = "encrypting"
	StateDecrypting State = "decrypting"
	StateError      State = "error"
)

// transitions enumerates the state machine's legal edges, keyed by the
// current state and the event that fires, per spec §4.5's table.
var transitions = map[State]map[string]State{
	StateUnlocked:   {"lock-start": StateEncrypting},
	StateEncrypting: {"lock-success": StateLocked, "lock-failure": StateError},
	StateLocked:     {"unlock-start": StateDecrypting},
	StateDecrypting: {"unlock-success": StateUnlocked, "unlock-failure": StateError},
}

// Apply returns the state reached by firing event from state from,
// or ErrInvalidStateTransition if the edge does not exist.
func Apply(from State, event string) (State, error) {
	edges, ok := transitions[from]
	if !ok {
		return from, vaulterrors.ErrInvalidStateTransition
	}
	to, ok := edges[event]
	if !ok {
		return from, vaulterrors.ErrInvalidStateTransition
	}
	return to, nil
}

// Vault is one tracked vault's configuration and cached metadata. Field
// tags match spec §6's config-file schema sample byte-for-byte.
type Vault struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	FolderPath       string     `json:"folderPath"`
	State            State      `json:"state"`
	CreatedAt        time.Time  `json:"createdAt"`
	LastUnlockedAt   *time.Time `json:"lastUnlockedAt,omitempty"`
	AutoLockMinutes  int        `json:"autoLockMinutes"`
	BiometricEnabled bool       `json:"useTouchID"`
	CachedFileCount  int        `json:"fileCount"`
	CachedTotalBytes int64      `json:"totalSize"`
}

// GlobalSettings holds the UI-agnostic toggles shared across every vault.
// Field tags match spec §6's config-file schema sample byte-for-byte.
type GlobalSettings struct {
	LockOnSleep            bool `json:"autoLockOnSleep"`
	LockOnScreenLock       bool `json:"autoLockOnScreenLock"`
	DefaultAutoLockMinutes int  `json:"defaultAutoLockMinutes"`
	ShowDockIcon           bool `json:"showDockIcon"`
	ShowMenubarIcon        bool `json:"showMenubarIcon"`
	HardenedKDF            bool `json:"hardenedKDF"`
}

// Config is the persisted document: an ordered vault list plus settings.
type Config struct {
	Vaults   []Vault        `json:"vaults"`
	Settings GlobalSettings `json:"globalSettings"`
}

// Path joins dir and Filename.
func Path(dir string) string {
	return filepath.Join(dir, Filename)
}

// Load reads the config document at dir. A missing file is not an error:
// it yields an empty default config, per spec §4.7.
func Load(dir string) (*Config, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Save persists cfg atomically (temp file, fsync, rename), creating dir if
// needed. encoding/json emits object keys in struct declaration order, so
// the field order above is what actually lands on disk.
func Save(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "vaults-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpPath, Path(dir)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// FindByID returns the index of the vault with id, or -1.
func (c *Config) FindByID(id uuid.UUID) int {
	for i := range c.Vaults {
		if c.Vaults[i].ID == id {
			return i
		}
	}
	return -1
}

// FindByFolder returns the index of the vault tracking folder, or -1.
// Config.Vaults invariant: no two vaults name the same folder path.
func (c *Config) FindByFolder(folder string) int {
	for i := range c.Vaults {
		if c.Vaults[i].FolderPath == folder {
			return i
		}
	}
	return -1
}
