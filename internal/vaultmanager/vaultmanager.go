// Package vaultmanager orchestrates the lifecycle operations (spec §4.6):
// add, lock, unlock (biometric and password), remove, lock-all, and the
// interrupted-vault recovery scan. It is the engine's single writer — one
// sync.Mutex serializes every public operation, matching the "single
// logical worker" model of spec §5.
package vaultmanager

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loganross/coffer/internal/auditlog"
	"github.com/loganross/coffer/internal/authenticator"
	"github.com/loganross/coffer/internal/manifest"
	"github.com/loganross/coffer/internal/pipeline"
	"github.com/loganross/coffer/internal/secretstore"
	"github.com/loganross/coffer/internal/vaultconfig"
	"github.com/loganross/coffer/internal/vaulterrors"
)

// OpenFileHandlesProbe is the open-handle check LockVault runs before
// encrypting (spec §4.4.6). It defaults to pipeline.OpenFileHandles
// (shelling out to lsof); tests override it to exercise the
// files-in-use path without depending on the lsof binary or real open
// file descriptors.
var OpenFileHandlesProbe = pipeline.OpenFileHandles

// Manager is the vault engine's orchestration layer.
type Manager struct {
	mu        sync.Mutex
	configDir string
	cfg       *vaultconfig.Config
	store     secretstore.Store
	auth      *authenticator.Authenticator
	audit     *auditlog.AuditLog // optional; nil disables the diagnostic trail
}

// New loads (or initializes) the config document at configDir and returns
// a ready Manager. audit may be nil, in which case lifecycle events are not
// recorded anywhere — purely a diagnostic trail, never consulted for
// recovery (spec §4 component I note).
func New(configDir string, store secretstore.Store, auth *authenticator.Authenticator, audit *auditlog.AuditLog) (*Manager, error) {
	cfg, err := vaultconfig.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load vault config: %w", err)
	}
	return &Manager{
		configDir: configDir,
		cfg:       cfg,
		store:     store,
		auth:      auth,
		audit:     audit,
	}, nil
}

func (m *Manager) record(id uuid.UUID, kind, detail string) {
	if m.audit == nil {
		return
	}
	_ = m.audit.Record(id, kind, detail) // diagnostic only; never fails an operation
}

func (m *Manager) save() error {
	return vaultconfig.Save(m.configDir, m.cfg)
}

// List returns a snapshot of every tracked vault.
func (m *Manager) List() []vaultconfig.Vault {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]vaultconfig.Vault, len(m.cfg.Vaults))
	copy(out, m.cfg.Vaults)
	return out
}

// AddVault registers a new vault rooted at folder, running vault setup (C)
// to generate and persist its key material, then appends it to the config
// (spec §4.6 add-vault). If lockImmediately is set, an initial lock pass
// runs using the master key setup already produced, without a second
// authenticator round trip.
func (m *Manager) AddVault(name, folder, password string, useBiometric bool, autoLockMinutes int, lockImmediately bool) (*vaultconfig.Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("folder %q does not exist or is not a directory", folder)
	}
	if m.cfg.FindByFolder(folder) != -1 {
		return nil, vaulterrors.ErrVaultAlreadyExists
	}

	id := uuid.New()
	count, totalBytes, err := computeFolderStats(folder)
	if err != nil {
		return nil, err
	}

	mek, err := m.auth.SetupVault(id, password, useBiometric)
	if err != nil {
		return nil, fmt.Errorf("setup vault: %w", err)
	}

	v := vaultconfig.Vault{
		ID:               id,
		Name:             name,
		FolderPath:       folder,
		State:            vaultconfig.StateUnlocked,
		CreatedAt:        time.Now().UTC(),
		AutoLockMinutes:  autoLockMinutes,
		BiometricEnabled: useBiometric && m.auth.BiometricsAvailable(),
		CachedFileCount:  count,
		CachedTotalBytes: totalBytes,
	}
	m.cfg.Vaults = append(m.cfg.Vaults, v)
	if err := m.save(); err != nil {
		return nil, err
	}
	m.record(id, "added", folder)

	if lockImmediately {
		idx := m.cfg.FindByID(id)
		m.cfg.Vaults[idx].State = vaultconfig.StateEncrypting
		if err := m.save(); err != nil {
			return &m.cfg.Vaults[idx], err
		}
		m.record(id, "lock-start", "")
		if err := m.lockWithKey(idx, mek, nil); err != nil {
			return &m.cfg.Vaults[idx], err
		}
	}

	result := m.cfg.Vaults[m.cfg.FindByID(id)]
	return &result, nil
}

// LockVault runs the encryption pass for an unlocked vault (spec §4.6
// lock-vault). Per spec, the state transition to "encrypting" happens
// before the master key is derived from password — a wrong password here
// does drive the vault into the error state, unlike the unlock-password
// path below.
func (m *Manager) LockVault(id uuid.UUID, password string, progress pipeline.ProgressFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.cfg.FindByID(id)
	if idx == -1 {
		return vaulterrors.ErrVaultNotFound
	}
	v := &m.cfg.Vaults[idx]
	if v.State != vaultconfig.StateUnlocked {
		return vaulterrors.ErrInvalidStateTransition
	}

	handles, err := OpenFileHandlesProbe(v.FolderPath)
	if err != nil {
		return fmt.Errorf("probe open handles: %w", err)
	}
	if len(handles) > 0 {
		return &vaulterrors.FilesInUseError{Paths: handles}
	}

	v.State = vaultconfig.StateEncrypting
	if err := m.save(); err != nil {
		return err
	}
	m.record(id, "lock-start", "")

	mek, err := m.auth.UnlockPassword(id, password)
	if err != nil {
		v.State = vaultconfig.StateError
		_ = m.save()
		m.record(id, "lock-failure", err.Error())
		return err
	}

	return m.lockWithKey(idx, mek, progress)
}

// lockWithKey runs the encryption pass given an already-derived master key,
// assuming the caller has already transitioned the vault to "encrypting"
// and saved. It is shared by LockVault and AddVault's lock-immediately path.
func (m *Manager) lockWithKey(idx int, mek []byte, progress pipeline.ProgressFunc) error {
	v := &m.cfg.Vaults[idx]

	mm, err := pipeline.Lock(v.FolderPath, v.ID, mek, progress)
	if err != nil {
		v.State = vaultconfig.StateError
		_ = m.save()
		m.record(v.ID, "lock-failure", err.Error())
		return err
	}

	v.State = vaultconfig.StateLocked
	v.CachedFileCount = len(mm.Files)
	var total int64
	for _, f := range mm.Files {
		total += f.OriginalSize
	}
	v.CachedTotalBytes = total
	if err := m.save(); err != nil {
		return err
	}
	m.record(v.ID, "lock-success", "")
	return nil
}

// UnlockVaultBiometric runs the decryption pass using the biometric path of
// the authenticator (spec §4.6 unlock-vault-biometric).
func (m *Manager) UnlockVaultBiometric(id uuid.UUID, progress pipeline.ProgressFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.cfg.FindByID(id)
	if idx == -1 {
		return vaulterrors.ErrVaultNotFound
	}
	v := &m.cfg.Vaults[idx]
	if v.State != vaultconfig.StateLocked {
		return vaulterrors.ErrInvalidStateTransition
	}

	v.State = vaultconfig.StateDecrypting
	if err := m.save(); err != nil {
		return err
	}
	m.record(id, "unlock-start", "biometric")

	mek, err := m.auth.UnlockBiometric(id, v.Name)
	if err != nil {
		v.State = vaultconfig.StateError
		_ = m.save()
		m.record(id, "unlock-failure", err.Error())
		return err
	}

	return m.unlockWithKey(idx, mek, progress)
}

// UnlockVaultPassword runs the decryption pass using the password path.
// Unlike lock-vault, the authenticator call happens before the state
// transition to "decrypting", so a wrong password never drives the vault
// into decrypting/error (spec §4.6).
func (m *Manager) UnlockVaultPassword(id uuid.UUID, password string, progress pipeline.ProgressFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.cfg.FindByID(id)
	if idx == -1 {
		return vaulterrors.ErrVaultNotFound
	}
	v := &m.cfg.Vaults[idx]
	if v.State != vaultconfig.StateLocked {
		return vaulterrors.ErrInvalidStateTransition
	}

	mek, err := m.auth.UnlockPassword(id, password)
	if err != nil {
		return err
	}

	v.State = vaultconfig.StateDecrypting
	if err := m.save(); err != nil {
		return err
	}
	m.record(id, "unlock-start", "password")

	return m.unlockWithKey(idx, mek, progress)
}

func (m *Manager) unlockWithKey(idx int, mek []byte, progress pipeline.ProgressFunc) error {
	v := &m.cfg.Vaults[idx]

	mm, err := pipeline.Unlock(v.FolderPath, v.ID, mek, progress)
	if err != nil {
		v.State = vaultconfig.StateError
		_ = m.save()
		m.record(v.ID, "unlock-failure", err.Error())
		return err
	}

	v.State = vaultconfig.StateUnlocked
	now := time.Now().UTC()
	v.LastUnlockedAt = &now
	var total int64
	for _, f := range mm.Files {
		total += f.OriginalSize
	}
	v.CachedFileCount = len(mm.Files)
	v.CachedTotalBytes = total
	if err := m.save(); err != nil {
		return err
	}
	m.record(v.ID, "unlock-success", "")
	return nil
}

// ChangePassword rotates a vault's password-path wrapping material (spec
// §4.6 change-password). Restricted to locked or unlocked vaults: the vault's
// encrypted files on disk were never touched, so there is nothing to
// re-encrypt, but allowing it mid-lock/unlock would race the pipeline.
func (m *Manager) ChangePassword(id uuid.UUID, currentPassword, newPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.cfg.FindByID(id)
	if idx == -1 {
		return vaulterrors.ErrVaultNotFound
	}
	v := &m.cfg.Vaults[idx]
	if v.State != vaultconfig.StateUnlocked && v.State != vaultconfig.StateLocked {
		return vaulterrors.ErrInvalidStateTransition
	}

	if err := m.auth.ChangePassword(id, currentPassword, newPassword); err != nil {
		return err
	}
	m.record(id, "change-password", "")
	return nil
}

// RemoveVault drops a vault from tracking. If it is currently locked, it is
// unlocked first — via the password path if password is non-nil, via
// biometrics otherwise — before its secret-store slots are deleted and it
// is dropped from the config (spec §4.6 remove-vault). A biometric attempt
// with no password fallback that fails is reported uniformly as
// wrong-password, matching spec's "wrong-password if neither applies".
func (m *Manager) RemoveVault(id uuid.UUID, password *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.cfg.FindByID(id)
	if idx == -1 {
		return vaulterrors.ErrVaultNotFound
	}
	v := &m.cfg.Vaults[idx]

	if v.State == vaultconfig.StateLocked {
		var mek []byte
		var err error
		if password != nil {
			mek, err = m.auth.UnlockPassword(id, *password)
		} else {
			mek, err = m.auth.UnlockBiometric(id, v.Name)
			if err != nil {
				err = vaulterrors.ErrWrongPassword
			}
		}
		if err != nil {
			return err
		}

		v.State = vaultconfig.StateDecrypting
		if err := m.save(); err != nil {
			return err
		}
		m.record(id, "unlock-start", "remove")
		if err := m.unlockWithKey(idx, mek, nil); err != nil {
			return err
		}
	}

	if err := m.store.DeleteAll(id); err != nil {
		return fmt.Errorf("delete secret store entries: %w", err)
	}

	m.cfg.Vaults = append(m.cfg.Vaults[:idx], m.cfg.Vaults[idx+1:]...)
	if err := m.save(); err != nil {
		return err
	}
	m.record(id, "removed", "")
	return nil
}

// LockAll iterates every currently-unlocked vault and locks it with the
// single shared password (spec §4.6 lock-all, §9 open question: all
// vaults share one password in the current design). The sweep stops at the
// first vault that fails to lock and returns that error; vaults after it in
// the config order are not attempted.
func (m *Manager) LockAll(password string) error {
	ids := func() []uuid.UUID {
		m.mu.Lock()
		defer m.mu.Unlock()
		var out []uuid.UUID
		for _, v := range m.cfg.Vaults {
			if v.State == vaultconfig.StateUnlocked {
				out = append(out, v.ID)
			}
		}
		return out
	}()

	for _, id := range ids {
		if err := m.LockVault(id, password, nil); err != nil {
			return fmt.Errorf("vault %s: %w", id, err)
		}
	}
	return nil
}

// InterruptedVaults scans every configured vault folder for a manifest
// whose status means a lock pass never reached completion (spec §4.6
// interrupted-vaults, §4.4.4). An interrupted unlock pass is not reported:
// the decryption pass never rewrites the manifest's status.
func (m *Manager) InterruptedVaults() ([]vaultconfig.Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []vaultconfig.Vault
	for _, v := range m.cfg.Vaults {
		interrupted, err := manifest.HasInterrupted(v.FolderPath)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", v.FolderPath, err)
		}
		if interrupted {
			out = append(out, v)
		}
	}
	return out, nil
}

func computeFolderStats(folder string) (count int, totalBytes int64, err error) {
	paths, err := pipeline.CollectRegularFiles(folder)
	if err != nil {
		return 0, 0, err
	}
	for _, p := range paths {
		info, statErr := os.Stat(p)
		if statErr != nil {
			continue
		}
		totalBytes += info.Size()
	}
	return len(paths), totalBytes, nil
}
