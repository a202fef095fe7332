//go:build darwin

package secretstore

import (
	"github.com/google/uuid"
	keychain "github.com/keybase/go-keychain"

	"github.com/loganross/coffer/internal/vaulterrors"
)

const keychainLabel = "coffer vault secret"

// KeychainStore is the darwin Store backend. Each slot is one Keychain
// generic-password item stored device-local and accessible only while the
// device is unlocked. The master-key item is stored the same way as the
// other two: it carries no biometry-gated access control, and a change of
// the enrolled biometrics does not invalidate it (see StoreMasterKey).
type KeychainStore struct{}

// NewKeychainStore returns the macOS Keychain-backed secret store.
func NewKeychainStore() *KeychainStore { return &KeychainStore{} }

// StoreMasterKey persists the master key the same way the teacher's
// bio/toggle package persists its State payload (device-local,
// AccessibleWhenUnlockedThisDeviceOnly, SynchronizableNo). The go-keychain
// binding used here does not expose macOS's SecAccessControl biometry
// flags, so this item carries no kernel-enforced biometry gate of its own;
// the gate is enforced in software by the Authenticator (component C),
// which never calls RetrieveMasterKey except immediately after a fresh
// LAContext.evaluatePolicy success (see internal/authenticator).
//
// A biometry-enrollment change (new fingerprint/face added, Touch
// ID/Face ID reset) is NOT detected by this backend: there is no
// DeleteMasterKey call wired to any enrollment-change signal, so spec
// §4.2's "entry becomes unreadable and is treated as absent" on
// enrollment change is an unimplemented Open Question, not an enforced
// property — see DESIGN.md.
func (s *KeychainStore) StoreMasterKey(id uuid.UUID, key []byte) error {
	return storeUngated(masterKeyAccount(id), key)
}

func (s *KeychainStore) RetrieveMasterKey(id uuid.UUID, auth *AuthContext) ([]byte, error) {
	// auth marks that the caller already completed a biometric evaluation
	// (spec §4.2: "the store uses it and does not re-prompt"); the
	// Authenticator is the only caller path that reaches this function, so
	// by the time we're here the gate has already been enforced.
	_ = auth
	return retrieve(ServiceNamespace, masterKeyAccount(id))
}

func (s *KeychainStore) DeleteMasterKey(id uuid.UUID) error {
	return deleteItem(ServiceNamespace, masterKeyAccount(id))
}

func (s *KeychainStore) StoreSalt(id uuid.UUID, salt []byte) error {
	return storeUngated(saltAccount(id), salt)
}

func (s *KeychainStore) RetrieveSalt(id uuid.UUID) ([]byte, error) {
	return retrieve(ServiceNamespace, saltAccount(id))
}

func (s *KeychainStore) DeleteSalt(id uuid.UUID) error {
	return deleteItem(ServiceNamespace, saltAccount(id))
}

func (s *KeychainStore) StoreWrappedMasterKey(id uuid.UUID, blob []byte) error {
	return storeUngated(wrappedAccount(id), blob)
}

func (s *KeychainStore) RetrieveWrappedMasterKey(id uuid.UUID) ([]byte, error) {
	return retrieve(ServiceNamespace, wrappedAccount(id))
}

func (s *KeychainStore) DeleteWrappedMasterKey(id uuid.UUID) error {
	return deleteItem(ServiceNamespace, wrappedAccount(id))
}

func (s *KeychainStore) DeleteAll(id uuid.UUID) error {
	for _, account := range []string{masterKeyAccount(id), saltAccount(id), wrappedAccount(id)} {
		if err := deleteItem(ServiceNamespace, account); err != nil {
			return err
		}
	}
	return nil
}

func storeUngated(account string, data []byte) error {
	item := keychain.NewGenericPassword(ServiceNamespace, account, keychainLabel, data, "")
	item.SetSynchronizable(keychain.SynchronizableNo)
	item.SetAccessible(keychain.AccessibleWhenUnlockedThisDeviceOnly)
	return upsert(item, keychain.NewGenericPassword(ServiceNamespace, account, "", nil, ""))
}

// upsert implements the write semantics of spec §4.2: delete any existing
// entry at the key, then insert. AddItem already treats a duplicate as
// non-fatal here by explicitly clearing first, so writes are idempotent.
func upsert(item keychain.Item, deleteQuery keychain.Item) error {
	if err := keychain.DeleteItem(deleteQuery); err != nil && err != keychain.ErrorItemNotFound {
		return &vaulterrors.StoreError{Op: vaulterrors.StoreOpWrite, Status: err.Error()}
	}
	if err := keychain.AddItem(item); err != nil {
		return &vaulterrors.StoreError{Op: vaulterrors.StoreOpWrite, Status: err.Error()}
	}
	return nil
}

func retrieve(service, account string) ([]byte, error) {
	data, err := keychain.GetGenericPassword(service, account, "", "")
	if err != nil {
		return nil, &vaulterrors.StoreError{Op: vaulterrors.StoreOpRead, Status: err.Error()}
	}
	if data == nil {
		return nil, &vaulterrors.StoreError{Op: vaulterrors.StoreOpRead, Status: vaulterrors.ErrStoreNotFound}
	}
	return data, nil
}

func deleteItem(service, account string) error {
	query := keychain.NewGenericPassword(service, account, "", nil, "")
	if err := keychain.DeleteItem(query); err != nil && err != keychain.ErrorItemNotFound {
		return &vaulterrors.StoreError{Op: vaulterrors.StoreOpDelete, Status: err.Error()}
	}
	return nil
}
