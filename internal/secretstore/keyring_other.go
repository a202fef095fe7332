//go:build !darwin

package secretstore

import (
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
	"github.com/zalando/go-keyring"

	"github.com/loganross/coffer/internal/vaulterrors"
)

// KeyringStore is the cross-platform Store backend for everything except
// macOS: the two ungated slots (salt, wrapped-master-key) are stored in the
// platform's native credential manager (Windows Credential Manager, Linux
// Secret Service / kwallet) via zalando/go-keyring. The biometric
// master-key slot has no equivalent on these platforms without a
// Keychain-style access-control API, so it reports unsupported — matching
// the darwin/stub split the teacher already uses for biometrics
// (internal/bio/toggle).
type KeyringStore struct{}

// NewKeyringStore returns the non-darwin secret store.
func NewKeyringStore() *KeyringStore { return &KeyringStore{} }

func (s *KeyringStore) StoreMasterKey(id uuid.UUID, key []byte) error {
	return &vaulterrors.StoreError{Op: vaulterrors.StoreOpWrite, Status: "biometric storage unsupported on this platform"}
}

func (s *KeyringStore) RetrieveMasterKey(id uuid.UUID, auth *AuthContext) ([]byte, error) {
	return nil, &vaulterrors.StoreError{Op: vaulterrors.StoreOpRead, Status: "biometric storage unsupported on this platform"}
}

func (s *KeyringStore) DeleteMasterKey(id uuid.UUID) error {
	return nil // nothing was ever stored; deletion is a no-op
}

func (s *KeyringStore) StoreSalt(id uuid.UUID, salt []byte) error {
	return keyringUpsert(saltAccount(id), salt)
}

func (s *KeyringStore) RetrieveSalt(id uuid.UUID) ([]byte, error) {
	return keyringRetrieve(saltAccount(id))
}

func (s *KeyringStore) DeleteSalt(id uuid.UUID) error {
	return keyringDelete(saltAccount(id))
}

func (s *KeyringStore) StoreWrappedMasterKey(id uuid.UUID, blob []byte) error {
	return keyringUpsert(wrappedAccount(id), blob)
}

func (s *KeyringStore) RetrieveWrappedMasterKey(id uuid.UUID) ([]byte, error) {
	return keyringRetrieve(wrappedAccount(id))
}

func (s *KeyringStore) DeleteWrappedMasterKey(id uuid.UUID) error {
	return keyringDelete(wrappedAccount(id))
}

func (s *KeyringStore) DeleteAll(id uuid.UUID) error {
	for _, account := range []string{saltAccount(id), wrappedAccount(id)} {
		if err := keyringDelete(account); err != nil {
			return err
		}
	}
	return nil
}

func keyringUpsert(account string, data []byte) error {
	// go-keyring's Set already overwrites an existing secret at the same
	// (service, user) pair, giving us the upsert semantics spec §4.2 wants.
	// Secrets are base64-encoded since some go-keyring backends (e.g. Linux
	// Secret Service) are not guaranteed binary-safe.
	encoded := base64.StdEncoding.EncodeToString(data)
	if err := keyring.Set(ServiceNamespace, account, encoded); err != nil {
		return &vaulterrors.StoreError{Op: vaulterrors.StoreOpWrite, Status: err.Error()}
	}
	return nil
}

func keyringRetrieve(account string) ([]byte, error) {
	val, err := keyring.Get(ServiceNamespace, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, &vaulterrors.StoreError{Op: vaulterrors.StoreOpRead, Status: vaulterrors.ErrStoreNotFound}
		}
		return nil, &vaulterrors.StoreError{Op: vaulterrors.StoreOpRead, Status: err.Error()}
	}
	decoded, err := base64.StdEncoding.DecodeString(val)
	if err != nil {
		return nil, &vaulterrors.StoreError{Op: vaulterrors.StoreOpRead, Status: err.Error()}
	}
	return decoded, nil
}

func keyringDelete(account string) error {
	if err := keyring.Delete(ServiceNamespace, account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return &vaulterrors.StoreError{Op: vaulterrors.StoreOpDelete, Status: err.Error()}
	}
	return nil
}
