package secretstore

import (
	"sync"

	"github.com/google/uuid"

	"github.com/loganross/coffer/internal/vaulterrors"
)

// MemoryStore is an in-memory Store used by tests in place of a real OS
// credential store, so the engine's test suite (spec §8/§9: "testing
// instantiates one per test") does not depend on a live macOS Keychain or
// Linux Secret Service session. BiometricsEnrolled models the current
// enrollment state; InvalidateBiometrics simulates "biometric set changed"
// for property 7.
type MemoryStore struct {
	mu                 sync.Mutex
	masterKeys         map[uuid.UUID][]byte
	salts              map[uuid.UUID][]byte
	wrapped            map[uuid.UUID][]byte
	biometricsEnrolled bool
}

// NewMemoryStore returns a ready in-memory store with biometrics enrolled.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		masterKeys:         make(map[uuid.UUID][]byte),
		salts:              make(map[uuid.UUID][]byte),
		wrapped:            make(map[uuid.UUID][]byte),
		biometricsEnrolled: true,
	}
}

// InvalidateBiometrics simulates the enrolled biometric set changing: every
// master-key slot becomes unreadable, as spec §4.2/§8 property 7 requires.
func (s *MemoryStore) InvalidateBiometrics() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.biometricsEnrolled = false
}

func (s *MemoryStore) StoreMasterKey(id uuid.UUID, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]byte(nil), key...)
	s.masterKeys[id] = cp
	s.biometricsEnrolled = true
	return nil
}

func (s *MemoryStore) RetrieveMasterKey(id uuid.UUID, auth *AuthContext) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.biometricsEnrolled {
		return nil, &vaulterrors.StoreError{Op: vaulterrors.StoreOpRead, Status: vaulterrors.ErrStoreNotFound}
	}
	key, ok := s.masterKeys[id]
	if !ok {
		return nil, &vaulterrors.StoreError{Op: vaulterrors.StoreOpRead, Status: vaulterrors.ErrStoreNotFound}
	}
	return append([]byte(nil), key...), nil
}

func (s *MemoryStore) DeleteMasterKey(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.masterKeys, id)
	return nil
}

func (s *MemoryStore) StoreSalt(id uuid.UUID, salt []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.salts[id] = append([]byte(nil), salt...)
	return nil
}

func (s *MemoryStore) RetrieveSalt(id uuid.UUID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	salt, ok := s.salts[id]
	if !ok {
		return nil, &vaulterrors.StoreError{Op: vaulterrors.StoreOpRead, Status: vaulterrors.ErrStoreNotFound}
	}
	return append([]byte(nil), salt...), nil
}

func (s *MemoryStore) DeleteSalt(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.salts, id)
	return nil
}

func (s *MemoryStore) StoreWrappedMasterKey(id uuid.UUID, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wrapped[id] = append([]byte(nil), blob...)
	return nil
}

func (s *MemoryStore) RetrieveWrappedMasterKey(id uuid.UUID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.wrapped[id]
	if !ok {
		return nil, &vaulterrors.StoreError{Op: vaulterrors.StoreOpRead, Status: vaulterrors.ErrStoreNotFound}
	}
	return append([]byte(nil), blob...), nil
}

func (s *MemoryStore) DeleteWrappedMasterKey(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wrapped, id)
	return nil
}

func (s *MemoryStore) DeleteAll(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.masterKeys, id)
	delete(s.salts, id)
	delete(s.wrapped, id)
	return nil
}
