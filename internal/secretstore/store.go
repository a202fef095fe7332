// Package secretstore persists the three per-vault secret slots — master
// key, salt, wrapped master key — in an OS-provided credential store (spec
// §4.2). The darwin build uses macOS Keychain via go-keychain for all three
// slots, with no biometry-gated access control on the master-key item (the
// biometric check happens in the authenticator before the read); other
// platforms fall back to zalando/go-keyring (backed by the platform's
// native credential manager) for the two ungated slots, and report the
// biometric slot as unsupported.
package secretstore

import (
	"github.com/google/uuid"
)

// ServiceNamespace is the credential-store service name every slot is filed
// under (spec §6).
const ServiceNamespace = "com.loganross.coffer"

// AuthContext marks that the caller already completed a biometric
// evaluation, so a subsequent RetrieveMasterKey call should not prompt
// again (spec §4.2: "the store uses it and does not re-prompt").
type AuthContext struct {
	authenticated bool
}

// Authenticated returns an AuthContext asserting a successful prior
// biometric evaluation.
func Authenticated() AuthContext {
	return AuthContext{authenticated: true}
}

func (a AuthContext) ok() bool { return a.authenticated }

// Store is the secret-store contract every platform backend implements.
type Store interface {
	StoreMasterKey(id uuid.UUID, key []byte) error
	RetrieveMasterKey(id uuid.UUID, auth *AuthContext) ([]byte, error)
	DeleteMasterKey(id uuid.UUID) error

	StoreSalt(id uuid.UUID, salt []byte) error
	RetrieveSalt(id uuid.UUID) ([]byte, error)
	DeleteSalt(id uuid.UUID) error

	StoreWrappedMasterKey(id uuid.UUID, blob []byte) error
	RetrieveWrappedMasterKey(id uuid.UUID) ([]byte, error)
	DeleteWrappedMasterKey(id uuid.UUID) error

	DeleteAll(id uuid.UUID) error
}

func masterKeyAccount(id uuid.UUID) string { return "masterKey." + id.String() }
func saltAccount(id uuid.UUID) string      { return "salt." + id.String() }
func wrappedAccount(id uuid.UUID) string   { return "masterKey.wrapped." + id.String() }
