// Package authenticator drives the biometric prompt and combines it with a
// secretstore.Store to yield a usable master key, and implements the
// password path (derive wrapping key, unwrap). It also owns vault setup and
// change-password, since both are key-material operations rather than
// config bookkeeping.
package authenticator

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/loganross/coffer/internal/keyderiv"
	"github.com/loganross/coffer/internal/passwordpolicy"
	"github.com/loganross/coffer/internal/secretstore"
	"github.com/loganross/coffer/internal/vaulterrors"
	"github.com/loganross/coffer/krypto"
)

// Authenticator combines a secret store with the platform biometric prompt.
type Authenticator struct {
	store    secretstore.Store
	strategy keyderiv.Strategy
}

// New returns an Authenticator bound to store, deriving wrapping keys with
// strategy (keyderiv.StrategyHKDF unless the caller opted into the
// Argon2-prehardened variant).
func New(store secretstore.Store, strategy keyderiv.Strategy) *Authenticator {
	return &Authenticator{store: store, strategy: strategy}
}

// BiometricsAvailable samples the platform biometric capability. Per spec
// it should be sampled fresh, not cached, since enrollment can change
// between calls.
func (a *Authenticator) BiometricsAvailable() bool {
	return biometricsAvailable()
}

// UnlockBiometric asks the OS to evaluate the biometric policy with reason
// naming vaultName, then retrieves the master-key slot using the resulting
// authenticated context so the store does not re-prompt.
func (a *Authenticator) UnlockBiometric(id uuid.UUID, vaultName string) ([]byte, error) {
	reason := fmt.Sprintf("Unlock vault %q", vaultName)
	if err := evaluateBiometric(reason); err != nil {
		return nil, classifyBiometricError(err)
	}
	auth := secretstore.Authenticated()
	key, err := a.store.RetrieveMasterKey(id, &auth)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// UnlockPassword retrieves salt and wrapped-master-key, derives the
// wrapping key, and unwraps. Any failure along the way — missing slot,
// derive failure, unwrap/tag mismatch — is reported uniformly as
// ErrWrongPassword so no step is distinguishable to a caller.
func (a *Authenticator) UnlockPassword(id uuid.UUID, password string) ([]byte, error) {
	salt, err := a.store.RetrieveSalt(id)
	if err != nil {
		return nil, vaulterrors.ErrWrongPassword
	}
	wrapped, err := a.store.RetrieveWrappedMasterKey(id)
	if err != nil {
		return nil, vaulterrors.ErrWrongPassword
	}

	wrappingKey, err := keyderiv.Derive(a.strategy, password, salt)
	if err != nil {
		return nil, vaulterrors.ErrWrongPassword
	}

	mek, err := krypto.UnwrapMasterKey(wrappingKey, wrapped)
	if err != nil {
		return nil, vaulterrors.ErrWrongPassword
	}
	return mek, nil
}

// SetupVault generates a fresh master key and salt, wraps the master key
// under the password-derived wrapping key, and stores salt and
// wrapped-master-key unconditionally. When enableBiometric is set and the
// platform actually has biometrics available, the raw master key is also
// stored under the biometric-gated slot. The master key is returned so the
// caller (vault manager's add-vault) can proceed directly to an initial
// lock pass without a second authenticator round trip.
func (a *Authenticator) SetupVault(id uuid.UUID, password string, enableBiometric bool) ([]byte, error) {
	if err := passwordpolicy.Validate(password); err != nil {
		return nil, fmt.Errorf("validate master password: %w", err)
	}

	mek, err := krypto.NewMasterKey()
	if err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	salt, err := krypto.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	wrappingKey, err := keyderiv.Derive(a.strategy, password, salt)
	if err != nil {
		return nil, fmt.Errorf("derive wrapping key: %w", err)
	}
	wrapped, err := krypto.WrapMasterKey(wrappingKey, mek)
	if err != nil {
		return nil, fmt.Errorf("wrap master key: %w", err)
	}

	if err := a.store.StoreSalt(id, salt); err != nil {
		return nil, err
	}
	if err := a.store.StoreWrappedMasterKey(id, wrapped); err != nil {
		return nil, err
	}

	if enableBiometric && a.BiometricsAvailable() {
		if err := a.store.StoreMasterKey(id, mek); err != nil {
			return nil, err
		}
	}

	return mek, nil
}

// ChangePassword verifies the current password by unlocking with it, then
// generates a fresh salt and wrapping key and overwrites salt and
// wrapped-master-key. The biometric slot, if present, is left untouched:
// biometrics bind to the master key itself, not to the password path.
func (a *Authenticator) ChangePassword(id uuid.UUID, currentPassword, newPassword string) error {
	mek, err := a.UnlockPassword(id, currentPassword)
	if err != nil {
		return err
	}

	if err := passwordpolicy.Validate(newPassword); err != nil {
		return fmt.Errorf("validate new master password: %w", err)
	}

	newSalt, err := krypto.NewSalt()
	if err != nil {
		return fmt.Errorf("generate new salt: %w", err)
	}
	newWrappingKey, err := keyderiv.Derive(a.strategy, newPassword, newSalt)
	if err != nil {
		return fmt.Errorf("derive new wrapping key: %w", err)
	}
	newWrapped, err := krypto.WrapMasterKey(newWrappingKey, mek)
	if err != nil {
		return fmt.Errorf("wrap master key: %w", err)
	}

	if err := a.store.StoreSalt(id, newSalt); err != nil {
		return err
	}
	if err := a.store.StoreWrappedMasterKey(id, newWrapped); err != nil {
		return err
	}
	return nil
}

// bioError carries the platform-reported LAError code so classification
// stays in one place regardless of which build-tagged file produced it.
type bioError struct {
	code int
}

func (e *bioError) Error() string {
	return fmt.Sprintf("biometric evaluation failed (code %d)", e.code)
}

// LAError codes from LocalAuthentication.h: BiometryNotAvailable (-6) and
// BiometryNotEnrolled (-7) mean the platform genuinely cannot authenticate
// this way; every other non-zero code (user/app/system cancel, lockout,
// passcode not set, invalid context) is an authentication failure per
// spec §4.3 step 2.
const (
	laErrorBiometryNotAvailable = -6
	laErrorBiometryNotEnrolled  = -7
)

func classifyBiometricError(err error) error {
	be, ok := err.(*bioError)
	if !ok {
		return vaulterrors.ErrAuthenticationFailed
	}
	switch be.code {
	case laErrorBiometryNotAvailable, laErrorBiometryNotEnrolled:
		return vaulterrors.ErrBiometricsUnavailable
	default:
		return vaulterrors.ErrAuthenticationFailed
	}
}
