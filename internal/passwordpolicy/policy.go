// Package passwordpolicy gates master passwords during vault setup and
// change-password, reusing the teacher's zxcvbn + HIBP policy from the
// top-level auth package verbatim rather than reimplementing it.
package passwordpolicy

import (
	"context"
	"strings"

	"github.com/loganross/coffer/auth"
)

// Validate enforces length/LUDS/zxcvbn locally and, when reachable, checks
// the HIBP breach corpus over the network via k-anonymity. A network
// failure on the HIBP leg only soft-fails: local policy still applies, but
// the password is not rejected purely because the lookup could not
// complete — an operation with no network access must still be able to set
// up or rotate a vault password.
func Validate(password string) error {
	opts := auth.DefaultValidateOptions()
	opts.EnableHIBP = true

	err := auth.ValidateMasterPasswordAdvanced(context.Background(), password, opts)
	if err == nil {
		return nil
	}
	if !strings.Contains(err.Error(), "hibp lookup failed") {
		return err
	}

	opts.EnableHIBP = false
	return auth.ValidateMasterPasswordAdvanced(context.Background(), password, opts)
}
