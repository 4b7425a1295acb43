package app

import (
	"errors"

	"pipit/cmd/security/token"
)

// ValidateSecurityConfig enforces Pipit's security policy at startup.
//
// Fail-fast is intentional: silently falling back to weaker crypto in
// production is unacceptable. Enforcement validates the same module that
// performs refresh-token hashing (security/token).
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Minimum 32 bytes for an HMAC-SHA256 key, measured in raw bytes.
	if _, err := token.HashKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHashKeyMissing):
			return errors.New("security policy: PIPIT_REQUIRE_TOKEN_HMAC=true but PIPIT_TOKEN_HASH_KEY is missing")
		case errors.Is(err, token.ErrHashKeyTooShort):
			return errors.New("security policy: PIPIT_REQUIRE_TOKEN_HMAC=true but PIPIT_TOKEN_HASH_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	// Hard assertion: hashing must actually be in HMAC mode in this runtime.
	if !token.HashHMACEnabled() {
		return errors.New("security policy: PIPIT_REQUIRE_TOKEN_HMAC=true but refresh-token hasher is not in HMAC mode")
	}

	return nil
}
