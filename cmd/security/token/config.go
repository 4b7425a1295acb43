package token

import (
	"os"
	"strings"
	"time"
)

// minSecretBytes is the minimum accepted secret length per kind.
const minSecretBytes = 32

// Config defines the per-kind secrets and TTLs for the token service.
//
// Secrets must never be shared across kinds: the kind check alone is not a
// substitute for key separation.
type Config struct {
	AccessSecret         []byte
	RefreshSecret        []byte
	EmailVerifySecret    []byte
	ForgotPasswordSecret []byte

	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	EmailVerifyTTL    time.Duration
	ForgotPasswordTTL time.Duration
}

// DefaultConfig returns the default TTL policy. Secrets are intentionally
// absent; they must always come from the environment.
func DefaultConfig() Config {
	return Config{
		AccessTTL:         15 * time.Minute,
		RefreshTTL:        30 * 24 * time.Hour,
		EmailVerifyTTL:    7 * 24 * time.Hour,
		ForgotPasswordTTL: 1 * time.Hour,
	}
}

// LoadConfigFromEnv loads token configuration from environment variables.
//
// Required (each at least 32 bytes):
//   - PIPIT_TOKEN_ACCESS_SECRET
//   - PIPIT_TOKEN_REFRESH_SECRET
//   - PIPIT_TOKEN_EMAIL_VERIFY_SECRET
//   - PIPIT_TOKEN_FORGOT_PASSWORD_SECRET
//
// Optional (valid Go duration strings):
//   - PIPIT_TOKEN_ACCESS_TTL
//   - PIPIT_TOKEN_REFRESH_TTL
//   - PIPIT_TOKEN_EMAIL_VERIFY_TTL
//   - PIPIT_TOKEN_FORGOT_PASSWORD_TTL
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	var err error
	if cfg.AccessSecret, err = secretFromEnv("PIPIT_TOKEN_ACCESS_SECRET"); err != nil {
		return Config{}, err
	}
	if cfg.RefreshSecret, err = secretFromEnv("PIPIT_TOKEN_REFRESH_SECRET"); err != nil {
		return Config{}, err
	}
	if cfg.EmailVerifySecret, err = secretFromEnv("PIPIT_TOKEN_EMAIL_VERIFY_SECRET"); err != nil {
		return Config{}, err
	}
	if cfg.ForgotPasswordSecret, err = secretFromEnv("PIPIT_TOKEN_FORGOT_PASSWORD_SECRET"); err != nil {
		return Config{}, err
	}

	if cfg.AccessTTL, err = ttlFromEnv("PIPIT_TOKEN_ACCESS_TTL", cfg.AccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = ttlFromEnv("PIPIT_TOKEN_REFRESH_TTL", cfg.RefreshTTL); err != nil {
		return Config{}, err
	}
	if cfg.EmailVerifyTTL, err = ttlFromEnv("PIPIT_TOKEN_EMAIL_VERIFY_TTL", cfg.EmailVerifyTTL); err != nil {
		return Config{}, err
	}
	if cfg.ForgotPasswordTTL, err = ttlFromEnv("PIPIT_TOKEN_FORGOT_PASSWORD_TTL", cfg.ForgotPasswordTTL); err != nil {
		return Config{}, err
	}

	// Invariant: access tokens must be shorter-lived than refresh tokens.
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}

func (c Config) secretFor(kind Kind) ([]byte, error) {
	var s []byte
	switch kind {
	case KindAccess:
		s = c.AccessSecret
	case KindRefresh:
		s = c.RefreshSecret
	case KindEmailVerify:
		s = c.EmailVerifySecret
	case KindForgotPassword:
		s = c.ForgotPasswordSecret
	default:
		return nil, ErrWrongKind
	}
	if len(s) < minSecretBytes {
		return nil, ErrSigning
	}
	return s, nil
}

func (c Config) ttlFor(kind Kind) time.Duration {
	switch kind {
	case KindAccess:
		return c.AccessTTL
	case KindRefresh:
		return c.RefreshTTL
	case KindEmailVerify:
		return c.EmailVerifyTTL
	case KindForgotPassword:
		return c.ForgotPasswordTTL
	default:
		return 0
	}
}

func secretFromEnv(key string) ([]byte, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if len(v) < minSecretBytes {
		return nil, ErrConfig
	}
	return []byte(v), nil
}

func ttlFromEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, ErrConfig
	}
	return d, nil
}
