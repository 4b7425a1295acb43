package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	// HashKeyEnv is the env var name for the storage-hash secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HashKeyEnv = "PIPIT_TOKEN_HASH_KEY"
)

var (
	// ErrHashKeyMissing indicates PIPIT_TOKEN_HASH_KEY is not set.
	ErrHashKeyMissing = errors.New("token: hash key missing")
	// ErrHashKeyTooShort indicates the configured hash key is below the minimum length.
	ErrHashKeyTooShort = errors.New("token: hash key too short")
)

// HashKeyFromEnv returns the storage-hash key from the environment,
// enforcing a minimum byte length. Used by startup security policy checks.
func HashKeyFromEnv(minBytes int) ([]byte, error) {
	key := strings.TrimSpace(os.Getenv(HashKeyEnv))
	if key == "" {
		return nil, ErrHashKeyMissing
	}
	if len(key) < minBytes {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrHashKeyTooShort, minBytes)
	}
	return []byte(key), nil
}

// HashHMACEnabled reports whether refresh-token storage hashing runs in HMAC mode.
func HashHMACEnabled() bool {
	return strings.TrimSpace(os.Getenv(HashKeyEnv)) != ""
}

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HashRefreshTokenHex hashes refresh tokens for server-side storage keys.
// Behavior:
// - If PIPIT_TOKEN_HASH_KEY is set (non-empty), uses HMAC-SHA256(token, key).
// - Otherwise falls back to SHA-256(token) for dev.
func HashRefreshTokenHex(token string) string {
	key := strings.TrimSpace(os.Getenv(HashKeyEnv))
	if key == "" {
		return HashSHA256Hex(token)
	}
	return HashHMACSHA256Hex(token, []byte(key))
}
