package session

import "errors"

var (
	// ErrTokenRevoked is returned when a refresh token is cryptographically
	// valid but has no live record (logged out, rotated away, or never issued).
	ErrTokenRevoked = errors.New("refresh token revoked")
)
