package token

import "errors"

// Public, stable errors for callers (errors.Is friendly).
var (
	// ErrMalformedToken is returned when a token's structure or signature is invalid.
	ErrMalformedToken = errors.New("malformed token")

	// ErrExpiredToken is returned when a token is past its expiry.
	ErrExpiredToken = errors.New("expired token")

	// ErrWrongKind is returned when a correctly signed token of one kind is
	// presented where another kind is expected.
	ErrWrongKind = errors.New("wrong token kind")

	// ErrSigning is returned when signing fails due to malformed key material.
	ErrSigning = errors.New("token signing failed")

	// ErrConfig is returned for invalid token configuration.
	ErrConfig = errors.New("invalid token config")
)
