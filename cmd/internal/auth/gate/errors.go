package gate

import "errors"

// Pipeline failures. Each is terminal for the current request or event;
// nothing in this package retries.
var (
	// ErrMissingCredential is returned when no bearer token is present.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidCredential is returned when the presented token is
	// malformed, expired, or of the wrong kind.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrForbidden is returned when the identity is valid but the account's
	// verification status does not satisfy the endpoint's requirement.
	ErrForbidden = errors.New("forbidden")
)
