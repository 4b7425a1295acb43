// Package session tracks outstanding refresh tokens.
//
// One record exists per issued-and-not-yet-revoked refresh token, keyed by
// a hash of the token value. Revocation is by record removal, not secret
// rotation: a refresh token is honored only if it passes cryptographic
// verification AND a live record exists. Rotation is delete-and-reinsert;
// records are never mutated in place.
//
// Refresh tokens are signed credentials but must never be persisted
// verbatim; only the storage hash (see pipit/cmd/security/token) is kept.
package session
