// Package identity is the user-directory collaborator for the auth core.
//
// It owns the user record (credentials, verification status, and the two
// single-use token fields) and exposes a Store interface with Postgres and
// in-memory implementations. The single-use token fields exist for the
// second revocation layer: a signed email-verify or forgot-password token
// is honored only while the user record still carries the same value, so
// clearing the field revokes the token immediately regardless of its
// cryptographic expiry.
package identity
