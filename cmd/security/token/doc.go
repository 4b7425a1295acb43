// Package token implements Pipit's signed-token service.
//
// Four token kinds exist: access, refresh, email-verify, and
// forgot-password. Each kind is signed with its own HMAC-SHA256 secret and
// its own TTL, and every payload carries the kind it was issued as, so a
// token of one kind can never verify where another kind is expected.
//
// Verification distinguishes three failures: malformed (bad structure or
// signature), expired, and wrong kind. "Unknown to the system" (revoked)
// is not a concern of this package; the session store owns that.
//
// The package also provides the hashing used to key refresh-token rows in
// storage (HMAC-SHA256 when PIPIT_TOKEN_HASH_KEY is set; SHA-256 otherwise).
package token
