package session

import (
	"context"
	"time"
)

// Record is one outstanding refresh token. TokenHash is the storage hash
// of the signed token value and is unique.
type Record struct {
	UserID    string
	TokenHash string
	CreatedAt time.Time
}

// Store abstracts persistence for refresh-token records.
//
// The backing store is the single source of truth for refresh-token
// validity; no caller-side cache is permitted, so a revocation is visible
// to the next operation immediately.
type Store interface {
	// Insert adds a record. Idempotent by token hash.
	Insert(ctx context.Context, rec Record) error

	// FindByToken loads a record by token hash. ErrTokenRevoked when absent.
	FindByToken(ctx context.Context, tokenHash string) (Record, error)

	// DeleteByToken removes a record by token hash. ErrTokenRevoked when no
	// row was deleted: the delete doubles as the presence check, making
	// revoke-and-rotate race-free without row locking.
	DeleteByToken(ctx context.Context, tokenHash string) error
}
