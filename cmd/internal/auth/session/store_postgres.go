package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (pipit.refresh_tokens).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed refresh-token store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// Insert adds a refresh-token record (idempotent by token hash).
func (s *PostgresStore) Insert(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipit.refresh_tokens (user_id, token_hash, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO NOTHING
	`, rec.UserID, rec.TokenHash, rec.CreatedAt)
	return err
}

// FindByToken loads a record by token hash.
func (s *PostgresStore) FindByToken(ctx context.Context, tokenHash string) (Record, error) {
	var rec Record

	err := s.pool.QueryRow(ctx, `
		SELECT user_id, token_hash, created_at
		FROM pipit.refresh_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(&rec.UserID, &rec.TokenHash, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrTokenRevoked
	}
	if err != nil {
		return Record{}, err
	}

	return rec, nil
}

// DeleteByToken removes a record by token hash.
func (s *PostgresStore) DeleteByToken(ctx context.Context, tokenHash string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM pipit.refresh_tokens
		WHERE token_hash = $1
	`, tokenHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenRevoked
	}
	return nil
}
