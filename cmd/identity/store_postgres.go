package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pipit/cmd/security/token"
)

// PostgresStore implements Store over PostgreSQL (pipit.users).
//
// The pgx pool is owned by the caller; this store must NOT close it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed user store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// Create inserts a new user row.
func (s *PostgresStore) Create(ctx context.Context, u User) error {
	if u.ID == "" || u.Email == "" || u.Username == "" || u.PasswordHash == "" {
		return ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipit.users (
			id, email, username, password_hash, verify,
			email_verify_token, forgot_password_token,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, u.ID, u.Email, u.Username, u.PasswordHash, int(u.Verify),
		u.EmailVerifyToken, u.ForgotPasswordToken, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// FindByID loads a user row by id.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (User, error) {
	return s.findOne(ctx, `WHERE id = $1`, id)
}

// FindByEmail loads a user row by normalized email.
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.findOne(ctx, `WHERE email = $1`, NormalizeEmail(email))
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (User, error) {
	var u User
	var verify int

	err := s.pool.QueryRow(ctx, `
		SELECT
			id, email, username, password_hash, verify,
			email_verify_token, forgot_password_token,
			created_at, updated_at
		FROM pipit.users
	`+where, arg).Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.PasswordHash,
		&verify,
		&u.EmailVerifyToken,
		&u.ForgotPasswordToken,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}

	u.Verify = verifyStatusFromInt(verify)
	return u, nil
}

// SetEmailVerifyToken stores a freshly issued email-verify token.
func (s *PostgresStore) SetEmailVerifyToken(ctx context.Context, now time.Time, userID, tok string) error {
	return s.update(ctx, userID, `
		UPDATE pipit.users
		SET email_verify_token = $2, updated_at = $3
		WHERE id = $1
	`, tok, now)
}

// MarkVerified flips the account to Verified and clears the stored token.
func (s *PostgresStore) MarkVerified(ctx context.Context, now time.Time, userID string) error {
	return s.update(ctx, userID, `
		UPDATE pipit.users
		SET verify = 1, email_verify_token = '', updated_at = $2
		WHERE id = $1
	`, now)
}

// SetForgotPasswordToken stores a freshly issued forgot-password token.
func (s *PostgresStore) SetForgotPasswordToken(ctx context.Context, now time.Time, userID, tok string) error {
	return s.update(ctx, userID, `
		UPDATE pipit.users
		SET forgot_password_token = $2, updated_at = $3
		WHERE id = $1
	`, tok, now)
}

// ResetPassword replaces the password hash and clears the stored token.
func (s *PostgresStore) ResetPassword(ctx context.Context, now time.Time, userID, passwordHash string) error {
	return s.update(ctx, userID, `
		UPDATE pipit.users
		SET password_hash = $2, forgot_password_token = '', updated_at = $3
		WHERE id = $1
	`, passwordHash, now)
}

func (s *PostgresStore) update(ctx context.Context, userID, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, append([]any{userID}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func verifyStatusFromInt(v int) token.VerifyStatus {
	return token.VerifyStatus(v)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
