package identity

import (
	"context"
	"time"

	"pipit/cmd/security/token"
)

// User is the directory record for one account.
//
// EmailVerifyToken and ForgotPasswordToken hold the most recently issued
// single-use token of each kind (empty when none is outstanding). They are
// compared verbatim on use and cleared on success.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Verify       token.VerifyStatus

	EmailVerifyToken    string
	ForgotPasswordToken string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store abstracts persistence for user records.
type Store interface {
	// Create inserts a new user. Email and username must be unique;
	// violations surface as ErrConflict.
	Create(ctx context.Context, u User) error

	// FindByID loads a user by id. Missing rows surface as ErrNotFound.
	FindByID(ctx context.Context, id string) (User, error)

	// FindByEmail loads a user by normalized email address.
	FindByEmail(ctx context.Context, email string) (User, error)

	// SetEmailVerifyToken stores a freshly issued email-verify token.
	SetEmailVerifyToken(ctx context.Context, now time.Time, userID, tok string) error

	// MarkVerified flips the account to Verified and clears the stored
	// email-verify token in the same write.
	MarkVerified(ctx context.Context, now time.Time, userID string) error

	// SetForgotPasswordToken stores a freshly issued forgot-password token.
	SetForgotPasswordToken(ctx context.Context, now time.Time, userID, tok string) error

	// ResetPassword replaces the password hash and clears the stored
	// forgot-password token in the same write.
	ResetPassword(ctx context.Context, now time.Time, userID, passwordHash string) error
}
