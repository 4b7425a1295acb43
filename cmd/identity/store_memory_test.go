package identity

import (
	"context"
	"testing"
	"time"

	"pipit/cmd/security/token"
)

func newTestUser(id, email, username string) User {
	return User{
		ID:           id,
		Email:        email,
		Username:     username,
		PasswordHash: "$argon2id$not-checked-here",
		Verify:       token.VerifyUnverified,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestMemoryStore_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Create(ctx, newTestUser("u1", "Ada@Example.com", "ada")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	u, err := s.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if u.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %q", u.Email)
	}

	if _, err := s.FindByEmail(ctx, "  ADA@example.COM "); err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}

	if _, err := s.FindByID(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_Conflicts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Create(ctx, newTestUser("u1", "a@example.com", "ada")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, newTestUser("u2", "a@example.com", "other")); !IsConflict(err) {
		t.Fatalf("expected ErrConflict on email, got %v", err)
	}
	if err := s.Create(ctx, newTestUser("u3", "b@example.com", "ada")); !IsConflict(err) {
		t.Fatalf("expected ErrConflict on username, got %v", err)
	}
}

func TestMemoryStore_MarkVerifiedClearsToken(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	s := NewMemoryStore()

	if err := s.Create(ctx, newTestUser("u1", "a@example.com", "ada")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.SetEmailVerifyToken(ctx, now, "u1", "signed-verify-token"); err != nil {
		t.Fatalf("SetEmailVerifyToken: %v", err)
	}

	if err := s.MarkVerified(ctx, now, "u1"); err != nil {
		t.Fatalf("MarkVerified: %v", err)
	}

	u, err := s.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if u.Verify != token.VerifyVerified {
		t.Fatalf("verify = %d", u.Verify)
	}
	if u.EmailVerifyToken != "" {
		t.Fatalf("email_verify_token not cleared")
	}
}

func TestMemoryStore_ResetPasswordClearsToken(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	s := NewMemoryStore()

	if err := s.Create(ctx, newTestUser("u1", "a@example.com", "ada")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.SetForgotPasswordToken(ctx, now, "u1", "signed-forgot-token"); err != nil {
		t.Fatalf("SetForgotPasswordToken: %v", err)
	}
	if err := s.ResetPassword(ctx, now, "u1", "$argon2id$new"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	u, err := s.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if u.PasswordHash != "$argon2id$new" {
		t.Fatalf("password hash not replaced")
	}
	if u.ForgotPasswordToken != "" {
		t.Fatalf("forgot_password_token not cleared")
	}

	if err := s.ResetPassword(ctx, now, "missing", "$argon2id$x"); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
