package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pipit/cmd/security/token"
)

func newTestTokens(t *testing.T) *token.Service {
	t.Helper()

	cfg := token.DefaultConfig()
	cfg.AccessSecret = []byte(strings.Repeat("a", 32))
	cfg.RefreshSecret = []byte(strings.Repeat("r", 32))
	cfg.EmailVerifySecret = []byte(strings.Repeat("e", 32))
	cfg.ForgotPasswordSecret = []byte(strings.Repeat("f", 32))

	svc, err := token.NewService(cfg)
	if err != nil {
		t.Fatalf("token.NewService: %v", err)
	}
	return svc
}

func TestIssuePair_PersistsRefreshRecord(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := NewMemoryStore()
	svc := NewService(newTestTokens(t), store)

	issued, err := svc.IssuePair(ctx, now, "u1", token.VerifyVerified)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	rec, err := store.FindByToken(ctx, token.HashRefreshTokenHex(issued.RefreshToken))
	if err != nil {
		t.Fatalf("FindByToken: %v", err)
	}
	if rec.UserID != "u1" {
		t.Fatalf("record user = %q", rec.UserID)
	}
}

func TestVerifyRefresh_RequiresBothChecks(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := NewMemoryStore()
	svc := NewService(newTestTokens(t), store)

	issued, err := svc.IssuePair(ctx, now, "u1", token.VerifyVerified)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	if _, err := svc.VerifyRefresh(ctx, now, issued.RefreshToken); err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}

	// An access token where a refresh token is required is a kind failure
	// (here: signature, since secrets differ), never ErrTokenRevoked.
	if _, err := svc.VerifyRefresh(ctx, now, issued.AccessToken); !errors.Is(err, token.ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}

	// Deleting the record (logout) makes the same token revoked even though
	// its signature is still valid.
	if err := store.DeleteByToken(ctx, token.HashRefreshTokenHex(issued.RefreshToken)); err != nil {
		t.Fatalf("DeleteByToken: %v", err)
	}
	if _, err := svc.VerifyRefresh(ctx, now, issued.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
}

func TestRotate_DeleteAndReinsert(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := NewMemoryStore()
	svc := NewService(newTestTokens(t), store)

	first, err := svc.IssuePair(ctx, now, "u1", token.VerifyVerified)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	second, err := svc.Rotate(ctx, now.Add(1*time.Minute), first.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("rotation returned the same refresh token")
	}

	// The consumed token has no record anymore.
	if _, err := svc.Rotate(ctx, now.Add(2*time.Minute), first.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked on reuse, got %v", err)
	}

	// The new token rotates fine.
	if _, err := svc.Rotate(ctx, now.Add(3*time.Minute), second.RefreshToken); err != nil {
		t.Fatalf("Rotate new token: %v", err)
	}
}

func TestRotate_ExpiredRefreshRejected(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := NewMemoryStore()
	svc := NewService(newTestTokens(t), store)

	issued, err := svc.IssuePair(ctx, now, "u1", token.VerifyVerified)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	past := issued.RefreshExpiresAt.Add(1 * time.Hour)
	if _, err := svc.Rotate(ctx, past, issued.RefreshToken); !errors.Is(err, token.ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := NewMemoryStore()
	svc := NewService(newTestTokens(t), store)

	issued, err := svc.IssuePair(ctx, now, "u1", token.VerifyVerified)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	if err := svc.Revoke(ctx, now, issued.RefreshToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	// Revoking twice reports the missing record.
	if err := svc.Revoke(ctx, now, issued.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
	// Garbage is a signature failure, not a revocation.
	if err := svc.Revoke(ctx, now, "garbage"); !errors.Is(err, token.ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}

func TestMemoryStore_InsertIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := Record{UserID: "u1", TokenHash: "h1", CreatedAt: time.Now().UTC()}

	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert (dup): %v", err)
	}
	if err := store.DeleteByToken(ctx, "h1"); err != nil {
		t.Fatalf("DeleteByToken: %v", err)
	}
	if err := store.DeleteByToken(ctx, "h1"); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
}
