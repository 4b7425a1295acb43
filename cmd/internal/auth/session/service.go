package session

import (
	"context"
	"time"

	"pipit/cmd/security/token"
)

// Service implements the high-level session operations.
//
// It issues access/refresh pairs (persisting the refresh side), validates
// refresh tokens against both the signature and the record store, rotates
// pairs, and revokes records on logout.
type Service struct {
	tokens *token.Service
	store  Store
}

// Issued is the result of issuing or rotating a session.
type Issued struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// NewService constructs a Service over the given token service and store.
func NewService(tokens *token.Service, store Store) *Service {
	return &Service{tokens: tokens, store: store}
}

// IssuePair signs a fresh access/refresh pair and persists the refresh record.
func (s *Service) IssuePair(ctx context.Context, now time.Time, userID string, verify token.VerifyStatus) (Issued, error) {
	pair, err := s.tokens.IssuePair(userID, verify, now)
	if err != nil {
		return Issued{}, err
	}

	err = s.store.Insert(ctx, Record{
		UserID:    userID,
		TokenHash: token.HashRefreshTokenHex(pair.RefreshToken),
		CreatedAt: now,
	})
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		AccessToken:      pair.AccessToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

// VerifyRefresh checks a refresh token's signature AND record presence.
// Either check failing is an authentication failure, never a partial success.
func (s *Service) VerifyRefresh(ctx context.Context, now time.Time, refreshToken string) (token.Claims, error) {
	claims, err := s.tokens.Verify(token.KindRefresh, refreshToken, now)
	if err != nil {
		return token.Claims{}, err
	}

	if _, err := s.store.FindByToken(ctx, token.HashRefreshTokenHex(refreshToken)); err != nil {
		return token.Claims{}, err
	}

	return claims, nil
}

// Rotate consumes a refresh token and issues a fresh pair for the same user.
//
// The old record is deleted before the new one is inserted; the delete is
// the presence check, so a revoked or already-rotated token fails with
// ErrTokenRevoked and nothing new is issued.
func (s *Service) Rotate(ctx context.Context, now time.Time, refreshToken string) (Issued, error) {
	claims, err := s.tokens.Verify(token.KindRefresh, refreshToken, now)
	if err != nil {
		return Issued{}, err
	}

	if err := s.store.DeleteByToken(ctx, token.HashRefreshTokenHex(refreshToken)); err != nil {
		return Issued{}, err
	}

	return s.IssuePair(ctx, now, claims.UserID, claims.Verify)
}

// Revoke deletes the record for a refresh token (logout). The signature is
// checked first so a malformed token is reported as such, not as revoked.
func (s *Service) Revoke(ctx context.Context, now time.Time, refreshToken string) error {
	if _, err := s.tokens.Verify(token.KindRefresh, refreshToken, now); err != nil {
		return err
	}
	return s.store.DeleteByToken(ctx, token.HashRefreshTokenHex(refreshToken))
}
