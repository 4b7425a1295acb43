package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the immutable payload signed into every token.
type Claims struct {
	UserID    string       `json:"user_id"`
	Verify    VerifyStatus `json:"verify"`
	TokenType Kind         `json:"token_type"`
	jwt.RegisteredClaims
}

// Pair is the result of issuing an access/refresh pair. Both tokens share
// the same user_id and verify claims but are signed with distinct secrets
// and carry distinct TTLs.
type Pair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Service signs and verifies the four token kinds with kind-specific
// secrets, never mixing secrets across kinds.
type Service struct {
	cfg Config
}

// NewService constructs a Service. All four secrets must be present and at
// least 32 bytes; otherwise ErrConfig is returned.
func NewService(cfg Config) (*Service, error) {
	for _, k := range []Kind{KindAccess, KindRefresh, KindEmailVerify, KindForgotPassword} {
		if _, err := cfg.secretFor(k); err != nil {
			return nil, ErrConfig
		}
		if cfg.ttlFor(k) <= 0 {
			return nil, ErrConfig
		}
	}
	return &Service{cfg: cfg}, nil
}

// Issue signs a token of the given kind for userID. The embedded token_type
// always matches kind; callers cannot override it.
func (s *Service) Issue(kind Kind, userID string, verify VerifyStatus, now time.Time) (signed string, exp time.Time, err error) {
	secret, err := s.cfg.secretFor(kind)
	if err != nil {
		return "", time.Time{}, ErrSigning
	}

	exp = now.Add(s.cfg.ttlFor(kind))
	claims := Claims{
		UserID:    userID,
		Verify:    verify,
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, ErrSigning
	}
	return signed, exp, nil
}

// IssuePair signs an access/refresh pair sharing the same identity claims.
func (s *Service) IssuePair(userID string, verify VerifyStatus, now time.Time) (Pair, error) {
	access, accessExp, err := s.Issue(KindAccess, userID, verify, now)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := s.Issue(KindRefresh, userID, verify, now)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Verify checks signature integrity, expiry, and kind.
//
// Failure modes are distinct and stable:
//   - ErrExpiredToken when now is past the embedded expiry
//   - ErrMalformedToken when structure or signature is invalid
//   - ErrWrongKind when a valid token of another kind is presented
func (s *Service) Verify(kind Kind, signed string, now time.Time) (Claims, error) {
	secret, err := s.cfg.secretFor(kind)
	if err != nil {
		return Claims{}, ErrMalformedToken
	}

	var claims Claims
	_, err = jwt.ParseWithClaims(signed, &claims,
		func(t *jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrMalformedToken
	}

	if claims.TokenType != kind {
		return Claims{}, ErrWrongKind
	}
	if claims.UserID == "" {
		return Claims{}, ErrMalformedToken
	}

	return claims, nil
}
