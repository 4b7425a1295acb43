// Package gate is the request-scoped verification pipeline shared by every
// protected HTTP and realtime entry point.
//
// The pipeline is RawCredential -> Parsed -> Verified -> Authorized: the
// bearer token is extracted, verified against the access-token secret, and
// optionally checked against an account-status predicate. Each stage
// failure maps to exactly one sentinel error so callers can produce
// distinct responses (401 missing/invalid vs 403 forbidden). Successful
// completion attaches the decoded claims to the request context.
package gate

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"pipit/cmd/security/token"
)

const bearerPrefix = "Bearer "

// Gate verifies access credentials using the shared token service.
type Gate struct {
	tokens *token.Service
}

// New constructs a Gate.
func New(tokens *token.Service) *Gate {
	return &Gate{tokens: tokens}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. A missing or empty token is ErrMissingCredential.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingCredential
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrMissingCredential
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if raw == "" {
		return "", ErrMissingCredential
	}
	return raw, nil
}

// VerifyAccess runs the Verified stage: signature, expiry, and kind checks
// against the access-token secret. Any token failure, including a
// correctly signed token of another kind, is ErrInvalidCredential; the
// cause stays wrapped for logs.
func (g *Gate) VerifyAccess(raw string, now time.Time) (token.Claims, error) {
	claims, err := g.tokens.Verify(token.KindAccess, raw, now)
	if err != nil {
		return token.Claims{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	return claims, nil
}

// Authorize runs the full pipeline on an Authorization header value.
func (g *Gate) Authorize(header string, now time.Time) (token.Claims, error) {
	raw, err := BearerToken(header)
	if err != nil {
		return token.Claims{}, err
	}
	return g.VerifyAccess(raw, now)
}

// RequireVerified is the Authorized-stage predicate for endpoints that
// demand a confirmed email.
func RequireVerified(claims token.Claims) error {
	if claims.Verify != token.VerifyVerified {
		return ErrForbidden
	}
	return nil
}

// RequireAccess wraps an http.Handler, rejecting requests without a valid
// access token and attaching claims to the request context otherwise.
// The raw bearer token is attached too, for handlers that re-verify it
// (the realtime gateway) or pair it with a body credential (logout).
func (g *Gate) RequireAccess(next http.Handler) http.Handler {
	return g.require(next, nil)
}

// RequireVerifiedAccess is RequireAccess plus the Verified predicate.
func (g *Gate) RequireVerifiedAccess(next http.Handler) http.Handler {
	return g.require(next, RequireVerified)
}

func (g *Gate) require(next http.Handler, predicate func(token.Claims) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeGateError(w, err)
			return
		}

		claims, err := g.VerifyAccess(raw, time.Now().UTC())
		if err != nil {
			writeGateError(w, err)
			return
		}

		if predicate != nil {
			if err := predicate(claims); err != nil {
				writeGateError(w, err)
				return
			}
		}

		ctx := WithClaims(r.Context(), claims)
		ctx = WithBearer(ctx, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
