package gate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"pipit/cmd/security/token"
)

type ctxKey int

const (
	claimsKey ctxKey = iota
	bearerKey
)

// WithClaims attaches verified claims to a context.
func WithClaims(ctx context.Context, claims token.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims attached by the gate, if any.
func ClaimsFromContext(ctx context.Context) (token.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(token.Claims)
	return claims, ok
}

// WithBearer attaches the raw bearer token to a context.
func WithBearer(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, bearerKey, raw)
}

// BearerFromContext returns the raw bearer token attached by the gate.
func BearerFromContext(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(bearerKey).(string)
	return raw, ok
}

func writeGateError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	code := "invalid_credential"
	switch {
	case errors.Is(err, ErrMissingCredential):
		code = "missing_credential"
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
		code = "forbidden"
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": err.Error()},
	})
}
