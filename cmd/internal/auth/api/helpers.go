package authapi

import (
	"errors"
	"net/http"

	"pipit/cmd/identity"
	"pipit/cmd/internal/auth/session"
	"pipit/cmd/security/token"
)

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Verify:    int(u.Verify),
		CreatedAt: u.CreatedAt,
	}
}

func toTokenResponse(issued session.Issued) tokenResponse {
	return tokenResponse{
		AccessToken:      issued.AccessToken,
		AccessExpiresAt:  issued.AccessExpiresAt,
		RefreshToken:     issued.RefreshToken,
		RefreshExpiresAt: issued.RefreshExpiresAt,
	}
}

// writeAuthError maps the error taxonomy to distinguishable HTTP responses:
// 401 for malformed/expired/wrong-kind credentials, 404 for tokens and
// users unknown to the system, 409 for uniqueness conflicts.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrExpiredToken):
		writeError(w, http.StatusUnauthorized, "expired_token", "token expired")
	case errors.Is(err, token.ErrMalformedToken), errors.Is(err, token.ErrWrongKind):
		writeError(w, http.StatusUnauthorized, "invalid_token", "token invalid")
	case errors.Is(err, session.ErrTokenRevoked):
		writeError(w, http.StatusNotFound, "refresh_token_not_found", "refresh token used or does not exist")
	case errors.Is(err, identity.ErrNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", "user not found")
	case errors.Is(err, identity.ErrConflict):
		writeError(w, http.StatusConflict, "already_exists", "email or username already exists")
	case errors.Is(err, identity.ErrPasswordTooShort), errors.Is(err, identity.ErrPasswordTooLong):
		writeError(w, http.StatusBadRequest, "invalid_password", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
