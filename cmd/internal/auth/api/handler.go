// Package authapi wires the identity and session services to the HTTP
// surface: registration, login/logout, refresh rotation, and the
// email-verify / forgot-password token flows.
package authapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pipit/cmd/identity"
	"pipit/cmd/identity/ids"
	"pipit/cmd/internal/auth/gate"
	"pipit/cmd/internal/auth/session"
	"pipit/cmd/security/token"
)

// Handler serves the auth HTTP endpoints.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    identity.Store
	sessions *session.Service
	tokens   *token.Service
	gate     *gate.Gate

	email EmailSender
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithEmailSender overrides the default no-op email sender.
func WithEmailSender(sender EmailSender) HandlerOption {
	return func(h *Handler) {
		if h == nil || sender == nil {
			return
		}
		h.email = sender
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, users identity.Store, sessions *session.Service, tokens *token.Service, g *gate.Gate, opts ...HandlerOption) *Handler {
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		gate:     g,
		email:    NoopEmailSender{},
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}

	return h
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/register", h.handleRegister)
	mux.HandleFunc("/login", h.handleLogin)
	mux.Handle("/logout", h.gate.RequireAccess(http.HandlerFunc(h.handleLogout)))
	mux.HandleFunc("/refresh-token", h.handleRefreshToken)
	mux.HandleFunc("/verify-email", h.handleVerifyEmail)
	mux.Handle("/resend-verify-email", h.gate.RequireAccess(http.HandlerFunc(h.handleResendVerifyEmail)))
	mux.HandleFunc("/forgot-password", h.handleForgotPassword)
	mux.HandleFunc("/reset-password", h.handleResetPassword)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	email := identity.NormalizeEmail(req.Email)
	username := strings.TrimSpace(req.Username)
	if email == "" || !strings.Contains(email, "@") || username == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "email and username are required")
		return
	}

	hash, err := identity.HashPassword(req.Password, identity.DefaultArgon2idParams())
	if err != nil {
		writeAuthError(w, err)
		return
	}

	now := time.Now().UTC()
	userID, err := ids.NewULID(now)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	// The email-verify token is stored on the user record so it can be
	// revoked by overwrite, independently of its cryptographic expiry.
	verifyTok, _, err := h.tokens.Issue(token.KindEmailVerify, userID, token.VerifyUnverified, now)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	user := identity.User{
		ID:               userID,
		Email:            email,
		Username:         username,
		PasswordHash:     hash,
		Verify:           token.VerifyUnverified,
		EmailVerifyToken: verifyTok,
		CreatedAt:        now,
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		writeAuthError(w, err)
		return
	}

	issued, err := h.sessions.IssuePair(r.Context(), now, userID, token.VerifyUnverified)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	if err := h.email.SendVerificationEmail(r.Context(), email, verifyTok); err != nil {
		// Delivery problems must not fail registration; the token can be resent.
		h.log.Error("auth.register.email_send.fail", "user_id", userID, "err", err)
	}

	h.log.Info("auth.register", "user_id", userID)
	writeJSON(w, http.StatusCreated, registerResponse{
		User:   toUserResponse(user),
		Tokens: toTokenResponse(issued),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	user, err := h.users.FindByEmail(r.Context(), req.Email)
	if err != nil {
		// Indistinguishable from a wrong password to avoid account probing.
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
		return
	}

	ok, err := identity.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
		return
	}

	if user.Verify == token.VerifyBanned {
		writeError(w, http.StatusForbidden, "account_banned", "account is banned")
		return
	}

	now := time.Now().UTC()
	issued, err := h.sessions.IssuePair(r.Context(), now, user.ID, user.Verify)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	h.log.Info("auth.login", "user_id", user.ID)
	writeJSON(w, http.StatusOK, toTokenResponse(issued))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req logoutRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	now := time.Now().UTC()
	if err := h.sessions.Revoke(r.Context(), now, req.RefreshToken); err != nil {
		writeAuthError(w, err)
		return
	}

	if claims, ok := gate.ClaimsFromContext(r.Context()); ok {
		h.log.Info("auth.logout", "user_id", claims.UserID)
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "logout success"})
}

func (h *Handler) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	now := time.Now().UTC()
	issued, err := h.sessions.Rotate(r.Context(), now, req.RefreshToken)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTokenResponse(issued))
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req verifyEmailRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	now := time.Now().UTC()
	claims, err := h.tokens.Verify(token.KindEmailVerify, req.EmailVerifyToken, now)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	user, err := h.users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	// Second revocation layer: the signature may still be valid, but only
	// the exact token currently on the record is honored. A cleared or
	// replaced token is revoked.
	if user.EmailVerifyToken == "" || user.EmailVerifyToken != req.EmailVerifyToken {
		writeError(w, http.StatusUnauthorized, "token_revoked", "email verify token has been used or replaced")
		return
	}

	if err := h.users.MarkVerified(r.Context(), now, user.ID); err != nil {
		writeAuthError(w, err)
		return
	}

	issued, err := h.sessions.IssuePair(r.Context(), now, user.ID, token.VerifyVerified)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	h.log.Info("auth.verify_email", "user_id", user.ID)
	writeJSON(w, http.StatusOK, verifyEmailResponse{
		Message: "email verified",
		Tokens:  toTokenResponse(issued),
	})
}

func (h *Handler) handleResendVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := gate.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_credential", "no identity on request")
		return
	}

	user, err := h.users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	if user.Verify == token.VerifyVerified {
		writeJSON(w, http.StatusOK, messageResponse{Message: "email already verified"})
		return
	}

	now := time.Now().UTC()
	verifyTok, _, err := h.tokens.Issue(token.KindEmailVerify, user.ID, token.VerifyUnverified, now)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	// Overwriting the record invalidates the previously issued token.
	if err := h.users.SetEmailVerifyToken(r.Context(), now, user.ID, verifyTok); err != nil {
		writeAuthError(w, err)
		return
	}

	if err := h.email.SendVerificationEmail(r.Context(), user.Email, verifyTok); err != nil {
		h.log.Error("auth.resend_verify.email_send.fail", "user_id", user.ID, "err", err)
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "verification email sent"})
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req forgotPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	user, err := h.users.FindByEmail(r.Context(), req.Email)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	now := time.Now().UTC()
	resetTok, _, err := h.tokens.Issue(token.KindForgotPassword, user.ID, user.Verify, now)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	if err := h.users.SetForgotPasswordToken(r.Context(), now, user.ID, resetTok); err != nil {
		writeAuthError(w, err)
		return
	}

	if err := h.email.SendPasswordResetEmail(r.Context(), user.Email, resetTok); err != nil {
		h.log.Error("auth.forgot_password.email_send.fail", "user_id", user.ID, "err", err)
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "check email for password reset"})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	now := time.Now().UTC()
	claims, err := h.tokens.Verify(token.KindForgotPassword, req.ForgotPasswordToken, now)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	user, err := h.users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	if user.ForgotPasswordToken == "" || user.ForgotPasswordToken != req.ForgotPasswordToken {
		writeError(w, http.StatusUnauthorized, "token_revoked", "forgot password token has been used or replaced")
		return
	}

	hash, err := identity.HashPassword(req.Password, identity.DefaultArgon2idParams())
	if err != nil {
		writeAuthError(w, err)
		return
	}

	if err := h.users.ResetPassword(r.Context(), now, user.ID, hash); err != nil {
		writeAuthError(w, err)
		return
	}

	h.log.Info("auth.reset_password", "user_id", user.ID)
	writeJSON(w, http.StatusOK, messageResponse{Message: "password reset success"})
}
