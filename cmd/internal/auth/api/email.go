package authapi

import (
	"context"
	"log/slog"
)

// EmailSender delivers the out-of-band single-use tokens. Real providers
// live outside the auth core; the default implementations below are a
// no-op and a logger.
type EmailSender interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
}

// NoopEmailSender drops all messages.
type NoopEmailSender struct{}

// SendVerificationEmail implements EmailSender.
func (NoopEmailSender) SendVerificationEmail(_ context.Context, _, _ string) error { return nil }

// SendPasswordResetEmail implements EmailSender.
func (NoopEmailSender) SendPasswordResetEmail(_ context.Context, _, _ string) error { return nil }

// LogEmailSender writes the token to the structured log so dev setups can
// complete the flows without a mail provider.
type LogEmailSender struct {
	Log *slog.Logger
}

// SendVerificationEmail implements EmailSender.
func (s LogEmailSender) SendVerificationEmail(_ context.Context, to, token string) error {
	s.Log.Info("email.verify.send", "to", to, "token", token)
	return nil
}

// SendPasswordResetEmail implements EmailSender.
func (s LogEmailSender) SendPasswordResetEmail(_ context.Context, to, token string) error {
	s.Log.Info("email.reset.send", "to", to, "token", token)
	return nil
}
