// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package mail

import (
	"context"
	"log/slog"

	"github.com/authkeep/authkeep/internal/auth"
)

// LogMailer writes messages to the log instead of sending them. For
// development and for deployments where another system delivers mail.
type LogMailer struct {
	baseURL string
	logger  *slog.Logger
}

// NewLogMailer returns a LogMailer. A nil logger means slog.Default().
func NewLogMailer(linkBaseURL string, logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{baseURL: linkBaseURL, logger: logger}
}

// SendVerification logs the verification link.
func (m *LogMailer) SendVerification(ctx context.Context, msg auth.VerificationMessage) error {
	m.logger.InfoContext(ctx, "verification mail",
		"to", msg.To,
		"username", msg.Username,
		"link", link(m.baseURL, VerifyPath, msg.Token),
		"expires_at", msg.ExpiresAt)
	return nil
}

// SendPasswordReset logs the reset link.
func (m *LogMailer) SendPasswordReset(ctx context.Context, msg auth.PasswordResetMessage) error {
	m.logger.InfoContext(ctx, "password reset mail",
		"to", msg.To,
		"username", msg.Username,
		"link", link(m.baseURL, ResetPath, msg.Token),
		"expires_at", msg.ExpiresAt)
	return nil
}

var _ auth.Mailer = (*LogMailer)(nil)
