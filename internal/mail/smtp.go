// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

// Package mail delivers verification and password-reset emails.
package mail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/authkeep/authkeep/internal/auth"
)

// Link paths appended to SMTPConfig.LinkBaseURL.
const (
	VerifyPath = "/verify-email"
	ResetPath  = "/reset-password"
)

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// LinkBaseURL prefixes the verification and reset links.
	LinkBaseURL string

	// Attempts bounds delivery retries. Zero means 3.
	Attempts uint64
	// Backoff is the first retry delay, doubled on each attempt. Zero means 1s.
	Backoff time.Duration
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer implements auth.Mailer over SMTP. Transient failures
// (network errors and 4xx replies) are retried with exponential backoff.
type SMTPMailer struct {
	cfg    SMTPConfig
	send   sendFunc
	logger *slog.Logger
}

// NewSMTPMailer validates cfg and returns a mailer.
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, oops.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, oops.With("port", cfg.Port).Errorf("smtp port out of range")
	}
	if cfg.From == "" {
		return nil, oops.Errorf("smtp sender address is required")
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail, logger: logger}, nil
}

// SendVerification mails the email-verification link.
func (m *SMTPMailer) SendVerification(ctx context.Context, msg auth.VerificationMessage) error {
	data := newTemplateData(msg.Username, link(m.cfg.LinkBaseURL, VerifyPath, msg.Token), msg.ExpiresAt)
	rendered, err := render("verification", msg.To, data)
	if err != nil {
		return err
	}
	return m.deliver(ctx, "verification", rendered)
}

// SendPasswordReset mails the password-reset link.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, msg auth.PasswordResetMessage) error {
	data := newTemplateData(msg.Username, link(m.cfg.LinkBaseURL, ResetPath, msg.Token), msg.ExpiresAt)
	rendered, err := render("reset", msg.To, data)
	if err != nil {
		return err
	}
	return m.deliver(ctx, "password_reset", rendered)
}

func (m *SMTPMailer) deliver(ctx context.Context, kind string, msg message) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var smtpAuth smtp.Auth
	if m.cfg.Username != "" {
		smtpAuth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	payload := m.compose(msg)

	attempt := 0
	backoff := retry.WithMaxRetries(m.cfg.Attempts-1, retry.NewExponential(m.cfg.Backoff))
	err := retry.Do(ctx, backoff, func(_ context.Context) error {
		attempt++
		err := m.send(addr, smtpAuth, m.cfg.From, []string{msg.To}, payload)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		m.logger.WarnContext(ctx, "smtp delivery failed, retrying",
			"kind", kind, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		return oops.With("operation", "send mail").
			With("kind", kind).
			With("attempts", attempt).
			Wrap(err)
	}
	m.logger.DebugContext(ctx, "mail sent", "kind", kind, "attempts", attempt)
	return nil
}

func (m *SMTPMailer) compose(msg message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// isTransient reports failures a later attempt can get past: 4xx replies,
// network errors and a connection dropped mid-conversation. Everything else,
// including 5xx replies and local validation errors from net/smtp, is final.
func isTransient(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 400 && tpErr.Code < 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

var _ auth.Mailer = (*SMTPMailer)(nil)
