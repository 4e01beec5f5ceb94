// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package auth

import (
	"context"
	"errors"

	"github.com/authkeep/authkeep/internal/auth/token"
)

// ResetTokenStatus describes a reset token without consuming it.
type ResetTokenStatus struct {
	IsValid    bool
	IsExpired  bool
	UserExists bool
}

// ForgotPassword issues a reset token for the account and mails it. Any
// previous reset token of the account is replaced.
func (s *Service) ForgotPassword(ctx context.Context, email string) (err error) {
	defer func() { s.observe("forgot_password", err) }()

	email = NormalizeEmail(email)
	if email == "" {
		return fail(CodeValidation).Errorf("email is required")
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(CodeUserNotFound).With("email", email).Errorf("account not found")
		}
		return dbError("find account by email", err)
	}

	resetToken, err := token.NewResetToken()
	if err != nil {
		return fail(CodeServiceUnavailable).With("operation", "generate reset token").Wrap(err)
	}
	expiresAt := s.now().Add(s.lifetimes.Reset)
	if err := s.accounts.SetResetToken(ctx, account.ID, resetToken, expiresAt); err != nil {
		return dbError("set reset token", err)
	}

	if err := s.mailer.SendPasswordReset(ctx, PasswordResetMessage{
		To:        account.Email,
		Username:  account.Username,
		Token:     resetToken,
		ExpiresAt: expiresAt,
	}); err != nil {
		return fail(CodeServiceUnavailable).
			With("operation", "send password reset email").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset requested", "account_id", account.ID.String())
	return nil
}

// ValidateResetToken reports the state of a reset token. It never mutates
// anything and only fails on storage errors. Checks stop at the first
// failing one: format, existence, account active, unused, unexpired.
func (s *Service) ValidateResetToken(ctx context.Context, resetToken string) (status ResetTokenStatus, err error) {
	defer func() { s.observe("validate_reset_token", err) }()

	if !token.IsResetToken(resetToken) {
		return ResetTokenStatus{}, nil
	}

	account, err := s.accounts.FindByResetTokenAny(ctx, resetToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ResetTokenStatus{}, nil
		}
		return ResetTokenStatus{}, dbError("find account by reset token", err)
	}

	status.UserExists = true
	switch {
	case !account.IsActive, account.ResetTokenUsed:
	case account.ResetExpiredAt(s.now()):
		status.IsExpired = true
	default:
		status.IsValid = true
	}
	return status, nil
}

// ResetPassword consumes a reset token and sets a new password. On success
// every refresh session of the account is revoked.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) (err error) {
	defer func() { s.observe("reset_password", err) }()

	if !token.IsResetToken(resetToken) {
		return fail(CodeResetMalformed).Errorf("reset token is malformed")
	}
	if newPassword == "" {
		return fail(CodeValidation).Errorf("new password is required")
	}

	account, err := s.accounts.FindByResetTokenAny(ctx, resetToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(CodeInvalidReset).Errorf("reset token is not recognized")
		}
		return dbError("find account by reset token", err)
	}
	if !account.IsActive {
		return fail(CodeInvalidReset).With("account_id", account.ID.String()).Errorf("account is deactivated")
	}
	if account.ResetTokenUsed {
		return fail(CodeTokenAlreadyUsed).With("account_id", account.ID.String()).Errorf("reset token was already used")
	}
	now := s.now()
	if account.ResetExpiredAt(now) {
		return fail(CodeTokenExpired).With("account_id", account.ID.String()).Errorf("reset token has expired")
	}

	if _, err := s.accounts.FindByResetToken(ctx, resetToken, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(CodeInvalidReset).With("account_id", account.ID.String()).Errorf("reset token is no longer valid")
		}
		return dbError("find account by valid reset token", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fail(CodeServiceUnavailable).With("operation", "hash password").Wrap(err)
	}

	n, err := s.accounts.SetNewPassword(ctx, resetToken, hash, now)
	if err != nil {
		return dbError("set new password", err)
	}
	if n == 0 {
		return fail(CodeDatabase).
			With("operation", "set new password").
			With("account_id", account.ID.String()).
			Errorf("password reset was not applied")
	}

	if _, err := s.sessions.DeleteByAccount(ctx, account.ID); err != nil {
		s.logSuppressed(ctx, "failed to revoke sessions after password reset", err, "account_id", account.ID.String())
	}

	s.logger.InfoContext(ctx, "password reset", "account_id", account.ID.String())
	return nil
}
