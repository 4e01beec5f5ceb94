// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/authkeep/authkeep/internal/auth/token"
)

// Register creates an unverified account and mails its verification token.
// The mail is sent before the account is stored, so a delivery failure leaves
// nothing behind. An empty role defaults to RoleUser.
func (s *Service) Register(ctx context.Context, email, username, password string, role Role) (acct *Account, err error) {
	defer func() { s.observe("register", err) }()

	email = NormalizeEmail(email)
	username = strings.TrimSpace(username)
	if email == "" || username == "" || password == "" {
		return nil, fail(CodeValidation).
			With("operation", "register").
			Errorf("email, username and password are required")
	}
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return nil, fail(CodeValidation).With("role", string(role)).Errorf("unknown role %q", role)
	}

	if err := s.ensureAvailable(ctx, email, username); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fail(CodeServiceUnavailable).With("operation", "hash password").Wrap(err)
	}

	now := s.now()
	account, err := NewAccount(email, username, hash, role, now)
	if err != nil {
		return nil, fail(CodeValidation).Wrap(err)
	}
	verification := token.NewVerificationToken()
	expiresAt := now.Add(s.lifetimes.Verification)
	account.VerificationToken = &verification
	account.VerificationExpiresAt = &expiresAt

	if err := s.mailer.SendVerification(ctx, VerificationMessage{
		To:        account.Email,
		Username:  account.Username,
		Token:     verification,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, fail(CodeServiceUnavailable).
			With("operation", "send verification email").
			With("email", account.Email).
			Wrap(err)
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateEmail):
			return nil, fail(CodeEmailExists).With("email", email).Errorf("email is already registered")
		case errors.Is(err, ErrDuplicateUsername):
			return nil, fail(CodeUserExists).With("username", username).Errorf("username is already taken")
		default:
			return nil, dbError("create account", err)
		}
	}

	s.logger.InfoContext(ctx, "account registered",
		"account_id", account.ID.String(),
		"role", string(account.Role))
	return account.Public(), nil
}

// ensureAvailable checks email before username so a caller reusing both sees
// the email conflict.
func (s *Service) ensureAvailable(ctx context.Context, email, username string) error {
	_, err := s.accounts.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return fail(CodeEmailExists).With("email", email).Errorf("email is already registered")
	case !errors.Is(err, ErrNotFound):
		return dbError("find account by email", err)
	}

	_, err = s.accounts.FindByUsername(ctx, username)
	switch {
	case err == nil:
		return fail(CodeUserExists).With("username", username).Errorf("username is already taken")
	case !errors.Is(err, ErrNotFound):
		return dbError("find account by username", err)
	}
	return nil
}

// VerifyEmail consumes a verification token, marks its account verified and
// returns the public view of the account.
func (s *Service) VerifyEmail(ctx context.Context, verificationToken string) (acct *Account, err error) {
	defer func() { s.observe("verify_email", err) }()

	if !token.IsVerificationToken(verificationToken) {
		return nil, fail(CodeTokenInvalid).Errorf("verification token is malformed")
	}

	account, err := s.accounts.FindByVerificationToken(ctx, verificationToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fail(CodeTokenInvalid).Errorf("verification token is not recognized")
		}
		return nil, dbError("find account by verification token", err)
	}
	if account.IsVerified {
		return nil, fail(CodeAlreadyVerified).With("account_id", account.ID.String()).Errorf("account is already verified")
	}
	if account.VerificationExpiredAt(s.now()) {
		return nil, fail(CodeTokenExpired).With("account_id", account.ID.String()).Errorf("verification token has expired")
	}

	if err := s.accounts.SetVerified(ctx, account.ID); err != nil {
		return nil, dbError("set account verified", err)
	}
	account.IsVerified = true
	account.VerificationToken = nil
	account.VerificationExpiresAt = nil

	s.logger.InfoContext(ctx, "email verified", "account_id", account.ID.String())
	return account.Public(), nil
}

// ResendVerification replaces the verification token of an unverified
// account and mails the new one. The new token is stored first, so the old
// one stops working even if delivery fails.
func (s *Service) ResendVerification(ctx context.Context, email string) (err error) {
	defer func() { s.observe("resend_verification", err) }()

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
	if account.IsVerified {
		return fail(CodeAlreadyVerified).With("account_id", account.ID.String()).Errorf("account is already verified")
	}

	verification := token.NewVerificationToken()
	expiresAt := s.now().Add(s.lifetimes.Verification)
	if err := s.accounts.SetVerificationToken(ctx, account.ID, verification, expiresAt); err != nil {
		return dbError("set verification token", err)
	}

	if err := s.mailer.SendVerification(ctx, VerificationMessage{
		To:        account.Email,
		Username:  account.Username,
		Token:     verification,
		ExpiresAt: expiresAt,
	}); err != nil {
		return fail(CodeServiceUnavailable).
			With("operation", "send verification email").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return nil
}
