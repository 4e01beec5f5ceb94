// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package auth

import (
	"context"
	"errors"

	"github.com/authkeep/authkeep/internal/auth/token"
)

// dummyPasswordHash is verified against when the email is unknown so that a
// missing account takes as long to reject as a wrong password. The parameters
// match DefaultArgon2Params.
//
//nolint:gosec // not a credential
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Account *Account
	Tokens  *token.Pair
}

// Login authenticates an account by email and password, opens a refresh
// session and records the login. clientIP may be empty.
func (s *Service) Login(ctx context.Context, email, password, clientIP string) (res *LoginResult, err error) {
	defer func() { s.observe("login", err) }()

	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, fail(CodeValidation).Errorf("email and password are required")
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, dbError("find account by email", err)
		}
		//nolint:errcheck // result ignored, only the elapsed time matters
		_, _ = s.hasher.Verify(password, dummyPasswordHash)
		return nil, fail(CodeInvalidCredentials).Errorf("invalid email or password")
	}

	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		s.logSuppressed(ctx, "stored password hash is unreadable", err, "account_id", account.ID.String())
		return nil, fail(CodeForbidden).With("account_id", account.ID.String()).Errorf("invalid email or password")
	}
	if !ok {
		return nil, fail(CodeForbidden).With("account_id", account.ID.String()).Errorf("invalid email or password")
	}
	if !account.IsVerified {
		return nil, fail(CodeEmailNotVerified).With("account_id", account.ID.String()).Errorf("email address is not verified")
	}
	if !account.IsActive {
		return nil, fail(CodeForbidden).With("account_id", account.ID.String()).Errorf("account is deactivated")
	}

	pair, err := s.tokens.IssuePair(subjectOf(account))
	if err != nil {
		return nil, fail(CodeServiceUnavailable).With("operation", "issue token pair").Wrap(err)
	}

	now := s.now()
	session, err := NewSessionRecord(account.ID, pair.RefreshToken, now, s.lifetimes.Refresh)
	if err == nil {
		err = s.sessions.Create(ctx, session)
	}
	if err != nil {
		s.logSuppressed(ctx, "failed to persist refresh session", err, "account_id", account.ID.String())
	}

	if err := s.accounts.UpdateLoginTracking(ctx, account.ID, now, clientIP); err != nil {
		s.logSuppressed(ctx, "failed to record login", err, "account_id", account.ID.String())
	}
	account.LastLoginAt = &now
	if clientIP != "" {
		account.LastLoginIP = &clientIP
	}

	s.upgradeHash(ctx, account, password)

	return &LoginResult{Account: account.Public(), Tokens: pair}, nil
}

// upgradeHash rehashes the password when the stored hash uses outdated
// parameters. The write only lands while the stored hash is still the one
// this login verified. Failures are logged; the old hash keeps working.
func (s *Service) upgradeHash(ctx context.Context, account *Account, password string) {
	if !s.hasher.NeedsUpgrade(account.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logSuppressed(ctx, "failed to rehash password", err, "account_id", account.ID.String())
		return
	}
	n, err := s.accounts.UpgradePasswordHash(ctx, account.ID, account.PasswordHash, hash, s.now())
	if err != nil {
		s.logSuppressed(ctx, "failed to store upgraded password hash", err, "account_id", account.ID.String())
		return
	}
	if n == 0 {
		s.logger.DebugContext(ctx, "password changed during login, hash upgrade skipped", "account_id", account.ID.String())
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "account_id", account.ID.String())
}

// RefreshToken rotates a refresh token. The presented token must have a live
// session record and valid claims for the account that owns the record. The
// record is updated only while it still holds the presented token, so of two
// concurrent refreshes with the same token at most one succeeds.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (pair *token.Pair, err error) {
	defer func() { s.observe("refresh", err) }()

	if refreshToken == "" {
		return nil, fail(CodeInvalidRefresh).Errorf("refresh token is required")
	}

	session, err := s.sessions.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fail(CodeInvalidRefresh).Errorf("refresh token is not recognized")
		}
		return nil, dbError("find session by token", err)
	}

	now := s.now()
	if session.IsExpiredAt(now) {
		if err := s.sessions.DeleteByID(ctx, session.ID); err != nil && !errors.Is(err, ErrNotFound) {
			s.logSuppressed(ctx, "failed to delete expired session", err, "session_id", session.ID.String())
		}
		return nil, fail(CodeInvalidRefresh).With("session_id", session.ID.String()).Errorf("refresh session has expired")
	}

	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, fail(CodeInvalidRefresh).
			With("session_id", session.ID.String()).
			With("reason", err.Error()).
			Errorf("refresh token is invalid")
	}
	if claims.AccountID != session.AccountID.String() {
		return nil, fail(CodeInvalidRefresh).
			With("session_id", session.ID.String()).
			Errorf("refresh token does not belong to the session account")
	}

	account, err := s.accounts.FindByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fail(CodeInvalidRefresh).
				With("account_id", session.AccountID.String()).
				Errorf("session account no longer exists")
		}
		return nil, dbError("find account by id", err)
	}

	pair, err = s.tokens.IssuePair(subjectOf(account))
	if err != nil {
		return nil, fail(CodeServiceUnavailable).With("operation", "issue token pair").Wrap(err)
	}

	expiresAt := now.Add(s.lifetimes.Refresh)
	err = s.sessions.Update(ctx, session.ID, SessionUpdate{
		Token:          &pair.RefreshToken,
		LastActivityAt: &now,
		ExpiresAt:      &expiresAt,
		IfToken:        refreshToken,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fail(CodeInvalidRefresh).
				With("session_id", session.ID.String()).
				Errorf("refresh token was already rotated")
		}
		return nil, dbError("rotate session token", err)
	}

	return pair, nil
}

// Logout ends the session holding refreshToken.
func (s *Service) Logout(ctx context.Context, refreshToken string) (err error) {
	defer func() { s.observe("logout", err) }()

	if refreshToken == "" {
		return fail(CodeInvalidRefresh).Errorf("refresh token is required")
	}

	n, err := s.sessions.DeleteByToken(ctx, refreshToken)
	if err != nil {
		return dbError("delete session by token", err)
	}
	if n == 0 {
		return fail(CodeInvalidRefresh).Errorf("refresh token is not recognized")
	}
	return nil
}
