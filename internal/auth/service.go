// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authkeep/authkeep/internal/auth/token"
	"github.com/authkeep/authkeep/pkg/errutil"
)

// TokenCodec issues and verifies signed access/refresh pairs.
type TokenCodec interface {
	IssuePair(sub token.Subject) (*token.Pair, error)
	ParseAccess(raw string) (*token.Claims, error)
	ParseRefresh(raw string) (*token.Claims, error)
}

// OutcomeRecorder receives one call per Service operation with the resulting
// error code, or "OK" on success.
type OutcomeRecorder interface {
	RecordAuthOutcome(operation, code string)
}

// Dependencies are the collaborators every Service needs.
type Dependencies struct {
	Accounts AccountRepository
	Sessions SessionStore
	Hasher   PasswordHasher
	Tokens   TokenCodec
	Mailer   Mailer
}

// Lifetimes configures how long issued tokens stay valid.
type Lifetimes struct {
	Verification time.Duration
	Reset        time.Duration
	Refresh      time.Duration
}

// DefaultLifetimes are used for zero Lifetimes fields.
var DefaultLifetimes = Lifetimes{
	Verification: 24 * time.Hour,
	Reset:        time.Hour,
	Refresh:      7 * 24 * time.Hour,
}

func (l Lifetimes) withDefaults() Lifetimes {
	if l.Verification == 0 {
		l.Verification = DefaultLifetimes.Verification
	}
	if l.Reset == 0 {
		l.Reset = DefaultLifetimes.Reset
	}
	if l.Refresh == 0 {
		l.Refresh = DefaultLifetimes.Refresh
	}
	return l
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for suppressed failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithOutcomeRecorder reports every operation outcome to r.
func WithOutcomeRecorder(r OutcomeRecorder) Option {
	return func(s *Service) {
		s.outcomes = r
	}
}

// Service implements the account lifecycle.
type Service struct {
	accounts  AccountRepository
	sessions  SessionStore
	hasher    PasswordHasher
	tokens    TokenCodec
	mailer    Mailer
	lifetimes Lifetimes
	logger    *slog.Logger
	now       func() time.Time
	outcomes  OutcomeRecorder
}

// NewService creates a Service. All dependencies are required.
func NewService(deps Dependencies, lifetimes Lifetimes, opts ...Option) (*Service, error) {
	if deps.Accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if deps.Sessions == nil {
		return nil, oops.Errorf("session store is required")
	}
	if deps.Hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if deps.Tokens == nil {
		return nil, oops.Errorf("token codec is required")
	}
	if deps.Mailer == nil {
		return nil, oops.Errorf("mailer is required")
	}

	lifetimes = lifetimes.withDefaults()
	if lifetimes.Verification < 0 || lifetimes.Reset < 0 || lifetimes.Refresh < 0 {
		return nil, oops.
			With("verification", lifetimes.Verification.String()).
			With("reset", lifetimes.Reset.String()).
			With("refresh", lifetimes.Refresh.String()).
			Errorf("token lifetimes must be positive")
	}

	s := &Service{
		accounts:  deps.Accounts,
		sessions:  deps.Sessions,
		hasher:    deps.Hasher,
		tokens:    deps.Tokens,
		mailer:    deps.Mailer,
		lifetimes: lifetimes,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GetMe returns the public view of the account with the given ID.
func (s *Service) GetMe(ctx context.Context, accountID ulid.ULID) (acct *Account, err error) {
	defer func() { s.observe("get_me", err) }()

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fail(CodeUserNotFound).With("account_id", accountID.String()).Errorf("account not found")
		}
		return nil, dbError("find account by id", err)
	}
	return account.Public(), nil
}

// Authenticate verifies an access token and returns its claims.
func (s *Service) Authenticate(_ context.Context, accessToken string) (claims *token.Claims, err error) {
	defer func() { s.observe("authenticate", err) }()

	if accessToken == "" {
		return nil, fail(CodeTokenInvalid).Errorf("access token is required")
	}
	claims, err = s.tokens.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, fail(CodeTokenExpired).Errorf("access token has expired")
		}
		return nil, fail(CodeTokenInvalid).With("reason", err.Error()).Errorf("access token is invalid")
	}
	return claims, nil
}

// CleanExpiredVerificationTokens clears expired verification pairs on
// unverified accounts and returns how many were cleared.
func (s *Service) CleanExpiredVerificationTokens(ctx context.Context) (n int64, err error) {
	defer func() { s.observe("clean_verification_tokens", err) }()

	n, err = s.accounts.CleanExpiredVerificationTokens(ctx, s.now())
	if err != nil {
		return 0, dbError("clean expired verification tokens", err)
	}
	return n, nil
}

// CleanExpiredSessions removes refresh sessions past their expiry and
// returns how many were removed.
func (s *Service) CleanExpiredSessions(ctx context.Context) (n int64, err error) {
	defer func() { s.observe("clean_sessions", err) }()

	n, err = s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, dbError("delete expired sessions", err)
	}
	return n, nil
}

func (s *Service) observe(operation string, err error) {
	if s.outcomes == nil {
		return
	}
	code := "OK"
	if err != nil {
		code = string(Code(err))
		if code == "" {
			code = "UNKNOWN"
		}
	}
	s.outcomes.RecordAuthOutcome(operation, code)
}

// logSuppressed logs a bookkeeping failure that does not fail the operation.
func (s *Service) logSuppressed(ctx context.Context, msg string, err error, attrs ...any) {
	errutil.LogErrorContext(ctx, s.logger.With(attrs...), msg, err)
}

func subjectOf(a *Account) token.Subject {
	return token.Subject{
		AccountID: a.ID.String(),
		Email:     a.Email,
		Role:      string(a.Role),
	}
}
