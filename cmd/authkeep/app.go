// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authkeep/authkeep/internal/auth"
	"github.com/authkeep/authkeep/internal/auth/postgres"
	"github.com/authkeep/authkeep/internal/auth/redisstore"
	"github.com/authkeep/authkeep/internal/auth/token"
	"github.com/authkeep/authkeep/internal/config"
	"github.com/authkeep/authkeep/internal/logging"
	"github.com/authkeep/authkeep/internal/mail"
	"github.com/authkeep/authkeep/internal/store"
)

const (
	serviceName  = "authkeep"
	readyTimeout = 2 * time.Second
)

// newLogger builds the process logger from validated config and installs it
// as the slog default.
func newLogger(cfg *config.Config) *slog.Logger {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.SetDefault(serviceName, version, cfg.LogFormat, level)
}

// backends holds the open stores for one command invocation.
type backends struct {
	pool     Pool
	redis    redis.UniversalClient
	accounts auth.AccountRepository
	sessions auth.SessionStore
}

// openBackends connects to PostgreSQL and, for the redis backend, to Redis.
func openBackends(ctx context.Context, cfg *config.Config, deps *Deps, logger *slog.Logger) (*backends, error) {
	pool, err := deps.PoolOpener(ctx, store.PoolConfig{
		URL:             cfg.Database.URL,
		MaxConns:        int32(cfg.Database.MaxConns), //nolint:gosec // bounded by validation
		ConnectAttempts: uint64(cfg.Database.ConnectAttempts), //nolint:gosec // validated >= 1
		ConnectBackoff:  cfg.Database.ConnectBackoff,
	}, logger)
	if err != nil {
		return nil, err
	}

	b := &backends{
		pool:     pool,
		accounts: postgres.NewAccountRepository(pool),
	}

	switch cfg.Sessions.Backend {
	case config.BackendRedis:
		rdb, err := deps.RedisOpener(cfg.Sessions.RedisURL)
		if err != nil {
			pool.Close()
			return nil, err
		}
		rs := redisstore.New(rdb, cfg.Sessions.RedisPrefix)
		if err := rs.Ping(ctx); err != nil {
			_ = rdb.Close()
			pool.Close()
			return nil, oops.Code("REDIS_CONNECT_FAILED").Wrap(err)
		}
		b.redis = rdb
		b.sessions = rs
	default:
		b.sessions = postgres.NewSessionRepository(pool)
	}

	logger.Info("backends ready", "session_backend", cfg.Sessions.Backend)
	return b, nil
}

// ready reports whether every open backend answers.
func (b *backends) ready() bool {
	if !store.ReadyFunc(b.pool, readyTimeout)() {
		return false
	}
	if b.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
		defer cancel()
		return b.redis.Ping(ctx).Err() == nil
	}
	return true
}

func (b *backends) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	b.pool.Close()
}

// newMailer picks the configured mail driver.
func newMailer(cfg config.MailConfig, logger *slog.Logger) (auth.Mailer, error) {
	if cfg.Driver == config.MailLog {
		return mail.NewLogMailer(cfg.LinkBaseURL, logger), nil
	}
	m, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:        cfg.Host,
		Port:        cfg.Port,
		Username:    cfg.Username,
		Password:    cfg.Password,
		From:        cfg.From,
		LinkBaseURL: cfg.LinkBaseURL,
		Attempts:    uint64(cfg.Attempts), //nolint:gosec // validated >= 1
		Backoff:     cfg.Backoff,
	}, logger)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("section", "mail").Wrap(err)
	}
	return m, nil
}

// newService wires the auth service over b.
func newService(cfg *config.Config, b *backends, logger *slog.Logger, recorder auth.OutcomeRecorder) (*auth.Service, error) {
	codec, err := token.NewJWTCodec(token.Config{
		AccessSecret:  []byte(cfg.Tokens.AccessSecret),
		RefreshSecret: []byte(cfg.Tokens.RefreshSecret),
		AccessTTL:     cfg.Tokens.AccessTTL,
		RefreshTTL:    cfg.Tokens.RefreshTTL,
		Issuer:        cfg.Tokens.Issuer,
	})
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("section", "tokens").Wrap(err)
	}

	mailer, err := newMailer(cfg.Mail, logger)
	if err != nil {
		return nil, err
	}

	opts := []auth.Option{auth.WithLogger(logger)}
	if recorder != nil {
		opts = append(opts, auth.WithOutcomeRecorder(recorder))
	}

	svc, err := auth.NewService(auth.Dependencies{
		Accounts: b.accounts,
		Sessions: b.sessions,
		Hasher:   auth.NewArgon2idHasher(),
		Tokens:   codec,
		Mailer:   mailer,
	}, auth.Lifetimes{
		Verification: cfg.Tokens.VerificationTTL,
		Reset:        cfg.Tokens.ResetTTL,
		Refresh:      cfg.Tokens.RefreshTTL,
	}, opts...)
	if err != nil {
		return nil, oops.Code("SERVICE_INIT_FAILED").Wrap(err)
	}
	return svc, nil
}

// sweepRecorder receives sweep counts.
type sweepRecorder interface {
	RecordSweep(kind string, n int64)
}

// runSweep clears expired verification tokens and sessions once.
func runSweep(ctx context.Context, svc *auth.Service, rec sweepRecorder, logger *slog.Logger) (tokens, sessions int64, err error) {
	tokens, err = svc.CleanExpiredVerificationTokens(ctx)
	if err != nil {
		return 0, 0, err //nolint:wrapcheck // service errors carry codes
	}
	sessions, err = svc.CleanExpiredSessions(ctx)
	if err != nil {
		return tokens, 0, err //nolint:wrapcheck // service errors carry codes
	}
	if rec != nil {
		rec.RecordSweep("verification_tokens", tokens)
		rec.RecordSweep("sessions", sessions)
	}
	logger.InfoContext(ctx, "sweep complete", "verification_tokens", tokens, "sessions", sessions)
	return tokens, sessions, nil
}

// serviceContext bundles what one-shot commands need.
type serviceContext struct {
	cfg    *config.Config
	logger *slog.Logger
	svc    *auth.Service
}

// withService loads and validates config, opens the backends, builds the
// service and runs fn. Backends are closed afterwards.
func withService(cmd *cobra.Command, deps *Deps, fn func(*serviceContext) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err //nolint:wrapcheck // config errors carry codes
	}
	logger := newLogger(cfg)
	deps = deps.withDefaults()

	b, err := openBackends(cmd.Context(), cfg, deps, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	svc, err := newService(cfg, b, logger, nil)
	if err != nil {
		return err
	}
	return fn(&serviceContext{cfg: cfg, logger: logger, svc: svc})
}
