// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authkeep/authkeep/internal/auth"
	"github.com/authkeep/authkeep/internal/config"
	"github.com/authkeep/authkeep/pkg/errutil"
)

const shutdownTimeout = 10 * time.Second

// newServeCmd creates the serve subcommand.
func newServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the AuthKeep process",
		Long: `Connect to the configured stores, expose metrics and health probes,
and sweep expired verification tokens and sessions on a schedule.
Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, deps.withDefaults())
		},
	}
}

// runServe runs until ctx is cancelled or the observability server fails.
func runServe(ctx context.Context, cfg *config.Config, deps *Deps) error {
	if err := cfg.Validate(); err != nil {
		return err //nolint:wrapcheck // config errors carry codes
	}
	logger := newLogger(cfg)

	if cfg.Database.AutoMigrate {
		if err := migrateUp(cfg.Database.URL, deps, logger); err != nil {
			return err
		}
	}

	b, err := openBackends(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	var (
		obs      ObservabilityServer
		obsErrCh <-chan error
		recorder auth.OutcomeRecorder
		sweeps   sweepRecorder
	)
	if cfg.MetricsAddr != "" {
		obs = deps.ObservabilityServerFactory(cfg.MetricsAddr, b.ready, logger)
		obsErrCh, err = obs.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.MetricsAddr).Wrap(err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := obs.Stop(stopCtx); err != nil {
				errutil.LogError(logger, "failed to stop observability server", err)
			}
		}()
		recorder = obs.Metrics()
		sweeps = obs.Metrics()
	}

	svc, err := newService(cfg, b, logger, recorder)
	if err != nil {
		return err
	}

	logger.Info("authkeep started",
		"version", version,
		"session_backend", cfg.Sessions.Backend,
		"mail_driver", cfg.Mail.Driver,
		"sweep_interval", cfg.Sweep.Interval.String())

	var tick <-chan time.Time
	if cfg.Sweep.Interval > 0 {
		ticker := time.NewTicker(cfg.Sweep.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case err, ok := <-obsErrCh:
			if ok && err != nil {
				return oops.Code("OBSERVABILITY_FAILED").Wrap(err)
			}
			obsErrCh = nil
		case <-tick:
			sweepOnce(ctx, svc, sweeps, logger)
		}
	}
}

// sweepOnce runs a scheduled sweep. Failures are logged; the next tick retries.
func sweepOnce(ctx context.Context, svc *auth.Service, rec sweepRecorder, logger *slog.Logger) {
	if _, _, err := runSweep(ctx, svc, rec, logger); err != nil {
		errutil.LogErrorContext(ctx, logger, "scheduled sweep failed", err)
	}
}
