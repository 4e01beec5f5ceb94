// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authkeep/authkeep/internal/config"
	"github.com/authkeep/authkeep/internal/observability"
	"github.com/authkeep/authkeep/internal/store"
)

var (
	testAccessSecret  = strings.Repeat("a", 32)
	testRefreshSecret = strings.Repeat("r", 32)
)

// configArgs are the flags for a valid config without external services.
func configArgs(extra ...string) []string {
	return append(extra,
		"--database-url=postgres://authkeep@localhost:5432/authkeep",
		"--access-secret="+testAccessSecret,
		"--refresh-secret="+testRefreshSecret,
		"--metrics-addr=",
		"--log-level=error",
	)
}

// loadTestConfig parses configArgs plus extra into a validated Config.
func loadTestConfig(t *testing.T, extra ...string) *config.Config {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse(configArgs(extra...)))
	cfg, err := config.Load("", fs)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

// isolate resets process-wide state touched by the commands.
func isolate(t *testing.T) {
	t.Helper()
	configFile = ""
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })
}

// execute runs the root command with args and returns its standard output.
func execute(t *testing.T, deps *Deps, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmdWithDeps(deps)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// mockPool keeps Close from consuming pgxmock expectations.
type mockPool struct {
	pgxmock.PgxPoolIface
	closed bool
}

func (p *mockPool) Close() { p.closed = true }

func newMockPool(t *testing.T) (*mockPool, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})
	return &mockPool{PgxPoolIface: mock}, mock
}

// poolDeps returns Deps whose PoolOpener hands out pool.
func poolDeps(pool Pool, m *fakeMigrator) *Deps {
	return &Deps{
		PoolOpener: func(context.Context, store.PoolConfig, *slog.Logger) (Pool, error) {
			return pool, nil
		},
		MigratorFactory: func(string) (Migrator, error) {
			if m == nil {
				m = &fakeMigrator{}
			}
			return m, nil
		},
	}
}

type fakeMigrator struct {
	status    store.Status
	upErr     error
	statusErr error
	calls     []string
	forced    int
	steps     int
	closed    bool
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	if f.upErr == nil {
		f.status.Pending = nil
	}
	return f.upErr
}

func (f *fakeMigrator) Down() error {
	f.calls = append(f.calls, "down")
	f.status = store.Status{}
	return nil
}

func (f *fakeMigrator) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	f.steps = n
	return nil
}

func (f *fakeMigrator) Force(v int) error {
	f.calls = append(f.calls, "force")
	f.forced = v
	return nil
}

func (f *fakeMigrator) Status() (*store.Status, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	s := f.status
	return &s, nil
}

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

// fakeObservability records lifecycle calls and serves real metrics.
type fakeObservability struct {
	metrics *observability.Metrics
	errCh   chan error
	started bool
	stopped bool
	checker observability.ReadinessChecker
}

func newFakeObservability() *fakeObservability {
	return &fakeObservability{
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		errCh:   make(chan error, 1),
	}
}

func (f *fakeObservability) Start() (<-chan error, error) {
	f.started = true
	return f.errCh, nil
}

func (f *fakeObservability) Stop(context.Context) error {
	f.stopped = true
	return nil
}

func (f *fakeObservability) Addr() string                    { return "127.0.0.1:0" }
func (f *fakeObservability) Metrics() *observability.Metrics { return f.metrics }
