// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authkeep/authkeep/internal/config"
	"github.com/authkeep/authkeep/internal/store"
)

const statusTimeout = 5 * time.Second

// ComponentStatus is the health of one backing component.
type ComponentStatus struct {
	Component string `json:"component"`
	Healthy   bool   `json:"healthy"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// newStatusCmd creates the status subcommand.
func newStatusCmd(deps *Deps) *cobra.Command {
	scfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check database, schema and session store health",
		Long: `Connect to the configured PostgreSQL database and session store and
report reachability and schema migration state. Exits non-zero when any
component is unhealthy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runStatus(cmd, cfg, scfg, deps.withDefaults())
		},
	}

	cmd.Flags().BoolVar(&scfg.jsonOutput, "json", false, "output status as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, cfg *config.Config, scfg *statusConfig, deps *Deps) error {
	if err := cfg.ValidateDatabase(); err != nil {
		return err //nolint:wrapcheck // config errors carry codes
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
	defer cancel()

	statuses := collectStatus(ctx, cfg, deps)

	var output string
	if scfg.jsonOutput {
		var err error
		output, err = formatStatusJSON(statuses)
		if err != nil {
			return err
		}
	} else {
		output = formatStatusTable(statuses)
	}
	cmd.Println(output)

	for _, s := range statuses {
		if !s.Healthy {
			return oops.Code("STATUS_UNHEALTHY").With("component", s.Component).Errorf("%s is unhealthy", s.Component)
		}
	}
	return nil
}

// collectStatus probes the database, the schema and the session store.
func collectStatus(ctx context.Context, cfg *config.Config, deps *Deps) []ComponentStatus {
	db := ComponentStatus{Component: "database"}
	schema := ComponentStatus{Component: "schema"}
	sessions := ComponentStatus{Component: "sessions", Detail: cfg.Sessions.Backend}

	pool, err := deps.PoolOpener(ctx, store.PoolConfig{URL: cfg.Database.URL, MaxConns: 1, ConnectAttempts: 1}, nil)
	if err != nil {
		db.Error = err.Error()
	} else {
		defer pool.Close()
		db.Healthy = true
	}

	schema.Healthy, schema.Detail, schema.Error = schemaStatus(cfg.Database.URL, deps)

	switch cfg.Sessions.Backend {
	case config.BackendRedis:
		sessions.Healthy, sessions.Error = redisStatus(ctx, cfg.Sessions.RedisURL, deps)
	default:
		sessions.Healthy = db.Healthy
		if !db.Healthy {
			sessions.Error = "database unreachable"
		}
	}

	return []ComponentStatus{db, schema, sessions}
}

func schemaStatus(url string, deps *Deps) (healthy bool, detail, errMsg string) {
	m, err := deps.MigratorFactory(url)
	if err != nil {
		return false, "", err.Error()
	}
	defer func() { _ = m.Close() }()

	st, err := m.Status()
	if err != nil {
		return false, "", err.Error()
	}
	detail = fmt.Sprintf("version %d (%s)", st.Version, displayName(st.Name))
	switch {
	case st.Dirty:
		return false, detail, "schema is dirty; repair and run migrate force"
	case len(st.Pending) > 0:
		return false, detail, "pending migrations: " + formatVersions(st.Pending)
	}
	return true, detail, ""
}

func redisStatus(ctx context.Context, url string, deps *Deps) (bool, string) {
	if url == "" {
		return false, "redis url is not configured"
	}
	rdb, err := deps.RedisOpener(url)
	if err != nil {
		return false, err.Error()
	}
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(statuses []ComponentStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tDETAIL")
	_, _ = fmt.Fprintln(w, "---------\t------\t------")
	for _, s := range statuses {
		state, detail := "ok", s.Detail
		if !s.Healthy {
			state = "error"
			if s.Error != "" {
				detail = s.Error
			}
		}
		if detail == "" {
			detail = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.Component, state, detail)
	}

	_ = w.Flush()
	return buf.String()
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(statuses []ComponentStatus) (string, error) {
	data, err := json.MarshalIndent(statuses, "", "  ")
	if err != nil {
		return "", oops.With("operation", "marshal status").Wrap(err)
	}
	return string(data), nil
}
