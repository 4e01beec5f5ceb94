// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "1.2.3 (commit: abc123, built: 2026-01-02)", formatVersion("1.2.3", "abc123", "2026-01-02"))
}

func TestRootCmd_ListsSubcommands(t *testing.T) {
	isolate(t)

	out, err := execute(t, nil, "", "--help")
	require.NoError(t, err)

	for _, name := range []string{"serve", "migrate", "sweep", "status", "account"} {
		assert.Contains(t, out, name)
	}
}

func TestRootCmd_RegistersConfigFlags(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"config", "database-url", "session-backend", "access-secret", "sweep-interval"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing flag %s", name)
	}
}

func TestAccountCmd_ListsOperations(t *testing.T) {
	isolate(t)

	out, err := execute(t, nil, "", "account", "--help")
	require.NoError(t, err)

	for _, name := range []string{"register", "verify", "resend-verification", "forgot-password", "reset-password", "check-reset"} {
		assert.Contains(t, out, name)
	}
}

func TestLoadConfig_UsesXDGConfigFile(t *testing.T) {
	isolate(t)
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)
	require.NoError(t, os.MkdirAll(filepath.Join(base, "authkeep"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(base, "authkeep", "config.yaml"),
		[]byte("database:\n  url: postgres://xdg@localhost/authkeep\n"), 0o600))

	var gotURL string
	deps := &Deps{
		MigratorFactory: func(url string) (Migrator, error) {
			gotURL = url
			return &fakeMigrator{}, nil
		},
	}

	_, err := execute(t, deps, "", "migrate", "version")
	require.NoError(t, err)
	assert.Equal(t, "postgres://xdg@localhost/authkeep", gotURL)
}

func TestLoadConfig_ExplicitFileWins(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "authkeep.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  url: postgres://explicit@localhost/authkeep\n"), 0o600))

	var gotURL string
	deps := &Deps{
		MigratorFactory: func(url string) (Migrator, error) {
			gotURL = url
			return &fakeMigrator{}, nil
		},
	}

	_, err := execute(t, deps, "", "migrate", "version", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://explicit@localhost/authkeep", gotURL)
}
