// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/authkeep/authkeep/internal/config"
	"github.com/authkeep/authkeep/internal/xdg"
)

// configFile is the --config flag shared by all subcommands.
var configFile string

// NewRootCmd creates the root command for the AuthKeep CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmdWithDeps(nil)
}

func newRootCmdWithDeps(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authkeep",
		Short: "AuthKeep - account credential and session lifecycle service",
		Long: `AuthKeep manages account registration, email verification, login,
refresh-token rotation and password recovery on PostgreSQL, with an
optional Redis session store.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML, default $XDG_CONFIG_HOME/authkeep/config.yaml if present)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(deps))
	cmd.AddCommand(newMigrateCmd(deps))
	cmd.AddCommand(newSweepCmd(deps))
	cmd.AddCommand(newStatusCmd(deps))
	cmd.AddCommand(newAccountCmd(deps))

	return cmd
}

// loadConfig reads the config file and the command's flags. Without
// --config the XDG config file is used when it exists.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		path, _ = xdg.FindConfigFile()
	}
	return config.Load(path, cmd.Flags()) //nolint:wrapcheck // config errors carry their own codes
}
