// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package main

import (
	"github.com/spf13/cobra"
)

// newSweepCmd creates the sweep subcommand.
func newSweepCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired verification tokens and sessions once",
		Long: `Clear verification tokens that expired on unverified accounts and delete
expired refresh sessions. serve does the same on --sweep-interval; this
command is for cron-style scheduling.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, deps, func(sc *serviceContext) error {
				tokens, sessions, err := runSweep(cmd.Context(), sc.svc, nil, sc.logger)
				if err != nil {
					return err
				}
				cmd.Printf("Cleared %d expired verification tokens and %d expired sessions\n", tokens, sessions)
				return nil
			})
		},
	}
}
