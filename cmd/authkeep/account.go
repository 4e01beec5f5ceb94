// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package main

import (
	"bufio"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authkeep/authkeep/internal/auth"
)

// newAccountCmd creates the account administration commands. They drive the
// same lifecycle operations an embedding HTTP layer would.
func newAccountCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Administer accounts",
		Long: `Register accounts and drive email verification and password recovery
from the command line. Passwords are read from standard input.`,
	}

	var email, username, role string
	register := &cobra.Command{
		Use:   "register",
		Short: "Register an account and send its verification email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withService(cmd, deps, func(sc *serviceContext) error {
				acct, err := sc.svc.Register(cmd.Context(), email, username, password, auth.Role(role))
				if err != nil {
					return err //nolint:wrapcheck // service errors carry codes
				}
				cmd.Printf("Registered %s (%s) as %s; verification email sent to %s\n",
					acct.Username, acct.ID, acct.Role, acct.Email)
				return nil
			})
		},
	}
	register.Flags().StringVar(&email, "email", "", "account email")
	register.Flags().StringVar(&username, "username", "", "account username")
	register.Flags().StringVar(&role, "role", string(auth.RoleUser), "account role (user, manager or admin)")
	cmd.AddCommand(register)

	cmd.AddCommand(&cobra.Command{
		Use:   "verify TOKEN",
		Short: "Verify an email address with its verification token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, deps, func(sc *serviceContext) error {
				acct, err := sc.svc.VerifyEmail(cmd.Context(), args[0])
				if err != nil {
					return err //nolint:wrapcheck // service errors carry codes
				}
				cmd.Printf("Email verified for %s (%s)\n", acct.Username, acct.Email)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "resend-verification EMAIL",
		Short: "Issue a new verification token and email it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, deps, func(sc *serviceContext) error {
				if err := sc.svc.ResendVerification(cmd.Context(), args[0]); err != nil {
					return err //nolint:wrapcheck // service errors carry codes
				}
				cmd.Println("Verification email sent")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "forgot-password EMAIL",
		Short: "Issue a password reset token and email it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, deps, func(sc *serviceContext) error {
				if err := sc.svc.ForgotPassword(cmd.Context(), args[0]); err != nil {
					return err //nolint:wrapcheck // service errors carry codes
				}
				cmd.Println("Password reset email sent")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset-password TOKEN",
		Short: "Set a new password with a reset token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withService(cmd, deps, func(sc *serviceContext) error {
				if err := sc.svc.ResetPassword(cmd.Context(), args[0], password); err != nil {
					return err //nolint:wrapcheck // service errors carry codes
				}
				cmd.Println("Password updated; existing sessions revoked")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check-reset TOKEN",
		Short: "Report whether a password reset token is usable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, deps, func(sc *serviceContext) error {
				status, err := sc.svc.ValidateResetToken(cmd.Context(), args[0])
				if err != nil {
					return err //nolint:wrapcheck // service errors carry codes
				}
				cmd.Printf("valid: %t\nexpired: %t\naccount exists: %t\n",
					status.IsValid, status.IsExpired, status.UserExists)
				return nil
			})
		},
	})

	return cmd
}

// readSecret reads one line from r, without the trailing newline.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("INPUT_READ_FAILED").Wrap(err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", oops.Code("VALIDATION_ERROR").Errorf("password must be provided on standard input")
	}
	return line, nil
}
