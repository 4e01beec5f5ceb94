// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package auth

import (
	"context"
	"time"
)

// VerificationMessage carries what a verification email needs.
type VerificationMessage struct {
	To        string
	Username  string
	Token     string
	ExpiresAt time.Time
}

// PasswordResetMessage carries what a password-reset email needs.
type PasswordResetMessage struct {
	To        string
	Username  string
	Token     string
	ExpiresAt time.Time
}

// Mailer delivers account emails. A returned error means the message was not
// handed off.
type Mailer interface {
	SendVerification(ctx context.Context, msg VerificationMessage) error
	SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error
}
