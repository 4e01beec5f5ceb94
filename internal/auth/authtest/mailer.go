// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package authtest

import (
	"context"
	"sync"

	"github.com/authkeep/authkeep/internal/auth"
)

// Mailer records every message it is asked to send. Set Err to make sends fail.
type Mailer struct {
	mu            sync.Mutex
	Err           error
	Verifications []auth.VerificationMessage
	Resets        []auth.PasswordResetMessage
}

func (m *Mailer) SendVerification(_ context.Context, msg auth.VerificationMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Verifications = append(m.Verifications, msg)
	return nil
}

func (m *Mailer) SendPasswordReset(_ context.Context, msg auth.PasswordResetMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Resets = append(m.Resets, msg)
	return nil
}

// LastVerification returns the most recent verification message.
func (m *Mailer) LastVerification() (auth.VerificationMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Verifications) == 0 {
		return auth.VerificationMessage{}, false
	}
	return m.Verifications[len(m.Verifications)-1], true
}

// LastReset returns the most recent password-reset message.
func (m *Mailer) LastReset() (auth.PasswordResetMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Resets) == 0 {
		return auth.PasswordResetMessage{}, false
	}
	return m.Resets[len(m.Resets)-1], true
}

var _ auth.Mailer = (*Mailer)(nil)
