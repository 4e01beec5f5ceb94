// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionRecord is the server-side state of a refresh token.
// Token always holds the most recently issued refresh token for the session.
type SessionRecord struct {
	ID             ulid.ULID
	AccountID      ulid.ULID
	Token          string
	LastActivityAt time.Time
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

// NewSessionRecord creates a validated SessionRecord that expires ttl after now.
func NewSessionRecord(accountID ulid.ULID, token string, now time.Time, ttl time.Duration) (*SessionRecord, error) {
	if accountID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Errorf("account ID cannot be zero")
	}
	if token == "" {
		return nil, oops.Errorf("session token cannot be empty")
	}
	if ttl <= 0 {
		return nil, oops.With("ttl", ttl.String()).Errorf("session lifetime must be positive")
	}

	return &SessionRecord{
		ID:             ulid.Make(),
		AccountID:      accountID,
		Token:          token,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
	}, nil
}

// IsExpiredAt returns true if the session would be expired at the given time.
func (s *SessionRecord) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// SessionUpdate is a partial update of a SessionRecord. Nil fields are left
// untouched. When IfToken is non-empty the update applies only while the
// stored token still equals IfToken.
type SessionUpdate struct {
	Token          *string
	LastActivityAt *time.Time
	ExpiresAt      *time.Time
	IfToken        string
}

// Validate rejects empty updates and updates that would move ExpiresAt
// before LastActivityAt.
func (u SessionUpdate) Validate() error {
	if u.Token == nil && u.LastActivityAt == nil && u.ExpiresAt == nil {
		return oops.Errorf("session update has no fields")
	}
	if u.Token != nil && *u.Token == "" {
		return oops.Errorf("session token cannot be empty")
	}
	if u.LastActivityAt != nil && u.ExpiresAt != nil && u.ExpiresAt.Before(*u.LastActivityAt) {
		return oops.
			With("last_activity_at", *u.LastActivityAt).
			With("expires_at", *u.ExpiresAt).
			Errorf("session expiry precedes last activity")
	}
	return nil
}

// SessionStore manages refresh-session persistence.
//
// Lookups and single-record mutations return an error wrapping ErrNotFound
// when nothing matches.
type SessionStore interface {
	// Create stores a new session record.
	Create(ctx context.Context, session *SessionRecord) error

	// FindByToken retrieves the session whose current token equals token.
	FindByToken(ctx context.Context, token string) (*SessionRecord, error)

	// Update applies a partial update. If upd.IfToken is set and the stored
	// token differs, nothing changes and ErrNotFound is returned.
	Update(ctx context.Context, id ulid.ULID, upd SessionUpdate) error

	// DeleteByID removes a session by ID.
	DeleteByID(ctx context.Context, id ulid.ULID) error

	// DeleteByToken removes the session holding token and returns the count
	// of deleted records.
	DeleteByToken(ctx context.Context, token string) (int64, error)

	// DeleteByAccount removes every session of an account and returns the
	// count of deleted records.
	DeleteByAccount(ctx context.Context, accountID ulid.ULID) (int64, error)

	// DeleteExpired removes sessions that expired before now and returns the
	// count of deleted records.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
