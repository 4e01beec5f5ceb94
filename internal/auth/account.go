// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is an account's authorization tier.
type Role string

// Known roles.
const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// Account is a registered identity.
//
// The verification pair (VerificationToken, VerificationExpiresAt) and the
// reset pair (ResetToken, ResetExpiresAt) are each either fully set or fully
// nil.
type Account struct {
	ID           ulid.ULID
	Email        string
	Username     string
	PasswordHash string
	Role         Role
	IsVerified   bool
	IsActive     bool
	LastLoginAt  *time.Time
	LastLoginIP  *string

	VerificationToken     *string
	VerificationExpiresAt *time.Time

	ResetToken     *string
	ResetExpiresAt *time.Time
	ResetTokenUsed bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeEmail lower-cases and trims an email address. Emails are stored
// and looked up in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewAccount creates a validated, active, unverified Account.
func NewAccount(email, username, passwordHash string, role Role, now time.Time) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, oops.With("email", email).Errorf("email is invalid")
	}
	if strings.TrimSpace(username) == "" {
		return nil, oops.Errorf("username cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Errorf("password hash cannot be empty")
	}
	if !role.Valid() {
		return nil, oops.With("role", string(role)).Errorf("unknown role %q", role)
	}

	return &Account{
		ID:           ulid.Make(),
		Email:        email,
		Username:     strings.TrimSpace(username),
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// VerificationExpiredAt reports whether the verification token is expired at t.
// An account without a verification expiry counts as expired.
func (a *Account) VerificationExpiredAt(t time.Time) bool {
	return a.VerificationExpiresAt == nil || t.After(*a.VerificationExpiresAt)
}

// ResetExpiredAt reports whether the reset token is expired at t.
// An account without a reset expiry counts as expired.
func (a *Account) ResetExpiredAt(t time.Time) bool {
	return a.ResetExpiresAt == nil || t.After(*a.ResetExpiresAt)
}

// Public returns a copy of a with the password hash and every token stripped.
func (a *Account) Public() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	cp.PasswordHash = ""
	cp.VerificationToken = nil
	cp.VerificationExpiresAt = nil
	cp.ResetToken = nil
	cp.ResetExpiresAt = nil
	cp.ResetTokenUsed = false
	return &cp
}

// AccountRepository manages account persistence.
//
// Lookups return an error wrapping ErrNotFound when nothing matches.
type AccountRepository interface {
	// FindByEmail looks up an account by normalized email.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// FindByUsername looks up an account by exact username.
	FindByUsername(ctx context.Context, username string) (*Account, error)

	// FindByID looks up an account by ID.
	FindByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// FindByVerificationToken looks up the account holding the token,
	// regardless of expiry.
	FindByVerificationToken(ctx context.Context, token string) (*Account, error)

	// FindByResetToken looks up the account holding the token only while the
	// token is unused and unexpired at now and the account is active.
	FindByResetToken(ctx context.Context, token string, now time.Time) (*Account, error)

	// FindByResetTokenAny looks up the account holding the token in any state.
	FindByResetTokenAny(ctx context.Context, token string) (*Account, error)

	// Create stores a new account. A unique violation is reported as
	// ErrDuplicateEmail or ErrDuplicateUsername.
	Create(ctx context.Context, account *Account) error

	// Update writes the mutable fields of an existing account.
	Update(ctx context.Context, account *Account) error

	// SetVerified marks the account verified and clears the verification pair.
	SetVerified(ctx context.Context, id ulid.ULID) error

	// SetVerificationToken replaces the verification pair.
	SetVerificationToken(ctx context.Context, id ulid.ULID, token string, expiresAt time.Time) error

	// SetResetToken replaces the reset pair and marks it unused.
	SetResetToken(ctx context.Context, id ulid.ULID, token string, expiresAt time.Time) error

	// SetNewPassword stores passwordHash and marks the reset token used, in a
	// single statement conditioned on the token being unused, unexpired at
	// now and the account active. Returns the number of rows affected.
	SetNewPassword(ctx context.Context, token, passwordHash string, now time.Time) (int64, error)

	// UpgradePasswordHash replaces the stored hash with newHash only while it
	// still equals oldHash. Returns the number of rows affected.
	UpgradePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) (int64, error)

	// UpdateLoginTracking records a successful login.
	UpdateLoginTracking(ctx context.Context, id ulid.ULID, at time.Time, ip string) error

	// CleanExpiredVerificationTokens clears verification pairs that expired
	// before now on unverified accounts and returns the count.
	CleanExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error)
}
