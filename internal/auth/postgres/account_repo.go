// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

// Package postgres implements the auth repositories on PostgreSQL.
//
// Errors carry operation context but no oops code; the auth.Service attaches
// the code callers see.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authkeep/authkeep/internal/auth"
	"github.com/authkeep/authkeep/internal/store"
)

// Unique constraint names from the accounts migration.
const (
	constraintEmail    = "accounts_email_key"
	constraintUsername = "accounts_username_key"
)

const accountColumns = `id, email, username, password_hash, role, is_verified, is_active,
	last_login_at, last_login_ip, verification_token, verification_expires_at,
	reset_token, reset_expires_at, reset_token_used, created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db store.Querier
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db store.Querier) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, a *auth.Account) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		a.ID.String(),
		a.Email,
		a.Username,
		a.PasswordHash,
		string(a.Role),
		a.IsVerified,
		a.IsActive,
		a.LastLoginAt,
		a.LastLoginIP,
		a.VerificationToken,
		a.VerificationExpiresAt,
		a.ResetToken,
		a.ResetExpiresAt,
		a.ResetTokenUsed,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, "insert account", a)
	}
	return nil
}

// Update writes the profile, credential and status fields of an account.
// Token pairs are owned by their dedicated setters and left untouched.
func (r *AccountRepository) Update(ctx context.Context, a *auth.Account) error {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET
			email = $2, username = $3, password_hash = $4, role = $5,
			is_verified = $6, is_active = $7, last_login_at = $8, last_login_ip = $9,
			updated_at = $10
		WHERE id = $1
	`,
		a.ID.String(),
		a.Email,
		a.Username,
		a.PasswordHash,
		string(a.Role),
		a.IsVerified,
		a.IsActive,
		a.LastLoginAt,
		a.LastLoginIP,
		a.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, "update account", a)
	}
	if result.RowsAffected() == 0 {
		return oops.With("id", a.ID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// FindByEmail looks up an account by normalized email.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	return r.findOne(ctx, "find account by email", `WHERE email = $1`, auth.NormalizeEmail(email))
}

// FindByUsername looks up an account by username.
func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*auth.Account, error) {
	return r.findOne(ctx, "find account by username", `WHERE username = $1`, username)
}

// FindByID looks up an account by ID.
func (r *AccountRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	return r.findOne(ctx, "find account by id", `WHERE id = $1`, id.String())
}

// FindByVerificationToken looks up the account holding a verification token.
func (r *AccountRepository) FindByVerificationToken(ctx context.Context, token string) (*auth.Account, error) {
	return r.findOne(ctx, "find account by verification token", `WHERE verification_token = $1`, token)
}

// FindByResetToken looks up the account holding a usable reset token.
func (r *AccountRepository) FindByResetToken(ctx context.Context, token string, now time.Time) (*auth.Account, error) {
	return r.findOne(ctx, "find account by valid reset token", `
		WHERE reset_token = $1
		  AND reset_token_used = FALSE
		  AND reset_expires_at >= $2
		  AND is_active = TRUE`, token, now)
}

// FindByResetTokenAny looks up the account holding a reset token in any state.
func (r *AccountRepository) FindByResetTokenAny(ctx context.Context, token string) (*auth.Account, error) {
	return r.findOne(ctx, "find account by reset token", `WHERE reset_token = $1`, token)
}

// SetVerified marks the account verified and clears its verification pair.
func (r *AccountRepository) SetVerified(ctx context.Context, id ulid.ULID) error {
	return r.execOne(ctx, "set verified", id, `
		UPDATE accounts SET
			is_verified = TRUE,
			verification_token = NULL,
			verification_expires_at = NULL,
			updated_at = NOW()
		WHERE id = $1
	`, id.String())
}

// SetVerificationToken replaces the verification pair.
func (r *AccountRepository) SetVerificationToken(ctx context.Context, id ulid.ULID, token string, expiresAt time.Time) error {
	return r.execOne(ctx, "set verification token", id, `
		UPDATE accounts SET
			verification_token = $2,
			verification_expires_at = $3,
			updated_at = NOW()
		WHERE id = $1
	`, id.String(), token, expiresAt)
}

// SetResetToken replaces the reset pair and marks it unused.
func (r *AccountRepository) SetResetToken(ctx context.Context, id ulid.ULID, token string, expiresAt time.Time) error {
	return r.execOne(ctx, "set reset token", id, `
		UPDATE accounts SET
			reset_token = $2,
			reset_expires_at = $3,
			reset_token_used = FALSE,
			updated_at = NOW()
		WHERE id = $1
	`, id.String(), token, expiresAt)
}

// SetNewPassword consumes a usable reset token and stores the new hash in
// one statement. Returns the number of rows changed (0 or 1).
func (r *AccountRepository) SetNewPassword(ctx context.Context, token, passwordHash string, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET
			password_hash = $2,
			reset_token_used = TRUE,
			updated_at = $3
		WHERE reset_token = $1
		  AND reset_token_used = FALSE
		  AND reset_expires_at >= $3
		  AND is_active = TRUE
	`, token, passwordHash, now)
	if err != nil {
		return 0, oops.With("operation", "set new password").Wrap(err)
	}
	return result.RowsAffected(), nil
}

// UpgradePasswordHash swaps oldHash for newHash. A hash changed since it was
// read leaves the row alone and reports 0.
func (r *AccountRepository) UpgradePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET
			password_hash = $3,
			updated_at = $4
		WHERE id = $1
		  AND password_hash = $2
	`, id.String(), oldHash, newHash, now)
	if err != nil {
		return 0, oops.With("operation", "upgrade password hash").With("id", id.String()).Wrap(err)
	}
	return result.RowsAffected(), nil
}

// UpdateLoginTracking records a login. An empty ip keeps the previous value.
func (r *AccountRepository) UpdateLoginTracking(ctx context.Context, id ulid.ULID, at time.Time, ip string) error {
	return r.execOne(ctx, "update login tracking", id, `
		UPDATE accounts SET
			last_login_at = $2,
			last_login_ip = COALESCE(NULLIF($3, ''), last_login_ip)
		WHERE id = $1
	`, id.String(), at, ip)
}

// CleanExpiredVerificationTokens clears verification pairs that expired
// before now on unverified accounts.
func (r *AccountRepository) CleanExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET
			verification_token = NULL,
			verification_expires_at = NULL,
			updated_at = $1
		WHERE is_verified = FALSE
		  AND verification_expires_at < $1
	`, now)
	if err != nil {
		return 0, oops.With("operation", "clean expired verification tokens").Wrap(err)
	}
	return result.RowsAffected(), nil
}

func (r *AccountRepository) findOne(ctx context.Context, operation, where string, args ...any) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts `+where, args...)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("operation", operation).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", operation).Wrap(err)
	}
	return a, nil
}

func (r *AccountRepository) execOne(ctx context.Context, operation string, id ulid.ULID, sql string, args ...any) error {
	result, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return oops.With("operation", operation).With("id", id.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.With("operation", operation).With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// mapWriteError turns unique violations into the auth duplicate sentinels.
func mapWriteError(err error, operation string, a *auth.Account) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		switch pgErr.ConstraintName {
		case constraintEmail:
			return oops.With("operation", operation).With("email", a.Email).Wrap(auth.ErrDuplicateEmail)
		case constraintUsername:
			return oops.With("operation", operation).With("username", a.Username).Wrap(auth.ErrDuplicateUsername)
		}
	}
	return oops.With("operation", operation).With("id", a.ID.String()).Wrap(err)
}

// scanAccount scans a single row into an Account.
// Callers are responsible for handling pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		a     auth.Account
		idStr string
		role  string
	)
	err := row.Scan(
		&idStr,
		&a.Email,
		&a.Username,
		&a.PasswordHash,
		&role,
		&a.IsVerified,
		&a.IsActive,
		&a.LastLoginAt,
		&a.LastLoginIP,
		&a.VerificationToken,
		&a.VerificationExpiresAt,
		&a.ResetToken,
		&a.ResetExpiresAt,
		&a.ResetTokenUsed,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.With("operation", "scan account").Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("operation", "parse account id").With("id", idStr).Wrap(err)
	}
	a.ID = id
	a.Role = auth.Role(role)
	return &a, nil
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
