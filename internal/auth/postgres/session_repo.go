// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authkeep/authkeep/internal/auth"
	"github.com/authkeep/authkeep/internal/store"
)

const sessionColumns = `id, account_id, token, last_activity_at, expires_at, created_at`

// SessionRepository implements auth.SessionStore using PostgreSQL.
type SessionRepository struct {
	db store.Querier
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db store.Querier) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, s *auth.SessionRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		s.ID.String(),
		s.AccountID.String(),
		s.Token,
		s.LastActivityAt,
		s.ExpiresAt,
		s.CreatedAt,
	)
	if err != nil {
		return oops.With("operation", "insert session").
			With("account_id", s.AccountID.String()).
			Wrap(err)
	}
	return nil
}

// FindByToken retrieves a session by its refresh token.
func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*auth.SessionRecord, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE token = $1
	`, token)

	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("operation", "find session by token").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "find session by token").Wrap(err)
	}
	return s, nil
}

// Update applies the non-nil fields of upd. When upd.IfToken is set the row
// only changes if it still holds that token, so concurrent rotations of the
// same refresh token have a single winner.
func (r *SessionRepository) Update(ctx context.Context, id ulid.ULID, upd auth.SessionUpdate) error {
	if err := upd.Validate(); err != nil {
		return err
	}

	args := []any{id.String()}
	var sets []string
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if upd.Token != nil {
		add("token", *upd.Token)
	}
	if upd.LastActivityAt != nil {
		add("last_activity_at", *upd.LastActivityAt)
	}
	if upd.ExpiresAt != nil {
		add("expires_at", *upd.ExpiresAt)
	}

	sql := `UPDATE sessions SET ` + strings.Join(sets, ", ") + ` WHERE id = $1`
	if upd.IfToken != "" {
		args = append(args, upd.IfToken)
		sql += ` AND token = $` + strconv.Itoa(len(args))
	}

	result, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return oops.With("operation", "update session").With("id", id.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.With("operation", "update session").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByID removes a session by ID.
func (r *SessionRepository) DeleteByID(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id.String())
	if err != nil {
		return oops.With("operation", "delete session").With("id", id.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByToken removes the session holding token.
func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return 0, oops.With("operation", "delete session by token").Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteByAccount removes every session of an account.
func (r *SessionRepository) DeleteByAccount(ctx context.Context, accountID ulid.ULID) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID.String())
	if err != nil {
		return 0, oops.With("operation", "delete sessions by account").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes sessions that expired before now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, oops.With("operation", "delete expired sessions").Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSession scans a single row into a SessionRecord.
// Callers are responsible for handling pgx.ErrNoRows.
func scanSession(row pgx.Row) (*auth.SessionRecord, error) {
	var (
		s            auth.SessionRecord
		idStr, accID string
	)
	if err := row.Scan(&idStr, &accID, &s.Token, &s.LastActivityAt, &s.ExpiresAt, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.With("operation", "scan session").Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("operation", "parse session id").With("id", idStr).Wrap(err)
	}
	accountID, err := ulid.Parse(accID)
	if err != nil {
		return nil, oops.With("operation", "parse account id").With("account_id", accID).Wrap(err)
	}
	s.ID = id
	s.AccountID = accountID
	return &s, nil
}

var _ auth.SessionStore = (*SessionRepository)(nil)
