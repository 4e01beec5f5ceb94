// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

// Package redisstore implements auth.SessionStore on Redis.
//
// Each session is a hash under <prefix>:session:<id> with a companion
// <prefix>:token:<token> key holding the session id. Both expire at the
// session's ExpiresAt, so Redis evicts stale sessions on its own. A set per
// account indexes session ids for bulk revocation; it expires with the
// account's latest session, and DeleteExpired prunes ids whose session Redis
// has already evicted.
package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/authkeep/authkeep/internal/auth"
)

// DefaultPrefix namespaces AuthKeep keys.
const DefaultPrefix = "authkeep"

const (
	fieldAccountID    = "account_id"
	fieldToken        = "token"
	fieldLastActivity = "last_activity_at"
	fieldExpiresAt    = "expires_at"
	fieldCreatedAt    = "created_at"
)

// removeSession deletes a session hash, its token key and its account index
// entry. Returns 1 when the session existed.
const removeSessionLua = `
local function remove_session(session_key, session_id, prefix)
  local fields = redis.call("HMGET", session_key, "token", "account_id")
  if not fields[1] then
    return 0
  end
  redis.call("DEL", session_key)
  redis.call("DEL", prefix .. ":token:" .. fields[1])
  redis.call("SREM", prefix .. ":account:" .. fields[2], session_id)
  return 1
end
`

// extendIndex pushes an account index's expiry out to expire_ms unless it
// already expires later. now_ms converts the remaining PTTL to an instant.
const extendIndexLua = `
local function extend_index(index_key, expire_ms, now_ms)
  local ttl = redis.call("PTTL", index_key)
  if ttl == -2 then
    return
  end
  if ttl >= 0 and tonumber(now_ms) + ttl >= tonumber(expire_ms) then
    return
  end
  redis.call("PEXPIREAT", index_key, expire_ms)
end
`

// createScript claims the token key and writes the session atomically.
// KEYS: session, token, account index. ARGV: id, account_id, token,
// last_activity, expires_at, created_at, expire_ms, now_ms.
var createScript = redis.NewScript(extendIndexLua + `
if not redis.call("SET", KEYS[2], ARGV[1], "NX") then
  return 0
end
redis.call("PEXPIREAT", KEYS[2], ARGV[7])
redis.call("HSET", KEYS[1],
  "account_id", ARGV[2],
  "token", ARGV[3],
  "last_activity_at", ARGV[4],
  "expires_at", ARGV[5],
  "created_at", ARGV[6],
  "expire_ms", ARGV[7])
redis.call("PEXPIREAT", KEYS[1], ARGV[7])
redis.call("SADD", KEYS[3], ARGV[1])
extend_index(KEYS[3], ARGV[7], ARGV[8])
return 1
`)

// pruneIndexScript drops index entries whose session hash is gone.
// KEYS: account index. ARGV: prefix.
var pruneIndexScript = redis.NewScript(`
local removed = 0
for _, id in ipairs(redis.call("SMEMBERS", KEYS[1])) do
  if redis.call("EXISTS", ARGV[1] .. ":session:" .. id) == 0 then
    redis.call("SREM", KEYS[1], id)
    removed = removed + 1
  end
end
return removed
`)

var deleteByIDScript = redis.NewScript(removeSessionLua + `
return remove_session(KEYS[1], ARGV[1], ARGV[2])
`)

var deleteByTokenScript = redis.NewScript(removeSessionLua + `
local id = redis.call("GET", KEYS[1])
if not id then
  return 0
end
return remove_session(ARGV[1] .. ":session:" .. id, id, ARGV[1])
`)

var deleteByAccountScript = redis.NewScript(removeSessionLua + `
local removed = 0
for _, id in ipairs(redis.call("SMEMBERS", KEYS[1])) do
  removed = removed + remove_session(ARGV[1] .. ":session:" .. id, id, ARGV[1])
end
redis.call("DEL", KEYS[1])
return removed
`)

// updateScript applies a partial update, optionally guarded by the current
// token. ARGV: if_token, new_token, last_activity, expires_at, expire_ms,
// prefix, session id, now_ms.
var updateScript = redis.NewScript(extendIndexLua + `
local key = KEYS[1]
local current = redis.call("HGET", key, "token")
if not current then
  return 0
end
if ARGV[1] ~= "" and current ~= ARGV[1] then
  return 0
end
local prefix = ARGV[6]
if ARGV[2] ~= "" then
  redis.call("DEL", prefix .. ":token:" .. current)
  redis.call("HSET", key, "token", ARGV[2])
  redis.call("SET", prefix .. ":token:" .. ARGV[2], ARGV[7])
  current = ARGV[2]
end
if ARGV[3] ~= "" then
  redis.call("HSET", key, "last_activity_at", ARGV[3])
end
if ARGV[4] ~= "" then
  redis.call("HSET", key, "expires_at", ARGV[4], "expire_ms", ARGV[5])
end
local at = redis.call("HGET", key, "expire_ms")
redis.call("PEXPIREAT", key, at)
redis.call("PEXPIREAT", prefix .. ":token:" .. current, at)
extend_index(prefix .. ":account:" .. redis.call("HGET", key, "account_id"), at, ARGV[8])
return 1
`)

// SessionStore implements auth.SessionStore using Redis.
type SessionStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// New creates a SessionStore. An empty prefix means DefaultPrefix.
func New(rdb redis.UniversalClient, prefix string) *SessionStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SessionStore{rdb: rdb, prefix: prefix}
}

func (s *SessionStore) sessionKey(id string) string { return s.prefix + ":session:" + id }
func (s *SessionStore) tokenKey(token string) string { return s.prefix + ":token:" + token }
func (s *SessionStore) accountKey(id string) string  { return s.prefix + ":account:" + id }

// Ping reports whether Redis answers.
func (s *SessionStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return oops.With("operation", "ping redis").Wrap(err)
	}
	return nil
}

// Create stores a new session. The token must not be held by another session.
func (s *SessionStore) Create(ctx context.Context, rec *auth.SessionRecord) error {
	id := rec.ID.String()
	accountID := rec.AccountID.String()

	created, err := createScript.Run(ctx, s.rdb,
		[]string{s.sessionKey(id), s.tokenKey(rec.Token), s.accountKey(accountID)},
		id,
		accountID,
		rec.Token,
		formatTime(rec.LastActivityAt),
		formatTime(rec.ExpiresAt),
		formatTime(rec.CreatedAt),
		strconv.FormatInt(rec.ExpiresAt.UnixMilli(), 10),
		strconv.FormatInt(time.Now().UnixMilli(), 10),
	).Int64()
	if err != nil {
		return oops.With("operation", "insert session").With("account_id", accountID).Wrap(err)
	}
	if created == 0 {
		return oops.With("operation", "claim session token").With("account_id", accountID).
			Errorf("session token already in use")
	}
	return nil
}

// FindByToken retrieves a session by its refresh token.
func (s *SessionStore) FindByToken(ctx context.Context, token string) (*auth.SessionRecord, error) {
	id, err := s.rdb.Get(ctx, s.tokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, oops.With("operation", "find session by token").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "find session by token").Wrap(err)
	}

	fields, err := s.rdb.HGetAll(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return nil, oops.With("operation", "load session").With("id", id).Wrap(err)
	}
	if len(fields) == 0 {
		return nil, oops.With("operation", "load session").With("id", id).Wrap(auth.ErrNotFound)
	}
	return parseSession(id, fields)
}

// Update applies upd atomically. A guarded update against a token that has
// already rotated reports auth.ErrNotFound.
func (s *SessionStore) Update(ctx context.Context, id ulid.ULID, upd auth.SessionUpdate) error {
	if err := upd.Validate(); err != nil {
		return err
	}

	var newToken, lastActivity, expiresAt, expireMillis string
	if upd.Token != nil {
		newToken = *upd.Token
	}
	if upd.LastActivityAt != nil {
		lastActivity = formatTime(*upd.LastActivityAt)
	}
	if upd.ExpiresAt != nil {
		expiresAt = formatTime(*upd.ExpiresAt)
		expireMillis = strconv.FormatInt(upd.ExpiresAt.UnixMilli(), 10)
	}

	n, err := updateScript.Run(ctx, s.rdb,
		[]string{s.sessionKey(id.String())},
		upd.IfToken, newToken, lastActivity, expiresAt, expireMillis, s.prefix, id.String(),
		strconv.FormatInt(time.Now().UnixMilli(), 10),
	).Int64()
	if err != nil {
		return oops.With("operation", "update session").With("id", id.String()).Wrap(err)
	}
	if n == 0 {
		return oops.With("operation", "update session").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByID removes a session by ID.
func (s *SessionStore) DeleteByID(ctx context.Context, id ulid.ULID) error {
	n, err := deleteByIDScript.Run(ctx, s.rdb, []string{s.sessionKey(id.String())}, id.String(), s.prefix).Int64()
	if err != nil {
		return oops.With("operation", "delete session").With("id", id.String()).Wrap(err)
	}
	if n == 0 {
		return oops.With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByToken removes the session holding token.
func (s *SessionStore) DeleteByToken(ctx context.Context, token string) (int64, error) {
	n, err := deleteByTokenScript.Run(ctx, s.rdb, []string{s.tokenKey(token)}, s.prefix).Int64()
	if err != nil {
		return 0, oops.With("operation", "delete session by token").Wrap(err)
	}
	return n, nil
}

// DeleteByAccount removes every session of an account.
func (s *SessionStore) DeleteByAccount(ctx context.Context, accountID ulid.ULID) (int64, error) {
	n, err := deleteByAccountScript.Run(ctx, s.rdb, []string{s.accountKey(accountID.String())}, s.prefix).Int64()
	if err != nil {
		return 0, oops.With("operation", "delete sessions by account").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return n, nil
}

// DeleteExpired prunes account index entries left behind by sessions Redis
// has already evicted and returns how many it removed. Session keys expire on
// their own, so now is not consulted.
func (s *SessionStore) DeleteExpired(ctx context.Context, _ time.Time) (int64, error) {
	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.accountKey("*"), 1000).Result()
		if err != nil {
			return removed, oops.With("operation", "scan account indexes").Wrap(err)
		}
		for _, key := range keys {
			n, err := pruneIndexScript.Run(ctx, s.rdb, []string{key}, s.prefix).Int64()
			if err != nil {
				return removed, oops.With("operation", "prune account index").With("key", key).Wrap(err)
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseSession(id string, fields map[string]string) (*auth.SessionRecord, error) {
	rec := &auth.SessionRecord{Token: fields[fieldToken]}

	var err error
	if rec.ID, err = ulid.Parse(id); err != nil {
		return nil, oops.With("operation", "parse session id").With("id", id).Wrap(err)
	}
	if rec.AccountID, err = ulid.Parse(fields[fieldAccountID]); err != nil {
		return nil, oops.With("operation", "parse account id").With("id", id).Wrap(err)
	}
	for field, dst := range map[string]*time.Time{
		fieldLastActivity: &rec.LastActivityAt,
		fieldExpiresAt:    &rec.ExpiresAt,
		fieldCreatedAt:    &rec.CreatedAt,
	} {
		if *dst, err = time.Parse(time.RFC3339Nano, fields[field]); err != nil {
			return nil, oops.With("operation", "parse session").With("id", id).With("field", field).Wrap(err)
		}
	}
	return rec, nil
}

var _ auth.SessionStore = (*SessionStore)(nil)
