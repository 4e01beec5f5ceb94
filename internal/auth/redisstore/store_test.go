// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package redisstore_test

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/authkeep/authkeep/internal/auth"
	"github.com/authkeep/authkeep/internal/auth/redisstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newStore(t *testing.T) (*redisstore.SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redisstore.New(rdb, "test"), mr
}

func newRecord(t *testing.T, accountID ulid.ULID, token string) *auth.SessionRecord {
	t.Helper()
	return newRecordFor(t, accountID, token, time.Hour)
}

func newRecordFor(t *testing.T, accountID ulid.ULID, token string, lifetime time.Duration) *auth.SessionRecord {
	t.Helper()
	rec, err := auth.NewSessionRecord(accountID, token, time.Now().UTC(), lifetime)
	require.NoError(t, err)
	return rec
}

func TestSessionStore_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)
	rec := newRecord(t, ulid.Make(), "refresh-1")

	require.NoError(t, s.Create(ctx, rec))

	got, err := s.FindByToken(ctx, "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.AccountID, got.AccountID)
	assert.True(t, rec.ExpiresAt.Equal(got.ExpiresAt))
	assert.True(t, rec.LastActivityAt.Equal(got.LastActivityAt))

	assert.True(t, mr.Exists("test:session:"+rec.ID.String()))
	assert.Positive(t, mr.TTL("test:token:refresh-1"))
	members, err := mr.Members("test:account:" + rec.AccountID.String())
	require.NoError(t, err)
	assert.Equal(t, []string{rec.ID.String()}, members)
}

func TestSessionStore_CreateRejectsTokenReuse(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)
	first := newRecord(t, ulid.Make(), "dup")
	second := newRecord(t, ulid.Make(), "dup")
	require.NoError(t, s.Create(ctx, first))
	assert.Error(t, s.Create(ctx, second))

	assert.False(t, mr.Exists("test:session:"+second.ID.String()))
	assert.False(t, mr.Exists("test:account:"+second.AccountID.String()))
	id, err := mr.Get("test:token:dup")
	require.NoError(t, err)
	assert.Equal(t, first.ID.String(), id)
}

func TestSessionStore_EveryKeyExpires(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)
	rec := newRecord(t, ulid.Make(), "ttl")
	require.NoError(t, s.Create(ctx, rec))

	for _, key := range mr.Keys() {
		assert.Positive(t, mr.TTL(key), key)
	}
}

func TestSessionStore_FindMissing(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.FindByToken(context.Background(), "nope")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestSessionStore_ExpiresWithTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)
	require.NoError(t, s.Create(ctx, newRecord(t, ulid.Make(), "short")))

	mr.FastForward(2 * time.Hour)

	_, err := s.FindByToken(ctx, "short")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	n, err := s.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, mr.Keys())
}

func TestSessionStore_AccountIndexFollowsLatestSession(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)
	account := ulid.Make()
	indexKey := "test:account:" + account.String()

	long := newRecordFor(t, account, "long", 3*time.Hour)
	require.NoError(t, s.Create(ctx, long))
	require.NoError(t, s.Create(ctx, newRecord(t, account, "short-1")))
	assert.Greater(t, mr.TTL(indexKey), 2*time.Hour, "a shorter session does not shrink the index expiry")

	require.NoError(t, s.Create(ctx, newRecord(t, account, "short-2")))
	mr.FastForward(90 * time.Minute)

	members, err := mr.Members(indexKey)
	require.NoError(t, err)
	assert.Len(t, members, 3, "evicted sessions linger in the index until swept")

	n, err := s.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	members, err = mr.Members(indexKey)
	require.NoError(t, err)
	assert.Equal(t, []string{long.ID.String()}, members)

	n, err = s.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionStore_ManySessionsLeaveNoIndexBehind(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)
	account := ulid.Make()
	for i := range 50 {
		require.NoError(t, s.Create(ctx, newRecord(t, account, "many-"+strconv.Itoa(i))))
	}

	mr.FastForward(2 * time.Hour)

	assert.False(t, mr.Exists("test:account:"+account.String()))
	n, err := s.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, mr.Keys())
}

func TestSessionStore_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("rotates token and sliding expiry", func(t *testing.T) {
		s, mr := newStore(t)
		rec := newRecord(t, ulid.Make(), "old")
		require.NoError(t, s.Create(ctx, rec))

		next := "new"
		active := rec.LastActivityAt.Add(time.Minute)
		expires := active.Add(2 * time.Hour)
		require.NoError(t, s.Update(ctx, rec.ID, auth.SessionUpdate{
			Token: &next, LastActivityAt: &active, ExpiresAt: &expires, IfToken: "old",
		}))

		_, err := s.FindByToken(ctx, "old")
		assert.ErrorIs(t, err, auth.ErrNotFound)

		got, err := s.FindByToken(ctx, "new")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.True(t, expires.Equal(got.ExpiresAt))
		assert.Greater(t, mr.TTL("test:token:new"), time.Hour)
		assert.Greater(t, mr.TTL("test:account:"+rec.AccountID.String()), time.Hour)
	})

	t.Run("stale guard loses", func(t *testing.T) {
		s, _ := newStore(t)
		rec := newRecord(t, ulid.Make(), "current")
		require.NoError(t, s.Create(ctx, rec))

		next := "other"
		err := s.Update(ctx, rec.ID, auth.SessionUpdate{Token: &next, IfToken: "stale"})
		assert.ErrorIs(t, err, auth.ErrNotFound)

		_, err = s.FindByToken(ctx, "current")
		assert.NoError(t, err)
	})

	t.Run("missing session", func(t *testing.T) {
		s, _ := newStore(t)
		now := time.Now()
		err := s.Update(ctx, ulid.Make(), auth.SessionUpdate{LastActivityAt: &now})
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("empty update is rejected", func(t *testing.T) {
		s, _ := newStore(t)
		assert.Error(t, s.Update(ctx, ulid.Make(), auth.SessionUpdate{}))
	})
}

func TestSessionStore_ConcurrentRotationHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	rec := newRecord(t, ulid.Make(), "contested")
	require.NoError(t, s.Create(ctx, rec))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := ulid.Make().String()
			if err := s.Update(ctx, rec.ID, auth.SessionUpdate{Token: &next, IfToken: "contested"}); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestSessionStore_Deletes(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)
	account := ulid.Make()
	a := newRecord(t, account, "a")
	b := newRecord(t, account, "b")
	c := newRecord(t, ulid.Make(), "c")
	for _, rec := range []*auth.SessionRecord{a, b, c} {
		require.NoError(t, s.Create(ctx, rec))
	}

	n, err := s.DeleteByToken(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.DeleteByToken(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.DeleteByAccount(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, mr.Exists("test:account:"+account.String()))

	require.NoError(t, s.DeleteByID(ctx, c.ID))
	assert.ErrorIs(t, s.DeleteByID(ctx, c.ID), auth.ErrNotFound)

	_, err = s.FindByToken(ctx, "c")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestSessionStore_Ping(t *testing.T) {
	s, mr := newStore(t)
	require.NoError(t, s.Ping(context.Background()))

	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}
