// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package auth_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/authkeep/authkeep/internal/auth"
	"github.com/authkeep/authkeep/internal/auth/authtest"
	"github.com/authkeep/authkeep/internal/auth/mocks"
	"github.com/authkeep/authkeep/internal/auth/token"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

var testLifetimes = auth.Lifetimes{
	Verification: 24 * time.Hour,
	Reset:        time.Hour,
	Refresh:      7 * 24 * time.Hour,
}

// mockDeps bundles the mocked collaborators of a Service.
type mockDeps struct {
	accounts *mocks.MockAccountRepository
	sessions *mocks.MockSessionStore
	hasher   *mocks.MockPasswordHasher
	tokens   *mocks.MockTokenCodec
	mailer   *mocks.MockMailer
}

func newMockService(t *testing.T, opts ...auth.Option) (*auth.Service, *mockDeps) {
	t.Helper()
	d := &mockDeps{
		accounts: mocks.NewMockAccountRepository(t),
		sessions: mocks.NewMockSessionStore(t),
		hasher:   mocks.NewMockPasswordHasher(t),
		tokens:   mocks.NewMockTokenCodec(t),
		mailer:   mocks.NewMockMailer(t),
	}
	opts = append([]auth.Option{auth.WithClock(func() time.Time { return fixedNow })}, opts...)
	svc, err := auth.NewService(auth.Dependencies{
		Accounts: d.accounts,
		Sessions: d.sessions,
		Hasher:   d.hasher,
		Tokens:   d.tokens,
		Mailer:   d.mailer,
	}, testLifetimes, opts...)
	require.NoError(t, err)
	return svc, d
}

// memoryEnv wires a Service to in-memory stores, a real JWT codec and a
// cheap argon2id hasher, with a movable clock.
type memoryEnv struct {
	svc      *auth.Service
	accounts *authtest.AccountStore
	sessions *authtest.SessionStore
	mailer   *authtest.Mailer
	codec    *token.JWTCodec
	hasher   *auth.Argon2idHasher

	mu  sync.Mutex
	now time.Time
}

func (e *memoryEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *memoryEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

var fastParams = auth.Argon2Params{Time: 1, Memory: 64, Threads: 1}

func newMemoryEnv(t *testing.T, opts ...auth.Option) *memoryEnv {
	t.Helper()
	e := &memoryEnv{
		accounts: authtest.NewAccountStore(),
		sessions: authtest.NewSessionStore(),
		mailer:   &authtest.Mailer{},
		hasher:   auth.NewArgon2idHasherWithParams(fastParams),
		now:      fixedNow,
	}
	codec, err := token.NewJWTCodec(token.Config{
		AccessSecret:  []byte("test-access-secret-0123456789abcd"),
		RefreshSecret: []byte("test-refresh-secret-0123456789abc"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    testLifetimes.Refresh,
		Issuer:        "authkeep-test",
		Now:           e.clock,
	})
	require.NoError(t, err)
	e.codec = codec

	opts = append([]auth.Option{
		auth.WithClock(e.clock),
		auth.WithLogger(slog.New(slog.DiscardHandler)),
	}, opts...)
	svc, err := auth.NewService(auth.Dependencies{
		Accounts: e.accounts,
		Sessions: e.sessions,
		Hasher:   e.hasher,
		Tokens:   e.codec,
		Mailer:   e.mailer,
	}, testLifetimes, opts...)
	require.NoError(t, err)
	e.svc = svc
	return e
}

// registerVerified registers an account and verifies it through the mailed
// token.
func (e *memoryEnv) registerVerified(t *testing.T, email, username, password string) *auth.Account {
	t.Helper()
	ctx := context.Background()
	acct, err := e.svc.Register(ctx, email, username, password, auth.RoleUser)
	require.NoError(t, err)
	msg, ok := e.mailer.LastVerification()
	require.True(t, ok)
	_, err = e.svc.VerifyEmail(ctx, msg.Token)
	require.NoError(t, err)
	return acct
}

// errOf drops the result of a call that returns a value and an error.
func errOf[T any](_ T, err error) error {
	return err
}

func testAccount() *auth.Account {
	expires := fixedNow.Add(time.Hour)
	verification := "3b241101-e2bb-4255-8caf-4136c566a962"
	return &auth.Account{
		ID:                    ulid.Make(),
		Email:                 "ada@example.com",
		Username:              "ada",
		PasswordHash:          "stored-hash",
		Role:                  auth.RoleUser,
		IsVerified:            true,
		IsActive:              true,
		VerificationToken:     &verification,
		VerificationExpiresAt: &expires,
		CreatedAt:             fixedNow.Add(-48 * time.Hour),
		UpdatedAt:             fixedNow.Add(-48 * time.Hour),
	}
}

func ptr[T any](v T) *T { return &v }

// outcomeRecorder captures RecordAuthOutcome calls.
type outcomeRecorder struct {
	mu      sync.Mutex
	entries [][2]string
}

func (r *outcomeRecorder) RecordAuthOutcome(operation, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, [2]string{operation, code})
}

func (r *outcomeRecorder) last() [2]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return [2]string{}
	}
	return r.entries[len(r.entries)-1]
}
