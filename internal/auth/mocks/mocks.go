// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

// Package mocks provides testify mocks for the auth collaborators.
// Each NewMock* constructor registers AssertExpectations on test cleanup.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/authkeep/authkeep/internal/auth"
	"github.com/authkeep/authkeep/internal/auth/token"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockAccountRepository mocks auth.AccountRepository.
type MockAccountRepository struct {
	mock.Mock
}

// NewMockAccountRepository creates a MockAccountRepository bound to t.
func NewMockAccountRepository(t testingT) *MockAccountRepository {
	m := &MockAccountRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func accountResult(args mock.Arguments) (*auth.Account, error) {
	if a, ok := args.Get(0).(*auth.Account); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccountRepository) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	return accountResult(m.Called(ctx, email))
}

func (m *MockAccountRepository) FindByUsername(ctx context.Context, username string) (*auth.Account, error) {
	return accountResult(m.Called(ctx, username))
}

func (m *MockAccountRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	return accountResult(m.Called(ctx, id))
}

func (m *MockAccountRepository) FindByVerificationToken(ctx context.Context, tok string) (*auth.Account, error) {
	return accountResult(m.Called(ctx, tok))
}

func (m *MockAccountRepository) FindByResetToken(ctx context.Context, tok string, now time.Time) (*auth.Account, error) {
	return accountResult(m.Called(ctx, tok, now))
}

func (m *MockAccountRepository) FindByResetTokenAny(ctx context.Context, tok string) (*auth.Account, error) {
	return accountResult(m.Called(ctx, tok))
}

func (m *MockAccountRepository) Create(ctx context.Context, account *auth.Account) error {
	return m.Called(ctx, account).Error(0)
}

func (m *MockAccountRepository) Update(ctx context.Context, account *auth.Account) error {
	return m.Called(ctx, account).Error(0)
}

func (m *MockAccountRepository) SetVerified(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockAccountRepository) SetVerificationToken(ctx context.Context, id ulid.ULID, tok string, expiresAt time.Time) error {
	return m.Called(ctx, id, tok, expiresAt).Error(0)
}

func (m *MockAccountRepository) SetResetToken(ctx context.Context, id ulid.ULID, tok string, expiresAt time.Time) error {
	return m.Called(ctx, id, tok, expiresAt).Error(0)
}

func (m *MockAccountRepository) SetNewPassword(ctx context.Context, tok, passwordHash string, now time.Time) (int64, error) {
	args := m.Called(ctx, tok, passwordHash, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAccountRepository) UpgradePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) (int64, error) {
	args := m.Called(ctx, id, oldHash, newHash, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAccountRepository) UpdateLoginTracking(ctx context.Context, id ulid.ULID, at time.Time, ip string) error {
	return m.Called(ctx, id, at, ip).Error(0)
}

func (m *MockAccountRepository) CleanExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockSessionStore mocks auth.SessionStore.
type MockSessionStore struct {
	mock.Mock
}

// NewMockSessionStore creates a MockSessionStore bound to t.
func NewMockSessionStore(t testingT) *MockSessionStore {
	m := &MockSessionStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSessionStore) Create(ctx context.Context, session *auth.SessionRecord) error {
	return m.Called(ctx, session).Error(0)
}

func (m *MockSessionStore) FindByToken(ctx context.Context, tok string) (*auth.SessionRecord, error) {
	args := m.Called(ctx, tok)
	if s, ok := args.Get(0).(*auth.SessionRecord); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionStore) Update(ctx context.Context, id ulid.ULID, upd auth.SessionUpdate) error {
	return m.Called(ctx, id, upd).Error(0)
}

func (m *MockSessionStore) DeleteByID(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSessionStore) DeleteByToken(ctx context.Context, tok string) (int64, error) {
	args := m.Called(ctx, tok)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSessionStore) DeleteByAccount(ctx context.Context, accountID ulid.ULID) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockPasswordHasher mocks auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a MockPasswordHasher bound to t.
func NewMockPasswordHasher(t testingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// MockTokenCodec mocks auth.TokenCodec.
type MockTokenCodec struct {
	mock.Mock
}

// NewMockTokenCodec creates a MockTokenCodec bound to t.
func NewMockTokenCodec(t testingT) *MockTokenCodec {
	m := &MockTokenCodec{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockTokenCodec) IssuePair(sub token.Subject) (*token.Pair, error) {
	args := m.Called(sub)
	if p, ok := args.Get(0).(*token.Pair); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTokenCodec) ParseAccess(raw string) (*token.Claims, error) {
	return claimsResult(m.Called(raw))
}

func (m *MockTokenCodec) ParseRefresh(raw string) (*token.Claims, error) {
	return claimsResult(m.Called(raw))
}

func claimsResult(args mock.Arguments) (*token.Claims, error) {
	if c, ok := args.Get(0).(*token.Claims); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockMailer mocks auth.Mailer.
type MockMailer struct {
	mock.Mock
}

// NewMockMailer creates a MockMailer bound to t.
func NewMockMailer(t testingT) *MockMailer {
	m := &MockMailer{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockMailer) SendVerification(ctx context.Context, msg auth.VerificationMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockMailer) SendPasswordReset(ctx context.Context, msg auth.PasswordResetMessage) error {
	return m.Called(ctx, msg).Error(0)
}

var (
	_ auth.AccountRepository = (*MockAccountRepository)(nil)
	_ auth.SessionStore      = (*MockSessionStore)(nil)
	_ auth.PasswordHasher    = (*MockPasswordHasher)(nil)
	_ auth.TokenCodec        = (*MockTokenCodec)(nil)
	_ auth.Mailer            = (*MockMailer)(nil)
)
