// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

// Package authtest provides in-memory implementations of the auth
// collaborators for tests that need real state transitions rather than
// scripted mock calls.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authkeep/authkeep/internal/auth"
)

// AccountStore is a mutex-guarded in-memory auth.AccountRepository.
type AccountStore struct {
	mu       sync.Mutex
	accounts map[ulid.ULID]*auth.Account
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[ulid.ULID]*auth.Account)}
}

func clone(a *auth.Account) *auth.Account {
	cp := *a
	return &cp
}

func (s *AccountStore) find(match func(*auth.Account) bool) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if match(a) {
			return clone(a), nil
		}
	}
	return nil, oops.Wrap(auth.ErrNotFound)
}

func (s *AccountStore) mutate(id ulid.ULID, fn func(*auth.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return oops.With("account_id", id.String()).Wrap(auth.ErrNotFound)
	}
	fn(a)
	return nil
}

func (s *AccountStore) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	email = auth.NormalizeEmail(email)
	return s.find(func(a *auth.Account) bool { return a.Email == email })
}

func (s *AccountStore) FindByUsername(_ context.Context, username string) (*auth.Account, error) {
	return s.find(func(a *auth.Account) bool { return a.Username == username })
}

func (s *AccountStore) FindByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	return s.find(func(a *auth.Account) bool { return a.ID == id })
}

func (s *AccountStore) FindByVerificationToken(_ context.Context, tok string) (*auth.Account, error) {
	return s.find(func(a *auth.Account) bool {
		return a.VerificationToken != nil && *a.VerificationToken == tok
	})
}

func (s *AccountStore) FindByResetToken(_ context.Context, tok string, now time.Time) (*auth.Account, error) {
	return s.find(func(a *auth.Account) bool {
		return a.ResetToken != nil && *a.ResetToken == tok &&
			!a.ResetTokenUsed && !a.ResetExpiredAt(now) && a.IsActive
	})
}

func (s *AccountStore) FindByResetTokenAny(_ context.Context, tok string) (*auth.Account, error) {
	return s.find(func(a *auth.Account) bool { return a.ResetToken != nil && *a.ResetToken == tok })
}

func (s *AccountStore) Create(_ context.Context, account *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == account.Email {
			return oops.With("email", account.Email).Wrap(auth.ErrDuplicateEmail)
		}
		if a.Username == account.Username {
			return oops.With("username", account.Username).Wrap(auth.ErrDuplicateUsername)
		}
	}
	s.accounts[account.ID] = clone(account)
	return nil
}

// Update writes the same columns as the Postgres repository. Token pairs are
// left untouched.
func (s *AccountStore) Update(_ context.Context, account *auth.Account) error {
	return s.mutate(account.ID, func(a *auth.Account) {
		a.Email = account.Email
		a.Username = account.Username
		a.PasswordHash = account.PasswordHash
		a.Role = account.Role
		a.IsVerified = account.IsVerified
		a.IsActive = account.IsActive
		a.LastLoginAt = account.LastLoginAt
		a.LastLoginIP = account.LastLoginIP
		a.UpdatedAt = account.UpdatedAt
	})
}

func (s *AccountStore) SetVerified(_ context.Context, id ulid.ULID) error {
	return s.mutate(id, func(a *auth.Account) {
		a.IsVerified = true
		a.VerificationToken = nil
		a.VerificationExpiresAt = nil
	})
}

func (s *AccountStore) SetVerificationToken(_ context.Context, id ulid.ULID, tok string, expiresAt time.Time) error {
	return s.mutate(id, func(a *auth.Account) {
		a.VerificationToken = &tok
		a.VerificationExpiresAt = &expiresAt
	})
}

func (s *AccountStore) SetResetToken(_ context.Context, id ulid.ULID, tok string, expiresAt time.Time) error {
	return s.mutate(id, func(a *auth.Account) {
		a.ResetToken = &tok
		a.ResetExpiresAt = &expiresAt
		a.ResetTokenUsed = false
	})
}

func (s *AccountStore) SetNewPassword(_ context.Context, tok, passwordHash string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ResetToken != nil && *a.ResetToken == tok && !a.ResetTokenUsed && !a.ResetExpiredAt(now) && a.IsActive {
			a.PasswordHash = passwordHash
			a.ResetTokenUsed = true
			a.UpdatedAt = now
			return 1, nil
		}
	}
	return 0, nil
}

func (s *AccountStore) UpgradePasswordHash(_ context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.PasswordHash != oldHash {
		return 0, nil
	}
	a.PasswordHash = newHash
	a.UpdatedAt = now
	return 1, nil
}

func (s *AccountStore) UpdateLoginTracking(_ context.Context, id ulid.ULID, at time.Time, ip string) error {
	return s.mutate(id, func(a *auth.Account) {
		a.LastLoginAt = &at
		if ip != "" {
			a.LastLoginIP = &ip
		}
	})
}

func (s *AccountStore) CleanExpiredVerificationTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range s.accounts {
		if !a.IsVerified && a.VerificationExpiresAt != nil && now.After(*a.VerificationExpiresAt) {
			a.VerificationToken = nil
			a.VerificationExpiresAt = nil
			n++
		}
	}
	return n, nil
}

// Put stores a copy of account directly, bypassing uniqueness checks.
func (s *AccountStore) Put(account *auth.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = clone(account)
}

// Get returns a copy of the stored account, or nil.
func (s *AccountStore) Get(id ulid.ULID) *auth.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		return clone(a)
	}
	return nil
}

// SessionStore is a mutex-guarded in-memory auth.SessionStore.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[ulid.ULID]*auth.SessionRecord
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[ulid.ULID]*auth.SessionRecord)}
}

func (s *SessionStore) Create(_ context.Context, session *auth.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *SessionStore) FindByToken(_ context.Context, tok string) (*auth.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.sessions {
		if r.Token == tok {
			cp := *r
			return &cp, nil
		}
	}
	return nil, oops.Wrap(auth.ErrNotFound)
}

func (s *SessionStore) Update(_ context.Context, id ulid.ULID, upd auth.SessionUpdate) error {
	if err := upd.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.sessions[id]
	if !ok || (upd.IfToken != "" && r.Token != upd.IfToken) {
		return oops.With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if upd.Token != nil {
		r.Token = *upd.Token
	}
	if upd.LastActivityAt != nil {
		r.LastActivityAt = *upd.LastActivityAt
	}
	if upd.ExpiresAt != nil {
		r.ExpiresAt = *upd.ExpiresAt
	}
	return nil
}

func (s *SessionStore) DeleteByID(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return oops.With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	delete(s.sessions, id)
	return nil
}

func (s *SessionStore) DeleteByToken(_ context.Context, tok string) (int64, error) {
	return s.deleteWhere(func(r *auth.SessionRecord) bool { return r.Token == tok }), nil
}

func (s *SessionStore) DeleteByAccount(_ context.Context, accountID ulid.ULID) (int64, error) {
	return s.deleteWhere(func(r *auth.SessionRecord) bool { return r.AccountID == accountID }), nil
}

func (s *SessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return s.deleteWhere(func(r *auth.SessionRecord) bool { return r.IsExpiredAt(now) }), nil
}

func (s *SessionStore) deleteWhere(match func(*auth.SessionRecord) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.sessions {
		if match(r) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ForAccount returns copies of every session of an account.
func (s *SessionStore) ForAccount(accountID ulid.ULID) []auth.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.SessionRecord
	for _, r := range s.sessions {
		if r.AccountID == accountID {
			out = append(out, *r)
		}
	}
	return out
}

var (
	_ auth.AccountRepository = (*AccountStore)(nil)
	_ auth.SessionStore      = (*SessionStore)(nil)
)
