// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

//go:build integration

package auth_test

import (
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/redis/go-redis/v9"

	"github.com/authkeep/authkeep/internal/auth"
	"github.com/authkeep/authkeep/internal/auth/authtest"
	"github.com/authkeep/authkeep/internal/auth/postgres"
	"github.com/authkeep/authkeep/internal/auth/redisstore"
	"github.com/authkeep/authkeep/internal/auth/token"
)

type fixture struct {
	svc      *auth.Service
	accounts *postgres.AccountRepository
	mailer   *authtest.Mailer
}

func newFixture(sessions auth.SessionStore) *fixture {
	codec, err := token.NewJWTCodec(token.Config{
		AccessSecret:  []byte("integration-access-secret-0123456789"),
		RefreshSecret: []byte("integration-refresh-secret-012345678"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		Issuer:        "authkeep-test",
	})
	Expect(err).NotTo(HaveOccurred())

	f := &fixture{
		accounts: postgres.NewAccountRepository(env.pool),
		mailer:   &authtest.Mailer{},
	}
	f.svc, err = auth.NewService(auth.Dependencies{
		Accounts: f.accounts,
		Sessions: sessions,
		Hasher:   auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, Memory: 64, Threads: 1}),
		Tokens:   codec,
		Mailer:   f.mailer,
	}, auth.Lifetimes{})
	Expect(err).NotTo(HaveOccurred())
	return f
}

func (f *fixture) registerVerified(email, username, password string) *auth.Account {
	acct, err := f.svc.Register(env.ctx, email, username, password, auth.RoleUser)
	Expect(err).NotTo(HaveOccurred())
	msg, ok := f.mailer.LastVerification()
	Expect(ok).To(BeTrue())
	verified, err := f.svc.VerifyEmail(env.ctx, msg.Token)
	Expect(err).NotTo(HaveOccurred())
	Expect(verified.IsVerified).To(BeTrue())
	return acct
}

func code(err error) auth.ErrorCode {
	return auth.Code(err)
}

var backends = []struct {
	name string
	open func() auth.SessionStore
}{
	{"postgres", func() auth.SessionStore {
		return postgres.NewSessionRepository(env.pool)
	}},
	{"redis", func() auth.SessionStore {
		mr := miniredis.NewMiniRedis()
		Expect(mr.Start()).To(Succeed())
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		DeferCleanup(func() {
			_ = rdb.Close()
			mr.Close()
		})
		return redisstore.New(rdb, "authkeep-it")
	}},
}

var _ = Describe("Account lifecycle", func() {
	for _, backend := range backends {
		Context("with "+backend.name+" sessions", func() {
			var f *fixture

			BeforeEach(func() {
				env.truncate()
				f = newFixture(backend.open())
			})

			It("registers, verifies, logs in, rotates and logs out", func() {
				acct := f.registerVerified("Lin@Example.com", "lin", "first-password")

				res, err := f.svc.Login(env.ctx, "lin@example.com", "first-password", "203.0.113.9")
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Account.ID).To(Equal(acct.ID))

				claims, err := f.svc.Authenticate(env.ctx, res.Tokens.AccessToken)
				Expect(err).NotTo(HaveOccurred())
				Expect(claims.AccountID).To(Equal(acct.ID.String()))

				rotated, err := f.svc.RefreshToken(env.ctx, res.Tokens.RefreshToken)
				Expect(err).NotTo(HaveOccurred())
				Expect(rotated.RefreshToken).NotTo(Equal(res.Tokens.RefreshToken))

				_, err = f.svc.RefreshToken(env.ctx, res.Tokens.RefreshToken)
				Expect(code(err)).To(Equal(auth.CodeInvalidRefresh))

				Expect(f.svc.Logout(env.ctx, rotated.RefreshToken)).To(Succeed())
				_, err = f.svc.RefreshToken(env.ctx, rotated.RefreshToken)
				Expect(code(err)).To(Equal(auth.CodeInvalidRefresh))

				stored, err := f.accounts.FindByID(env.ctx, acct.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(stored.LastLoginIP).NotTo(BeNil())
				Expect(*stored.LastLoginIP).To(Equal("203.0.113.9"))
			})

			It("rejects login before verification", func() {
				_, err := f.svc.Register(env.ctx, "kim@example.com", "kim", "pw", auth.RoleUser)
				Expect(err).NotTo(HaveOccurred())

				_, err = f.svc.Login(env.ctx, "kim@example.com", "pw", "")
				Expect(code(err)).To(Equal(auth.CodeEmailNotVerified))
			})

			It("rejects duplicate registrations", func() {
				f.registerVerified("sam@example.com", "sam", "pw")

				_, err := f.svc.Register(env.ctx, "SAM@example.com", "sam2", "pw", auth.RoleUser)
				Expect(code(err)).To(Equal(auth.CodeEmailExists))

				_, err = f.svc.Register(env.ctx, "sam2@example.com", "sam", "pw", auth.RoleUser)
				Expect(code(err)).To(Equal(auth.CodeUserExists))
			})

			It("resets a password once and revokes every session", func() {
				f.registerVerified("ray@example.com", "ray", "old-password")
				first, err := f.svc.Login(env.ctx, "ray@example.com", "old-password", "")
				Expect(err).NotTo(HaveOccurred())
				second, err := f.svc.Login(env.ctx, "ray@example.com", "old-password", "")
				Expect(err).NotTo(HaveOccurred())

				Expect(f.svc.ForgotPassword(env.ctx, "ray@example.com")).To(Succeed())
				msg, ok := f.mailer.LastReset()
				Expect(ok).To(BeTrue())

				status, err := f.svc.ValidateResetToken(env.ctx, msg.Token)
				Expect(err).NotTo(HaveOccurred())
				Expect(status.IsValid).To(BeTrue())

				Expect(f.svc.ResetPassword(env.ctx, msg.Token, "new-password")).To(Succeed())

				err = f.svc.ResetPassword(env.ctx, msg.Token, "another-password")
				Expect(code(err)).To(Equal(auth.CodeTokenAlreadyUsed))

				for _, pair := range []string{first.Tokens.RefreshToken, second.Tokens.RefreshToken} {
					_, err = f.svc.RefreshToken(env.ctx, pair)
					Expect(code(err)).To(Equal(auth.CodeInvalidRefresh))
				}

				_, err = f.svc.Login(env.ctx, "ray@example.com", "old-password", "")
				Expect(code(err)).To(Equal(auth.CodeForbidden))
				_, err = f.svc.Login(env.ctx, "ray@example.com", "new-password", "")
				Expect(err).NotTo(HaveOccurred())
			})

			It("lets exactly one concurrent refresh win", func() {
				f.registerVerified("eve@example.com", "eve", "pw")
				res, err := f.svc.Login(env.ctx, "eve@example.com", "pw", "")
				Expect(err).NotTo(HaveOccurred())

				const racers = 8
				var (
					wg   sync.WaitGroup
					mu   sync.Mutex
					wins int
				)
				for range racers {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						if _, err := f.svc.RefreshToken(env.ctx, res.Tokens.RefreshToken); err == nil {
							mu.Lock()
							wins++
							mu.Unlock()
						}
					}()
				}
				wg.Wait()
				Expect(wins).To(Equal(1))
			})
		})
	}
})
