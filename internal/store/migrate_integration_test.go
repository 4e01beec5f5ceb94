// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/authkeep/authkeep/internal/store"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

var _ = Describe("Migrator", Ordered, func() {
	var migrator *store.Migrator

	BeforeAll(func() {
		var err error
		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { Expect(migrator.Close()).To(Succeed()) })
		Expect(migrator.Down()).To(Succeed())
	})

	It("starts at version zero with everything pending", func() {
		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(BeZero())
		Expect(status.Dirty).To(BeFalse())
		Expect(status.Pending).To(Equal([]uint{1, 2}))
		Expect(status.Name).To(BeEmpty())
	})

	It("applies every migration", func() {
		Expect(migrator.Up()).To(Succeed())

		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(Equal(uint(2)))
		Expect(status.Name).To(Equal("000002_create_sessions"))
		Expect(status.Pending).To(BeEmpty())
	})

	It("treats a repeated up as a no-op", func() {
		Expect(migrator.Up()).To(Succeed())
	})

	It("steps back and forward one migration", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))

		applied, err := migrator.AppliedMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(Equal([]uint{1}))

		Expect(migrator.Steps(1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
	})

	It("rolls everything back", func() {
		Expect(migrator.Down()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())
	})

	It("forces a version without running it", func() {
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Force(1)).To(Succeed())

		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(Equal(uint(1)))
		Expect(status.Dirty).To(BeFalse())
		Expect(status.Pending).To(Equal([]uint{2}))

		Expect(migrator.Force(2)).To(Succeed())
	})
})

var _ = Describe("Schema", Ordered, func() {
	var (
		ctx  context.Context
		pool *pgxpool.Pool
	)

	BeforeAll(func() {
		ctx = context.Background()
		m, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Up()).To(Succeed())
		Expect(m.Close()).To(Succeed())

		pool, err = store.OpenPool(ctx, store.PoolConfig{URL: connStr, MaxConns: 2}, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(pool.Close)
	})

	BeforeEach(func() {
		_, err := pool.Exec(ctx, `TRUNCATE accounts CASCADE`)
		Expect(err).NotTo(HaveOccurred())
	})

	insertAccount := func(id, email, username string) error {
		_, err := pool.Exec(ctx,
			`INSERT INTO accounts (id, email, username, password_hash) VALUES ($1, $2, $3, 'hash')`,
			id, email, username)
		return err
	}

	It("rejects duplicate emails and usernames", func() {
		Expect(insertAccount("a1", "ada@example.com", "ada")).To(Succeed())

		err := insertAccount("a2", "ada@example.com", "ada2")
		Expect(pgCode(err)).To(Equal(pgerrcode.UniqueViolation))

		err = insertAccount("a3", "ada3@example.com", "ada")
		Expect(pgCode(err)).To(Equal(pgerrcode.UniqueViolation))
	})

	It("requires lower-case emails", func() {
		err := insertAccount("a1", "Ada@Example.com", "ada")
		Expect(pgCode(err)).To(Equal(pgerrcode.CheckViolation))
	})

	It("keeps token pairs together", func() {
		Expect(insertAccount("a1", "ada@example.com", "ada")).To(Succeed())

		_, err := pool.Exec(ctx, `UPDATE accounts SET verification_token = 'tok' WHERE id = 'a1'`)
		Expect(pgCode(err)).To(Equal(pgerrcode.CheckViolation))

		_, err = pool.Exec(ctx, `UPDATE accounts SET reset_expires_at = NOW() WHERE id = 'a1'`)
		Expect(pgCode(err)).To(Equal(pgerrcode.CheckViolation))
	})

	It("rejects unknown roles", func() {
		_, err := pool.Exec(ctx,
			`INSERT INTO accounts (id, email, username, password_hash, role) VALUES ('a1', 'ada@example.com', 'ada', 'hash', 'root')`)
		Expect(pgCode(err)).To(Equal(pgerrcode.CheckViolation))
	})

	It("deletes sessions with their account", func() {
		Expect(insertAccount("a1", "ada@example.com", "ada")).To(Succeed())
		now := time.Now()
		_, err := pool.Exec(ctx,
			`INSERT INTO sessions (id, account_id, token, last_activity_at, expires_at) VALUES ('s1', 'a1', 'tok', $1, $2)`,
			now, now.Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `DELETE FROM accounts WHERE id = 'a1'`)
		Expect(err).NotTo(HaveOccurred())

		var n int
		Expect(pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n)).To(Succeed())
		Expect(n).To(BeZero())
	})

	It("rejects sessions that expire before their last activity", func() {
		Expect(insertAccount("a1", "ada@example.com", "ada")).To(Succeed())
		now := time.Now()
		_, err := pool.Exec(ctx,
			`INSERT INTO sessions (id, account_id, token, last_activity_at, expires_at) VALUES ('s1', 'a1', 'tok', $1, $2)`,
			now, now.Add(-time.Minute))
		Expect(pgCode(err)).To(Equal(pgerrcode.CheckViolation))
	})
})
