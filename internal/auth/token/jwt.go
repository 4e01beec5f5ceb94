// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

// Token kinds carried in the "typ" claim.
const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Sentinel errors returned by the parse methods.
var (
	ErrMalformed = errors.New("token is malformed or has an invalid signature")
	ErrExpired   = errors.New("token has expired")
	ErrWrongKind = errors.New("token has the wrong type")
)

// Subject identifies the account a pair is issued for.
type Subject struct {
	AccountID string
	Email     string
	Role      string
}

// Claims is the JWT payload for both token kinds.
type Claims struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Kind      Kind   `json:"typ"`
	jwt.RegisteredClaims
}

// Pair is an access token plus the refresh token that can replace it.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Config holds signing keys and lifetimes.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string

	// Now overrides the clock used for iat/exp and validation. Nil means time.Now.
	Now func() time.Time
}

// JWTCodec issues and verifies HS256 token pairs.
type JWTCodec struct {
	cfg Config
	now func() time.Time
}

// NewJWTCodec validates cfg and returns a codec.
func NewJWTCodec(cfg Config) (*JWTCodec, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, oops.Errorf("access token secret is required")
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, oops.Errorf("refresh token secret is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, oops.
			With("access_ttl", cfg.AccessTTL.String()).
			With("refresh_ttl", cfg.RefreshTTL.String()).
			Errorf("token lifetimes must be positive")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &JWTCodec{cfg: cfg, now: now}, nil
}

// IssuePair signs a fresh access and refresh token for sub. Each token gets
// its own ULID jti so two pairs issued in the same second never collide.
func (c *JWTCodec) IssuePair(sub Subject) (*Pair, error) {
	now := c.now()

	access, accessExp, err := c.sign(sub, KindAccess, c.cfg.AccessSecret, c.cfg.AccessTTL, now)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := c.sign(sub, KindRefresh, c.cfg.RefreshSecret, c.cfg.RefreshTTL, now)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ParseAccess verifies an access token and returns its claims.
func (c *JWTCodec) ParseAccess(raw string) (*Claims, error) {
	return c.parse(raw, KindAccess, c.cfg.AccessSecret)
}

// ParseRefresh verifies a refresh token and returns its claims.
func (c *JWTCodec) ParseRefresh(raw string) (*Claims, error) {
	return c.parse(raw, KindRefresh, c.cfg.RefreshSecret)
}

func (c *JWTCodec) sign(sub Subject, kind Kind, secret []byte, ttl time.Duration, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	claims := Claims{
		AccountID: sub.AccountID,
		Email:     sub.Email,
		Role:      sub.Role,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   sub.AccountID,
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, oops.
			With("operation", "sign token").
			With("kind", string(kind)).
			Wrap(err)
	}
	return signed, expiresAt, nil
}

func (c *JWTCodec) parse(raw string, kind Kind, secret []byte) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.cfg.Issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.With("kind", string(kind)).Wrap(ErrExpired)
		}
		return nil, oops.With("kind", string(kind)).Wrapf(ErrMalformed, "%v", err)
	}
	if claims.Kind != kind {
		return nil, oops.
			With("expected", string(kind)).
			With("actual", string(claims.Kind)).
			Wrap(ErrWrongKind)
	}
	if claims.AccountID == "" {
		return nil, oops.With("kind", string(kind)).Wrapf(ErrMalformed, "missing account id")
	}
	return claims, nil
}
