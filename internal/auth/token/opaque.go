// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package token

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Opaque token sizes.
const (
	ResetTokenBytes  = 32                  // 32 bytes = 64 hex chars
	ResetTokenLength = ResetTokenBytes * 2 // encoded length
	uuidLength       = 36
)

// NewVerificationToken returns a random UUID v4 in canonical form.
func NewVerificationToken() string {
	return uuid.NewString()
}

// IsVerificationToken reports whether s is a canonical v4 UUID with the
// RFC 4122 variant.
func IsVerificationToken(s string) bool {
	if len(s) != uuidLength {
		return false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return id.Version() == 4 && id.Variant() == uuid.RFC4122
}

// NewResetToken returns 32 random bytes encoded as lowercase hex.
func NewResetToken() (string, error) {
	b := make([]byte, ResetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.
			With("operation", "crypto/rand.Read").
			With("requested_bytes", ResetTokenBytes).
			Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// IsResetToken reports whether s has exactly ResetTokenLength characters,
// all of them in [0-9a-f]. Uppercase hex is rejected.
func IsResetToken(s string) bool {
	if len(s) != ResetTokenLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
