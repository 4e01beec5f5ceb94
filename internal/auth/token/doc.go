// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

// Package token implements the three token families used by the account
// lifecycle:
//   - verification tokens: random UUID v4 strings mailed at registration
//   - reset tokens: 64 lowercase hex characters (32 random bytes)
//   - access/refresh pairs: HMAC-signed JWTs carrying account claims
//
// The Is* helpers are cheap format checks meant to run before any store
// lookup, so malformed input never reaches a repository.
package token
