// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

// Package auth implements the credential and session-token lifecycle of
// AuthKeep.
//
// # Domain Types
//
// Account and SessionRecord are created through their constructors
// (NewAccount, NewSessionRecord), which validate required fields.
// Repository implementations receive pre-validated values.
//
// # Services
//
// Service coordinates registration, email verification, login, refresh-token
// rotation, logout and password recovery. It is created with NewService,
// which validates its collaborators, and is safe for concurrent use.
//
// Every error returned by a Service method carries an ErrorCode; use Code to
// extract it.
package auth
