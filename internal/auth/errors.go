// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Sentinel errors returned by repository and store implementations.
// They never carry an oops code: oops reports the deepest code in a chain,
// so codes are attached only by the Service.
var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateUsername = errors.New("username already taken")
)

// ErrorCode is the semantic failure kind attached to every error returned by
// Service operations.
type ErrorCode string

// Error codes. The set is closed; callers switch on these.
const (
	CodeInvalidCredentials ErrorCode = "AUTH_INVALID_CREDENTIALS"
	CodeForbidden          ErrorCode = "AUTH_FORBIDDEN"
	CodeEmailNotVerified   ErrorCode = "EMAIL_NOT_VERIFIED"
	CodeTokenInvalid       ErrorCode = "AUTH_TOKEN_INVALID"
	CodeTokenExpired       ErrorCode = "AUTH_TOKEN_EXPIRED"
	CodeAlreadyVerified    ErrorCode = "AUTH_USER_ALREADY_VERIFIED"
	CodeUserNotFound       ErrorCode = "AUTH_USER_NOT_FOUND"
	CodeEmailExists        ErrorCode = "AUTH_EMAIL_ALREADY_EXISTS"
	CodeUserExists         ErrorCode = "AUTH_USER_ALREADY_EXISTS"
	CodeInvalidRefresh     ErrorCode = "INVALID_REFRESH_TOKEN"
	CodeResetMalformed     ErrorCode = "AUTH_RESET_TOKEN_MALFORMED"
	CodeInvalidReset       ErrorCode = "INVALID_RESET_TOKEN"
	CodeTokenAlreadyUsed   ErrorCode = "AUTH_TOKEN_ALREADY_USED"
	CodeDatabase           ErrorCode = "DATABASE_ERROR"
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	CodeValidation         ErrorCode = "VALIDATION_ERROR"
)

// Code extracts the ErrorCode from err. It returns "" for nil errors and for
// errors that were not produced by the Service.
func Code(err error) ErrorCode {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code := oopsErr.Code()
	if code == nil || code == "" {
		return ""
	}
	return ErrorCode(fmt.Sprint(code))
}

func fail(code ErrorCode) oops.OopsErrorBuilder {
	return oops.Code(string(code))
}

func dbError(operation string, err error) error {
	return fail(CodeDatabase).With("operation", operation).Wrap(err)
}
