// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package account

import (
	"errors"

	"github.com/samber/oops"
)

// Sentinel errors. Stores return ErrNotFound, ErrAlreadyExists and
// ErrConflict; the Service wraps every sentinel in a coded oops error.
var (
	ErrNotFound           = errors.New("account not found")
	ErrAlreadyExists      = errors.New("account already exists")
	ErrConflict           = errors.New("account changed concurrently")
	ErrAccountLocked      = errors.New("account is locked")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrPolicyViolation    = errors.New("policy violation")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrStorage            = errors.New("account storage failure")
)

// Error codes carried by errors returned from Service.
const (
	CodeNotFound           = "ACCOUNT_NOT_FOUND"
	CodeAlreadyExists      = "ACCOUNT_ALREADY_EXISTS"
	CodeConflict           = "ACCOUNT_CONFLICT"
	CodeLocked             = "ACCOUNT_LOCKED"
	CodeDisabled           = "ACCOUNT_DISABLED"
	CodePolicyViolation    = "ACCOUNT_POLICY_VIOLATION"
	CodeInvalidEmail       = "ACCOUNT_INVALID_EMAIL"
	CodeInvalidPolicy      = "ACCOUNT_INVALID_POLICY"
	CodeInvalidCredentials = "ACCOUNT_INVALID_CREDENTIALS"
	CodeStorageFailed      = "ACCOUNT_STORAGE_FAILED"
)

// StorageError reports a failed Store call. It unwraps to the backend error
// unchanged and matches ErrStorage.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "account storage " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports whether target is ErrStorage.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// IsStorageError reports whether err was caused by the storage backend.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorage)
}

// codeFor maps a domain sentinel to its error code.
func codeFor(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyExists):
		return CodeAlreadyExists
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrAccountLocked):
		return CodeLocked
	case errors.Is(err, ErrAccountDisabled):
		return CodeDisabled
	case errors.Is(err, ErrPolicyViolation):
		return CodePolicyViolation
	case errors.Is(err, ErrInvalidCredentials):
		return CodeInvalidCredentials
	default:
		return CodeStorageFailed
	}
}

// domainError wraps a sentinel with its code and the target email.
func domainError(sentinel error, email, operation string) error {
	return oops.Code(codeFor(sentinel)).
		With("email", email).
		With("operation", operation).
		Wrap(sentinel)
}

// policyError builds a policy violation carrying the violated constraint.
func policyError(code, constraint string, format string, args ...any) error {
	return oops.Code(code).
		With("constraint", constraint).
		Wrapf(ErrPolicyViolation, format, args...)
}

func unknownEventError(kind EventKind) error {
	return oops.Code("ACCOUNT_UNKNOWN_EVENT").
		With("event", int(kind)).
		Errorf("unknown account event")
}
