// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package account

import (
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// MaxEmailLength is the longest email address accepted (RFC 5321 path limit).
const MaxEmailLength = 254

// emailRegex matches a local part, an @ and a dotted domain, without whitespace.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Account is the stored state of one authentication account.
// Values are treated as immutable; Transition returns modified copies.
type Account struct {
	ID                     ulid.ULID
	Email                  string
	EncodedPassword        string
	Enabled                bool
	LoginAttemptsCounter   int
	PasswordLastChangeDate time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// SameRevision reports whether a and b agree on the fields a conditional
// Store.Update compares: encoded password, enabled flag and attempts counter.
func (a Account) SameRevision(b Account) bool {
	return a.EncodedPassword == b.EncodedPassword &&
		a.Enabled == b.Enabled &&
		a.LoginAttemptsCounter == b.LoginAttemptsCounter
}

// IsLocked reports whether the account has reached the policy's attempt limit.
func (a Account) IsLocked(policy Policy) bool {
	return IsLocked(a.LoginAttemptsCounter, policy)
}

// LockState derives the lock state under policy.
func (a Account) LockState(policy Policy) LockState {
	if a.IsLocked(policy) {
		return Locked
	}
	return Unlocked
}

// IsLocked reports whether attempts has reached policy.MaxPasswordEntryAttempts.
func IsLocked(attempts int, policy Policy) bool {
	return attempts >= policy.MaxPasswordEntryAttempts
}

// LockState is the derived lock status of an account.
type LockState int

// Lock states.
const (
	Unlocked LockState = iota
	Locked
)

func (s LockState) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// NormalizeEmail returns the canonical storage key for an email address.
// Comparison is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the shape of an already normalized email address.
func ValidateEmail(email string) error {
	if email == "" {
		return policyError(CodeInvalidEmail, "email", "email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return policyError(CodeInvalidEmail, "email", "email must be at most %d characters", MaxEmailLength)
	}
	if !emailRegex.MatchString(email) {
		return policyError(CodeInvalidEmail, "email", "email %q is not a valid address", email)
	}
	return nil
}
