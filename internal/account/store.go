// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package account

import (
	"context"
	"time"
)

// Store persists accounts keyed by normalized email.
// Implementations must return errors matching ErrNotFound, ErrAlreadyExists
// and ErrConflict for those conditions; any other error is a storage fault.
type Store interface {
	// Insert stores a new account. Returns ErrAlreadyExists if the email is taken.
	Insert(ctx context.Context, acc Account) error

	// Find returns the account for email, or ErrNotFound.
	Find(ctx context.Context, email string) (Account, error)

	// Update replaces the stored record for next.Email, provided its encoded
	// password, enabled flag and attempts counter still equal prev's. Returns
	// ErrConflict when they differ and ErrNotFound if the record is absent.
	Update(ctx context.Context, prev, next Account) error

	// Delete removes the account for email. Returns ErrNotFound if absent.
	Delete(ctx context.Context, email string) error
}

// AttemptsIncrementer is implemented by stores that can bump the failure
// counter atomically. Service prefers it over Update for login failures.
type AttemptsIncrementer interface {
	// IncrementAttempts adds one to the counter, moves UpdatedAt forward to
	// at and returns the updated account, or ErrNotFound.
	IncrementAttempts(ctx context.Context, email string, at time.Time) (Account, error)
}
