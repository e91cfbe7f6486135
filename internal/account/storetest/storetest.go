// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

// Package storetest holds the behavior every account.Store must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authflows/authflows/internal/account"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) account.Store

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewAccount builds a valid account for email.
func NewAccount(email string) account.Account {
	return account.Account{
		ID:                     ulid.Make(),
		Email:                  email,
		EncodedPassword:        "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		Enabled:                false,
		PasswordLastChangeDate: base,
		CreatedAt:              base,
		UpdatedAt:              base,
	}
}

// Run exercises newStore against the Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("find missing returns ErrNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Find(ctx, "nobody@x.com")
		require.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("insert then find round trips", func(t *testing.T) {
		s := newStore(t)
		acc := NewAccount("a@x.com")
		require.NoError(t, s.Insert(ctx, acc))

		got, err := s.Find(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, acc.ID, got.ID)
		assert.Equal(t, acc.Email, got.Email)
		assert.Equal(t, acc.EncodedPassword, got.EncodedPassword)
		assert.Equal(t, acc.Enabled, got.Enabled)
		assert.Equal(t, acc.LoginAttemptsCounter, got.LoginAttemptsCounter)
		assert.True(t, acc.PasswordLastChangeDate.Equal(got.PasswordLastChangeDate))
		assert.True(t, acc.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("duplicate insert returns ErrAlreadyExists", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, NewAccount("a@x.com")))

		dup := NewAccount("a@x.com")
		dup.EncodedPassword = "other"
		require.ErrorIs(t, s.Insert(ctx, dup), account.ErrAlreadyExists)

		got, err := s.Find(ctx, "a@x.com")
		require.NoError(t, err)
		assert.NotEqual(t, "other", got.EncodedPassword)
	})

	t.Run("update replaces fields", func(t *testing.T) {
		s := newStore(t)
		prev := NewAccount("a@x.com")
		require.NoError(t, s.Insert(ctx, prev))

		next := prev
		next.Enabled = true
		next.LoginAttemptsCounter = 3
		next.EncodedPassword = "new-encoded"
		next.PasswordLastChangeDate = base.Add(time.Hour)
		next.UpdatedAt = base.Add(time.Hour)
		require.NoError(t, s.Update(ctx, prev, next))

		got, err := s.Find(ctx, "a@x.com")
		require.NoError(t, err)
		assert.True(t, got.Enabled)
		assert.Equal(t, 3, got.LoginAttemptsCounter)
		assert.Equal(t, "new-encoded", got.EncodedPassword)
		assert.True(t, base.Add(time.Hour).Equal(got.PasswordLastChangeDate))
	})

	t.Run("update from a stale read returns ErrConflict", func(t *testing.T) {
		s := newStore(t)
		prev := NewAccount("a@x.com")
		prev.Enabled = true
		require.NoError(t, s.Insert(ctx, prev))

		// Another writer records a failure after prev was read.
		bumped := prev
		bumped.LoginAttemptsCounter = 1
		require.NoError(t, s.Update(ctx, prev, bumped))

		next := prev
		next.EncodedPassword = "new-encoded"
		require.ErrorIs(t, s.Update(ctx, prev, next), account.ErrConflict)

		got, err := s.Find(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, 1, got.LoginAttemptsCounter)
		assert.Equal(t, prev.EncodedPassword, got.EncodedPassword)

		next = got
		next.EncodedPassword = "new-encoded"
		require.NoError(t, s.Update(ctx, got, next))
	})

	t.Run("update missing returns ErrNotFound", func(t *testing.T) {
		s := newStore(t)
		acc := NewAccount("a@x.com")
		require.ErrorIs(t, s.Update(ctx, acc, acc), account.ErrNotFound)
		_, err := s.Find(ctx, "a@x.com")
		require.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("delete removes account", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, NewAccount("a@x.com")))
		require.NoError(t, s.Delete(ctx, "a@x.com"))

		_, err := s.Find(ctx, "a@x.com")
		require.ErrorIs(t, err, account.ErrNotFound)
		require.ErrorIs(t, s.Delete(ctx, "a@x.com"), account.ErrNotFound)
		require.NoError(t, s.Insert(ctx, NewAccount("a@x.com")))
	})

	if _, ok := newStore(t).(account.AttemptsIncrementer); !ok {
		return
	}

	t.Run("increment attempts adds one", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, NewAccount("a@x.com")))
		inc := s.(account.AttemptsIncrementer)

		at := base.Add(time.Minute)
		got, err := inc.IncrementAttempts(ctx, "a@x.com", at)
		require.NoError(t, err)
		assert.Equal(t, 1, got.LoginAttemptsCounter)
		assert.True(t, at.Equal(got.UpdatedAt))

		got, err = inc.IncrementAttempts(ctx, "a@x.com", at.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 2, got.LoginAttemptsCounter)

		stored, err := s.Find(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, 2, stored.LoginAttemptsCounter)
	})

	t.Run("increment attempts on missing returns ErrNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.(account.AttemptsIncrementer).IncrementAttempts(ctx, "nobody@x.com", base)
		require.ErrorIs(t, err, account.ErrNotFound)
	})
}
