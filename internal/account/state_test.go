// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package account_test

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authflows/authflows/internal/account"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func existing(mod func(*account.Account)) *account.Account {
	acc := account.Account{
		ID:                     ulid.Make(),
		Email:                  "a@x.com",
		EncodedPassword:        "enc-1",
		Enabled:                true,
		PasswordLastChangeDate: t0,
		CreatedAt:              t0,
		UpdatedAt:              t0,
	}
	if mod != nil {
		mod(&acc)
	}
	return &acc
}

func TestTransition_Create(t *testing.T) {
	policy := account.DefaultPolicy()
	id := ulid.Make()

	t.Run("creates disabled account with zero counter", func(t *testing.T) {
		next, outcome, err := account.Transition(nil, account.Create(id, "a@x.com", "enc", t0), policy)
		require.NoError(t, err)
		assert.Equal(t, account.OutcomeCreated, outcome)
		assert.Equal(t, id, next.ID)
		assert.Equal(t, "a@x.com", next.Email)
		assert.Equal(t, "enc", next.EncodedPassword)
		assert.False(t, next.Enabled)
		assert.Zero(t, next.LoginAttemptsCounter)
		assert.Equal(t, t0, next.PasswordLastChangeDate)
		assert.Equal(t, t0, next.CreatedAt)
	})

	t.Run("rejects existing account", func(t *testing.T) {
		current := existing(nil)
		next, outcome, err := account.Transition(current, account.Create(id, "a@x.com", "enc-2", t0), policy)
		require.ErrorIs(t, err, account.ErrAlreadyExists)
		assert.Equal(t, account.OutcomeUnchanged, outcome)
		assert.Equal(t, "enc-1", next.EncodedPassword)
	})
}

func TestTransition_MissingAccount(t *testing.T) {
	events := []account.Event{
		account.LoginFailure(t0),
		account.LoginSuccess(t0),
		account.ChangePassword("enc", t0),
		account.ResetAttemptsCounter(t0),
		account.Enable(t0),
		account.Disable(t0),
		account.Delete(),
	}
	for _, ev := range events {
		t.Run(ev.Kind.String(), func(t *testing.T) {
			_, _, err := account.Transition(nil, ev, account.DefaultPolicy())
			require.ErrorIs(t, err, account.ErrNotFound)
		})
	}
}

func TestTransition_LoginFailure(t *testing.T) {
	policy := account.DefaultPolicy()

	t.Run("increments counter", func(t *testing.T) {
		next, outcome, err := account.Transition(existing(nil), account.LoginFailure(t0.Add(time.Minute)), policy)
		require.NoError(t, err)
		assert.Equal(t, account.OutcomeUpdated, outcome)
		assert.Equal(t, 1, next.LoginAttemptsCounter)
		assert.Equal(t, t0.Add(time.Minute), next.UpdatedAt)
	})

	t.Run("reports lock when threshold is reached", func(t *testing.T) {
		current := existing(func(a *account.Account) { a.LoginAttemptsCounter = policy.MaxPasswordEntryAttempts - 1 })
		next, outcome, err := account.Transition(current, account.LoginFailure(t0), policy)
		require.NoError(t, err)
		assert.Equal(t, account.OutcomeLocked, outcome)
		assert.True(t, next.IsLocked(policy))
	})

	t.Run("keeps counting past threshold without relocking", func(t *testing.T) {
		current := existing(func(a *account.Account) { a.LoginAttemptsCounter = policy.MaxPasswordEntryAttempts })
		next, outcome, err := account.Transition(current, account.LoginFailure(t0), policy)
		require.NoError(t, err)
		assert.Equal(t, account.OutcomeUpdated, outcome)
		assert.Equal(t, policy.MaxPasswordEntryAttempts+1, next.LoginAttemptsCounter)
	})

	t.Run("rejects disabled account", func(t *testing.T) {
		current := existing(func(a *account.Account) { a.Enabled = false })
		next, _, err := account.Transition(current, account.LoginFailure(t0), policy)
		require.ErrorIs(t, err, account.ErrAccountDisabled)
		assert.Zero(t, next.LoginAttemptsCounter)
	})

	t.Run("does not modify input", func(t *testing.T) {
		current := existing(nil)
		_, _, err := account.Transition(current, account.LoginFailure(t0), policy)
		require.NoError(t, err)
		assert.Zero(t, current.LoginAttemptsCounter)
	})
}

func TestTransition_LoginSuccess(t *testing.T) {
	policy := account.DefaultPolicy()

	t.Run("resets counter", func(t *testing.T) {
		current := existing(func(a *account.Account) { a.LoginAttemptsCounter = 3 })
		next, outcome, err := account.Transition(current, account.LoginSuccess(t0), policy)
		require.NoError(t, err)
		assert.Equal(t, account.OutcomeUpdated, outcome)
		assert.Zero(t, next.LoginAttemptsCounter)
		assert.Equal(t, account.Unlocked, next.LockState(policy))
	})

	t.Run("zero counter is unchanged", func(t *testing.T) {
		_, outcome, err := account.Transition(existing(nil), account.LoginSuccess(t0), policy)
		require.NoError(t, err)
		assert.Equal(t, account.OutcomeUnchanged, outcome)
	})

	t.Run("rejects locked account", func(t *testing.T) {
		current := existing(func(a *account.Account) { a.LoginAttemptsCounter = policy.MaxPasswordEntryAttempts })
		next, _, err := account.Transition(current, account.LoginSuccess(t0), policy)
		require.ErrorIs(t, err, account.ErrAccountLocked)
		assert.Equal(t, policy.MaxPasswordEntryAttempts, next.LoginAttemptsCounter)
	})

	t.Run("rejects disabled account", func(t *testing.T) {
		current := existing(func(a *account.Account) { a.Enabled = false })
		_, _, err := account.Transition(current, account.LoginSuccess(t0), policy)
		require.ErrorIs(t, err, account.ErrAccountDisabled)
	})
}

func TestTransition_ChangePassword(t *testing.T) {
	policy := account.DefaultPolicy()

	t.Run("sets password and date on locked disabled account", func(t *testing.T) {
		current := existing(func(a *account.Account) {
			a.Enabled = false
			a.LoginAttemptsCounter = policy.MaxPasswordEntryAttempts
		})
		later := t0.Add(time.Hour)
		next, outcome, err := account.Transition(current, account.ChangePassword("enc-2", later), policy)
		require.NoError(t, err)
		assert.Equal(t, account.OutcomeUpdated, outcome)
		assert.Equal(t, "enc-2", next.EncodedPassword)
		assert.Equal(t, later, next.PasswordLastChangeDate)
		assert.Equal(t, policy.MaxPasswordEntryAttempts, next.LoginAttemptsCounter, "counter is not reset")
	})

	t.Run("change date never moves backwards", func(t *testing.T) {
		next, _, err := account.Transition(existing(nil), account.ChangePassword("enc-2", t0.Add(-time.Hour)), policy)
		require.NoError(t, err)
		assert.Equal(t, t0, next.PasswordLastChangeDate)
	})
}

func TestTransition_ResetAttemptsCounter(t *testing.T) {
	policy := account.DefaultPolicy()

	current := existing(func(a *account.Account) {
		a.Enabled = false
		a.LoginAttemptsCounter = 9
	})
	next, outcome, err := account.Transition(current, account.ResetAttemptsCounter(t0), policy)
	require.NoError(t, err)
	assert.Equal(t, account.OutcomeUpdated, outcome)
	assert.Zero(t, next.LoginAttemptsCounter)

	_, outcome, err = account.Transition(&next, account.ResetAttemptsCounter(t0), policy)
	require.NoError(t, err)
	assert.Equal(t, account.OutcomeUnchanged, outcome)
}

func TestTransition_EnableDisable(t *testing.T) {
	policy := account.DefaultPolicy()

	disabled := existing(func(a *account.Account) { a.Enabled = false })
	next, outcome, err := account.Transition(disabled, account.Enable(t0), policy)
	require.NoError(t, err)
	assert.Equal(t, account.OutcomeUpdated, outcome)
	assert.True(t, next.Enabled)

	_, outcome, err = account.Transition(&next, account.Enable(t0), policy)
	require.NoError(t, err)
	assert.Equal(t, account.OutcomeUnchanged, outcome)

	next, outcome, err = account.Transition(&next, account.Disable(t0), policy)
	require.NoError(t, err)
	assert.Equal(t, account.OutcomeUpdated, outcome)
	assert.False(t, next.Enabled)

	_, outcome, err = account.Transition(&next, account.Disable(t0), policy)
	require.NoError(t, err)
	assert.Equal(t, account.OutcomeUnchanged, outcome)
}

func TestTransition_Delete(t *testing.T) {
	_, outcome, err := account.Transition(existing(nil), account.Delete(), account.DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, account.OutcomeDeleted, outcome)
}

func TestTransition_UnknownEvent(t *testing.T) {
	_, _, err := account.Transition(existing(nil), account.Event{Kind: account.EventKind(99)}, account.DefaultPolicy())
	require.Error(t, err)
}

func TestLockState_DerivedFromPolicy(t *testing.T) {
	acc := existing(func(a *account.Account) { a.LoginAttemptsCounter = 5 })

	strict := account.DefaultPolicy()
	assert.Equal(t, account.Locked, acc.LockState(strict))

	lenient := account.DefaultPolicy()
	lenient.MaxPasswordEntryAttempts = 10
	assert.Equal(t, account.Unlocked, acc.LockState(lenient))

	assert.Equal(t, "locked", account.Locked.String())
	assert.Equal(t, "unlocked", account.Unlocked.String())
}
