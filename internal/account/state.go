// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package account

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// EventKind identifies an account state transition.
type EventKind int

// Event kinds.
const (
	EventCreate EventKind = iota + 1
	EventLoginFailure
	EventLoginSuccess
	EventChangePassword
	EventResetAttemptsCounter
	EventEnable
	EventDisable
	EventDelete
)

var eventKindNames = map[EventKind]string{
	EventCreate:               "create",
	EventLoginFailure:         "login_failure",
	EventLoginSuccess:         "login_success",
	EventChangePassword:       "change_password",
	EventResetAttemptsCounter: "reset_attempts_counter",
	EventEnable:               "enable",
	EventDisable:              "disable",
	EventDelete:               "delete",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is an input to Transition. Build events with the constructors below.
type Event struct {
	Kind            EventKind
	ID              ulid.ULID
	Email           string
	EncodedPassword string
	At              time.Time
}

// Create returns the event that creates a new, disabled account.
func Create(id ulid.ULID, email, encodedPassword string, at time.Time) Event {
	return Event{Kind: EventCreate, ID: id, Email: email, EncodedPassword: encodedPassword, At: at}
}

// LoginFailure returns the event recorded for a rejected credential.
func LoginFailure(at time.Time) Event {
	return Event{Kind: EventLoginFailure, At: at}
}

// LoginSuccess returns the event recorded for an accepted credential.
func LoginSuccess(at time.Time) Event {
	return Event{Kind: EventLoginSuccess, At: at}
}

// ChangePassword returns the event that replaces the encoded password.
func ChangePassword(encodedPassword string, at time.Time) Event {
	return Event{Kind: EventChangePassword, EncodedPassword: encodedPassword, At: at}
}

// ResetAttemptsCounter returns the event that clears the failure counter.
func ResetAttemptsCounter(at time.Time) Event {
	return Event{Kind: EventResetAttemptsCounter, At: at}
}

// Enable returns the activation event.
func Enable(at time.Time) Event {
	return Event{Kind: EventEnable, At: at}
}

// Disable returns the deactivation event.
func Disable(at time.Time) Event {
	return Event{Kind: EventDisable, At: at}
}

// Delete returns the removal event.
func Delete() Event {
	return Event{Kind: EventDelete}
}

// Outcome describes the effect of a successful Transition.
type Outcome int

// Transition outcomes.
const (
	// OutcomeUnchanged means the event was accepted but nothing changed.
	OutcomeUnchanged Outcome = iota
	OutcomeCreated
	OutcomeUpdated
	// OutcomeLocked means a failure brought the counter to the lock threshold.
	OutcomeLocked
	OutcomeDeleted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeLocked:
		return "locked"
	case OutcomeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Transition computes the account state after ev. current is nil when no
// account exists. The returned Account is meaningless for OutcomeDeleted.
// Errors wrap ErrNotFound, ErrAlreadyExists, ErrAccountDisabled or
// ErrAccountLocked.
func Transition(current *Account, ev Event, policy Policy) (Account, Outcome, error) {
	if ev.Kind == EventCreate {
		if current != nil {
			return *current, OutcomeUnchanged, ErrAlreadyExists
		}
		return Account{
			ID:                     ev.ID,
			Email:                  ev.Email,
			EncodedPassword:        ev.EncodedPassword,
			Enabled:                false,
			LoginAttemptsCounter:   0,
			PasswordLastChangeDate: ev.At,
			CreatedAt:              ev.At,
			UpdatedAt:              ev.At,
		}, OutcomeCreated, nil
	}

	if current == nil {
		return Account{}, OutcomeUnchanged, ErrNotFound
	}
	next := *current

	switch ev.Kind {
	case EventLoginFailure:
		if !next.Enabled {
			return next, OutcomeUnchanged, ErrAccountDisabled
		}
		wasLocked := next.IsLocked(policy)
		next.LoginAttemptsCounter++
		next.UpdatedAt = laterOf(ev.At, next.UpdatedAt)
		if !wasLocked && next.IsLocked(policy) {
			return next, OutcomeLocked, nil
		}
		return next, OutcomeUpdated, nil

	case EventLoginSuccess:
		if !next.Enabled {
			return next, OutcomeUnchanged, ErrAccountDisabled
		}
		if next.IsLocked(policy) {
			return next, OutcomeUnchanged, ErrAccountLocked
		}
		if next.LoginAttemptsCounter == 0 {
			return next, OutcomeUnchanged, nil
		}
		next.LoginAttemptsCounter = 0
		next.UpdatedAt = laterOf(ev.At, next.UpdatedAt)
		return next, OutcomeUpdated, nil

	case EventChangePassword:
		next.EncodedPassword = ev.EncodedPassword
		next.PasswordLastChangeDate = laterOf(ev.At, next.PasswordLastChangeDate)
		next.UpdatedAt = laterOf(ev.At, next.UpdatedAt)
		return next, OutcomeUpdated, nil

	case EventResetAttemptsCounter:
		if next.LoginAttemptsCounter == 0 {
			return next, OutcomeUnchanged, nil
		}
		next.LoginAttemptsCounter = 0
		next.UpdatedAt = laterOf(ev.At, next.UpdatedAt)
		return next, OutcomeUpdated, nil

	case EventEnable, EventDisable:
		enabled := ev.Kind == EventEnable
		if next.Enabled == enabled {
			return next, OutcomeUnchanged, nil
		}
		next.Enabled = enabled
		next.UpdatedAt = laterOf(ev.At, next.UpdatedAt)
		return next, OutcomeUpdated, nil

	case EventDelete:
		return next, OutcomeDeleted, nil
	}

	return next, OutcomeUnchanged, unknownEventError(ev.Kind)
}

// laterOf keeps timestamps monotonic when the clock steps backwards.
func laterOf(at, previous time.Time) time.Time {
	if at.Before(previous) {
		return previous
	}
	return at
}
