// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

// Package account owns the lifecycle and security-relevant state of
// authentication accounts.
//
// # Domain Types
//
// Account is an immutable value keyed by normalized email. Lock state is never
// stored: it is derived from the attempts counter and the active Policy on
// every read, so a policy change or counter reset takes effect immediately.
//
// # State Machine
//
// Transition computes the next Account for an Event without side effects.
// Callers persist the returned value; the input is never modified.
//
// # Services
//
// Service sequences one read, one Transition and one write against a Store for
// every mutating call, serialized per email:
//   - CreateAccount, DeleteAccount - account lifecycle
//   - SetEnabled, SetDisabled - activation
//   - ChangePassword, SetPassword - password rotation
//   - IncrementAttemptsCounter, ResetAttemptsCounter, RecordLoginSuccess,
//     AttemptLogin - login bookkeeping and lockout
//
// Storage backends live in the memory, postgres, redis and mongo subpackages.
package account
