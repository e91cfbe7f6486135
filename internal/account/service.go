// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/authflows/authflows/pkg/errutil"
)

const tracerName = "github.com/authflows/authflows/internal/account"

// Operation names used in error context, metrics and spans.
const (
	opCreateAccount             = "create_account"
	opGetUser                   = "get_user"
	opDeleteAccount             = "delete_account"
	opSetEnabled                = "set_enabled"
	opSetDisabled               = "set_disabled"
	opIsActivated               = "is_activated"
	opIsAccountLocked           = "is_account_locked"
	opChangePassword            = "change_password"
	opSetPassword               = "set_password"
	opIncrementAttemptsCounter  = "increment_attempts_counter"
	opResetAttemptsCounter      = "reset_attempts_counter"
	opRecordLoginSuccess        = "record_login_success"
	opAttemptLogin              = "attempt_login"
	opGetEncodedPassword        = "get_encoded_password"
	opGetPasswordLastChangeDate = "get_password_last_change_date"
)

// CredentialChecker reports whether a presented credential matches the
// stored encoded password. Comparison belongs to the caller.
type CredentialChecker func(encodedPassword string) (bool, error)

// LoginResult is the account state after AttemptLogin.
type LoginResult struct {
	LockState LockState
	Attempts  int
}

// Service exposes the account operations.
// It is safe for concurrent use; calls for the same email are serialized.
type Service struct {
	store   Store
	policy  Policy
	locks   *keyMutex
	now     func() time.Time
	newID   func() ulid.ULID
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics registers account metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Service) { s.metrics = NewMetrics(reg) }
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(tracerName) }
}

// NewService creates a Service over store with an immutable policy.
func NewService(store Store, policy Policy, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, oops.Code("ACCOUNT_SERVICE_INVALID").Errorf("account store is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, oops.With("operation", "new account service").Wrap(err)
	}

	s := &Service{
		store:  store,
		policy: policy,
		locks:  newKeyMutex(),
		now:    time.Now,
		newID:  ulid.Make,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Code("ACCOUNT_SERVICE_INVALID").Errorf("logger cannot be nil")
	}
	if s.now == nil {
		return nil, oops.Code("ACCOUNT_SERVICE_INVALID").Errorf("clock cannot be nil")
	}
	return s, nil
}

// GetAuthenticationPolicy returns the active policy.
func (s *Service) GetAuthenticationPolicy() Policy {
	return s.policy
}

// CreateAccount stores a new, disabled account.
func (s *Service) CreateAccount(ctx context.Context, email, encodedPassword string) (err error) {
	ctx, finish := s.begin(ctx, opCreateAccount)
	defer func() { finish(err) }()

	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return oops.With("operation", opCreateAccount).Wrap(err)
	}
	if err := s.policy.CheckEncodedPassword(encodedPassword); err != nil {
		return oops.With("operation", opCreateAccount).With("email", email).Wrap(err)
	}

	_, _, err = s.update(ctx, opCreateAccount, email, Create(s.newID(), email, encodedPassword, s.now()))
	return err
}

// GetUser returns the account for email. found is false when no account
// exists; err is only set for storage faults.
func (s *Service) GetUser(ctx context.Context, email string) (acc Account, found bool, err error) {
	ctx, finish := s.begin(ctx, opGetUser)
	defer func() { finish(err) }()

	current, err := s.load(ctx, opGetUser, NormalizeEmail(email))
	if err != nil || current == nil {
		return Account{}, false, err
	}
	return *current, true, nil
}

// DeleteAccount removes the account for email.
func (s *Service) DeleteAccount(ctx context.Context, email string) (err error) {
	ctx, finish := s.begin(ctx, opDeleteAccount)
	defer func() { finish(err) }()

	_, _, err = s.update(ctx, opDeleteAccount, NormalizeEmail(email), Delete())
	return err
}

// SetEnabled activates the account. Enabling an enabled account succeeds.
func (s *Service) SetEnabled(ctx context.Context, email string) (err error) {
	ctx, finish := s.begin(ctx, opSetEnabled)
	defer func() { finish(err) }()

	_, _, err = s.update(ctx, opSetEnabled, NormalizeEmail(email), Enable(s.now()))
	return err
}

// SetDisabled deactivates the account. Disabling a disabled account succeeds.
func (s *Service) SetDisabled(ctx context.Context, email string) (err error) {
	ctx, finish := s.begin(ctx, opSetDisabled)
	defer func() { finish(err) }()

	_, _, err = s.update(ctx, opSetDisabled, NormalizeEmail(email), Disable(s.now()))
	return err
}

// IsActivated reports whether the account is enabled.
func (s *Service) IsActivated(ctx context.Context, email string) (enabled bool, err error) {
	ctx, finish := s.begin(ctx, opIsActivated)
	defer func() { finish(err) }()

	acc, err := s.require(ctx, opIsActivated, NormalizeEmail(email))
	if err != nil {
		return false, err
	}
	return acc.Enabled, nil
}

// IsAccountLocked derives the lock state from the counter and the policy.
func (s *Service) IsAccountLocked(ctx context.Context, email string) (state LockState, err error) {
	ctx, finish := s.begin(ctx, opIsAccountLocked)
	defer func() { finish(err) }()

	acc, err := s.require(ctx, opIsAccountLocked, NormalizeEmail(email))
	if err != nil {
		return Unlocked, err
	}
	return acc.LockState(s.policy), nil
}

// ChangePassword replaces the encoded password and refreshes the change date.
// It returns false without an error when the account does not exist. The
// attempts counter is left untouched; see ResetAttemptsCounter.
func (s *Service) ChangePassword(ctx context.Context, email, newEncodedPassword string) (changed bool, err error) {
	ctx, finish := s.begin(ctx, opChangePassword)
	defer func() { finish(err) }()

	email = NormalizeEmail(email)
	if err := s.policy.CheckEncodedPassword(newEncodedPassword); err != nil {
		return false, oops.With("operation", opChangePassword).With("email", email).Wrap(err)
	}

	_, _, err = s.update(ctx, opChangePassword, email, ChangePassword(newEncodedPassword, s.now()))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetPassword is ChangePassword reporting a missing account as ErrNotFound.
func (s *Service) SetPassword(ctx context.Context, email, newEncodedPassword string) (err error) {
	ctx, finish := s.begin(ctx, opSetPassword)
	defer func() { finish(err) }()

	email = NormalizeEmail(email)
	if err := s.policy.CheckEncodedPassword(newEncodedPassword); err != nil {
		return oops.With("operation", opSetPassword).With("email", email).Wrap(err)
	}

	_, _, err = s.update(ctx, opSetPassword, email, ChangePassword(newEncodedPassword, s.now()))
	return err
}

// IncrementAttemptsCounter records one failed login. The account becomes
// locked once the counter reaches the policy limit.
func (s *Service) IncrementAttemptsCounter(ctx context.Context, email string) (err error) {
	ctx, finish := s.begin(ctx, opIncrementAttemptsCounter)
	defer func() { finish(err) }()

	_, _, err = s.update(ctx, opIncrementAttemptsCounter, NormalizeEmail(email), LoginFailure(s.now()))
	return err
}

// ResetAttemptsCounter clears the failure counter, unlocking the account.
func (s *Service) ResetAttemptsCounter(ctx context.Context, email string) (err error) {
	ctx, finish := s.begin(ctx, opResetAttemptsCounter)
	defer func() { finish(err) }()

	_, _, err = s.update(ctx, opResetAttemptsCounter, NormalizeEmail(email), ResetAttemptsCounter(s.now()))
	return err
}

// RecordLoginSuccess resets the counter after an accepted credential.
// Locked accounts are rejected with ErrAccountLocked.
func (s *Service) RecordLoginSuccess(ctx context.Context, email string) (err error) {
	ctx, finish := s.begin(ctx, opRecordLoginSuccess)
	defer func() { finish(err) }()

	_, _, err = s.update(ctx, opRecordLoginSuccess, NormalizeEmail(email), LoginSuccess(s.now()))
	return err
}

// AttemptLogin checks a credential against the stored encoded password and
// records the result, all under the per-email lock. Missing, disabled and
// locked accounts are rejected before check is called. A mismatch returns
// ErrInvalidCredentials together with the updated LoginResult. When another
// process changes the record before the result is written, the whole pass,
// check included, runs again.
func (s *Service) AttemptLogin(ctx context.Context, email string, check CredentialChecker) (result LoginResult, err error) {
	ctx, finish := s.begin(ctx, opAttemptLogin)
	defer func() { finish(err) }()

	if check == nil {
		return LoginResult{}, oops.Code("ACCOUNT_SERVICE_INVALID").Errorf("credential checker is required")
	}
	email = NormalizeEmail(email)

	unlock, err := s.lock(ctx, opAttemptLogin, email)
	if err != nil {
		return LoginResult{}, err
	}
	defer unlock()

	err = retryOnConflict(func() error {
		var attemptErr error
		result, attemptErr = s.attemptLogin(ctx, email, check)
		return attemptErr
	})
	return result, err
}

// attemptLogin is one read, check and write pass of AttemptLogin. The
// caller holds the lock.
func (s *Service) attemptLogin(ctx context.Context, email string, check CredentialChecker) (LoginResult, error) {
	current, err := s.load(ctx, opAttemptLogin, email)
	if err != nil {
		return LoginResult{}, err
	}
	if current == nil {
		return LoginResult{}, domainError(ErrNotFound, email, opAttemptLogin)
	}
	result := LoginResult{LockState: current.LockState(s.policy), Attempts: current.LoginAttemptsCounter}
	if !current.Enabled {
		return result, domainError(ErrAccountDisabled, email, opAttemptLogin)
	}
	if result.LockState == Locked {
		return result, domainError(ErrAccountLocked, email, opAttemptLogin)
	}

	ok, err := check(current.EncodedPassword)
	if err != nil {
		return result, oops.Code("ACCOUNT_CREDENTIAL_CHECK_FAILED").
			With("email", email).
			With("operation", opAttemptLogin).
			Wrap(err)
	}

	ev := LoginSuccess(s.now())
	if !ok {
		ev = LoginFailure(s.now())
	}
	next, _, err := s.apply(ctx, opAttemptLogin, email, current, ev)
	if err != nil {
		return result, err
	}

	result = LoginResult{LockState: next.LockState(s.policy), Attempts: next.LoginAttemptsCounter}
	if !ok {
		return result, oops.Code(CodeInvalidCredentials).
			With("email", email).
			With("operation", opAttemptLogin).
			With("attempts", next.LoginAttemptsCounter).
			Wrap(ErrInvalidCredentials)
	}
	return result, nil
}

// GetEncodedPassword returns the stored encoded password; found is false
// when no account exists.
func (s *Service) GetEncodedPassword(ctx context.Context, email string) (encoded string, found bool, err error) {
	ctx, finish := s.begin(ctx, opGetEncodedPassword)
	defer func() { finish(err) }()

	current, err := s.load(ctx, opGetEncodedPassword, NormalizeEmail(email))
	if err != nil || current == nil {
		return "", false, err
	}
	return current.EncodedPassword, true, nil
}

// GetPasswordLastChangeDate returns when the password was last set; found is
// false when no account exists.
func (s *Service) GetPasswordLastChangeDate(ctx context.Context, email string) (changed time.Time, found bool, err error) {
	ctx, finish := s.begin(ctx, opGetPasswordLastChangeDate)
	defer func() { finish(err) }()

	current, err := s.load(ctx, opGetPasswordLastChangeDate, NormalizeEmail(email))
	if err != nil || current == nil {
		return time.Time{}, false, err
	}
	return current.PasswordLastChangeDate, true, nil
}

// update runs one locked read-modify-write for ev. The lock covers this
// process only; writes from other processes surface as ErrConflict from the
// conditional Store.Update and the read is repeated.
func (s *Service) update(ctx context.Context, op, email string, ev Event) (next Account, outcome Outcome, err error) {
	unlock, err := s.lock(ctx, op, email)
	if err != nil {
		return Account{}, OutcomeUnchanged, err
	}
	defer unlock()

	err = retryOnConflict(func() error {
		current, err := s.load(ctx, op, email)
		if err != nil {
			return err
		}
		next, outcome, err = s.apply(ctx, op, email, current, ev)
		return err
	})
	return next, outcome, err
}

// maxWriteAttempts bounds the read-modify-write passes of one operation.
const maxWriteAttempts = 3

// retryOnConflict runs fn until it returns anything other than ErrConflict,
// at most maxWriteAttempts times.
func retryOnConflict(fn func() error) error {
	var err error
	for range maxWriteAttempts {
		if err = fn(); !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}

// lock takes the per-email lock, giving up when ctx is done.
func (s *Service) lock(ctx context.Context, op, email string) (func(), error) {
	unlock, err := s.locks.Lock(ctx, email)
	if err != nil {
		return nil, oops.With("email", email).With("operation", op).Wrapf(err, "wait for account lock")
	}
	return unlock, nil
}

// apply runs Transition and persists its result. The caller holds the lock.
func (s *Service) apply(ctx context.Context, op, email string, current *Account, ev Event) (Account, Outcome, error) {
	next, outcome, err := Transition(current, ev, s.policy)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) ||
			errors.Is(err, ErrAccountLocked) || errors.Is(err, ErrAccountDisabled) {
			return next, outcome, domainError(err, email, op)
		}
		return next, outcome, oops.With("email", email).With("operation", op).Wrap(err)
	}

	next, outcome, err = s.write(ctx, current, next, ev, outcome)
	if err != nil {
		return next, outcome, s.writeError(ctx, op, email, err)
	}

	if outcome == OutcomeLocked {
		s.metrics.lockout()
		s.logger.WarnContext(ctx, "account locked",
			"email", email,
			"attempts", next.LoginAttemptsCounter,
			"max_attempts", s.policy.MaxPasswordEntryAttempts)
	}
	return next, outcome, nil
}

// write issues the single store write for outcome.
func (s *Service) write(ctx context.Context, current *Account, next Account, ev Event, outcome Outcome) (Account, Outcome, error) {
	switch outcome {
	case OutcomeCreated:
		return next, outcome, s.store.Insert(ctx, next)
	case OutcomeDeleted:
		return next, outcome, s.store.Delete(ctx, next.Email)
	case OutcomeUpdated, OutcomeLocked:
		if inc, ok := s.store.(AttemptsIncrementer); ok && ev.Kind == EventLoginFailure {
			stored, err := inc.IncrementAttempts(ctx, next.Email, ev.At)
			if err != nil {
				return next, outcome, err
			}
			if !current.IsLocked(s.policy) && stored.IsLocked(s.policy) {
				return stored, OutcomeLocked, nil
			}
			return stored, OutcomeUpdated, nil
		}
		return next, outcome, s.store.Update(ctx, *current, next)
	default:
		return next, outcome, nil
	}
}

// load reads the account for email. A missing account yields (nil, nil).
func (s *Service) load(ctx context.Context, op, email string) (*Account, error) {
	acc, err := s.store.Find(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.storageError(ctx, op, email, err)
	}
	return &acc, nil
}

// require reads the account for email and reports absence as ErrNotFound.
func (s *Service) require(ctx context.Context, op, email string) (Account, error) {
	current, err := s.load(ctx, op, email)
	if err != nil {
		return Account{}, err
	}
	if current == nil {
		return Account{}, domainError(ErrNotFound, email, op)
	}
	return *current, nil
}

// writeError classifies a failed store write.
func (s *Service) writeError(ctx context.Context, op, email string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return domainError(ErrNotFound, email, op)
	case errors.Is(err, ErrAlreadyExists):
		return domainError(ErrAlreadyExists, email, op)
	case errors.Is(err, ErrConflict):
		return domainError(ErrConflict, email, op)
	default:
		return s.storageError(ctx, op, email, err)
	}
}

func (s *Service) storageError(ctx context.Context, op, email string, err error) error {
	wrapped := oops.Code(CodeStorageFailed).
		With("email", email).
		With("operation", op).
		Wrap(&StorageError{Op: op, Err: err})
	errutil.LogErrorContext(ctx, s.logger, "account storage failure", wrapped)
	return wrapped
}

// begin starts the span for op and returns a function that ends it and
// records the result.
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "account."+op,
		trace.WithAttributes(attribute.String("account.operation", op)))
	return ctx, func(err error) {
		s.metrics.observe(op, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
