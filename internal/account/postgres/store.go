// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

// Package postgres implements account.Store on PostgreSQL. The schema is
// managed by internal/store migrations.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authflows/authflows/internal/account"
)

// poolIface is the part of *pgxpool.Pool the store uses. pgxmock pools
// satisfy it in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `id, email, encoded_password, enabled, login_attempts_counter,
		       password_last_change_date, created_at, updated_at`

// Store implements account.Store and account.AttemptsIncrementer.
type Store struct {
	pool poolIface
}

// NewStore creates a Store over pool.
func NewStore(pool poolIface) *Store {
	return &Store{pool: pool}
}

// Insert stores a new account.
func (s *Store) Insert(ctx context.Context, acc account.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (
			id, email, encoded_password, enabled, login_attempts_counter,
			password_last_change_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		acc.ID.String(),
		acc.Email,
		acc.EncodedPassword,
		acc.Enabled,
		acc.LoginAttemptsCounter,
		acc.PasswordLastChangeDate,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return account.ErrAlreadyExists
		}
		return oops.With("operation", "insert account").With("email", acc.Email).Wrap(err)
	}
	return nil
}

// Find returns the account for email.
func (s *Store) Find(ctx context.Context, email string) (account.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1
	`, email)

	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.Account{}, account.ErrNotFound
	}
	if err != nil {
		return account.Account{}, oops.With("operation", "find account").With("email", email).Wrap(err)
	}
	return acc, nil
}

// Update replaces the mutable columns of the stored account when they still
// hold prev's values. A miss is told apart from a deleted row with a second
// query.
func (s *Store) Update(ctx context.Context, prev, next account.Account) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET encoded_password = $2, enabled = $3, login_attempts_counter = $4,
		    password_last_change_date = $5, updated_at = $6
		WHERE email = $1
		  AND encoded_password = $7 AND enabled = $8 AND login_attempts_counter = $9
	`,
		next.Email,
		next.EncodedPassword,
		next.Enabled,
		next.LoginAttemptsCounter,
		next.PasswordLastChangeDate,
		next.UpdatedAt,
		prev.EncodedPassword,
		prev.Enabled,
		prev.LoginAttemptsCounter,
	)
	if err != nil {
		return oops.With("operation", "update account").With("email", next.Email).Wrap(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`, next.Email).Scan(&exists)
	if err != nil {
		return oops.With("operation", "check account exists").With("email", next.Email).Wrap(err)
	}
	if !exists {
		return account.ErrNotFound
	}
	return account.ErrConflict
}

// Delete removes the account for email.
func (s *Store) Delete(ctx context.Context, email string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE email = $1`, email)
	if err != nil {
		return oops.With("operation", "delete account").With("email", email).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

// IncrementAttempts adds one to the failure counter in a single statement
// and returns the updated row.
func (s *Store) IncrementAttempts(ctx context.Context, email string, at time.Time) (account.Account, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE accounts
		SET login_attempts_counter = login_attempts_counter + 1,
		    updated_at = GREATEST(updated_at, $2)
		WHERE email = $1
		RETURNING `+accountColumns, email, at)

	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.Account{}, account.ErrNotFound
	}
	if err != nil {
		return account.Account{}, oops.With("operation", "increment attempts").With("email", email).Wrap(err)
	}
	return acc, nil
}

func scanAccount(row pgx.Row) (account.Account, error) {
	var (
		acc   account.Account
		idStr string
	)
	err := row.Scan(
		&idStr,
		&acc.Email,
		&acc.EncodedPassword,
		&acc.Enabled,
		&acc.LoginAttemptsCounter,
		&acc.PasswordLastChangeDate,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return account.Account{}, err
	}

	acc.ID, err = ulid.Parse(idStr)
	if err != nil {
		return account.Account{}, oops.Code("ACCOUNT_CORRUPT_ID").
			With("email", acc.Email).
			With("id", idStr).
			Wrap(err)
	}
	return acc, nil
}

// Compile-time interface checks.
var (
	_ account.Store               = (*Store)(nil)
	_ account.AttemptsIncrementer = (*Store)(nil)
)
