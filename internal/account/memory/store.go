// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

// Package memory provides an in-process account.Store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/authflows/authflows/internal/account"
)

// Store keeps accounts in a map guarded by a RWMutex. Suitable for tests and
// single-instance deployments; data does not survive a restart.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]account.Account
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{accounts: make(map[string]account.Account)}
}

// Insert stores a new account.
func (s *Store) Insert(ctx context.Context, acc account.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[acc.Email]; ok {
		return account.ErrAlreadyExists
	}
	s.accounts[acc.Email] = acc
	return nil
}

// Find returns the account for email.
func (s *Store) Find(ctx context.Context, email string) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[email]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return acc, nil
}

// Update replaces the stored account if it still matches prev.
func (s *Store) Update(ctx context.Context, prev, next account.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.accounts[next.Email]
	if !ok {
		return account.ErrNotFound
	}
	if !stored.SameRevision(prev) {
		return account.ErrConflict
	}
	s.accounts[next.Email] = next
	return nil
}

// Delete removes the account for email.
func (s *Store) Delete(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[email]; !ok {
		return account.ErrNotFound
	}
	delete(s.accounts, email)
	return nil
}

// IncrementAttempts atomically adds one to the failure counter.
func (s *Store) IncrementAttempts(ctx context.Context, email string, at time.Time) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[email]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	acc.LoginAttemptsCounter++
	if at.After(acc.UpdatedAt) {
		acc.UpdatedAt = at
	}
	s.accounts[email] = acc
	return acc, nil
}

// Len returns the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// Compile-time interface checks.
var (
	_ account.Store               = (*Store)(nil)
	_ account.AttemptsIncrementer = (*Store)(nil)
)
