// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/authflows/authflows/internal/account"
	"github.com/authflows/authflows/internal/config"
	"github.com/authflows/authflows/internal/store"
)

// Deps contains injectable dependencies for the CLI commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// StoreOpener opens the account store selected by cfg. The returned
	// func releases the underlying connection.
	// Default: openStore
	StoreOpener func(ctx context.Context, cfg config.Config, logger *slog.Logger) (account.Store, func(), error)

	// MigratorFactory creates a schema migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

func (d Deps) withDefaults() Deps {
	if d.StoreOpener == nil {
		d.StoreOpener = openStore
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (Migrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	return d
}
