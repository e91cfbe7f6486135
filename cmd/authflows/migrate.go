// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package main

import (
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authflows/authflows/internal/config"
	"github.com/authflows/authflows/internal/store"
)

// newMigrateCmd creates the migrate command group.
func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL accounts schema",
		Long: `Apply, roll back or inspect the embedded accounts schema migrations.
Only the postgres storage driver uses migrations; Redis and MongoDB need none.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withMigrator(cmd, func(m Migrator) error {
				pending, err := m.PendingMigrations()
				if err != nil {
					return oops.With("operation", "list pending migrations").Wrap(err)
				}
				if len(pending) == 0 {
					cmd.Println("No pending migrations")
					return nil
				}
				cmd.Printf("Applying %d migration(s)...\n", len(pending))
				if err := m.Up(); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "migrate up").Wrap(err)
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (one step by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return oops.Wrap(err)
			}
			return opts.withMigrator(cmd, func(m Migrator) error {
				if all {
					if err := m.Down(); err != nil {
						return oops.Code("MIGRATION_FAILED").With("operation", "migrate down").Wrap(err)
					}
					cmd.Println("All migrations rolled back")
					return nil
				}
				if err := m.Steps(-steps); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "migrate down").With("steps", steps).Wrap(err)
				}
				cmd.Printf("Rolled back %d migration(s)\n", steps)
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	down.Flags().Bool("all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withMigrator(cmd, func(m Migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return oops.With("operation", "read schema version").Wrap(err)
				}
				if v == 0 {
					cmd.Println("No migrations applied")
					return nil
				}
				name, err := store.MigrationName(v)
				if err != nil || name == "" {
					name = "unknown"
				}
				state := "clean"
				if dirty {
					state = "dirty"
				}
				cmd.Printf("Version %d (%s), %s\n", v, name, state)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version and clear the dirty flag. Use this
after repairing a migration that failed halfway.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return opts.withMigrator(cmd, func(m Migrator) error {
				if err := m.Force(v); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "force version").With("version", v).Wrap(err)
				}
				cmd.Printf("Schema version forced to %d\n", v)
				return nil
			})
		},
	})

	return cmd
}

// parseForceVersion parses the VERSION argument. Range checks are left to
// the migrator.
func parseForceVersion(s string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	return v, nil
}

// getDatabaseURL returns the PostgreSQL URL migrations run against.
func getDatabaseURL(cfg config.Config) (string, error) {
	if cfg.Storage.Driver != config.DriverPostgres {
		return "", oops.Code("CONFIG_INVALID").
			With("driver", cfg.Storage.Driver).
			Errorf("migrations require the postgres storage driver")
	}
	if cfg.Storage.DatabaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable or storage.database_url is required")
	}
	return cfg.Storage.DatabaseURL, nil
}

func (o *rootOptions) withMigrator(cmd *cobra.Command, fn func(Migrator) error) error {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return err
	}
	url, err := getDatabaseURL(cfg)
	if err != nil {
		return err
	}

	m, err := o.deps.MigratorFactory(url)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			cmd.PrintErrf("Warning: failed to close migrator: %v\n", cerr)
		}
	}()
	return fn(m)
}
