// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authflows/authflows/internal/account"
	"github.com/authflows/authflows/internal/config"
	"github.com/authflows/authflows/internal/logging"
	"github.com/authflows/authflows/internal/passwd"
	"github.com/authflows/authflows/pkg/errutil"
)

// Default timeout for a single command.
const defaultTimeout = 30 * time.Second

// rootOptions holds the global flags shared by every subcommand.
type rootOptions struct {
	configFile      string
	timeout         time.Duration
	metricsTextfile string
	deps            Deps
}

// NewRootCmd creates the root command for the authflows CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmdWithDeps(Deps{})
}

func newRootCmdWithDeps(deps Deps) *cobra.Command {
	opts := &rootOptions{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:   "authflows",
		Short: "authflows - authentication account administration",
		Long: `authflows manages authentication accounts: creation, activation,
password changes and the failed-login lockout policy, over PostgreSQL,
Redis or MongoDB storage.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/authflows/config.yaml)")
	flags.DurationVar(&opts.timeout, "timeout", defaultTimeout, "timeout for storage operations (e.g., 30s, 1m)")
	flags.StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file on exit")
	config.RegisterFlags(flags)

	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newAccountCmd(opts))
	cmd.AddCommand(newPolicyCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))

	return cmd
}

// loadConfig reads the config file and flags. Only the policy is validated
// here; commands that touch storage call Config.Validate.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configFile, cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Policy.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg config.Config) (*slog.Logger, error) {
	return logging.Setup(logging.Options{
		Service:      "authflows",
		Version:      version,
		Format:       cfg.Log.Format,
		Level:        cfg.Log.Level,
		RedactEmails: cfg.Log.RedactEmails,
		Writer:       cmd.ErrOrStderr(),
	})
}

// app is the wired runtime a storage command works with.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	service *account.Service
	encoder *passwd.Encoder
}

// runWithApp wires config, logging, storage and the account service, runs
// fn under the command timeout and releases everything afterwards.
func (o *rootOptions) runWithApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	encoder, err := passwd.NewEncoder(cfg.Passwd)
	if err != nil {
		return err
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, o.timeout)
	defer cancel()

	store, closeStore, err := o.deps.StoreOpener(ctx, cfg, logger)
	if err != nil {
		errutil.LogErrorContext(ctx, logger, "failed to open account store", err)
		return oops.With("driver", cfg.Storage.Driver).Wrap(err)
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	svc, err := account.NewService(store, cfg.Policy,
		account.WithLogger(logger),
		account.WithMetrics(registry),
	)
	if err != nil {
		return err
	}

	runErr := fn(ctx, &app{cfg: cfg, logger: logger, service: svc, encoder: encoder})

	if o.metricsTextfile != "" {
		if err := prometheus.WriteToTextfile(o.metricsTextfile, registry); err != nil {
			logger.Warn("failed to write metrics textfile", "path", o.metricsTextfile, "error", err)
		}
	}
	return runErr
}
