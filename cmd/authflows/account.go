// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/authflows/authflows/internal/account"
)

// newAccountCmd creates the account command group.
func newAccountCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage authentication accounts",
		Long: `Create and administer authentication accounts. Commands that take a
password read it from the first line of standard input.`,
	}

	cmd.AddCommand(newAccountCreateCmd(opts))
	cmd.AddCommand(newAccountShowCmd(opts))
	cmd.AddCommand(newAccountStatusCmd(opts))
	cmd.AddCommand(newAccountPasswdCmd(opts))
	cmd.AddCommand(newAccountLoginCmd(opts))

	cmd.AddCommand(emailCmd(opts, "enable", "Enable an account", func(ctx context.Context, a *app, email string, cmd *cobra.Command) error {
		if err := a.service.SetEnabled(ctx, email); err != nil {
			return err
		}
		cmd.Printf("Account %s enabled\n", email)
		return nil
	}))
	cmd.AddCommand(emailCmd(opts, "disable", "Disable an account", func(ctx context.Context, a *app, email string, cmd *cobra.Command) error {
		if err := a.service.SetDisabled(ctx, email); err != nil {
			return err
		}
		cmd.Printf("Account %s disabled\n", email)
		return nil
	}))
	cmd.AddCommand(emailCmd(opts, "delete", "Delete an account", func(ctx context.Context, a *app, email string, cmd *cobra.Command) error {
		if err := a.service.DeleteAccount(ctx, email); err != nil {
			return err
		}
		cmd.Printf("Account %s deleted\n", email)
		return nil
	}))
	cmd.AddCommand(emailCmd(opts, "reset-attempts", "Clear the failed login counter, unlocking the account", func(ctx context.Context, a *app, email string, cmd *cobra.Command) error {
		if err := a.service.ResetAttemptsCounter(ctx, email); err != nil {
			return err
		}
		cmd.Printf("Login attempts for %s reset\n", email)
		return nil
	}))

	return cmd
}

// emailCmd builds a subcommand taking a single EMAIL argument.
func emailCmd(opts *rootOptions, use, short string, run func(ctx context.Context, a *app, email string, cmd *cobra.Command) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " EMAIL",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runWithApp(cmd, func(ctx context.Context, a *app) error {
				return run(ctx, a, args[0], cmd)
			})
		},
	}
}

func newAccountCreateCmd(opts *rootOptions) *cobra.Command {
	var enable bool
	cmd := &cobra.Command{
		Use:   "create EMAIL",
		Short: "Create an account (disabled unless --enable is given)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]
			return opts.runWithApp(cmd, func(ctx context.Context, a *app) error {
				encoded, err := a.encodeFromInput(cmd)
				if err != nil {
					return err
				}
				if err := a.service.CreateAccount(ctx, email, encoded); err != nil {
					return err
				}
				if enable {
					if err := a.service.SetEnabled(ctx, email); err != nil {
						return err
					}
				}
				cmd.Printf("Account %s created\n", account.NormalizeEmail(email))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&enable, "enable", false, "enable the account right away")
	return cmd
}

func newAccountPasswdCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd EMAIL",
		Short: "Set a new password for an account",
		Long: `Set a new password. The failed login counter is left untouched; run
reset-attempts to unlock a locked account.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]
			return opts.runWithApp(cmd, func(ctx context.Context, a *app) error {
				encoded, err := a.encodeFromInput(cmd)
				if err != nil {
					return err
				}
				if err := a.service.SetPassword(ctx, email, encoded); err != nil {
					return err
				}
				cmd.Printf("Password for %s changed\n", account.NormalizeEmail(email))
				return nil
			})
		},
	}
}

func newAccountLoginCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login EMAIL",
		Short: "Check a password and record the login attempt",
		Long: `Verify the password read from standard input against the account.
A mismatch counts as a failed attempt and may lock the account. A password
stored with outdated hashing parameters is re-encoded on success.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]
			return opts.runWithApp(cmd, func(ctx context.Context, a *app) error {
				raw, err := readPassword(cmd)
				if err != nil {
					return err
				}

				result, err := a.service.AttemptLogin(ctx, email, a.encoder.Checker(raw))
				if err != nil {
					if errors.Is(err, account.ErrInvalidCredentials) {
						remaining := a.cfg.Policy.MaxPasswordEntryAttempts - result.Attempts
						if result.LockState == account.Locked {
							cmd.PrintErrln("Invalid credentials; the account is now locked")
						} else {
							cmd.PrintErrf("Invalid credentials; %d attempt(s) left\n", remaining)
						}
					}
					return err
				}

				a.rehash(ctx, email, raw)
				cmd.Printf("Login succeeded for %s\n", account.NormalizeEmail(email))
				return nil
			})
		},
	}
}

// rehash re-encodes a password stored with parameters other than the
// configured ones. Failures are logged; the login already succeeded.
func (a *app) rehash(ctx context.Context, email, raw string) {
	stored, found, err := a.service.GetEncodedPassword(ctx, email)
	if err != nil || !found || !a.encoder.NeedsRehash(stored) {
		return
	}
	encoded, err := a.encoder.Encode(raw)
	if err == nil {
		_, err = a.service.ChangePassword(ctx, email, encoded)
	}
	if err != nil {
		a.logger.WarnContext(ctx, "password rehash failed", "email", account.NormalizeEmail(email), "error", err)
	}
}

// accountView is the printable form of an account; the password is omitted.
type accountView struct {
	ID                 string    `yaml:"id" json:"id"`
	Email              string    `yaml:"email" json:"email"`
	Enabled            bool      `yaml:"enabled" json:"enabled"`
	Locked             bool      `yaml:"locked" json:"locked"`
	LoginAttempts      int       `yaml:"login_attempts" json:"login_attempts"`
	PasswordLastChange time.Time `yaml:"password_last_change" json:"password_last_change"`
	CreatedAt          time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt          time.Time `yaml:"updated_at" json:"updated_at"`
}

func newAccountView(acc account.Account, policy account.Policy) accountView {
	return accountView{
		ID:                 acc.ID.String(),
		Email:              acc.Email,
		Enabled:            acc.Enabled,
		Locked:             acc.IsLocked(policy),
		LoginAttempts:      acc.LoginAttemptsCounter,
		PasswordLastChange: acc.PasswordLastChangeDate.UTC(),
		CreatedAt:          acc.CreatedAt.UTC(),
		UpdatedAt:          acc.UpdatedAt.UTC(),
	}
}

func newAccountShowCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show EMAIL",
		Short: "Show an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]
			return opts.runWithApp(cmd, func(ctx context.Context, a *app) error {
				acc, found, err := a.service.GetUser(ctx, email)
				if err != nil {
					return err
				}
				if !found {
					return oops.Code(account.CodeNotFound).
						With("email", account.NormalizeEmail(email)).
						Wrap(account.ErrNotFound)
				}

				view := newAccountView(acc, a.service.GetAuthenticationPolicy())
				var out []byte
				if jsonOutput {
					out, err = json.MarshalIndent(view, "", "  ")
					out = append(out, '\n')
				} else {
					out, err = yaml.Marshal(view)
				}
				if err != nil {
					return oops.Wrapf(err, "format account")
				}
				cmd.Print(string(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func newAccountStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status EMAIL",
		Short: "Show whether an account is enabled and locked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]
			return opts.runWithApp(cmd, func(ctx context.Context, a *app) error {
				enabled, err := a.service.IsActivated(ctx, email)
				if err != nil {
					return err
				}
				state, err := a.service.IsAccountLocked(ctx, email)
				if err != nil {
					return err
				}
				changed, _, err := a.service.GetPasswordLastChangeDate(ctx, email)
				if err != nil {
					return err
				}
				cmd.Printf("enabled: %t\nlock: %s\npassword_last_change: %s\n",
					enabled, state, changed.UTC().Format(time.RFC3339))
				return nil
			})
		},
	}
}

// encodeFromInput reads a raw password, checks it against the policy and
// encodes it.
func (a *app) encodeFromInput(cmd *cobra.Command) (string, error) {
	raw, err := readPassword(cmd)
	if err != nil {
		return "", err
	}
	if err := a.cfg.Policy.CheckPassword(raw); err != nil {
		return "", err
	}
	return a.encoder.Encode(raw)
}

// readPassword returns the first line of the command's input.
func readPassword(cmd *cobra.Command) (string, error) {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", oops.Code("PASSWORD_INPUT_MISSING").Wrapf(err, "read password from standard input")
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", oops.Code("PASSWORD_INPUT_MISSING").Errorf("password must not be empty")
	}
	return line, nil
}
