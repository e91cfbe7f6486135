// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/authflows/authflows/internal/account"
)

// policyView adds the derived remember-me duration to the policy fields.
type policyView struct {
	account.Policy          `yaml:",inline"`
	RememberMeTokenValidity string `yaml:"remember_me_token_validity"`
}

// newPolicyCmd creates the policy command group.
func newPolicyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the authentication policy",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective authentication policy as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(policyView{
				Policy:                  cfg.Policy,
				RememberMeTokenValidity: cfg.Policy.RememberMeTokenValidity().String(),
			})
			if err != nil {
				return oops.Wrapf(err, "format policy")
			}
			cmd.Print(string(out))
			return nil
		},
	})

	return cmd
}
