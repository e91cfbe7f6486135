// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/authflows/authflows/internal/account"
	"github.com/authflows/authflows/pkg/errutil"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "correct horse battery\n"
)

func TestAccountCreate(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun(testPassword, "account", "create", "  Alice@Example.com ")
	assert.Contains(t, out, "Account alice@example.com created")

	acc, err := c.store.Find(context.Background(), testEmail)
	require.NoError(t, err)
	assert.False(t, acc.Enabled)
	assert.True(t, strings.HasPrefix(acc.EncodedPassword, "$argon2id$"))
	assert.NotContains(t, acc.EncodedPassword, "correct horse")

	t.Run("duplicate keeps stored password", func(t *testing.T) {
		_, _, err := c.run("another password\n", "account", "create", testEmail)
		errutil.AssertErrorCode(t, err, account.CodeAlreadyExists)

		again, ferr := c.store.Find(context.Background(), testEmail)
		require.NoError(t, ferr)
		assert.Equal(t, acc.EncodedPassword, again.EncodedPassword)
	})

	t.Run("enable flag", func(t *testing.T) {
		c.mustRun(testPassword, "account", "create", "--enable", "bob@example.com")
		bob, err := c.store.Find(context.Background(), "bob@example.com")
		require.NoError(t, err)
		assert.True(t, bob.Enabled)
	})
}

func TestAccountCreate_Rejections(t *testing.T) {
	c := newCLI(t)

	tests := []struct {
		name  string
		stdin string
		email string
		code  string
	}{
		{"short password", "short\n", testEmail, account.CodePolicyViolation},
		{"no password", "", testEmail, "PASSWORD_INPUT_MISSING"},
		{"blank line", "\n", testEmail, "PASSWORD_INPUT_MISSING"},
		{"bad email", testPassword, "not-an-email", account.CodeInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := c.run(tt.stdin, "account", "create", tt.email)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
	assert.Zero(t, c.store.Len())
}

func TestAccountLifecycle(t *testing.T) {
	c := newCLI(t)
	c.mustRun(testPassword, "account", "create", testEmail)

	_, _, err := c.run(testPassword, "account", "login", testEmail)
	errutil.AssertErrorCode(t, err, account.CodeDisabled)

	assert.Contains(t, c.mustRun("", "account", "enable", testEmail), "enabled")
	c.mustRun("", "account", "enable", testEmail)

	out := c.mustRun("", "account", "status", testEmail)
	assert.Contains(t, out, "enabled: true")
	assert.Contains(t, out, "lock: unlocked")

	assert.Contains(t, c.mustRun(testPassword, "account", "login", testEmail), "Login succeeded")

	// Threshold is 3 in the test config.
	for i := 1; i <= 3; i++ {
		_, stderr, err := c.run("wrong password\n", "account", "login", testEmail)
		errutil.AssertErrorCode(t, err, account.CodeInvalidCredentials)
		if i < 3 {
			assert.Contains(t, stderr, "attempt(s) left")
		} else {
			assert.Contains(t, stderr, "now locked")
		}
	}

	out = c.mustRun("", "account", "status", testEmail)
	assert.Contains(t, out, "lock: locked")

	_, _, err = c.run(testPassword, "account", "login", testEmail)
	errutil.AssertErrorCode(t, err, account.CodeLocked)

	c.mustRun("new password 42\n", "account", "passwd", testEmail)
	out = c.mustRun("", "account", "status", testEmail)
	assert.Contains(t, out, "lock: locked", "password change does not unlock")

	c.mustRun("", "account", "reset-attempts", testEmail)
	c.mustRun("new password 42\n", "account", "login", testEmail)

	_, _, err = c.run(testPassword, "account", "login", testEmail)
	errutil.AssertErrorCode(t, err, account.CodeInvalidCredentials)

	c.mustRun("", "account", "disable", testEmail)
	out = c.mustRun("", "account", "status", testEmail)
	assert.Contains(t, out, "enabled: false")

	c.mustRun("", "account", "delete", testEmail)
	_, _, err = c.run("", "account", "show", testEmail)
	errutil.AssertErrorCode(t, err, account.CodeNotFound)
}

func TestAccountCommands_UnknownAccount(t *testing.T) {
	c := newCLI(t)

	for _, args := range [][]string{
		{"account", "enable", testEmail},
		{"account", "disable", testEmail},
		{"account", "delete", testEmail},
		{"account", "reset-attempts", testEmail},
		{"account", "status", testEmail},
		{"account", "show", testEmail},
		{"account", "login", testEmail},
		{"account", "passwd", testEmail},
	} {
		t.Run(args[1], func(t *testing.T) {
			_, _, err := c.run(testPassword, args...)
			errutil.AssertErrorCode(t, err, account.CodeNotFound)
		})
	}
}

func TestAccountShow(t *testing.T) {
	c := newCLI(t)
	c.mustRun(testPassword, "account", "create", "--enable", testEmail)

	var view map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(c.mustRun("", "account", "show", testEmail)), &view))
	assert.Equal(t, testEmail, view["email"])
	assert.Equal(t, true, view["enabled"])
	assert.Equal(t, false, view["locked"])
	assert.Equal(t, 0, view["login_attempts"])
	assert.NotContains(t, view, "encoded_password")

	out := c.mustRun("", "account", "show", "--json", testEmail)
	var jsonView accountView
	require.NoError(t, json.Unmarshal([]byte(out), &jsonView))
	assert.Equal(t, testEmail, jsonView.Email)
	assert.Len(t, jsonView.ID, 26)
	assert.False(t, jsonView.PasswordLastChange.IsZero())
}

func TestAccountLogin_RehashesOutdatedEncoding(t *testing.T) {
	c := newCLI(t)
	c.mustRun(testPassword, "account", "create", "--enable", testEmail)

	before, err := c.store.Find(context.Background(), testEmail)
	require.NoError(t, err)
	assert.Contains(t, before.EncodedPassword, "m=64,t=1,p=1")

	c.config = c.writeConfig(strings.Replace(testConfig, "time: 1", "time: 2", 1))
	c.mustRun(testPassword, "account", "login", testEmail)

	after, err := c.store.Find(context.Background(), testEmail)
	require.NoError(t, err)
	assert.Contains(t, after.EncodedPassword, "m=64,t=2,p=1")
	assert.Zero(t, after.LoginAttemptsCounter)

	c.mustRun(testPassword, "account", "login", testEmail)
}

func TestMetricsTextfile(t *testing.T) {
	c := newCLI(t)
	path := filepath.Join(t.TempDir(), "authflows.prom")

	c.mustRun(testPassword, "--metrics-textfile", path, "account", "create", testEmail)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `authflows_account_operations_total{operation="create_account",result="ok"} 1`)
}
