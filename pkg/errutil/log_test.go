// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authflows/authflows/pkg/errutil"
)

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("ACCOUNT_STORAGE_FAILED").
		With("email", "a@x.com").
		Errorf("connection refused")

	errutil.LogError(logger, "account storage failure", err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Equal(t, "account storage failure", logEntry["msg"])
	assert.Equal(t, "ACCOUNT_STORAGE_FAILED", logEntry["code"])
	require.Contains(t, logEntry, "context")
	assert.Equal(t, "a@x.com", logEntry["context"].(map[string]any)["email"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Contains(t, logEntry["error"], "standard error")
	assert.NotContains(t, logEntry, "code")
}

func TestLogErrorContext_UncodedOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogErrorContext(context.Background(), logger, "failed", oops.Errorf("plain"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "plain", logEntry["error"])
	assert.NotContains(t, logEntry, "code")
}

func TestAttrs_ContextGroupVisibleToReplaceAttr(t *testing.T) {
	var buf bytes.Buffer
	var seen []string
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "email" {
				seen = append(seen, strings.Join(groups, "."))
				return slog.String("email", "masked")
			}
			return a
		},
	}))

	err := oops.Code("ACCOUNT_STORAGE_FAILED").
		With("operation", "get_user").
		With("email", "a@x.com").
		Errorf("connection refused")
	errutil.LogError(logger, "account storage failure", err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	ctx := logEntry["context"].(map[string]any)
	assert.Equal(t, "masked", ctx["email"])
	assert.Equal(t, "get_user", ctx["operation"])
	assert.Equal(t, []string{"context"}, seen)
	assert.NotContains(t, buf.String(), "a@x.com")
}
