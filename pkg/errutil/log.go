// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

// Package errutil holds helpers for logging and asserting oops errors.
package errutil

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/samber/oops"
)

// LogError logs err at error level, expanding oops code and context.
func LogError(logger *slog.Logger, msg string, err error) {
	LogErrorContext(context.Background(), logger, msg, err)
}

// LogErrorContext is LogError with a context for trace correlation.
// Standard errors are logged by their message only.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(ctx, msg, Attrs(err)...)
}

// Attrs returns slog key/value pairs describing err. The oops context is
// emitted as a "context" group, one attribute per key, so handler
// ReplaceAttr hooks see each value.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil && code != "" {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		group := make([]any, 0, len(ctx))
		for _, key := range slices.Sorted(maps.Keys(ctx)) {
			group = append(group, slog.Any(key, ctx[key]))
		}
		attrs = append(attrs, slog.Group("context", group...))
	}
	return attrs
}
