// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package errutil_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"

	"github.com/authflows/authflows/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("MY_CODE").Errorf("test error")
	errutil.AssertErrorCode(t, err, "MY_CODE")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("email", "a@x.com").Errorf("test error")
	errutil.AssertErrorContext(t, err, "email", "a@x.com")
}

func TestAssertCodedError_WrappedSentinel(t *testing.T) {
	sentinel := errors.New("not found")
	err := oops.Code("ACCOUNT_NOT_FOUND").Wrap(sentinel)
	errutil.AssertCodedError(t, err, sentinel, "ACCOUNT_NOT_FOUND")
}

func TestAssertErrorCode_InnermostCodeWins(t *testing.T) {
	inner := oops.Code("PASSWD_INVALID_PARAMS").With("field", "time").Errorf("bad")
	err := oops.Code("CONFIG_INVALID").With("path", "/etc/authflows.yaml").Wrap(inner)

	errutil.AssertErrorCode(t, err, "PASSWD_INVALID_PARAMS")
	errutil.AssertErrorContext(t, err, "field", "time")
	errutil.AssertErrorContext(t, err, "path", "/etc/authflows.yaml")
}
