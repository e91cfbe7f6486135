// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package account

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Default policy values.
const (
	DefaultMaxPasswordEntryAttempts      = 5
	DefaultPasswordMinLength             = 8
	DefaultPasswordMaxLength             = 64
	DefaultEncodedPasswordMaxLength      = 255
	DefaultRememberMeTokenValidityInDays = 30
)

// Policy is the authentication policy shared by every Service call.
// It is built once and never modified, so it is safe for concurrent use.
type Policy struct {
	// MaxPasswordEntryAttempts is the failure count at which an account is locked.
	MaxPasswordEntryAttempts int `koanf:"max_password_entry_attempts" yaml:"max_password_entry_attempts"`

	// PasswordMinLength and PasswordMaxLength bound raw passwords, in runes.
	PasswordMinLength int `koanf:"password_min_length" yaml:"password_min_length"`
	PasswordMaxLength int `koanf:"password_max_length" yaml:"password_max_length"`

	// EncodedPasswordMaxLength bounds the stored encoding, in bytes.
	EncodedPasswordMaxLength int `koanf:"encoded_password_max_length" yaml:"encoded_password_max_length"`

	// RememberMeTokenValidityInDays is advisory; token issuers read it.
	RememberMeTokenValidityInDays int `koanf:"remember_me_token_validity_in_days" yaml:"remember_me_token_validity_in_days"`
}

// DefaultPolicy returns the policy used when no configuration is supplied.
func DefaultPolicy() Policy {
	return Policy{
		MaxPasswordEntryAttempts:      DefaultMaxPasswordEntryAttempts,
		PasswordMinLength:             DefaultPasswordMinLength,
		PasswordMaxLength:             DefaultPasswordMaxLength,
		EncodedPasswordMaxLength:      DefaultEncodedPasswordMaxLength,
		RememberMeTokenValidityInDays: DefaultRememberMeTokenValidityInDays,
	}
}

// NewPolicy validates p and returns it.
func NewPolicy(p Policy) (Policy, error) {
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks that the policy limits are coherent.
func (p Policy) Validate() error {
	if p.MaxPasswordEntryAttempts < 1 {
		return oops.Code(CodeInvalidPolicy).
			With("max_password_entry_attempts", p.MaxPasswordEntryAttempts).
			Errorf("max password entry attempts must be at least 1")
	}
	if p.PasswordMinLength < 1 {
		return oops.Code(CodeInvalidPolicy).
			With("password_min_length", p.PasswordMinLength).
			Errorf("password min length must be at least 1")
	}
	if p.PasswordMaxLength < p.PasswordMinLength {
		return oops.Code(CodeInvalidPolicy).
			With("password_min_length", p.PasswordMinLength).
			With("password_max_length", p.PasswordMaxLength).
			Errorf("password max length must not be below min length")
	}
	if p.EncodedPasswordMaxLength < 1 {
		return oops.Code(CodeInvalidPolicy).
			With("encoded_password_max_length", p.EncodedPasswordMaxLength).
			Errorf("encoded password max length must be at least 1")
	}
	if p.RememberMeTokenValidityInDays < 0 {
		return oops.Code(CodeInvalidPolicy).
			With("remember_me_token_validity_in_days", p.RememberMeTokenValidityInDays).
			Errorf("remember-me token validity cannot be negative")
	}
	return nil
}

// CheckPassword validates a raw password before it is encoded.
func (p Policy) CheckPassword(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return policyError(CodePolicyViolation, "password", "password cannot be empty")
	}
	n := utf8.RuneCountInString(raw)
	if n < p.PasswordMinLength {
		return policyError(CodePolicyViolation, "password_min_length",
			"password must be at least %d characters", p.PasswordMinLength)
	}
	if n > p.PasswordMaxLength {
		return policyError(CodePolicyViolation, "password_max_length",
			"password must be at most %d characters", p.PasswordMaxLength)
	}
	return nil
}

// CheckEncodedPassword validates an encoded password before it is stored.
func (p Policy) CheckEncodedPassword(encoded string) error {
	if strings.TrimSpace(encoded) == "" {
		return policyError(CodePolicyViolation, "encoded_password", "encoded password cannot be empty")
	}
	if strings.TrimSpace(encoded) != encoded {
		return policyError(CodePolicyViolation, "encoded_password",
			"encoded password cannot have surrounding whitespace")
	}
	if len(encoded) > p.EncodedPasswordMaxLength {
		return policyError(CodePolicyViolation, "encoded_password_max_length",
			"encoded password must be at most %d bytes", p.EncodedPasswordMaxLength)
	}
	return nil
}

// RememberMeTokenValidity returns the remember-me validity as a duration.
func (p Policy) RememberMeTokenValidity() time.Duration {
	return time.Duration(p.RememberMeTokenValidityInDays) * 24 * time.Hour
}
