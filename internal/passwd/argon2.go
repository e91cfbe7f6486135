// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

// Package passwd encodes raw passwords into the opaque strings the account
// service stores. The account core never sees raw passwords.
package passwd

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"

	"github.com/authflows/authflows/internal/account"
)

// Params are the argon2id cost parameters.
type Params struct {
	Time    uint32 `koanf:"time" yaml:"time" json:"time"`
	Memory  uint32 `koanf:"memory" yaml:"memory" json:"memory"` // KiB
	Threads uint8  `koanf:"threads" yaml:"threads" json:"threads"`
	SaltLen uint32 `koanf:"salt_len" yaml:"salt_len" json:"salt_len"`
	KeyLen  uint32 `koanf:"key_len" yaml:"key_len" json:"key_len"`
}

// DefaultParams follow the OWASP argon2id baseline.
func DefaultParams() Params {
	return Params{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		SaltLen: 16,
		KeyLen:  32,
	}
}

// Validate rejects parameters argon2 cannot run with.
func (p Params) Validate() error {
	switch {
	case p.Time == 0:
		return oops.Code("PASSWD_INVALID_PARAMS").With("field", "time").Errorf("time must be at least 1")
	case p.Memory < 8*uint32(p.Threads):
		return oops.Code("PASSWD_INVALID_PARAMS").With("field", "memory").Errorf("memory must be at least 8 KiB per thread")
	case p.Threads == 0:
		return oops.Code("PASSWD_INVALID_PARAMS").With("field", "threads").Errorf("threads must be at least 1")
	case p.SaltLen < 8:
		return oops.Code("PASSWD_INVALID_PARAMS").With("field", "salt_len").Errorf("salt must be at least 8 bytes")
	case p.KeyLen < 16:
		return oops.Code("PASSWD_INVALID_PARAMS").With("field", "key_len").Errorf("key must be at least 16 bytes")
	}
	return nil
}

// Encoder produces and verifies PHC-formatted argon2id strings:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
type Encoder struct {
	params Params
}

// NewEncoder creates an Encoder with params.
func NewEncoder(params Params) (*Encoder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Encoder{params: params}, nil
}

// Encode derives a fresh salted key for raw.
func (e *Encoder) Encode(raw string) (string, error) {
	if raw == "" {
		return "", oops.Code("PASSWD_EMPTY").Errorf("password cannot be empty")
	}

	salt := make([]byte, e.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("PASSWD_SALT_FAILED").Wrap(err)
	}
	key := argon2.IDKey([]byte(raw), salt, e.params.Time, e.params.Memory, e.params.Threads, e.params.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		e.params.Memory,
		e.params.Time,
		e.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether raw matches encoded. A malformed encoded string is
// an error; a mismatch is not.
func (e *Encoder) Verify(raw, encoded string) (bool, error) {
	d, err := decode(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(raw), d.salt, d.params.Time, d.params.Memory, d.params.Threads, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(key, d.key) == 1, nil
}

// NeedsRehash reports whether encoded was produced with other parameters.
func (e *Encoder) NeedsRehash(encoded string) bool {
	d, err := decode(encoded)
	if err != nil {
		return true
	}
	p := d.params
	return p.Time != e.params.Time || p.Memory != e.params.Memory ||
		p.Threads != e.params.Threads || uint32(len(d.key)) != e.params.KeyLen
}

// Checker adapts Verify for account.Service.AttemptLogin.
func (e *Encoder) Checker(raw string) account.CredentialChecker {
	return func(encoded string) (bool, error) {
		return e.Verify(raw, encoded)
	}
}

type decoded struct {
	params Params
	salt   []byte
	key    []byte
}

func decode(encoded string) (decoded, error) {
	invalid := func(format string, args ...any) (decoded, error) {
		return decoded{}, oops.Code("PASSWD_INVALID_ENCODING").Errorf(format, args...)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return invalid("invalid encoded password format")
	}
	if parts[1] != "argon2id" {
		return invalid("unsupported algorithm %q", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return invalid("invalid version segment %q", parts[2])
	}
	if version != argon2.Version {
		return invalid("unsupported argon2 version %d", version)
	}

	var (
		d       decoded
		threads uint32
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &d.params.Memory, &d.params.Time, &threads); err != nil {
		return invalid("invalid parameter segment %q", parts[3])
	}
	if threads == 0 || threads > 255 {
		return invalid("threads value %d out of range", threads)
	}
	d.params.Threads = uint8(threads)

	var err error
	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return invalid("invalid salt encoding")
	}
	if d.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return invalid("invalid key encoding")
	}
	if len(d.key) == 0 || len(d.key) > 1<<10 {
		return invalid("invalid key length %d", len(d.key))
	}
	return d, nil
}
