// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

// Package redis implements account.Store on Redis. Each account is one hash
// keyed by prefix + normalized email; conditional writes run as Lua scripts
// so existence checks and writes are atomic.
package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/authflows/authflows/internal/account"
)

// DefaultKeyPrefix namespaces account hashes.
const DefaultKeyPrefix = "authflows:account:"

const (
	fieldID                     = "id"
	fieldEmail                  = "email"
	fieldEncodedPassword        = "encoded_password"
	fieldEnabled                = "enabled"
	fieldLoginAttemptsCounter   = "login_attempts_counter"
	fieldPasswordLastChangeDate = "password_last_change_date"
	fieldCreatedAt              = "created_at"
	fieldUpdatedAt              = "updated_at"
)

var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// ARGV[1..3] hold the expected encoded_password, enabled and
// login_attempts_counter; the remaining arguments are the new hash fields.
// Returns -1 when the hash is missing and 0 when it no longer matches.
var replaceScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'encoded_password', 'enabled', 'login_attempts_counter')
if not cur[1] then
  return -1
end
if cur[1] ~= ARGV[1] or cur[2] ~= ARGV[2] or cur[3] ~= ARGV[3] then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 4))
return 1
`)

// ARGV[1] is the event time in unix microseconds; updated_at only moves forward.
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
redis.call('HINCRBY', KEYS[1], 'login_attempts_counter', 1)
local at = tonumber(ARGV[1])
local prev = tonumber(redis.call('HGET', KEYS[1], 'updated_at') or '0')
if at > prev then
  redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
end
return redis.call('HGETALL', KEYS[1])
`)

// Store implements account.Store and account.AttemptsIncrementer.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// NewStore creates a Store over client.
func NewStore(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewClient parses a redis:// URL and checks the server answers a ping.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Errorf("redis url is required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").With("operation", "parse redis url").Wrap(err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("operation", "ping redis").Wrap(err)
	}
	return client, nil
}

func (s *Store) key(email string) string {
	return s.prefix + email
}

// Insert stores a new account.
func (s *Store) Insert(ctx context.Context, acc account.Account) error {
	created, err := insertScript.Run(ctx, s.client, []string{s.key(acc.Email)}, encode(acc)...).Int()
	if err != nil {
		return oops.With("operation", "insert account").With("email", acc.Email).Wrap(err)
	}
	if created == 0 {
		return account.ErrAlreadyExists
	}
	return nil
}

// Find returns the account for email.
func (s *Store) Find(ctx context.Context, email string) (account.Account, error) {
	fields, err := s.client.HGetAll(ctx, s.key(email)).Result()
	if err != nil {
		return account.Account{}, oops.With("operation", "find account").With("email", email).Wrap(err)
	}
	if len(fields) == 0 {
		return account.Account{}, account.ErrNotFound
	}
	return decode(fields)
}

// Update replaces the stored hash when it still matches prev.
func (s *Store) Update(ctx context.Context, prev, next account.Account) error {
	args := append([]any{prev.EncodedPassword, formatBool(prev.Enabled), strconv.Itoa(prev.LoginAttemptsCounter)},
		encode(next)...)
	replaced, err := replaceScript.Run(ctx, s.client, []string{s.key(next.Email)}, args...).Int()
	if err != nil {
		return oops.With("operation", "update account").With("email", next.Email).Wrap(err)
	}
	switch replaced {
	case -1:
		return account.ErrNotFound
	case 0:
		return account.ErrConflict
	}
	return nil
}

// Delete removes the account for email.
func (s *Store) Delete(ctx context.Context, email string) error {
	removed, err := s.client.Del(ctx, s.key(email)).Result()
	if err != nil {
		return oops.With("operation", "delete account").With("email", email).Wrap(err)
	}
	if removed == 0 {
		return account.ErrNotFound
	}
	return nil
}

// IncrementAttempts adds one to the failure counter inside a single script.
func (s *Store) IncrementAttempts(ctx context.Context, email string, at time.Time) (account.Account, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{s.key(email)}, formatTime(at)).StringSlice()
	if errors.Is(err, redis.Nil) {
		return account.Account{}, account.ErrNotFound
	}
	if err != nil {
		return account.Account{}, oops.With("operation", "increment attempts").With("email", email).Wrap(err)
	}

	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		fields[res[i]] = res[i+1]
	}
	return decode(fields)
}

// encode flattens acc into HSET field/value arguments.
func encode(acc account.Account) []any {
	return []any{
		fieldID, acc.ID.String(),
		fieldEmail, acc.Email,
		fieldEncodedPassword, acc.EncodedPassword,
		fieldEnabled, formatBool(acc.Enabled),
		fieldLoginAttemptsCounter, strconv.Itoa(acc.LoginAttemptsCounter),
		fieldPasswordLastChangeDate, formatTime(acc.PasswordLastChangeDate),
		fieldCreatedAt, formatTime(acc.CreatedAt),
		fieldUpdatedAt, formatTime(acc.UpdatedAt),
	}
}

func decode(fields map[string]string) (account.Account, error) {
	acc := account.Account{
		Email:           fields[fieldEmail],
		EncodedPassword: fields[fieldEncodedPassword],
		Enabled:         fields[fieldEnabled] == "1",
	}

	corrupt := func(field string, err error) (account.Account, error) {
		return account.Account{}, oops.Code("ACCOUNT_CORRUPT_RECORD").
			With("email", acc.Email).
			With("field", field).
			Wrap(err)
	}

	var err error
	if acc.ID, err = ulid.Parse(fields[fieldID]); err != nil {
		return corrupt(fieldID, err)
	}
	if acc.LoginAttemptsCounter, err = strconv.Atoi(fields[fieldLoginAttemptsCounter]); err != nil {
		return corrupt(fieldLoginAttemptsCounter, err)
	}
	if acc.PasswordLastChangeDate, err = parseTime(fields[fieldPasswordLastChangeDate]); err != nil {
		return corrupt(fieldPasswordLastChangeDate, err)
	}
	if acc.CreatedAt, err = parseTime(fields[fieldCreatedAt]); err != nil {
		return corrupt(fieldCreatedAt, err)
	}
	if acc.UpdatedAt, err = parseTime(fields[fieldUpdatedAt]); err != nil {
		return corrupt(fieldUpdatedAt, err)
	}
	return acc, nil
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Times are stored as unix microseconds so Lua can compare them as numbers.
func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}

func parseTime(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(n).UTC(), nil
}

// Compile-time interface checks.
var (
	_ account.Store               = (*Store)(nil)
	_ account.AttemptsIncrementer = (*Store)(nil)
)
