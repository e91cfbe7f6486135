// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

// Package config loads authflows configuration from a YAML file and command
// line flags. Flags that were set explicitly override the file; flag defaults
// only fill keys the file left out.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/authflows/authflows/internal/account"
	"github.com/authflows/authflows/internal/passwd"
)

const appName = "authflows"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
)

// Config is the full authflows configuration.
type Config struct {
	Policy  account.Policy `koanf:"policy" yaml:"policy"`
	Storage Storage        `koanf:"storage" yaml:"storage"`
	Log     Log            `koanf:"log" yaml:"log"`
	Passwd  passwd.Params  `koanf:"passwd" yaml:"passwd"`
}

// Storage selects and addresses the account store.
type Storage struct {
	Driver         string `koanf:"driver" yaml:"driver" jsonschema:"enum=memory,enum=postgres,enum=redis,enum=mongo"`
	DatabaseURL    string `koanf:"database_url" yaml:"database_url"`
	RedisURL       string `koanf:"redis_url" yaml:"redis_url"`
	RedisKeyPrefix string `koanf:"redis_key_prefix" yaml:"redis_key_prefix"`
	MongoURI       string `koanf:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase  string `koanf:"mongo_database" yaml:"mongo_database"`
	ConnectRetries uint64 `koanf:"connect_retries" yaml:"connect_retries"`
}

// Log configures the process logger.
type Log struct {
	Format       string `koanf:"format" yaml:"format" jsonschema:"enum=json,enum=text"`
	Level        string `koanf:"level" yaml:"level"`
	RedactEmails bool   `koanf:"redact_emails" yaml:"redact_emails"`
}

// Default returns the configuration used when nothing else is supplied.
func Default() Config {
	return Config{
		Policy: account.DefaultPolicy(),
		Storage: Storage{
			Driver:         DriverPostgres,
			RedisKeyPrefix: "authflows:account:",
			MongoDatabase:  appName,
			ConnectRetries: 5,
		},
		Log: Log{
			Format:       "json",
			Level:        "info",
			RedactEmails: true,
		},
		Passwd: passwd.DefaultParams(),
	}
}

// Validate checks the configuration for the selected driver.
func (c Config) Validate() error {
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	if err := c.Passwd.Validate(); err != nil {
		return err
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return missing("storage.database_url", "DATABASE_URL is not set and no database_url configured")
		}
	case DriverRedis:
		if c.Storage.RedisURL == "" {
			return missing("storage.redis_url", "redis_url is required for the redis driver")
		}
	case DriverMongo:
		if c.Storage.MongoURI == "" {
			return missing("storage.mongo_uri", "mongo_uri is required for the mongo driver")
		}
		if c.Storage.MongoDatabase == "" {
			return missing("storage.mongo_database", "mongo_database is required for the mongo driver")
		}
	default:
		return oops.Code("CONFIG_INVALID").
			With("key", "storage.driver").
			With("driver", c.Storage.Driver).
			Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").
			With("key", "log.format").
			Errorf("log format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

func missing(key, msg string) error {
	return oops.Code("CONFIG_MISSING").With("key", key).Errorf("%s", msg)
}

// DefaultPath returns the config file looked up when none is given:
// $XDG_CONFIG_HOME/authflows/config.yaml, falling back to ~/.config.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName, "config.yaml")
}

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"storage":         "storage.driver",
	"database-url":    "storage.database_url",
	"redis-url":       "storage.redis_url",
	"mongo-uri":       "storage.mongo_uri",
	"mongo-database":  "storage.mongo_database",
	"connect-retries": "storage.connect_retries",
	"log-format":      "log.format",
	"log-level":       "log.level",
	"redact-emails":   "log.redact_emails",
}

// RegisterFlags adds the configuration flags with defaults from Default.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("storage", d.Storage.Driver, "account store driver (memory, postgres, redis, mongo)")
	flags.String("database-url", "", "PostgreSQL connection string (defaults to $DATABASE_URL)")
	flags.String("redis-url", "", "Redis connection URL")
	flags.String("mongo-uri", "", "MongoDB connection URI")
	flags.String("mongo-database", d.Storage.MongoDatabase, "MongoDB database name")
	flags.Uint64("connect-retries", d.Storage.ConnectRetries, "storage connection attempts before giving up")
	flags.String("log-format", d.Log.Format, "log format (json, text)")
	flags.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	flags.Bool("redact-emails", d.Log.RedactEmails, "mask email addresses in logs")
}

// Load reads path (optional) and flags (optional) on top of Default.
// An empty path falls back to DefaultPath when that file exists.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := loadFile(k, path, explicit); err != nil {
		return Config{}, err
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}

	if cfg.Storage.DatabaseURL == "" {
		cfg.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string, explicit bool) error {
	provider := file.Provider(path)
	data, err := provider.ReadBytes()
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	if err := ValidateSchema(data); err != nil {
		return oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
	}
	if err := k.Load(provider, yaml.Parser()); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
