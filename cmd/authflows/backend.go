// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/authflows/authflows/internal/account"
	"github.com/authflows/authflows/internal/account/memory"
	"github.com/authflows/authflows/internal/account/mongo"
	"github.com/authflows/authflows/internal/account/postgres"
	"github.com/authflows/authflows/internal/account/redis"
	"github.com/authflows/authflows/internal/config"
	"github.com/authflows/authflows/internal/store"
)

// disconnectTimeout bounds the cleanup of network clients.
const disconnectTimeout = 5 * time.Second

// openStore connects to the backend selected by cfg.Storage.Driver.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (account.Store, func(), error) {
	sc := cfg.Storage
	switch sc.Driver {
	case config.DriverMemory:
		logger.Warn("memory store selected, accounts are lost when the process exits")
		return memory.NewStore(), func() {}, nil

	case config.DriverPostgres:
		opts := store.DefaultConnectOptions()
		opts.MaxRetries = sc.ConnectRetries
		opts.Logger = logger
		pool, err := store.Connect(ctx, sc.DatabaseURL, opts)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewStore(pool), pool.Close, nil

	case config.DriverRedis:
		client, err := redis.NewClient(ctx, sc.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close redis client", "error", err)
			}
		}
		return redis.NewStore(client, redis.WithKeyPrefix(sc.RedisKeyPrefix)), closeFn, nil

	case config.DriverMongo:
		client, err := mongo.Connect(ctx, sc.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			dctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
			defer cancel()
			if err := client.Disconnect(dctx); err != nil {
				logger.Warn("failed to disconnect mongo client", "error", err)
			}
		}
		s := mongo.NewStore(client.Database(sc.MongoDatabase).Collection(mongo.DefaultCollection))
		if err := s.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		return s, closeFn, nil
	}

	return nil, nil, oops.Code("CONFIG_INVALID").
		With("driver", sc.Driver).
		Errorf("unknown storage driver %q", sc.Driver)
}
