// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package kv

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/jeranaias/turochat/internal/config"
)

// Open creates the backend selected by cfg.Storage.Driver.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	driver := strings.ToLower(cfg.Storage.Driver)

	switch driver {
	case config.DriverMemory:
		return NewMemoryBackend(), nil

	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Storage.RedisAddr, err)
		}
		return NewRedisBackend(client), nil

	case config.DriverFile, config.DriverSQLite, config.DriverBolt:
		path, err := cfg.StoragePath()
		if err != nil {
			return nil, err
		}
		switch driver {
		case config.DriverSQLite:
			return NewSQLiteBackend(ctx, path)
		case config.DriverBolt:
			return NewBoltBackend(path)
		default:
			return NewFileBackend(path)
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDriver, cfg.Storage.Driver)
	}
}
