// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"context"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/northbound/archivist/internal/logger"
)

// NewRedisClient creates a Redis client from environment variables.
// Reads REDIS_ADDR (default: 127.0.0.1:6379), REDIS_DB (default: 0), and
// REDIS_PASSWORD (optional). Redis backs the optional embedding cache and
// the optional durable queue; neither is required for the core to function.
func NewRedisClient(ctx context.Context) (*redis.Client, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	dbStr := os.Getenv("REDIS_DB")
	db := 0
	if dbStr != "" {
		parsed, err := strconv.Atoi(dbStr)
		if err != nil {
			logger.Warnf("NewRedisClient: invalid REDIS_DB value %q, using default 0", dbStr)
		} else {
			db = parsed
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	logger.Printf("NewRedisClient: connected to %s db=%d", addr, db)
	return client, nil
}
