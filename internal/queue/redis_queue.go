// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/northbound/archivist/internal/archiveerr"
	"github.com/northbound/archivist/internal/logger"
)

// DefaultKey is the Redis list the import pipeline and any external embed
// worker agree on.
const DefaultKey = "archivist:import:embed"

// RedisQueue implements Queue on a Redis list: RPUSH to enqueue, BLPOP to
// dequeue, batches serialized as JSON. Plugging it in lets a worker in
// another process drain the pipeline's embedding work.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue verifies the connection and returns a queue on key
// (DefaultKey when empty).
func NewRedisQueue(client *redis.Client, key string) (*RedisQueue, error) {
	if key == "" {
		key = DefaultKey
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "queue.NewRedisQueue", err)
	}
	logger.Printf("queue: redis embed queue on key %s", key)
	return &RedisQueue{client: client, key: key}, nil
}

// Enqueue appends a batch to the list.
func (r *RedisQueue) Enqueue(ctx context.Context, batch EmbedBatch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return archiveerr.New(archiveerr.KindInvalid, "queue.Enqueue", err)
	}
	if err := r.client.RPush(ctx, r.key, data).Err(); err != nil {
		return archiveerr.New(archiveerr.KindBackend, "queue.Enqueue", err)
	}
	return nil
}

// Dequeue blocks on BLPOP until a batch arrives or ctx is cancelled.
func (r *RedisQueue) Dequeue(ctx context.Context) (EmbedBatch, error) {
	val, err := r.client.BLPop(ctx, 0, r.key).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return EmbedBatch{}, archiveerr.New(archiveerr.KindCancelled, "queue.Dequeue", err)
		}
		if errors.Is(err, redis.Nil) {
			return EmbedBatch{}, archiveerr.New(archiveerr.KindCancelled, "queue.Dequeue", ctx.Err())
		}
		return EmbedBatch{}, archiveerr.New(archiveerr.KindBackend, "queue.Dequeue", err)
	}
	if len(val) < 2 {
		return EmbedBatch{}, archiveerr.New(archiveerr.KindBackend, "queue.Dequeue", fmt.Errorf("blpop returned %d elements", len(val)))
	}

	var batch EmbedBatch
	if err := json.Unmarshal([]byte(val[1]), &batch); err != nil {
		return EmbedBatch{}, archiveerr.New(archiveerr.KindInvalid, "queue.Dequeue", err)
	}
	return batch, nil
}
