// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package queue carries embedding work between the import pipeline and
// whoever drains it: the pipeline itself in the default in-process setup,
// or a separate worker process when the Redis implementation is plugged
// in. The unit of work is a batch of content-item ids, not a generic job,
// so a foreign consumer on the same Redis key cannot be handed something
// it does not understand.
package queue

import (
	"context"
	"time"
)

// EmbedBatch is one batch of content items awaiting vectorization. Items
// are referenced by id; the consumer re-reads their text from the store,
// so a batch that sits in Redis across a pipeline restart stays valid.
type EmbedBatch struct {
	ItemIDs    []string  `json:"itemIds"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Queue hands embed batches from producer to consumer in FIFO order.
type Queue interface {
	// Enqueue appends a batch to the queue.
	Enqueue(ctx context.Context, batch EmbedBatch) error

	// Dequeue blocks until a batch is available or ctx is cancelled.
	Dequeue(ctx context.Context) (EmbedBatch, error)
}
