// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/northbound/archivist/internal/logger"
)

// CachedEmbedder wraps an Embedder with a Redis-backed cache keyed by the
// content hash of the input text. A cache hit skips the backend entirely;
// EmbedBatch serves hits from the cache and sends all misses to the inner
// embedder in a single EmbedBatch call.
type CachedEmbedder struct {
	inner Embedder
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedEmbedder wraps inner with a cache. ttl of zero disables
// expiration (entries live until evicted).
func NewCachedEmbedder(inner Embedder, rdb *redis.Client, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)

	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var v []float32
		if jsonErr := json.Unmarshal(raw, &v); jsonErr == nil {
			return v, nil
		}
	} else if err != redis.Nil {
		logger.Warnf("CachedEmbedder: cache read failed for key=%s: %v", key, err)
	}

	v, err := c.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(v); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			logger.Warnf("CachedEmbedder: cache write failed for key=%s: %v", key, err)
		}
	}
	return v, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		key := cacheKey(text)
		raw, err := c.rdb.Get(ctx, key).Bytes()
		if err != nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
			continue
		}
		var v []float32
		if jsonErr := json.Unmarshal(raw, &v); jsonErr != nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
			continue
		}
		result[i] = v
	}

	if len(missTexts) == 0 {
		return result, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		result[idx] = fresh[j]
		if raw, err := json.Marshal(fresh[j]); err == nil {
			if err := c.rdb.Set(ctx, cacheKey(missTexts[j]), raw, c.ttl).Err(); err != nil {
				logger.Warnf("CachedEmbedder: cache write failed: %v", err)
			}
		}
	}
	return result, nil
}

func (c *CachedEmbedder) Summarize(ctx context.Context, prompt string) (string, error) {
	return c.inner.Summarize(ctx, prompt)
}
