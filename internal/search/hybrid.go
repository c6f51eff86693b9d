// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package search implements hybrid search: dense ANN search and
// sparse full-text search over chunk content, combined by reciprocal-rank
// fusion.
package search

import (
	"context"
	"sort"
	"time"

	"github.com/northbound/archivist/internal/store"
)

const (
	DefaultDenseWeight  = 0.6
	DefaultSparseWeight = 0.25
	DefaultFusionK      = 60
)

// Options configures one hybrid search call; zero values fall back to
// the service defaults.
type Options struct {
	SearchLimit  int
	Limit        int
	DenseWeight  float64
	SparseWeight float64
	FusionK      int
	ContentTypes []string
	// Deadline, when non-zero, bounds the whole call; on expiry partial
	// results are returned with Partial=true rather than an error.
	Deadline time.Time
}

func (o Options) withDefaults() Options {
	if o.SearchLimit <= 0 {
		o.SearchLimit = 100
	}
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.DenseWeight == 0 && o.SparseWeight == 0 {
		o.DenseWeight = DefaultDenseWeight
		o.SparseWeight = DefaultSparseWeight
	}
	if o.FusionK <= 0 {
		o.FusionK = DefaultFusionK
	}
	return o
}

// Hit is one fused search result over chunk space.
type Hit struct {
	Chunk      store.Chunk
	FusedScore float64
	DenseRank  int // 0 means "not in dense top-N"
	SparseRank int // 0 means "not in sparse top-N"
}

// Result is the outcome of one hybrid search call.
type Result struct {
	Hits    []Hit
	Partial bool // true if the per-query deadline was hit before both passes finished
}

// ChunkStore is the slice of the content graph store the hybrid passes
// read. *store.Store satisfies it; tests substitute fakes.
type ChunkStore interface {
	SearchChunks(ctx context.Context, queryVec []float32, limit int, contentTypes []string) ([]store.SearchChunkHit, error)
	SearchChunksSparse(ctx context.Context, query string, limit int) ([]string, error)
	GetChunkByID(ctx context.Context, id string) (store.Chunk, error)
}

// Search runs the dense + sparse passes over chunk space and fuses them by
// reciprocal-rank fusion. queryText drives the sparse (FTS) pass; queryVec
// drives the dense (ANN) pass. If the store has no FTS index available
// (SearchChunksSparse errors), sparse is transparently disabled and the
// fused score reduces to the normalized dense rank contribution.
func Search(ctx context.Context, s ChunkStore, queryText string, queryVec []float32, opts Options) (Result, error) {
	opts = opts.withDefaults()

	denseHits, err := s.SearchChunks(ctx, queryVec, opts.SearchLimit, opts.ContentTypes)
	if err != nil {
		return Result{}, err
	}

	partial := false
	if deadlineExpired(opts.Deadline) {
		partial = true
	}

	var sparseIDs []string
	if !partial && queryText != "" {
		ids, sparseErr := s.SearchChunksSparse(ctx, queryText, opts.SearchLimit)
		if sparseErr == nil {
			sparseIDs = ids
		}
		// sparse unavailable (no FTS index, or query syntax rejected by
		// FTS5): fall through with sparseIDs empty, dense-only fusion.
	}
	if deadlineExpired(opts.Deadline) {
		partial = true
	}

	denseRank := make(map[string]int, len(denseHits))
	chunkByID := make(map[string]store.Chunk, len(denseHits))
	for i, h := range denseHits {
		denseRank[h.Chunk.ID] = i + 1
		chunkByID[h.Chunk.ID] = h.Chunk
	}
	sparseRank := make(map[string]int, len(sparseIDs))
	for i, id := range sparseIDs {
		sparseRank[id] = i + 1
	}

	union := make(map[string]bool, len(denseRank)+len(sparseRank))
	for id := range denseRank {
		union[id] = true
	}
	for id := range sparseRank {
		union[id] = true
	}

	var hits []Hit
	for id := range union {
		dr := denseRank[id]
		sr := sparseRank[id]
		fused := rrfContribution(opts.DenseWeight, dr, opts.FusionK) + rrfContribution(opts.SparseWeight, sr, opts.FusionK)
		chunk, ok := chunkByID[id]
		if !ok {
			// sparse-only hit: chunk row still needs fetching for display.
			c, fetchErr := s.GetChunkByID(ctx, id)
			if fetchErr != nil {
				continue
			}
			chunk = c
			chunkByID[id] = c
		}
		hits = append(hits, Hit{Chunk: chunk, FusedScore: fused, DenseRank: dr, SparseRank: sr})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].FusedScore > hits[j].FusedScore })
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}

	return Result{Hits: hits, Partial: partial}, nil
}

// rrfContribution is 0 when rank is 0 (missing from that pass), else
// weight * 1/(k+rank).
func rrfContribution(weight float64, rank, k int) float64 {
	if rank == 0 {
		return 0
	}
	return weight * (1.0 / float64(k+rank))
}

func deadlineExpired(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}
