// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package importpipeline

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/northbound/archivist/internal/archiveerr"
	"github.com/northbound/archivist/internal/embeddings"
	"github.com/northbound/archivist/internal/logger"
	"github.com/northbound/archivist/internal/queue"
	"github.com/northbound/archivist/internal/store"
)

// ImportOptions configures one Import call.
type ImportOptions struct {
	ParseOptions
	Source    string
	BatchSize int
}

const defaultBatchSize = 16

func (o ImportOptions) withDefaults() ImportOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.Source == "" {
		o.Source = "import"
	}
	return o
}

// Pipeline walks a filesystem root, detects each file's format, parses it
// into units, persists them as content items, and (unless SkipEmbeddings)
// embeds whatever content items still lack a vector — the same
// missing-embedding-only contract the Archive Indexer uses, so reruns
// after a partial failure never re-embed already-embedded items.
type Pipeline struct {
	store    *store.Store
	embedder embeddings.Embedder
	registry *Registry

	// EmbedQueue, when set, routes embedding batches through a Queue
	// instead of processing them inline (New leaves it nil; cmd/archivist
	// sets a queue.MemoryQueue, or a queue.RedisQueue when
	// ARCHIVIST_IMPORT_QUEUE=redis): one job per batch is
	// enqueued, then drained by the same call before Import returns. This
	// keeps Import's synchronous contract but lets a multi-process
	// deployment swap in RedisQueue so a separate worker process can drain
	// the same queue key.
	EmbedQueue queue.Queue
}

func New(s *store.Store, embedder embeddings.Embedder, registry *Registry) *Pipeline {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Pipeline{store: s, embedder: embedder, registry: registry}
}

// Import walks root, parses every file a registered parser claims, and
// drives job through the import_jobs state machine: pending -> processing
// -> completed/failed. It returns the final job state.
func (p *Pipeline) Import(ctx context.Context, root string, opts ImportOptions) (store.ImportJob, error) {
	opts = opts.withDefaults()

	job := store.ImportJob{
		ID:         uuid.New().String(),
		Status:     store.ImportPending,
		SourceType: opts.Source,
		SourcePath: root,
		SourceName: filepath.Base(root),
		CreatedAt:  time.Now(),
	}
	if err := p.store.CreateImportJob(ctx, job); err != nil {
		return job, err
	}

	paths, err := p.discoverFiles(root)
	if err != nil {
		job.Status = store.ImportFailed
		job.ErrorLog = append(job.ErrorLog, err.Error())
		p.store.UpdateImportJob(ctx, job)
		return job, err
	}

	now := time.Now()
	job.Status = store.ImportProcessing
	job.StartedAt = &now
	job.UnitsTotal = len(paths)
	job.CurrentPhase = "parsing"
	if err := p.store.UpdateImportJob(ctx, job); err != nil {
		return job, err
	}

	for _, path := range paths {
		if ctx.Err() != nil {
			job.Status = store.ImportCancelled
			p.store.UpdateImportJob(ctx, job)
			return job, ctx.Err()
		}

		parserImpl, det, ok := p.registry.DetectBest(path)
		if !ok {
			continue
		}

		units, err := parserImpl.Parse(ctx, path, opts.ParseOptions, nil)
		if err != nil {
			logger.Warnf("importpipeline: %s: %v", path, err)
			job.ErrorsCount++
			job.ErrorLog = append(job.ErrorLog, path+": "+err.Error())
			continue
		}

		for _, u := range units {
			id := uuid.New().String()
			item := store.ContentItem{
				ID:         id,
				Type:       u.Type,
				Source:     opts.Source,
				Text:       u.Text,
				Title:      u.Title,
				CreatedAt:  u.CreatedAt,
				AuthorName: u.AuthorName,
				URI:        u.URI,
				Metadata:   u.Metadata,
			}
			if item.Metadata == nil {
				item.Metadata = map[string]interface{}{}
			}
			item.Metadata["detectedSourceType"] = det.SourceType
			item.Metadata["detectionConfidence"] = det.Confidence

			if err := p.store.InsertContentItem(ctx, item); err != nil {
				logger.Warnf("importpipeline: insert content item %s: %v", path, err)
				job.ErrorsCount++
				continue
			}
			job.UnitsProcessed++
		}

		job.CurrentItem = path
		if err := p.store.UpdateImportJob(ctx, job); err != nil {
			return job, err
		}
	}

	if !opts.SkipEmbeddings {
		job.CurrentPhase = "embedding"
		if err := p.store.UpdateImportJob(ctx, job); err != nil {
			return job, err
		}
		if err := p.embedPending(ctx, opts.Source, opts.BatchSize); err != nil {
			job.Status = store.ImportFailed
			job.ErrorLog = append(job.ErrorLog, err.Error())
			p.store.UpdateImportJob(ctx, job)
			return job, err
		}
	}

	completed := time.Now()
	job.Status = store.ImportCompleted
	job.CompletedAt = &completed
	job.Progress = 1.0
	job.CurrentPhase = "done"
	if err := p.store.UpdateImportJob(ctx, job); err != nil {
		return job, err
	}
	return job, nil
}

func (p *Pipeline) discoverFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if isTemporaryFile(path) {
			return nil
		}
		if _, _, ok := p.registry.DetectBest(path); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "importpipeline.discoverFiles", err)
	}
	return paths, nil
}

// embedPending embeds every content item of source still missing an
// embedding, batched the same way the indexer batches messages. When
// EmbedQueue is set, each batch is routed through it rather than processed
// directly in place.
func (p *Pipeline) embedPending(ctx context.Context, source string, batchSize int) error {
	pending, err := p.store.ContentItemsWithoutEmbedding(ctx, source)
	if err != nil {
		return err
	}

	var batches [][]store.ContentItem
	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batches = append(batches, pending[start:end])
	}

	if p.EmbedQueue == nil {
		for _, batch := range batches {
			if err := p.processEmbedBatch(ctx, batch); err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		return nil
	}
	return p.embedBatchesViaQueue(ctx, batches)
}

// embedBatchesViaQueue enqueues one EmbedBatch per batch, then drains the
// same number of batches back off the queue and processes them. With
// MemoryQueue this is enqueue-then-immediately-dequeue in the same call;
// with RedisQueue a separate worker process draining the same key could
// take any given batch instead, which is the point of making the queue
// pluggable while the default path stays single-process.
func (p *Pipeline) embedBatchesViaQueue(ctx context.Context, batches [][]store.ContentItem) error {
	byID := make(map[string]store.ContentItem, len(batches))
	for _, batch := range batches {
		ids := make([]string, len(batch))
		for i, item := range batch {
			ids[i] = item.ID
			byID[item.ID] = item
		}
		if err := p.EmbedQueue.Enqueue(ctx, queue.EmbedBatch{ItemIDs: ids, EnqueuedAt: time.Now()}); err != nil {
			return fmt.Errorf("enqueue embed batch: %w", err)
		}
	}

	for range batches {
		eb, err := p.EmbedQueue.Dequeue(ctx)
		if err != nil {
			return fmt.Errorf("dequeue embed batch: %w", err)
		}
		batch := make([]store.ContentItem, 0, len(eb.ItemIDs))
		for _, id := range eb.ItemIDs {
			if item, ok := byID[id]; ok {
				batch = append(batch, item)
			}
		}
		if err := p.processEmbedBatch(ctx, batch); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// processEmbedBatch embeds one batch of content items and upserts their
// vectors. An item whose embedding fails is never given a
// fabricated zero vector: it is omitted from the vector index upsert and
// its own embedding_id, and stamped embeddingFailed instead, while the
// rest of the batch proceeds.
func (p *Pipeline) processEmbedBatch(ctx context.Context, batch []store.ContentItem) error {
	if len(batch) == 0 {
		return nil
	}

	texts := make([]string, len(batch))
	for i, item := range batch {
		texts[i] = item.Text
	}

	vectors := make([][]float32, len(texts))
	ok := make([]bool, len(texts))
	for i, t := range texts {
		pieces := embeddings.SplitForEmbedding(t, embeddings.DefaultMaxChunkChars)
		if len(pieces) == 1 {
			v, err := p.embedder.EmbedText(ctx, t)
			if err != nil {
				logger.Warnf("importpipeline: embed failed, storing without embedding: %v", err)
				continue
			}
			vectors[i] = v
			ok[i] = true
			continue
		}
		vs, err := p.embedder.EmbedBatch(ctx, pieces)
		if err != nil {
			logger.Warnf("importpipeline: batch embed failed, storing without embedding: %v", err)
			continue
		}
		vectors[i] = embeddings.Centroid(vs)
		ok[i] = true
	}

	var ids []string
	var upsertVectors [][]float32
	var payloads []map[string]string
	for i, item := range batch {
		if !ok[i] {
			if err := p.store.MarkContentItemEmbeddingFailed(ctx, item.ID); err != nil {
				return err
			}
			continue
		}
		id := uuid.New().String()
		if err := p.store.SetContentItemEmbedding(ctx, item.ID, id); err != nil {
			return err
		}
		ids = append(ids, id)
		upsertVectors = append(upsertVectors, vectors[i])
		payloads = append(payloads, map[string]string{"type": item.Type, "source": item.Source})
	}
	if p.store.Vector != nil && len(ids) > 0 {
		if err := p.store.Vector.UpsertBatch(ctx, store.GranularityContentItem, ids, upsertVectors, payloads); err != nil {
			return err
		}
	}
	return nil
}
