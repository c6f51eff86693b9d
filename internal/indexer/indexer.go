// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package indexer implements the archive indexer: it orchestrates
// extraction, chunking, block extraction, and embedding, persisting
// everything into the Content Graph Store with progress reporting and
// cooperative cancellation.
package indexer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/northbound/archivist/internal/archiveerr"
	"github.com/northbound/archivist/internal/blocks"
	"github.com/northbound/archivist/internal/content"
	"github.com/northbound/archivist/internal/embeddings"
	"github.com/northbound/archivist/internal/logger"
	"github.com/northbound/archivist/internal/store"
	"github.com/northbound/archivist/internal/walker"
)

// Phase names the indexer's state machine steps, in order.
type Phase string

const (
	PhaseIdle                   Phase = "idle"
	PhaseInitializing           Phase = "initializing"
	PhaseLoadingModel           Phase = "loading_model"
	PhaseExtracting             Phase = "extracting"
	PhaseEmbeddingMessages      Phase = "embedding_messages"
	PhaseEmbeddingParagraphs    Phase = "embedding_paragraphs"
	PhaseExtractingContentBlocks Phase = "extracting_content_blocks"
	PhaseDone                   Phase = "done"
	PhaseFailed                 Phase = "failed"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Progress is one snapshot of indexer state, emitted to the injected sink
// on every phase change and batch boundary. Current/Total are monotonic
// within a phase.
type Progress struct {
	Status      Status
	Phase       Phase
	Current     int
	Total       int
	CurrentItem string
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Options configures one Run call; batch size is a performance knob, never
// a correctness knob.
type Options struct {
	InterestingOnly         bool
	IncludeParagraphs       bool
	IncludeSentences        bool
	UseContentAwareChunking bool
	ExtractContentBlocks    bool
	BatchSize               int
}

const DefaultBatchSize = 32

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Indexer orchestrates Walker -> (Chunker + Block Extractor + Embedding
// Client) -> Store, re-runnable safely since every embed step only touches
// rows missing an embedding.
type Indexer struct {
	store       *store.Store
	embedder    embeddings.Embedder
	archiveRoot string
	source      string
}

func New(s *store.Store, embedder embeddings.Embedder, archiveRoot, source string) *Indexer {
	return &Indexer{store: s, embedder: embedder, archiveRoot: archiveRoot, source: source}
}

func emit(sink chan<- Progress, p Progress) {
	if sink == nil {
		return
	}
	select {
	case sink <- p:
	default:
		// a slow/absent consumer never blocks indexing; the caller only
		// ever gets best-effort progress.
	}
}

// Run executes the full pipeline over the archiver's root. cancelled is
// polled between batches (cooperative cancellation): when it returns true
// the in-flight batch still completes and commits before the job moves to
// StatusCancelled.
func (ix *Indexer) Run(ctx context.Context, opts Options, sink chan<- Progress, cancelled func() bool) error {
	opts = opts.withDefaults()
	started := time.Now()
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	emit(sink, Progress{Status: StatusRunning, Phase: PhaseInitializing, StartedAt: started})
	emit(sink, Progress{Status: StatusRunning, Phase: PhaseLoadingModel, StartedAt: started})

	emit(sink, Progress{Status: StatusRunning, Phase: PhaseExtracting, StartedAt: started})
	results := ix.collectConversations(ctx)
	if len(results) == 0 {
		emit(sink, Progress{Status: StatusComplete, Phase: PhaseDone, Current: 0, Total: 0, StartedAt: started, CompletedAt: time.Now()})
		return nil
	}

	total := len(results)
	for i, r := range results {
		if r.Err != nil {
			logger.Warnf("indexer: skipping conversation folder %s: %v", r.Folder, r.Err)
			continue
		}
		emit(sink, Progress{Status: StatusRunning, Phase: PhaseExtracting, Current: i + 1, Total: total, CurrentItem: r.Folder, StartedAt: started})

		if err := ix.indexConversation(ctx, r, opts, sink, started, cancelled); err != nil {
			if errKind, ok := archiveerr.Of(err); ok && errKind == archiveerr.KindFatal {
				emit(sink, Progress{Status: StatusFailed, Phase: PhaseFailed, Error: err.Error(), StartedAt: started, CompletedAt: time.Now()})
				return err
			}
			logger.Warnf("indexer: conversation %s: %v", r.Conversation.ID, err)
			continue
		}

		if cancelled() {
			emit(sink, Progress{Status: StatusCancelled, Phase: PhaseFailed, Current: i + 1, Total: total, StartedAt: started, CompletedAt: time.Now()})
			return archiveerr.New(archiveerr.KindCancelled, "indexer.Run", nil)
		}
	}

	emit(sink, Progress{Status: StatusComplete, Phase: PhaseDone, Current: total, Total: total, StartedAt: started, CompletedAt: time.Now()})
	return nil
}

func (ix *Indexer) collectConversations(ctx context.Context) []walker.Result {
	var out []walker.Result
	for r := range walker.Walk(ctx, ix.archiveRoot, ix.source) {
		out = append(out, r)
	}
	return out
}

// indexConversation persists one conversation's messages transactionally,
// then (idempotently) embeds whatever is missing an embedding: messages,
// optional content blocks, optional content-aware chunks.
func (ix *Indexer) indexConversation(ctx context.Context, r walker.Result, opts Options, sink chan<- Progress, started time.Time, cancelled func() bool) error {
	conv := store.Conversation{
		ID:           r.Conversation.ID,
		Title:        r.Conversation.Title,
		Source:       r.Conversation.Source,
		Folder:       r.Conversation.Folder,
		CreatedAt:    r.Conversation.CreatedAt,
		UpdatedAt:    r.Conversation.UpdatedAt,
		MessageCount: r.Conversation.MessageCount,
		Metadata:     r.Conversation.Metadata,
	}
	// InterestingOnly filters which conversations get *embedded*, not which
	// get stored: the relational row is always written so a later run
	// (with the flag flipped) doesn't need to re-walk the archive.
	if err := ix.store.InsertConversation(ctx, conv); err != nil {
		return err
	}

	messages := make([]store.Message, len(r.Messages))
	for i, m := range r.Messages {
		messages[i] = store.Message{
			ID: m.ID, ConversationID: m.ConversationID, Role: m.Role, Content: m.Content,
			ParentID: m.ParentID, CreatedAt: m.CreatedAt, GizmoID: m.GizmoID,
		}
	}
	if err := ix.store.InsertMessagesBatch(ctx, messages); err != nil {
		return err
	}

	if opts.InterestingOnly && !conv.IsInteresting {
		return nil
	}

	if err := ix.embedMessages(ctx, conv.ID, opts, sink, started, cancelled); err != nil {
		return err
	}

	if opts.ExtractContentBlocks {
		emit(sink, Progress{Status: StatusRunning, Phase: PhaseExtractingContentBlocks, CurrentItem: conv.ID, StartedAt: started})
		if err := ix.extractAndEmbedBlocks(ctx, conv.ID, r.Messages, opts, cancelled); err != nil {
			return err
		}
	}

	if opts.IncludeParagraphs {
		emit(sink, Progress{Status: StatusRunning, Phase: PhaseEmbeddingParagraphs, CurrentItem: conv.ID, StartedAt: started})
		if err := ix.chunkAndEmbed(ctx, conv.ID, r.Messages, opts, cancelled); err != nil {
			return err
		}
	}

	return nil
}

// embedMessages embeds whatever messages in the conversation lack an
// embedding, in configured batches, applying the junk filter first.
func (ix *Indexer) embedMessages(ctx context.Context, conversationID string, opts Options, sink chan<- Progress, started time.Time, cancelled func() bool) error {
	pending, err := ix.store.MessagesWithoutEmbedding(ctx, conversationID)
	if err != nil {
		return err
	}

	var toEmbed []store.Message
	for _, m := range pending {
		if content.IsJunk(m.Role, m.Content) {
			continue
		}
		toEmbed = append(toEmbed, m)
	}

	for start := 0; start < len(toEmbed); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(toEmbed) {
			end = len(toEmbed)
		}
		batch := toEmbed[start:end]

		texts := make([]string, len(batch))
		for i, m := range batch {
			texts[i] = m.Content
		}
		vectors, ok, err := ix.embedBatchChunked(ctx, texts)
		if err != nil {
			return err
		}

		var ids []string
		var upsertVectors [][]float32
		var payloads []map[string]string
		for i, m := range batch {
			if !ok[i] {
				if err := ix.store.MarkMessageEmbeddingFailed(ctx, m.ID); err != nil {
					return err
				}
				continue
			}
			id := uuid.New().String()
			if err := ix.store.SetMessageEmbedding(ctx, m.ID, id); err != nil {
				return err
			}
			ids = append(ids, id)
			upsertVectors = append(upsertVectors, vectors[i])
			payloads = append(payloads, map[string]string{"role": m.Role, "source": ix.source})
		}
		if ix.store.Vector != nil && len(ids) > 0 {
			if err := ix.store.Vector.UpsertBatch(ctx, store.GranularityMessage, ids, upsertVectors, payloads); err != nil {
				return err
			}
		}

		emit(sink, Progress{Status: StatusRunning, Phase: PhaseEmbeddingMessages, Current: end, Total: len(toEmbed), CurrentItem: conversationID, StartedAt: started})
		if cancelled() {
			return nil
		}
	}
	return nil
}

// embedBatchChunked embeds each text, falling back per-text to
// SplitForEmbedding + Centroid when a text exceeds the chunking-for-embedding
// threshold. An individual embedding failure never aborts
// the batch and never fabricates a vector: ok[i] is false for that text, its
// out[i] entry is nil, and the caller must omit it from both the owner
// row's embedding_id and the vector index upsert, marking the row
// embeddingFailed instead.
func (ix *Indexer) embedBatchChunked(ctx context.Context, texts []string) (out [][]float32, ok []bool, err error) {
	out = make([][]float32, len(texts))
	ok = make([]bool, len(texts))
	for i, t := range texts {
		pieces := embeddings.SplitForEmbedding(t, embeddings.DefaultMaxChunkChars)
		if len(pieces) == 1 {
			v, embErr := ix.embedder.EmbedText(ctx, t)
			if embErr != nil {
				logger.Warnf("indexer: embed failed, storing without embedding: %v", embErr)
				continue
			}
			out[i] = v
			ok[i] = true
			continue
		}
		vectors, embErr := ix.embedder.EmbedBatch(ctx, pieces)
		if embErr != nil {
			logger.Warnf("indexer: batch embed failed, storing without embedding: %v", embErr)
			continue
		}
		out[i] = embeddings.Centroid(vectors)
		ok[i] = true
	}
	return out, ok, nil
}

// extractAndEmbedBlocks runs the Content Block Extractor over every
// non-junk message and embeds the resulting blocks.
func (ix *Indexer) extractAndEmbedBlocks(ctx context.Context, conversationID string, messages []walker.Message, opts Options, cancelled func() bool) error {
	for _, m := range messages {
		if content.IsJunk(m.Role, m.Content) {
			continue
		}
		extracted := blocks.Extract(blocks.Input{
			MessageID: m.ID, ConversationID: conversationID, GizmoID: m.GizmoID,
			Content: m.Content, CreatedAt: m.CreatedAt,
		})
		for _, b := range extracted {
			row := store.ContentBlock{
				ID: b.ID, ParentMessageID: b.ParentMessageID, ParentConversationID: b.ParentConversationID,
				BlockType: string(b.BlockType), Language: b.Language, Content: b.Content,
				StartOffset: b.StartOffset, EndOffset: b.EndOffset, GizmoID: b.GizmoID,
				CreatedAt: b.CreatedAt, Metadata: b.Metadata,
			}
			if err := ix.store.InsertContentBlock(ctx, row); err != nil {
				return err
			}
		}
		if cancelled() {
			return nil
		}
	}

	pending, err := ix.store.BlocksWithoutEmbedding(ctx, conversationID)
	if err != nil {
		return err
	}
	for start := 0; start < len(pending); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		texts := make([]string, len(batch))
		for i, b := range batch {
			texts[i] = b.Content
		}
		vectors, ok, err := ix.embedBatchChunked(ctx, texts)
		if err != nil {
			return err
		}
		var ids []string
		var upsertVectors [][]float32
		var payloads []map[string]string
		for i, b := range batch {
			if !ok[i] {
				if err := ix.store.MarkContentBlockEmbeddingFailed(ctx, b.ID); err != nil {
					return err
				}
				continue
			}
			id := uuid.New().String()
			if err := ix.store.SetContentBlockEmbedding(ctx, b.ID, id); err != nil {
				return err
			}
			ids = append(ids, id)
			upsertVectors = append(upsertVectors, vectors[i])
			payloads = append(payloads, map[string]string{"type": b.BlockType, "gizmoId": b.GizmoID})
		}
		if ix.store.Vector != nil && len(ids) > 0 {
			if err := ix.store.Vector.UpsertBatch(ctx, store.GranularityContentBlock, ids, upsertVectors, payloads); err != nil {
				return err
			}
		}
		if cancelled() {
			return nil
		}
	}
	return nil
}

// chunkAndEmbed runs the Content Analyzer + Chunker (content-aware or
// plain-prose, per opts.UseContentAwareChunking) over every non-junk
// message and embeds whatever chunks are missing an embedding.
func (ix *Indexer) chunkAndEmbed(ctx context.Context, conversationID string, messages []walker.Message, opts Options, cancelled func() bool) error {
	idx := 0
	for _, m := range messages {
		if content.IsJunk(m.Role, m.Content) {
			continue
		}
		var spans []content.Span
		if opts.UseContentAwareChunking {
			spans = content.Analyze(m.Content)
		} else {
			spans = []content.Span{{Type: content.SpanProse, StartOffset: 0, EndOffset: len(m.Content), Content: m.Content}}
		}
		chunks := content.ChunkSpans(conversationID, m.Content, spans, idx, content.ChunkOptions{})
		idx += len(chunks)
		for _, c := range chunks {
			row := store.Chunk{
				ID: c.ID, ThreadID: c.ThreadID, MessageID: m.ID, ChunkIndex: c.ChunkIndex,
				Content: c.Content, WordCount: c.WordCount, TokenCount: c.TokenCount,
				ContentType: string(c.ContentType), Language: c.Language,
				StartOffset: c.StartOffset, EndOffset: c.EndOffset,
				ContextBefore: c.ContextBefore, ContextAfter: c.ContextAfter,
			}
			if err := ix.store.InsertChunk(ctx, row); err != nil {
				return err
			}
		}
		if cancelled() {
			return nil
		}
	}

	pending, err := ix.store.ChunksWithoutEmbedding(ctx, conversationID)
	if err != nil {
		return err
	}
	for start := 0; start < len(pending); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vectors, ok, err := ix.embedBatchChunked(ctx, texts)
		if err != nil {
			return err
		}
		var ids []string
		var upsertVectors [][]float32
		var payloads []map[string]string
		for i, c := range batch {
			if !ok[i] {
				if err := ix.store.MarkChunkEmbeddingFailed(ctx, c.ID); err != nil {
					return err
				}
				continue
			}
			id := uuid.New().String()
			if err := ix.store.SetChunkEmbedding(ctx, c.ID, id); err != nil {
				return err
			}
			ids = append(ids, id)
			upsertVectors = append(upsertVectors, vectors[i])
			payloads = append(payloads, map[string]string{"type": c.ContentType})
		}
		if ix.store.Vector != nil && len(ids) > 0 {
			if err := ix.store.Vector.UpsertBatch(ctx, store.GranularityChunk, ids, upsertVectors, payloads); err != nil {
				return err
			}
		}
		if cancelled() {
			return nil
		}
	}
	return nil
}
