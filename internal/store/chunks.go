// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/northbound/archivist/internal/archiveerr"
)

type Chunk struct {
	ID            string
	ThreadID      string
	MessageID     string
	ChunkIndex    int
	Content       string
	WordCount     int
	TokenCount    int
	ContentType   string
	Language      string
	StartOffset   int
	EndOffset     int
	ContextBefore string
	ContextAfter  string
	EmbeddingID   string
	Legacy        bool
}

func (s *Store) insertChunk(ctx context.Context, c Chunk, legacy bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, thread_id, message_id, chunk_index, content, word_count, token_count, content_type, language, start_offset, end_offset, context_before, context_after, embedding_id, legacy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id, chunk_index) DO UPDATE SET content=excluded.content,
			embedding_id=CASE WHEN excluded.content = chunks.content THEN chunks.embedding_id ELSE excluded.embedding_id END`,
		c.ID, c.ThreadID, c.MessageID, c.ChunkIndex, c.Content, c.WordCount, c.TokenCount, c.ContentType, c.Language, c.StartOffset, c.EndOffset, c.ContextBefore, c.ContextAfter, c.EmbeddingID, boolToInt(legacy),
	)
	if err != nil {
		return wrapWriteErr("store.insertChunk", err)
	}

	// On a (thread_id, chunk_index) conflict the stored row keeps its
	// original id, so resolve the surviving id before syncing the FTS
	// shadow row rather than trusting c.ID.
	var rowID string
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM chunks WHERE thread_id = ? AND chunk_index = ?`, c.ThreadID, c.ChunkIndex).Scan(&rowID); err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.insertChunk", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks_fts WHERE id = ?`, rowID); err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.insertChunk", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO chunks_fts (id, content) VALUES (?, ?)`, rowID, c.Content); err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.insertChunk", err)
	}
	return nil
}

// InsertChunk writes a regular (non-pyramid) chunk; (threadId, chunkIndex)
// must be unique.
func (s *Store) InsertChunk(ctx context.Context, c Chunk) error {
	return s.insertChunk(ctx, c, false)
}

// InsertPyramidChunk writes a summary-pyramid chunk, flagged legacy so it
// can be excluded from the default chunk view (see DESIGN.md's resolution
// of the pyramid_chunks/chunks unification question).
func (s *Store) InsertPyramidChunk(ctx context.Context, c Chunk) error {
	return s.insertChunk(ctx, c, true)
}

// GetChunkByID fetches a single chunk row by its primary key, used by the
// sparse search pass to resolve FTS hits that did not also appear in the
// dense pass.
func (s *Store) GetChunkByID(ctx context.Context, id string) (Chunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, message_id, chunk_index, content, word_count, token_count, content_type, language, start_offset, end_offset, context_before, context_after, embedding_id, legacy
		FROM chunks WHERE id = ?`, id)
	var c Chunk
	var messageID, language, contextBefore, contextAfter, embeddingID sql.NullString
	var legacy int
	if err := row.Scan(&c.ID, &c.ThreadID, &messageID, &c.ChunkIndex, &c.Content, &c.WordCount, &c.TokenCount, &c.ContentType, &language, &c.StartOffset, &c.EndOffset, &contextBefore, &contextAfter, &embeddingID, &legacy); err != nil {
		if err == sql.ErrNoRows {
			return Chunk{}, archiveerr.New(archiveerr.KindNotFound, "store.GetChunkByID", fmt.Errorf("chunk %s", id))
		}
		return Chunk{}, archiveerr.New(archiveerr.KindBackend, "store.GetChunkByID", err)
	}
	c.MessageID = messageID.String
	c.Language = language.String
	c.ContextBefore = contextBefore.String
	c.ContextAfter = contextAfter.String
	c.EmbeddingID = embeddingID.String
	c.Legacy = legacy != 0
	return c, nil
}

func (s *Store) GetChunksForMessage(ctx context.Context, messageID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, message_id, chunk_index, content, word_count, token_count, content_type, language, start_offset, end_offset, context_before, context_after, embedding_id, legacy
		FROM chunks WHERE message_id = ? ORDER BY chunk_index ASC`, messageID)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "store.GetChunksForMessage", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var out []Chunk
	for rows.Next() {
		var c Chunk
		var messageID, language, contextBefore, contextAfter, embeddingID sql.NullString
		var legacy int
		if err := rows.Scan(&c.ID, &c.ThreadID, &messageID, &c.ChunkIndex, &c.Content, &c.WordCount, &c.TokenCount, &c.ContentType, &language, &c.StartOffset, &c.EndOffset, &contextBefore, &contextAfter, &embeddingID, &legacy); err != nil {
			return nil, archiveerr.New(archiveerr.KindBackend, "store.scanChunks", err)
		}
		c.MessageID = messageID.String
		c.Language = language.String
		c.ContextBefore = contextBefore.String
		c.ContextAfter = contextAfter.String
		c.EmbeddingID = embeddingID.String
		c.Legacy = legacy != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChunksWithoutEmbedding supports idempotent indexer re-runs.
func (s *Store) ChunksWithoutEmbedding(ctx context.Context, threadID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, message_id, chunk_index, content, word_count, token_count, content_type, language, start_offset, end_offset, context_before, context_after, embedding_id, legacy
		FROM chunks WHERE thread_id = ? AND (embedding_id IS NULL OR embedding_id = '')`, threadID)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "store.ChunksWithoutEmbedding", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *Store) SetChunkEmbedding(ctx context.Context, chunkID, embeddingID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chunks SET embedding_id = ? WHERE id = ?`, embeddingID, chunkID)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.SetChunkEmbedding", err)
	}
	return checkRowAffected(res, "store.SetChunkEmbedding", chunkID)
}

// MarkChunkEmbeddingFailed stamps a chunk as having no usable embedding
// rather than writing a zero vector into the ANN index.
func (s *Store) MarkChunkEmbeddingFailed(ctx context.Context, chunkID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chunks SET embedding_failed = 1 WHERE id = ?`, chunkID)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.MarkChunkEmbeddingFailed", err)
	}
	return checkRowAffected(res, "store.MarkChunkEmbeddingFailed", chunkID)
}

// SearchChunkHit is one row of search_chunks's result shape.
type SearchChunkHit struct {
	Chunk
	Similarity float32
}

func (s *Store) SearchChunks(ctx context.Context, queryVec []float32, limit int, contentTypes []string) ([]SearchChunkHit, error) {
	if s.Vector == nil {
		return nil, archiveerr.New(archiveerr.KindInvalid, "store.SearchChunks", nil)
	}
	matches, err := s.Vector.Search(ctx, GranularityChunk, queryVec, limit)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "store.SearchChunks", err)
	}

	typeFilter := make(map[string]bool, len(contentTypes))
	for _, t := range contentTypes {
		typeFilter[t] = true
	}

	var hits []SearchChunkHit
	for _, m := range matches {
		row := s.db.QueryRowContext(ctx, `
			SELECT id, thread_id, message_id, chunk_index, content, word_count, token_count, content_type, language, start_offset, end_offset, context_before, context_after, embedding_id, legacy
			FROM chunks WHERE embedding_id = ?`, m.ID)
		var c Chunk
		var messageID, language, contextBefore, contextAfter, embeddingID sql.NullString
		var legacy int
		if err := row.Scan(&c.ID, &c.ThreadID, &messageID, &c.ChunkIndex, &c.Content, &c.WordCount, &c.TokenCount, &c.ContentType, &language, &c.StartOffset, &c.EndOffset, &contextBefore, &contextAfter, &embeddingID, &legacy); err != nil {
			continue
		}
		if len(typeFilter) > 0 && !typeFilter[c.ContentType] {
			continue
		}
		c.MessageID = messageID.String
		c.Language = language.String
		c.ContextBefore = contextBefore.String
		c.ContextAfter = contextAfter.String
		c.EmbeddingID = embeddingID.String
		c.Legacy = legacy != 0
		hits = append(hits, SearchChunkHit{Chunk: c, Similarity: m.Score})
	}
	return hits, nil
}

// SearchChunksSparse runs the full-text pass over chunk content, returning
// ids ranked by SQLite's FTS5 bm25() relevance (lower is better, so the
// caller sees them already in rank order).
func (s *Store) SearchChunksSparse(ctx context.Context, query string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM chunks_fts WHERE chunks_fts MATCH ? ORDER BY bm25(chunks_fts) LIMIT ?`, query, limit)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "store.SearchChunksSparse", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, archiveerr.New(archiveerr.KindBackend, "store.SearchChunksSparse", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
