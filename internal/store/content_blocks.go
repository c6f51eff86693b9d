// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/northbound/archivist/internal/archiveerr"
)

type ContentBlock struct {
	ID                   string
	ParentMessageID      string
	ParentConversationID string
	BlockType            string
	Language             string
	Content              string
	StartOffset          int
	EndOffset            int
	GizmoID              string
	CreatedAt            time.Time
	Metadata             map[string]interface{}
	EmbeddingID          string
}

func (s *Store) InsertContentBlock(ctx context.Context, b ContentBlock) error {
	metadata, _ := json.Marshal(b.Metadata)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_blocks (id, parent_message_id, parent_conversation_id, block_type, language, content, start_offset, end_offset, gizmo_id, created_at, metadata, embedding_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content=excluded.content, embedding_id=excluded.embedding_id`,
		b.ID, b.ParentMessageID, b.ParentConversationID, b.BlockType, b.Language, b.Content, b.StartOffset, b.EndOffset, b.GizmoID, b.CreatedAt, metadata, b.EmbeddingID,
	)
	if err != nil {
		return wrapWriteErr("store.InsertContentBlock", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM content_blocks_fts WHERE id = ?`, b.ID); err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.InsertContentBlock", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO content_blocks_fts (id, content) VALUES (?, ?)`, b.ID, b.Content); err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.InsertContentBlock", err)
	}
	return nil
}

func (s *Store) BlocksWithoutEmbedding(ctx context.Context, conversationID string) ([]ContentBlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_message_id, parent_conversation_id, block_type, language, content, start_offset, end_offset, gizmo_id, created_at, metadata, embedding_id
		FROM content_blocks WHERE parent_conversation_id = ? AND (embedding_id IS NULL OR embedding_id = '')`, conversationID)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "store.BlocksWithoutEmbedding", err)
	}
	defer rows.Close()

	var out []ContentBlock
	for rows.Next() {
		var b ContentBlock
		var language, gizmoID, embeddingID sql.NullString
		var createdAt sql.NullTime
		var metadata []byte
		if err := rows.Scan(&b.ID, &b.ParentMessageID, &b.ParentConversationID, &b.BlockType, &language, &b.Content, &b.StartOffset, &b.EndOffset, &gizmoID, &createdAt, &metadata, &embeddingID); err != nil {
			return nil, archiveerr.New(archiveerr.KindBackend, "store.BlocksWithoutEmbedding", err)
		}
		b.Language = language.String
		b.GizmoID = gizmoID.String
		b.EmbeddingID = embeddingID.String
		b.CreatedAt = createdAt.Time
		b.Metadata = map[string]interface{}{}
		json.Unmarshal(metadata, &b.Metadata)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) SetContentBlockEmbedding(ctx context.Context, blockID, embeddingID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE content_blocks SET embedding_id = ? WHERE id = ?`, embeddingID, blockID)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.SetContentBlockEmbedding", err)
	}
	return checkRowAffected(res, "store.SetContentBlockEmbedding", blockID)
}

// MarkContentBlockEmbeddingFailed stamps a block as having no usable
// embedding rather than writing a zero vector into the ANN index.
func (s *Store) MarkContentBlockEmbeddingFailed(ctx context.Context, blockID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE content_blocks SET embedding_failed = 1 WHERE id = ?`, blockID)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.MarkContentBlockEmbeddingFailed", err)
	}
	return checkRowAffected(res, "store.MarkContentBlockEmbeddingFailed", blockID)
}

type SearchContentBlockHit struct {
	ContentBlock
	Similarity float32
}

func (s *Store) SearchContentBlocks(ctx context.Context, queryVec []float32, limit int, blockType, gizmoID string) ([]SearchContentBlockHit, error) {
	if s.Vector == nil {
		return nil, archiveerr.New(archiveerr.KindInvalid, "store.SearchContentBlocks", nil)
	}
	matches, err := s.Vector.Search(ctx, GranularityContentBlock, queryVec, limit)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "store.SearchContentBlocks", err)
	}

	var hits []SearchContentBlockHit
	for _, m := range matches {
		row := s.db.QueryRowContext(ctx, `
			SELECT id, parent_message_id, parent_conversation_id, block_type, language, content, start_offset, end_offset, gizmo_id, created_at, metadata, embedding_id
			FROM content_blocks WHERE embedding_id = ?`, m.ID)
		var b ContentBlock
		var language, gizmo, embeddingID sql.NullString
		var createdAt sql.NullTime
		var metadata []byte
		if err := row.Scan(&b.ID, &b.ParentMessageID, &b.ParentConversationID, &b.BlockType, &language, &b.Content, &b.StartOffset, &b.EndOffset, &gizmo, &createdAt, &metadata, &embeddingID); err != nil {
			continue
		}
		if blockType != "" && b.BlockType != blockType {
			continue
		}
		if gizmoID != "" && gizmo.String != gizmoID {
			continue
		}
		b.Language = language.String
		b.GizmoID = gizmo.String
		b.EmbeddingID = embeddingID.String
		b.CreatedAt = createdAt.Time
		b.Metadata = map[string]interface{}{}
		json.Unmarshal(metadata, &b.Metadata)
		hits = append(hits, SearchContentBlockHit{ContentBlock: b, Similarity: m.Score})
	}
	return hits, nil
}
