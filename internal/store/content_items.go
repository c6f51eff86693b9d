// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/northbound/archivist/internal/archiveerr"
)

type ContentItem struct {
	ID           string
	Type         string
	Source       string
	Text         string
	Title        string
	CreatedAt    time.Time
	AuthorName   string
	IsOwnContent bool
	ThreadID     string
	ParentID     string
	MediaRefs    []string
	Metadata     map[string]interface{}
	URI          string
	EmbeddingID  string
}

func (s *Store) InsertContentItem(ctx context.Context, c ContentItem) error {
	mediaRefs, _ := json.Marshal(c.MediaRefs)
	metadata, _ := json.Marshal(c.Metadata)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_items (id, type, source, text, title, created_at, author_name, is_own_content, thread_id, parent_id, media_refs, metadata, uri, embedding_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET text=excluded.text, metadata=excluded.metadata, embedding_id=excluded.embedding_id`,
		c.ID, c.Type, c.Source, c.Text, c.Title, c.CreatedAt, c.AuthorName, boolToInt(c.IsOwnContent), c.ThreadID, c.ParentID, mediaRefs, metadata, c.URI, c.EmbeddingID,
	)
	if err != nil {
		return wrapWriteErr("store.InsertContentItem", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM content_items_fts WHERE id = ?`, c.ID); err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.InsertContentItem", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO content_items_fts (id, text) VALUES (?, ?)`, c.ID, c.Text); err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.InsertContentItem", err)
	}
	return nil
}

func (s *Store) GetContentItem(ctx context.Context, id string) (ContentItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, source, text, title, created_at, author_name, is_own_content, thread_id, parent_id, media_refs, metadata, uri, embedding_id
		FROM content_items WHERE id = ?`, id)

	var c ContentItem
	var source, title, authorName, threadID, parentID, uri, embeddingID sql.NullString
	var createdAt sql.NullTime
	var isOwn int
	var mediaRefs, metadata []byte

	err := row.Scan(&c.ID, &c.Type, &source, &c.Text, &title, &createdAt, &authorName, &isOwn, &threadID, &parentID, &mediaRefs, &metadata, &uri, &embeddingID)
	if err == sql.ErrNoRows {
		return ContentItem{}, archiveerr.New(archiveerr.KindNotFound, "store.GetContentItem", fmt.Errorf("content item %s", id))
	}
	if err != nil {
		return ContentItem{}, archiveerr.New(archiveerr.KindBackend, "store.GetContentItem", err)
	}

	c.Source = source.String
	c.Title = title.String
	c.AuthorName = authorName.String
	c.ThreadID = threadID.String
	c.ParentID = parentID.String
	c.URI = uri.String
	c.EmbeddingID = embeddingID.String
	c.CreatedAt = createdAt.Time
	c.IsOwnContent = isOwn != 0
	json.Unmarshal(mediaRefs, &c.MediaRefs)
	c.Metadata = map[string]interface{}{}
	json.Unmarshal(metadata, &c.Metadata)
	return c, nil
}

// SetContentItemEmbedding records that a content item's text has a vector
// row, mirroring SetMessageEmbedding/SetChunkEmbedding.
func (s *Store) SetContentItemEmbedding(ctx context.Context, id, embeddingID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE content_items SET embedding_id = ? WHERE id = ?`, embeddingID, id)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.SetContentItemEmbedding", err)
	}
	return checkRowAffected(res, "store.SetContentItemEmbedding", id)
}

// MarkContentItemEmbeddingFailed stamps a content item as having no usable
// embedding rather than writing a zero vector into the ANN index.
func (s *Store) MarkContentItemEmbeddingFailed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE content_items SET embedding_failed = 1 WHERE id = ?`, id)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.MarkContentItemEmbeddingFailed", err)
	}
	return checkRowAffected(res, "store.MarkContentItemEmbeddingFailed", id)
}

// ContentItemsWithoutEmbedding supports idempotent import re-runs: only
// items of the given source missing an embedding are returned.
func (s *Store) ContentItemsWithoutEmbedding(ctx context.Context, source string) ([]ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, source, text, title, created_at, author_name, is_own_content, thread_id, parent_id, media_refs, metadata, uri, embedding_id
		FROM content_items WHERE source = ? AND (embedding_id IS NULL OR embedding_id = '')`, source)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "store.ContentItemsWithoutEmbedding", err)
	}
	defer rows.Close()

	var out []ContentItem
	for rows.Next() {
		var c ContentItem
		var srcCol, title, authorName, threadID, parentID, uri, embeddingID sql.NullString
		var createdAt sql.NullTime
		var isOwn int
		var mediaRefs, metadata []byte
		if err := rows.Scan(&c.ID, &c.Type, &srcCol, &c.Text, &title, &createdAt, &authorName, &isOwn, &threadID, &parentID, &mediaRefs, &metadata, &uri, &embeddingID); err != nil {
			return nil, archiveerr.New(archiveerr.KindBackend, "store.ContentItemsWithoutEmbedding", err)
		}
		c.Source = srcCol.String
		c.Title = title.String
		c.AuthorName = authorName.String
		c.ThreadID = threadID.String
		c.ParentID = parentID.String
		c.URI = uri.String
		c.EmbeddingID = embeddingID.String
		c.CreatedAt = createdAt.Time
		c.IsOwnContent = isOwn != 0
		c.Metadata = map[string]interface{}{}
		json.Unmarshal(mediaRefs, &c.MediaRefs)
		json.Unmarshal(metadata, &c.Metadata)
		out = append(out, c)
	}
	return out, rows.Err()
}

type SearchContentItemHit struct {
	ContentItem
	Similarity float32
}

func (s *Store) SearchContentItems(ctx context.Context, queryVec []float32, limit int, itemType, source string) ([]SearchContentItemHit, error) {
	if s.Vector == nil {
		return nil, archiveerr.New(archiveerr.KindInvalid, "store.SearchContentItems", nil)
	}
	matches, err := s.Vector.Search(ctx, GranularityContentItem, queryVec, limit)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "store.SearchContentItems", err)
	}

	var hits []SearchContentItemHit
	for _, m := range matches {
		row := s.db.QueryRowContext(ctx, `SELECT id FROM content_items WHERE embedding_id = ?`, m.ID)
		var ownerID string
		if err := row.Scan(&ownerID); err != nil {
			continue
		}
		item, err := s.GetContentItem(ctx, ownerID)
		if err != nil {
			continue
		}
		if itemType != "" && item.Type != itemType {
			continue
		}
		if source != "" && item.Source != source {
			continue
		}
		hits = append(hits, SearchContentItemHit{ContentItem: item, Similarity: m.Score})
	}
	return hits, nil
}
