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

type Conversation struct {
	ID                 string
	Title              string
	Source             string
	Folder             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	MessageCount       int
	IsInteresting      bool
	Summary            string
	SummaryEmbeddingID string
	Metadata           map[string]interface{}
}

// InsertConversation upserts a conversation row by id.
func (s *Store) InsertConversation(ctx context.Context, c Conversation) error {
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return archiveerr.New(archiveerr.KindInvalid, "store.InsertConversation", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, source, folder, created_at, updated_at, message_count, is_interesting, summary, summary_embedding_id, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, source=excluded.source, folder=excluded.folder,
			updated_at=excluded.updated_at, message_count=excluded.message_count, metadata=excluded.metadata`,
		c.ID, c.Title, c.Source, c.Folder, c.CreatedAt, c.UpdatedAt, c.MessageCount, boolToInt(c.IsInteresting), c.Summary, c.SummaryEmbeddingID, metadata,
	)
	if err != nil {
		return wrapWriteErr("store.InsertConversation", err)
	}
	return nil
}

func (s *Store) UpdateConversationSummary(ctx context.Context, id, summary, summaryEmbeddingID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET summary = ?, summary_embedding_id = ? WHERE id = ?`, summary, summaryEmbeddingID, id)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.UpdateConversationSummary", err)
	}
	return checkRowAffected(res, "store.UpdateConversationSummary", id)
}

func (s *Store) MarkConversationInteresting(ctx context.Context, id string, interesting bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET is_interesting = ? WHERE id = ?`, boolToInt(interesting), id)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.MarkConversationInteresting", err)
	}
	return checkRowAffected(res, "store.MarkConversationInteresting", id)
}

func (s *Store) GetConversation(ctx context.Context, id string) (Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, source, folder, created_at, updated_at, message_count, is_interesting, summary, summary_embedding_id, metadata
		FROM conversations WHERE id = ?`, id)

	var c Conversation
	var interesting int
	var metadata []byte
	var createdAt, updatedAt sql.NullTime
	var summary, summaryEmbeddingID sql.NullString

	err := row.Scan(&c.ID, &c.Title, &c.Source, &c.Folder, &createdAt, &updatedAt, &c.MessageCount, &interesting, &summary, &summaryEmbeddingID, &metadata)
	if err == sql.ErrNoRows {
		return Conversation{}, archiveerr.New(archiveerr.KindNotFound, "store.GetConversation", fmt.Errorf("conversation %s", id))
	}
	if err != nil {
		return Conversation{}, archiveerr.New(archiveerr.KindBackend, "store.GetConversation", err)
	}

	c.CreatedAt = createdAt.Time
	c.UpdatedAt = updatedAt.Time
	c.IsInteresting = interesting != 0
	c.Summary = summary.String
	c.SummaryEmbeddingID = summaryEmbeddingID.String
	c.Metadata = map[string]interface{}{}
	if len(metadata) > 0 {
		json.Unmarshal(metadata, &c.Metadata)
	}
	return c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowAffected(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, op, err)
	}
	if n == 0 {
		return archiveerr.New(archiveerr.KindNotFound, op, fmt.Errorf("id %s", id))
	}
	return nil
}
