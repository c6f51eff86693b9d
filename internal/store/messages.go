// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/northbound/archivist/internal/archiveerr"
)

type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	ParentID       string
	CreatedAt      time.Time
	GizmoID        string
	EmbeddingID    string
}

// InsertMessagesBatch writes messages in BFS order within one transaction,
// per conversation; also maintains the messages_fts shadow index.
func (s *Store) InsertMessagesBatch(ctx context.Context, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.InsertMessagesBatch", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, parent_id, created_at, gizmo_id, embedding_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content=excluded.content,
			embedding_id=CASE WHEN excluded.content = messages.content THEN messages.embedding_id ELSE excluded.embedding_id END`)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.InsertMessagesBatch", err)
	}
	defer stmt.Close()

	ftsDelStmt, err := tx.PrepareContext(ctx, `DELETE FROM messages_fts WHERE id = ?`)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.InsertMessagesBatch", err)
	}
	defer ftsDelStmt.Close()

	ftsStmt, err := tx.PrepareContext(ctx, `INSERT INTO messages_fts (id, content) VALUES (?, ?)`)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.InsertMessagesBatch", err)
	}
	defer ftsStmt.Close()

	for _, m := range messages {
		if _, err := stmt.ExecContext(ctx, m.ID, m.ConversationID, m.Role, m.Content, m.ParentID, m.CreatedAt, m.GizmoID, m.EmbeddingID); err != nil {
			return wrapWriteErr("store.InsertMessagesBatch", err)
		}
		// Keep the FTS shadow row in sync on upsert instead of stacking a
		// second copy, so re-imports leave row counts unchanged.
		if _, err := ftsDelStmt.ExecContext(ctx, m.ID); err != nil {
			return archiveerr.New(archiveerr.KindBackend, "store.InsertMessagesBatch", err)
		}
		if _, err := ftsStmt.ExecContext(ctx, m.ID, m.Content); err != nil {
			return archiveerr.New(archiveerr.KindBackend, "store.InsertMessagesBatch", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.InsertMessagesBatch", err)
	}
	return nil
}

// SetMessageEmbedding records that a message's content has a vector row.
func (s *Store) SetMessageEmbedding(ctx context.Context, messageID, embeddingID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET embedding_id = ? WHERE id = ?`, embeddingID, messageID)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.SetMessageEmbedding", err)
	}
	return checkRowAffected(res, "store.SetMessageEmbedding", messageID)
}

// MarkMessageEmbeddingFailed stamps a message as having no usable
// embedding; the embedding is omitted, never a zero vector in the ANN
// index.
// embedding_id is left unset so a later re-run picks it up via
// MessagesWithoutEmbedding and may retry.
func (s *Store) MarkMessageEmbeddingFailed(ctx context.Context, messageID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET embedding_failed = 1 WHERE id = ?`, messageID)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.MarkMessageEmbeddingFailed", err)
	}
	return checkRowAffected(res, "store.MarkMessageEmbeddingFailed", messageID)
}

func (s *Store) GetMessagesForConversation(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, parent_id, created_at, gizmo_id, embedding_id
		FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "store.GetMessagesForConversation", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var createdAt sql.NullTime
		var parentID, gizmoID, embeddingID sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &parentID, &createdAt, &gizmoID, &embeddingID); err != nil {
			return nil, archiveerr.New(archiveerr.KindBackend, "store.GetMessagesForConversation", err)
		}
		m.ParentID = parentID.String
		m.CreatedAt = createdAt.Time
		m.GizmoID = gizmoID.String
		m.EmbeddingID = embeddingID.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// MessagesWithoutEmbedding supports idempotent indexer re-runs: only
// messages missing an embedding are returned.
func (s *Store) MessagesWithoutEmbedding(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, parent_id, created_at, gizmo_id, embedding_id
		FROM messages WHERE conversation_id = ? AND (embedding_id IS NULL OR embedding_id = '')`, conversationID)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "store.MessagesWithoutEmbedding", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var createdAt sql.NullTime
		var parentID, gizmoID, embeddingID sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &parentID, &createdAt, &gizmoID, &embeddingID); err != nil {
			return nil, archiveerr.New(archiveerr.KindBackend, "store.MessagesWithoutEmbedding", err)
		}
		m.ParentID = parentID.String
		m.CreatedAt = createdAt.Time
		m.GizmoID = gizmoID.String
		m.EmbeddingID = embeddingID.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// SearchMessageHit is one row of search_messages's result shape.
type SearchMessageHit struct {
	ID                  string
	Content             string
	Similarity          float32
	ConversationID      string
	ConversationTitle   string
	ConversationFolder  string
	MessageRole         string
	Metadata            map[string]interface{}
}

// SearchMessages runs the dense ANN pass over message vectors, then joins
// back to the relational rows for display fields and optional role
// pre-filtering.
func (s *Store) SearchMessages(ctx context.Context, queryVec []float32, limit int, role string) ([]SearchMessageHit, error) {
	if s.Vector == nil {
		return nil, archiveerr.New(archiveerr.KindInvalid, "store.SearchMessages", fmt.Errorf("vector index not attached"))
	}
	matches, err := s.Vector.Search(ctx, GranularityMessage, queryVec, limit)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "store.SearchMessages", err)
	}

	var hits []SearchMessageHit
	for _, m := range matches {
		row := s.db.QueryRowContext(ctx, `
			SELECT messages.content, messages.role, conversations.id, conversations.title, conversations.folder
			FROM messages JOIN conversations ON conversations.id = messages.conversation_id
			WHERE messages.embedding_id = ?`, m.ID)

		var content, msgRole, convID, convTitle, convFolder string
		if err := row.Scan(&content, &msgRole, &convID, &convTitle, &convFolder); err != nil {
			continue
		}
		if role != "" && msgRole != role {
			continue
		}
		hits = append(hits, SearchMessageHit{
			ID:                 m.ID,
			Content:            content,
			Similarity:         m.Score,
			ConversationID:     convID,
			ConversationTitle:  convTitle,
			ConversationFolder: convFolder,
			MessageRole:        msgRole,
			Metadata:           map[string]interface{}{},
		})
	}
	return hits, nil
}

// FindSimilarToMessage looks up the vector for embeddingID's owner and
// returns its nearest neighbours, optionally excluding hits from the same
// conversation.
func (s *Store) FindSimilarToMessage(ctx context.Context, embeddingID string, limit int, excludeSameConversation bool) ([]SearchMessageHit, error) {
	if s.Vector == nil {
		return nil, archiveerr.New(archiveerr.KindInvalid, "store.FindSimilarToMessage", fmt.Errorf("vector index not attached"))
	}

	var convID string
	if err := s.db.QueryRowContext(ctx, `SELECT conversation_id FROM messages WHERE embedding_id = ?`, embeddingID).Scan(&convID); err != nil {
		if err == sql.ErrNoRows {
			return nil, archiveerr.New(archiveerr.KindNotFound, "store.FindSimilarToMessage", fmt.Errorf("embedding %s", embeddingID))
		}
		return nil, archiveerr.New(archiveerr.KindBackend, "store.FindSimilarToMessage", err)
	}

	vec, err := s.Vector.GetVector(ctx, GranularityMessage, embeddingID)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "store.FindSimilarToMessage", err)
	}

	exclude := ""
	if excludeSameConversation {
		exclude = convID
	}
	return s.SearchMessagesByVector(ctx, vec, exclude, limit)
}

// SearchMessagesByVector is the concrete primitive FindSimilarToMessage and
// internal/search build on: given an already-resolved vector, return
// nearest neighbours excluding the owner's own conversation when asked.
func (s *Store) SearchMessagesByVector(ctx context.Context, vec []float32, excludeConversationID string, limit int) ([]SearchMessageHit, error) {
	hits, err := s.SearchMessages(ctx, vec, limit+10, "")
	if err != nil {
		return nil, err
	}
	if excludeConversationID == "" {
		if len(hits) > limit {
			hits = hits[:limit]
		}
		return hits, nil
	}
	var out []SearchMessageHit
	for _, h := range hits {
		if h.ConversationID == excludeConversationID {
			continue
		}
		out = append(out, h)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
