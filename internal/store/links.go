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

type Link struct {
	ID           string
	SourceURI    string
	TargetURI    string
	LinkType     string
	LinkStrength float64
	SourceSpan   string
	TargetSpan   string
	Label        string
	CreatedBy    string
	Metadata     map[string]interface{}
	CreatedAt    time.Time

	// Direction is set by FindLinks relative to the queried uri; it is not
	// persisted.
	Direction string
}

func (s *Store) InsertLink(ctx context.Context, l Link) error {
	metadata, _ := json.Marshal(l.Metadata)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO links (id, source_uri, target_uri, link_type, link_strength, source_span, target_span, label, created_by, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.SourceURI, l.TargetURI, l.LinkType, l.LinkStrength, l.SourceSpan, l.TargetSpan, l.Label, l.CreatedBy, metadata, l.CreatedAt,
	)
	if err != nil {
		return wrapWriteErr("store.InsertLink", err)
	}
	return nil
}

func (s *Store) DeleteLink(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM links WHERE id = ?`, id)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.DeleteLink", err)
	}
	return checkRowAffected(res, "store.DeleteLink", id)
}

// FindLinks returns links touching uri in the given direction, annotated
// with Direction relative to uri.
func (s *Store) FindLinks(ctx context.Context, uri, direction, linkType string, limit int) ([]Link, error) {
	var query string
	var args []interface{}

	switch direction {
	case "outgoing":
		query = `SELECT id, source_uri, target_uri, link_type, link_strength, source_span, target_span, label, created_by, metadata, created_at, 'outgoing' FROM links WHERE source_uri = ?`
		args = []interface{}{uri}
	case "incoming":
		query = `SELECT id, source_uri, target_uri, link_type, link_strength, source_span, target_span, label, created_by, metadata, created_at, 'incoming' FROM links WHERE target_uri = ?`
		args = []interface{}{uri}
	default: // both
		query = `
			SELECT id, source_uri, target_uri, link_type, link_strength, source_span, target_span, label, created_by, metadata, created_at,
				CASE WHEN source_uri = ? THEN 'outgoing' ELSE 'incoming' END
			FROM links WHERE (source_uri = ? OR target_uri = ?)`
		args = []interface{}{uri, uri, uri}
	}

	if linkType != "" {
		query += ` AND link_type = ?`
		args = append(args, linkType)
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "store.FindLinks", err)
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		var l Link
		var sourceSpan, targetSpan, label, createdBy sql.NullString
		var metadata []byte
		var createdAt sql.NullTime
		if err := rows.Scan(&l.ID, &l.SourceURI, &l.TargetURI, &l.LinkType, &l.LinkStrength, &sourceSpan, &targetSpan, &label, &createdBy, &metadata, &createdAt, &l.Direction); err != nil {
			return nil, archiveerr.New(archiveerr.KindBackend, "store.FindLinks", err)
		}
		l.SourceSpan = sourceSpan.String
		l.TargetSpan = targetSpan.String
		l.Label = label.String
		l.CreatedBy = createdBy.String
		l.CreatedAt = createdAt.Time
		l.Metadata = map[string]interface{}{}
		json.Unmarshal(metadata, &l.Metadata)
		out = append(out, l)
	}
	return out, rows.Err()
}
