// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"

	"github.com/northbound/archivist/internal/archiveerr"
)

// Stats is a coarse snapshot of store occupancy, used by the CLI status
// surface and by tests asserting idempotent re-indexing left row counts
// unchanged.
type Stats struct {
	Conversations int
	Messages      int
	ContentItems  int
	ContentBlocks int
	Chunks        int
	Links         int
	ImageAnalyses int
}

func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	rows := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM conversations`, &st.Conversations},
		{`SELECT COUNT(*) FROM messages`, &st.Messages},
		{`SELECT COUNT(*) FROM content_items`, &st.ContentItems},
		{`SELECT COUNT(*) FROM content_blocks`, &st.ContentBlocks},
		{`SELECT COUNT(*) FROM chunks`, &st.Chunks},
		{`SELECT COUNT(*) FROM links`, &st.Links},
		{`SELECT COUNT(*) FROM image_analyses`, &st.ImageAnalyses},
	}
	for _, r := range rows {
		if err := s.db.QueryRowContext(ctx, r.query).Scan(r.dst); err != nil {
			return Stats{}, archiveerr.New(archiveerr.KindBackend, "store.GetStats", err)
		}
	}
	return st, nil
}
