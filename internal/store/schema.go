// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"fmt"
	"strings"

	"github.com/northbound/archivist/internal/logger"
)

// schemaVersion is bumped on every forward migration. The store refuses to
// open a database stamped with a version newer than it understands.
const schemaVersion = 3

const baseSchema = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT,
	source TEXT NOT NULL,
	folder TEXT,
	created_at DATETIME,
	updated_at DATETIME,
	message_count INTEGER DEFAULT 0,
	is_interesting INTEGER DEFAULT 0,
	summary TEXT,
	summary_embedding_id TEXT,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_conversations_source ON conversations(source);
CREATE INDEX IF NOT EXISTS idx_conversations_interesting ON conversations(is_interesting);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	parent_id TEXT,
	created_at DATETIME,
	gizmo_id TEXT,
	embedding_id TEXT,
	embedding_failed INTEGER DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_messages_role ON messages(role);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(id UNINDEXED, content);

CREATE TABLE IF NOT EXISTS content_items (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	source TEXT,
	text TEXT,
	title TEXT,
	created_at DATETIME,
	author_name TEXT,
	is_own_content INTEGER DEFAULT 0,
	thread_id TEXT,
	parent_id TEXT,
	media_refs TEXT,
	metadata TEXT,
	uri TEXT,
	embedding_id TEXT,
	embedding_failed INTEGER DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_content_items_type ON content_items(type);
CREATE INDEX IF NOT EXISTS idx_content_items_source ON content_items(source);
CREATE UNIQUE INDEX IF NOT EXISTS idx_content_items_uri_unique ON content_items(uri) WHERE uri IS NOT NULL AND uri != '';

CREATE VIRTUAL TABLE IF NOT EXISTS content_items_fts USING fts5(id UNINDEXED, text);

CREATE TABLE IF NOT EXISTS content_blocks (
	id TEXT PRIMARY KEY,
	parent_message_id TEXT,
	parent_conversation_id TEXT,
	block_type TEXT NOT NULL,
	language TEXT,
	content TEXT NOT NULL,
	start_offset INTEGER,
	end_offset INTEGER,
	gizmo_id TEXT,
	created_at DATETIME,
	metadata TEXT,
	embedding_id TEXT,
	embedding_failed INTEGER DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_content_blocks_message ON content_blocks(parent_message_id);
CREATE INDEX IF NOT EXISTS idx_content_blocks_type ON content_blocks(block_type);

CREATE VIRTUAL TABLE IF NOT EXISTS content_blocks_fts USING fts5(id UNINDEXED, content);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL,
	message_id TEXT,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	word_count INTEGER,
	token_count INTEGER,
	content_type TEXT,
	language TEXT,
	start_offset INTEGER,
	end_offset INTEGER,
	context_before TEXT,
	context_after TEXT,
	embedding_id TEXT,
	embedding_failed INTEGER DEFAULT 0,
	legacy INTEGER DEFAULT 0,
	UNIQUE(thread_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_chunks_thread ON chunks(thread_id);
CREATE INDEX IF NOT EXISTS idx_chunks_message ON chunks(message_id);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(id UNINDEXED, content);

CREATE TABLE IF NOT EXISTS links (
	id TEXT PRIMARY KEY,
	source_uri TEXT NOT NULL,
	target_uri TEXT NOT NULL,
	link_type TEXT NOT NULL,
	link_strength REAL DEFAULT 1.0,
	source_span TEXT,
	target_span TEXT,
	label TEXT,
	created_by TEXT,
	metadata TEXT,
	created_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_uri);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_uri);
CREATE INDEX IF NOT EXISTS idx_links_type ON links(link_type);

CREATE TABLE IF NOT EXISTS import_jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	source_type TEXT,
	source_path TEXT,
	source_name TEXT,
	progress REAL DEFAULT 0,
	current_phase TEXT,
	current_item TEXT,
	units_total INTEGER DEFAULT 0,
	units_processed INTEGER DEFAULT 0,
	media_total INTEGER DEFAULT 0,
	media_processed INTEGER DEFAULT 0,
	errors_count INTEGER DEFAULT 0,
	error_log TEXT,
	created_at DATETIME,
	started_at DATETIME,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_import_jobs_status ON import_jobs(status);

CREATE TABLE IF NOT EXISTS image_analyses (
	id TEXT PRIMARY KEY,
	file_path TEXT NOT NULL UNIQUE,
	file_hash TEXT,
	source TEXT,
	description TEXT,
	categories TEXT,
	objects TEXT,
	scene TEXT,
	mood TEXT,
	model_used TEXT,
	confidence REAL,
	processing_time_ms INTEGER,
	embedding_id TEXT
);

CREATE VIRTUAL TABLE IF NOT EXISTS images_fts USING fts5(id UNINDEXED, description);
`

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(baseSchema); err != nil {
		return fmt.Errorf("create base schema: %w", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_meta").Scan(&count); err != nil {
		return fmt.Errorf("read schema_meta: %w", err)
	}
	if count == 0 {
		if _, err := s.db.Exec("INSERT INTO schema_meta (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("stamp schema version: %w", err)
		}
		return nil
	}

	var existing int
	if err := s.db.QueryRow("SELECT version FROM schema_meta LIMIT 1").Scan(&existing); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if existing > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", existing, schemaVersion)
	}
	if existing < schemaVersion {
		logger.Printf("store: migrating schema from version %d to %d", existing, schemaVersion)
		if existing < 2 {
			if err := s.migrateV2(); err != nil {
				return fmt.Errorf("migrate to schema v2: %w", err)
			}
		}
		if existing < 3 {
			if err := s.migrateV3(); err != nil {
				return fmt.Errorf("migrate to schema v3: %w", err)
			}
		}
		if _, err := s.db.Exec("UPDATE schema_meta SET version = ?", schemaVersion); err != nil {
			return fmt.Errorf("update schema version: %w", err)
		}
	}
	return nil
}

// migrateV2 adds the embedding_failed columns backing the
// omit-the-embedding failure policy.
// CREATE TABLE IF NOT EXISTS never retrofits existing tables, so a
// database opened from a pre-v2 file needs these ALTER TABLEs explicitly;
// "duplicate column" is tolerated so re-running the migration is harmless.
func (s *Store) migrateV2() error {
	stmts := []string{
		"ALTER TABLE messages ADD COLUMN embedding_failed INTEGER DEFAULT 0",
		"ALTER TABLE content_blocks ADD COLUMN embedding_failed INTEGER DEFAULT 0",
		"ALTER TABLE chunks ADD COLUMN embedding_failed INTEGER DEFAULT 0",
		"ALTER TABLE content_items ADD COLUMN embedding_failed INTEGER DEFAULT 0",
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return err
		}
	}
	return nil
}

// migrateV3 replaces the plain uri index with a unique partial one so
// content_items.uri, when present, is unique across the store. A pre-v3
// database that already holds duplicate URIs fails the index build and
// the store refuses to open.
func (s *Store) migrateV3() error {
	stmts := []string{
		"DROP INDEX IF EXISTS idx_content_items_uri",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_content_items_uri_unique ON content_items(uri) WHERE uri IS NOT NULL AND uri != ''",
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
