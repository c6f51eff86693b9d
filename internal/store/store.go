// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package store implements the content graph store: the relational
// schema for all archive entities plus a vector index attached alongside
// it. All
// mutation methods accept a context. The pool holds a single connection,
// so reads and writes are serialized; InsertMessagesBatch runs in one
// transaction, the other mutation methods issue individual statements.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/northbound/archivist/internal/archiveerr"
)

// Store owns the SQLite connection and the attached vector index. It is
// the only mutator of persistent state in the process.
type Store struct {
	db     *sql.DB
	Vector *VectorIndex
}

// Open opens (creating if absent) the relational database at path and runs
// forward migrations. The vector index is wired in separately via
// AttachVectorIndex since it requires a live gRPC connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // one writer at a time, per the concurrency model

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// AttachVectorIndex wires a vector index into the store. Safe to call with
// nil to run store-only (no semantic search) for tests.
func (s *Store) AttachVectorIndex(v *VectorIndex) {
	s.Vector = v
}

func (s *Store) Close() error {
	return s.db.Close()
}

// wrapWriteErr classifies a failed write: constraint violations (unique
// uri, duplicate (thread_id, chunk_index), ...) become StoreConflict so
// callers can branch on them; everything else is Backend.
func wrapWriteErr(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return archiveerr.New(archiveerr.KindStoreConflict, op, err)
	}
	return archiveerr.New(archiveerr.KindBackend, op, err)
}
