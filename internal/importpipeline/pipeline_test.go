// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package importpipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/northbound/archivist/internal/embeddings"
	"github.com/northbound/archivist/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPipelineImportTextFiles(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"a.txt":       "first note about the archive",
		"b.md":        "# heading\nsecond note",
		"~$locked.md": "should be ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	s := openTestStore(t)
	pipe := New(s, embeddings.NewMockEmbedder(8), nil)

	job, err := pipe.Import(context.Background(), root, ImportOptions{Source: "test-import"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if job.Status != store.ImportCompleted {
		t.Fatalf("job.Status = %v, want completed (errors: %v)", job.Status, job.ErrorLog)
	}
	if job.UnitsProcessed != 2 {
		t.Errorf("UnitsProcessed = %d, want 2 (the lock file must be skipped)", job.UnitsProcessed)
	}

	pending, err := s.ContentItemsWithoutEmbedding(context.Background(), "test-import")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("expected every content item to have an embedding after import, %d still pending", len(pending))
	}
}

func TestPipelineImportSkipEmbeddings(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "only.txt"), []byte("content here"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := openTestStore(t)
	pipe := New(s, embeddings.NewMockEmbedder(8), nil)

	job, err := pipe.Import(context.Background(), root, ImportOptions{
		Source:       "skip-test",
		ParseOptions: ParseOptions{SkipEmbeddings: true},
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if job.Status != store.ImportCompleted {
		t.Fatalf("job.Status = %v, want completed", job.Status)
	}

	pending, err := s.ContentItemsWithoutEmbedding(context.Background(), "skip-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Errorf("expected the one content item to remain unembedded, got %d pending", len(pending))
	}
}

func TestPipelineImportEmptyRoot(t *testing.T) {
	root := t.TempDir()
	s := openTestStore(t)
	pipe := New(s, embeddings.NewMockEmbedder(8), nil)

	job, err := pipe.Import(context.Background(), root, ImportOptions{Source: "empty"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if job.Status != store.ImportCompleted {
		t.Fatalf("job.Status = %v, want completed", job.Status)
	}
	if job.UnitsTotal != 0 || job.UnitsProcessed != 0 {
		t.Errorf("expected zero units for an empty root, got total=%d processed=%d", job.UnitsTotal, job.UnitsProcessed)
	}
}
