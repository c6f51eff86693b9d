// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	d := Defaults()
	if cfg.Harvest.DefaultTarget != d.Harvest.DefaultTarget {
		t.Errorf("harvest target = %d, want %d", cfg.Harvest.DefaultTarget, d.Harvest.DefaultTarget)
	}
	if cfg.Embeddings.Dimensions != 768 {
		t.Errorf("dimensions = %d, want 768", cfg.Embeddings.Dimensions)
	}
	if cfg.Retrieval.Hybrid.DenseWeight != 0.6 || cfg.Retrieval.Hybrid.FusionK != 60 {
		t.Errorf("hybrid defaults = %+v", cfg.Retrieval.Hybrid)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Defaults()
	cfg.Harvest.DefaultTarget = 50
	cfg.Harvest.Deduplication.Method = "jaccard"
	cfg.Embeddings.BatchSize = 16
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Harvest.DefaultTarget != 50 {
		t.Errorf("target = %d, want 50", got.Harvest.DefaultTarget)
	}
	if got.Harvest.Deduplication.Method != "jaccard" {
		t.Errorf("dedup method = %q", got.Harvest.Deduplication.Method)
	}
	if got.Embeddings.BatchSize != 16 {
		t.Errorf("batch size = %d", got.Embeddings.BatchSize)
	}
}

func TestLoadMergesPartialFileAgainstDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	partial := `{"harvest": {"defaultTarget": 5}}`
	if err := os.WriteFile(path, []byte(partial), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Harvest.DefaultTarget != 5 {
		t.Errorf("target = %d, want 5 from file", cfg.Harvest.DefaultTarget)
	}
	// Keys absent from the file come from Defaults().
	if cfg.Harvest.SearchLimit != 100 {
		t.Errorf("search limit = %d, want default 100", cfg.Harvest.SearchLimit)
	}
	if cfg.Embeddings.MaxChunkChars != 4000 {
		t.Errorf("maxChunkChars = %d, want default 4000", cfg.Embeddings.MaxChunkChars)
	}
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := Save(path, Defaults()); err != nil {
		t.Fatal(err)
	}
	// No temp residue left behind after the rename.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "config.json" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("dir contents = %v, want only config.json", names)
	}
}
