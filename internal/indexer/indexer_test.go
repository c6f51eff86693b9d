// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package indexer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/northbound/archivist/internal/embeddings"
	"github.com/northbound/archivist/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "indexer.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleMapping() map[string]interface{} {
	return map[string]interface{}{
		"root": map[string]interface{}{"parent": "", "children": []string{"m1"}},
		"m1": map[string]interface{}{
			"parent": "root", "children": []string{"m2"},
			"message": map[string]interface{}{
				"author":  map[string]interface{}{"role": "user"},
				"content": map[string]interface{}{"parts": []string{"How do sourdough starters work?"}},
			},
		},
		"m2": map[string]interface{}{
			"parent": "m1", "children": []string{},
			"message": map[string]interface{}{
				"author":  map[string]interface{}{"role": "assistant"},
				"content": map[string]interface{}{"parts": []string{"A sourdough starter is a fermented flour-and-water culture that leavens bread without commercial yeast."}},
			},
		},
	}
}

func writeArchive(t *testing.T, root string) {
	t.Helper()
	folder := filepath.Join(root, "2026-01-01-sourdough")
	if err := os.Mkdir(folder, 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(map[string]interface{}{
		"id": "conv-sourdough", "title": "Sourdough", "mapping": sampleMapping(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(folder, "conversation.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunIndexesConversationAndMessages(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root)

	s := openTestStore(t)
	ix := New(s, embeddings.NewMockEmbedder(8), root, "openai")

	var lastProgress Progress
	sink := make(chan Progress, 64)
	done := make(chan struct{})
	go func() {
		for p := range sink {
			lastProgress = p
		}
		close(done)
	}()

	err := ix.Run(context.Background(), Options{}, sink, nil)
	close(sink)
	<-done
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if lastProgress.Status != StatusComplete {
		t.Errorf("final Status = %v, want complete", lastProgress.Status)
	}

	messages, err := s.GetMessagesForConversation(context.Background(), "conv-sourdough")
	if err != nil {
		t.Fatalf("GetMessagesForConversation: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages persisted, got %d", len(messages))
	}

	pending, err := s.MessagesWithoutEmbedding(context.Background(), "conv-sourdough")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("expected every message to have an embedding after Run, %d still pending", len(pending))
	}
}

func TestRunIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root)

	s := openTestStore(t)
	ix := New(s, embeddings.NewMockEmbedder(8), root, "openai")

	if err := ix.Run(context.Background(), Options{}, nil, nil); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	before, err := s.GetMessagesForConversation(context.Background(), "conv-sourdough")
	if err != nil {
		t.Fatal(err)
	}
	firstEmbeddingID := before[0].EmbeddingID

	// Re-running over the same archive must not error and must leave
	// already-embedded rows untouched.
	if err := ix.Run(context.Background(), Options{}, nil, nil); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	after, err := s.GetMessagesForConversation(context.Background(), "conv-sourdough")
	if err != nil {
		t.Fatal(err)
	}
	if after[0].EmbeddingID != firstEmbeddingID {
		t.Error("expected a re-run to leave an already-embedded message's embedding id untouched")
	}
}

func TestRunCancellation(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root)

	s := openTestStore(t)
	ix := New(s, embeddings.NewMockEmbedder(8), root, "openai")

	calls := 0
	cancelled := func() bool {
		calls++
		return true
	}

	err := ix.Run(context.Background(), Options{}, nil, cancelled)
	if err == nil {
		t.Fatal("expected a cancellation error")
	}
}
