// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package harvest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/northbound/archivist/internal/archiveerr"
	"github.com/northbound/archivist/internal/embeddings"
	"github.com/northbound/archivist/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "harvest.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHarvestZeroTargetShortCircuits(t *testing.T) {
	svc := New(openTestStore(t), embeddings.NewMockEmbedder(8))
	result, err := svc.Harvest(context.Background(), "anything", Options{Target: 0}, nil)
	if err != nil {
		t.Fatalf("Harvest: %v", err)
	}
	if len(result.Results) != 0 {
		t.Errorf("expected no results for a zero target, got %d", len(result.Results))
	}
	if !result.Stats.Exhausted {
		t.Error("expected Exhausted to be true for a zero target")
	}
}

func TestHarvestWithoutVectorIndexYieldsNoCandidates(t *testing.T) {
	// No vector index attached: every search call the harvest loop makes
	// should fail closed (empty candidates), never panic or hard-error.
	svc := New(openTestStore(t), embeddings.NewMockEmbedder(8))
	result, err := svc.Harvest(context.Background(), "migration plan", Options{Target: 3}, nil)
	if err != nil {
		t.Fatalf("Harvest: %v", err)
	}
	if len(result.Results) != 0 {
		t.Errorf("expected zero results with no backing vector index, got %d", len(result.Results))
	}
	if result.Stats.Searched != 0 {
		t.Errorf("Searched = %d, want 0", result.Stats.Searched)
	}
	if !result.Stats.Exhausted {
		t.Error("expected Exhausted to be true when the target cannot be met")
	}
}

func TestHarvestEmitsProgressPhases(t *testing.T) {
	svc := New(openTestStore(t), embeddings.NewMockEmbedder(8))
	sink := make(chan Progress, 16)

	_, err := svc.Harvest(context.Background(), "anything", Options{Target: 2}, sink)
	if err != nil {
		t.Fatalf("Harvest: %v", err)
	}
	close(sink)

	var sawSearching, sawComplete bool
	for p := range sink {
		if p.Phase == PhaseSearching {
			sawSearching = true
		}
		if p.Phase == PhaseComplete {
			sawComplete = true
		}
	}
	if !sawSearching {
		t.Error("expected at least one PhaseSearching progress event")
	}
	if !sawComplete {
		t.Error("expected a terminal PhaseComplete progress event")
	}
}

// fakeStore satisfies the Store interface with canned results so the
// full Harvest loop (classification, expansion, dedup, acceptance) can be
// driven without a vector index.
type fakeStore struct {
	messageHits []store.SearchMessageHit
	messages    map[string][]store.Message
}

func (f *fakeStore) SearchChunks(ctx context.Context, queryVec []float32, limit int, contentTypes []string) ([]store.SearchChunkHit, error) {
	return nil, nil
}

func (f *fakeStore) SearchChunksSparse(ctx context.Context, query string, limit int) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) GetChunkByID(ctx context.Context, id string) (store.Chunk, error) {
	return store.Chunk{}, archiveerr.New(archiveerr.KindNotFound, "fakeStore.GetChunkByID", nil)
}

func (f *fakeStore) SearchMessages(ctx context.Context, queryVec []float32, limit int, role string) ([]store.SearchMessageHit, error) {
	return f.messageHits, nil
}

func (f *fakeStore) SearchContentItems(ctx context.Context, queryVec []float32, limit int, itemType, source string) ([]store.SearchContentItemHit, error) {
	return nil, nil
}

func (f *fakeStore) GetMessagesForConversation(ctx context.Context, conversationID string) ([]store.Message, error) {
	return f.messages[conversationID], nil
}

func TestHarvestExpandsBreadcrumbEndToEnd(t *testing.T) {
	breadcrumb := "In the context of yesterday's plan."
	before := "We agreed to move the planting schedule forward by two weeks because the frost risk dropped sharply after the last forecast update arrived."
	after := "That means the seedlings need hardening off this weekend, and the irrigation lines have to be tested before the transplant date we picked."

	fs := &fakeStore{
		messageHits: []store.SearchMessageHit{
			{ID: "m3", Content: breadcrumb, Similarity: 0.9, ConversationID: "conv-1", ConversationTitle: "Garden planning"},
		},
		messages: map[string][]store.Message{
			"conv-1": {
				{ID: "m1", ConversationID: "conv-1", Role: "user", Content: "Quick check-in about the garden."},
				{ID: "m2", ConversationID: "conv-1", Role: "assistant", Content: before},
				{ID: "m3", ConversationID: "conv-1", Role: "user", Content: breadcrumb},
				{ID: "m4", ConversationID: "conv-1", Role: "assistant", Content: after},
				{ID: "m5", ConversationID: "conv-1", Role: "user", Content: "Sounds good, thanks."},
			},
		},
	}

	svc := New(fs, embeddings.NewMockEmbedder(8))
	result, err := svc.Harvest(context.Background(), "planting schedule", Options{
		Target:            1,
		ExpandBreadcrumbs: true,
		ContextSize:       1,
		MinWordCount:      15,
		MinGrade:          1,
	}, nil)
	if err != nil {
		t.Fatalf("Harvest: %v", err)
	}

	if len(result.Results) != 1 {
		t.Fatalf("results = %d, want 1 (stats: %+v)", len(result.Results), result.Stats)
	}
	got := result.Results[0]
	if got.Expanded == nil {
		t.Fatal("expected the breadcrumb to be expanded")
	}
	if !strings.Contains(got.Expanded.CombinedContent, "\n\n---\n\n") {
		t.Error("combined content should join neighbors with the --- separator")
	}
	if !strings.Contains(got.Expanded.CombinedContent, before) || !strings.Contains(got.Expanded.CombinedContent, after) {
		t.Error("combined content should include both neighboring messages")
	}
	if strings.Contains(got.Expanded.CombinedContent, "Quick check-in") {
		t.Error("contextSize=1 must not pull in messages beyond the immediate neighbors")
	}
	if got.Grade.StubType != StubOptimal {
		t.Errorf("accepted stub type = %s, want %s after expansion", got.Grade.StubType, StubOptimal)
	}
	if result.Stats.Expanded != 1 {
		t.Errorf("stats.Expanded = %d, want 1", result.Stats.Expanded)
	}
	if result.Stats.Exhausted {
		t.Error("target was met, Exhausted should be false")
	}
}

func TestHarvestRejectsShortNonBreadcrumbCandidates(t *testing.T) {
	// Short prose that is not breadcrumb-shaped stays subject to the
	// minimum content length.
	fs := &fakeStore{
		messageHits: []store.SearchMessageHit{
			{ID: "m1", Content: "The fig tree looked healthy today. Nothing else to report from the garden beds.", Similarity: 0.8, ConversationID: "conv-1"},
		},
		messages: map[string][]store.Message{},
	}

	svc := New(fs, embeddings.NewMockEmbedder(8))
	result, err := svc.Harvest(context.Background(), "fig tree", Options{Target: 1, MinGrade: 1, MinWordCount: 5}, nil)
	if err != nil {
		t.Fatalf("Harvest: %v", err)
	}
	if len(result.Results) != 0 {
		t.Fatalf("results = %d, want 0", len(result.Results))
	}
	if result.Stats.Rejected != 1 {
		t.Errorf("stats.Rejected = %d, want 1", result.Stats.Rejected)
	}
	if !result.Stats.Exhausted {
		t.Error("expected Exhausted when the only candidate is rejected")
	}
}

func TestSortCandidatesOrdersBySimilarityThenLengthBonus(t *testing.T) {
	opts := Options{LengthBonusMax: 0.15, LengthBonusDivisor: 500}
	candidates := []Candidate{
		{Kind: "chunk", Similarity: 0.5, WordCount: 10},
		{Kind: "chunk", Similarity: 0.9, WordCount: 10},
		{Kind: "chunk", Similarity: 0.5, WordCount: 5000}, // bonus capped at 0.15
	}
	sortCandidates(candidates, opts)
	if candidates[0].Similarity != 0.9 {
		t.Errorf("expected the highest-similarity candidate first, got %+v", candidates[0])
	}
}
