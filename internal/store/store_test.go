// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/northbound/archivist/internal/archiveerr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConversationRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := Conversation{
		ID:           "conv-1",
		Title:        "Planning the garden",
		Source:       "openai",
		Folder:       "2024-01-01-garden",
		CreatedAt:    time.Unix(1704067200, 0),
		UpdatedAt:    time.Unix(1704070800, 0),
		MessageCount: 4,
		Metadata:     map[string]interface{}{"model": "gpt-4"},
	}
	if err := s.InsertConversation(ctx, c); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != c.Title || got.Source != c.Source || got.Folder != c.Folder {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if got.MessageCount != 4 {
		t.Errorf("message count = %d, want 4", got.MessageCount)
	}
	if got.CreatedAt.Unix() != c.CreatedAt.Unix() {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, c.CreatedAt)
	}
	if got.Metadata["model"] != "gpt-4" {
		t.Errorf("metadata = %v", got.Metadata)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetConversation(context.Background(), "nope")
	if !errors.Is(err, archiveerr.NotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestInsertConversationUpsertsByID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := Conversation{ID: "conv-1", Title: "first", Source: "openai"}
	if err := s.InsertConversation(ctx, c); err != nil {
		t.Fatal(err)
	}
	c.Title = "second"
	c.MessageCount = 7
	if err := s.InsertConversation(ctx, c); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "second" || got.MessageCount != 7 {
		t.Errorf("upsert did not update: %+v", got)
	}

	st, err := s.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Conversations != 1 {
		t.Errorf("conversations = %d, want 1", st.Conversations)
	}
}

func TestConversationSummaryAndInteresting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertConversation(ctx, Conversation{ID: "conv-1", Source: "claude"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateConversationSummary(ctx, "conv-1", "a summary", "emb-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkConversationInteresting(ctx, "conv-1", true); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary != "a summary" || got.SummaryEmbeddingID != "emb-1" || !got.IsInteresting {
		t.Errorf("got %+v", got)
	}

	if err := s.UpdateConversationSummary(ctx, "missing", "x", ""); !errors.Is(err, archiveerr.NotFound) {
		t.Errorf("summary on missing row: err = %v, want NotFound", err)
	}
}

func TestMessageBatchAndEmbeddingLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertConversation(ctx, Conversation{ID: "conv-1", Source: "openai"}); err != nil {
		t.Fatal(err)
	}
	msgs := []Message{
		{ID: "m1", ConversationID: "conv-1", Role: "user", Content: "How do I prune a fig tree?", CreatedAt: time.Unix(100, 0)},
		{ID: "m2", ConversationID: "conv-1", Role: "assistant", Content: "Prune in late winter while dormant.", ParentID: "m1", CreatedAt: time.Unix(101, 0)},
	}
	if err := s.InsertMessagesBatch(ctx, msgs); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetMessagesForConversation(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "m1" || got[1].ParentID != "m1" {
		t.Fatalf("got %+v", got)
	}

	pending, err := s.MessagesWithoutEmbedding(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}

	if err := s.SetMessageEmbedding(ctx, "m1", "emb-m1"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkMessageEmbeddingFailed(ctx, "m2"); err != nil {
		t.Fatal(err)
	}

	pending, err = s.MessagesWithoutEmbedding(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	// m2's failure leaves embedding_id unset so a later run can retry.
	if len(pending) != 1 || pending[0].ID != "m2" {
		t.Fatalf("pending after embed = %+v", pending)
	}
}

func TestInsertMessagesBatchIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertConversation(ctx, Conversation{ID: "conv-1", Source: "openai"}); err != nil {
		t.Fatal(err)
	}
	msgs := []Message{{ID: "m1", ConversationID: "conv-1", Role: "user", Content: "hello there friend"}}
	for i := 0; i < 2; i++ {
		if err := s.InsertMessagesBatch(ctx, msgs); err != nil {
			t.Fatal(err)
		}
	}

	st, err := s.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Messages != 1 {
		t.Errorf("messages = %d, want 1", st.Messages)
	}

	// The FTS shadow table must not stack a second copy either.
	var ftsCount int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages_fts WHERE id = 'm1'`).Scan(&ftsCount); err != nil {
		t.Fatal(err)
	}
	if ftsCount != 1 {
		t.Errorf("fts rows = %d, want 1", ftsCount)
	}
}

func TestChunkIndexUniqueness(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := Chunk{ID: "ch1", ThreadID: "conv-1", ChunkIndex: 0, Content: "original content", ContentType: "prose"}
	if err := s.InsertChunk(ctx, first); err != nil {
		t.Fatal(err)
	}
	// Same (thread, index) upserts in place rather than adding a row.
	second := Chunk{ID: "ch2", ThreadID: "conv-1", ChunkIndex: 0, Content: "replacement content", ContentType: "prose"}
	if err := s.InsertChunk(ctx, second); err != nil {
		t.Fatal(err)
	}

	st, err := s.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Chunks != 1 {
		t.Fatalf("chunks = %d, want 1", st.Chunks)
	}

	got, err := s.GetChunkByID(ctx, "ch1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "replacement content" {
		t.Errorf("content = %q", got.Content)
	}

	ids, err := s.SearchChunksSparse(ctx, "replacement", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "ch1" {
		t.Errorf("sparse hits = %v, want [ch1]", ids)
	}
}

func TestPyramidChunksExcludedFromDefaultView(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertChunk(ctx, Chunk{ID: "c1", ThreadID: "t1", MessageID: "m1", ChunkIndex: 0, Content: "regular"}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertPyramidChunk(ctx, Chunk{ID: "p1", ThreadID: "t1", MessageID: "m1", ChunkIndex: 1, Content: "summary"}); err != nil {
		t.Fatal(err)
	}

	regular, err := s.GetChunkByID(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	pyramid, err := s.GetChunkByID(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if regular.Legacy || !pyramid.Legacy {
		t.Errorf("legacy flags: regular=%v pyramid=%v", regular.Legacy, pyramid.Legacy)
	}
}

func TestContentItemURIUnique(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := ContentItem{ID: "i1", Type: "post", Source: "facebook", Text: "first", URI: "content://facebook/post/1"}
	if err := s.InsertContentItem(ctx, a); err != nil {
		t.Fatal(err)
	}
	b := ContentItem{ID: "i2", Type: "post", Source: "facebook", Text: "second", URI: "content://facebook/post/1"}
	err := s.InsertContentItem(ctx, b)
	if !errors.Is(err, archiveerr.StoreConflict) {
		t.Errorf("duplicate uri: err = %v, want StoreConflict", err)
	}

	// Items without a URI are unconstrained.
	for _, id := range []string{"i3", "i4"} {
		if err := s.InsertContentItem(ctx, ContentItem{ID: id, Type: "note", Source: "notes", Text: "no uri"}); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
}

func TestContentItemRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := ContentItem{
		ID:           "item-1",
		Type:         "post",
		Source:       "facebook",
		Text:         "Went hiking at the ridge today.",
		Title:        "Hiking",
		CreatedAt:    time.Unix(1600000000, 0),
		AuthorName:   "Sam",
		IsOwnContent: true,
		MediaRefs:    []string{"media://sha256/abc"},
		Metadata:     map[string]interface{}{"likes": float64(3)},
		URI:          "content://facebook/post/42",
	}
	if err := s.InsertContentItem(ctx, c); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetContentItem(ctx, "item-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != c.Text || got.AuthorName != "Sam" || !got.IsOwnContent || got.URI != c.URI {
		t.Errorf("got %+v", got)
	}
	if len(got.MediaRefs) != 1 || got.MediaRefs[0] != "media://sha256/abc" {
		t.Errorf("media refs = %v", got.MediaRefs)
	}
	if got.Metadata["likes"] != float64(3) {
		t.Errorf("metadata = %v", got.Metadata)
	}
}

func TestFindLinksDirections(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	links := []Link{
		{ID: "l1", SourceURI: "content://x/note/A", TargetURI: "content://x/note/B", LinkType: "reference", LinkStrength: 1},
		{ID: "l2", SourceURI: "content://x/note/B", TargetURI: "content://x/note/C", LinkType: "child", LinkStrength: 1},
		{ID: "l3", SourceURI: "content://x/note/D", TargetURI: "content://x/note/B", LinkType: "similar", LinkStrength: 0.5},
	}
	for _, l := range links {
		if err := s.InsertLink(ctx, l); err != nil {
			t.Fatal(err)
		}
	}

	both, err := s.FindLinks(ctx, "content://x/note/B", "both", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(both) != 3 {
		t.Fatalf("both = %d links, want 3", len(both))
	}
	var outgoing, incoming int
	for _, l := range both {
		switch l.Direction {
		case "outgoing":
			outgoing++
		case "incoming":
			incoming++
		}
	}
	if outgoing != 1 || incoming != 2 {
		t.Errorf("directions: outgoing=%d incoming=%d, want 1/2", outgoing, incoming)
	}

	sim, err := s.FindLinks(ctx, "content://x/note/B", "both", "similar", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sim) != 1 || sim[0].ID != "l3" {
		t.Errorf("type filter = %+v", sim)
	}

	if err := s.DeleteLink(ctx, "l1"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteLink(ctx, "l1"); !errors.Is(err, archiveerr.NotFound) {
		t.Errorf("double delete: err = %v, want NotFound", err)
	}
}

func TestImportJobLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	j := ImportJob{
		ID:         "job-1",
		Status:     ImportPending,
		SourceType: "chatgpt",
		SourcePath: "/archives/export",
		CreatedAt:  time.Now(),
	}
	if err := s.CreateImportJob(ctx, j); err != nil {
		t.Fatal(err)
	}

	active, ok, err := s.ActiveImportJob(ctx)
	if err != nil || !ok || active.ID != "job-1" {
		t.Fatalf("active = %+v ok=%v err=%v", active, ok, err)
	}

	started := time.Now()
	j.Status = ImportProcessing
	j.StartedAt = &started
	j.Progress = 0.4
	j.UnitsTotal = 10
	j.UnitsProcessed = 4
	j.ErrorLog = []string{"conversation 2024-02-30-bad: malformed json"}
	j.ErrorsCount = 1
	if err := s.UpdateImportJob(ctx, j); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetImportJob(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != ImportProcessing || got.Progress != 0.4 || got.UnitsProcessed != 4 {
		t.Errorf("got %+v", got)
	}
	if len(got.ErrorLog) != 1 || got.ErrorsCount != 1 {
		t.Errorf("error log = %v count=%d", got.ErrorLog, got.ErrorsCount)
	}
	if got.StartedAt == nil || got.CompletedAt != nil {
		t.Errorf("timestamps: started=%v completed=%v", got.StartedAt, got.CompletedAt)
	}

	completed := time.Now()
	j.Status = ImportCompleted
	j.Progress = 1
	j.CompletedAt = &completed
	if err := s.UpdateImportJob(ctx, j); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := s.ActiveImportJob(ctx); err != nil || ok {
		t.Errorf("active after completion: ok=%v err=%v", ok, err)
	}

	if err := s.DeleteImportJob(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetImportJob(ctx, "job-1"); !errors.Is(err, archiveerr.NotFound) {
		t.Errorf("get after delete: err = %v, want NotFound", err)
	}
}

func TestImageAnalysisUniquePerPath(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	img := ImageAnalysis{
		ID:          "img-1",
		FilePath:    "/archives/media/sunset.jpg",
		Source:      "openai",
		Description: "A sunset over a mountain lake",
		Categories:  []string{"landscape"},
		Confidence:  0.9,
	}
	if err := s.UpsertImageAnalysis(ctx, img); err != nil {
		t.Fatal(err)
	}

	// Re-analysis of the same path replaces rather than duplicates.
	img.ID = "img-2"
	img.Description = "A sunset over a calm mountain lake at dusk"
	if err := s.UpsertImageAnalysis(ctx, img); err != nil {
		t.Fatal(err)
	}

	st, err := s.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.ImageAnalyses != 1 {
		t.Fatalf("image rows = %d, want 1", st.ImageAnalyses)
	}

	got, err := s.GetImageAnalysisByPath(ctx, "/archives/media/sunset.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "img-1" {
		t.Errorf("surviving id = %s, want img-1", got.ID)
	}
	if got.Description != img.Description {
		t.Errorf("description = %q", got.Description)
	}

	hits, err := s.SearchImagesFTS(ctx, "dusk", 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].FilePath != img.FilePath {
		t.Errorf("fts hits = %+v", hits)
	}
}

func TestReopenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.InsertConversation(context.Background(), Conversation{ID: "c1", Source: "openai"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.GetConversation(context.Background(), "c1"); err != nil {
		t.Errorf("row lost across reopen: %v", err)
	}
}

func TestRefusesNewerSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`UPDATE schema_meta SET version = ?`, schemaVersion+1); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("open succeeded against a newer schema version")
	}
}
