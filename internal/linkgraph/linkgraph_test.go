// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package linkgraph

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/northbound/archivist/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "linkgraph.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestURIBuilders(t *testing.T) {
	if got := ContentURI("chatgpt", "message", "abc"); got != "content://chatgpt/message/abc" {
		t.Errorf("ContentURI = %q", got)
	}
	if got := MediaURI("deadbeef"); got != "media://sha256/deadbeef" {
		t.Errorf("MediaURI = %q", got)
	}
}

func TestInsertLinkRejectsInvalidTypeAndStrength(t *testing.T) {
	g := New(openTestStore(t))
	ctx := context.Background()

	err := g.InsertLink(ctx, store.Link{ID: uuid.New().String(), SourceURI: "content://a/message/1", TargetURI: "content://a/message/2", LinkType: "nonsense", LinkStrength: 0.5})
	if err == nil {
		t.Error("expected an error for an unrecognized link type")
	}

	err = g.InsertLink(ctx, store.Link{ID: uuid.New().String(), SourceURI: "content://a/message/1", TargetURI: "content://a/message/2", LinkType: "reference", LinkStrength: 1.5})
	if err == nil {
		t.Error("expected an error for a link strength outside [0,1]")
	}
}

func TestFindLinksDirection(t *testing.T) {
	ctx := context.Background()
	g := New(openTestStore(t))

	uriA := "content://a/message/1"
	uriB := "content://a/message/2"
	if err := g.InsertLink(ctx, store.Link{ID: uuid.New().String(), SourceURI: uriA, TargetURI: uriB, LinkType: "reference", LinkStrength: 0.9, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("InsertLink: %v", err)
	}

	out, err := g.FindLinks(ctx, uriA, "outgoing", "", 10)
	if err != nil {
		t.Fatalf("FindLinks: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 outgoing link from uriA, got %d", len(out))
	}

	in, err := g.FindLinks(ctx, uriB, "incoming", "", 10)
	if err != nil {
		t.Fatalf("FindLinks: %v", err)
	}
	if len(in) != 1 {
		t.Fatalf("expected 1 incoming link to uriB, got %d", len(in))
	}

	if _, err := g.FindLinks(ctx, uriA, "sideways", "", 10); err == nil {
		t.Error("expected an error for an invalid direction")
	}
}

func TestGraphTraversalRespectsDepthAndDedup(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	g := New(s)

	// a -> b -> c -> d, a chain of three hops.
	chain := []string{
		"content://a/message/1",
		"content://a/message/2",
		"content://a/message/3",
		"content://a/message/4",
	}
	for i := 0; i < len(chain)-1; i++ {
		err := g.InsertLink(ctx, store.Link{
			ID: uuid.New().String(), SourceURI: chain[i], TargetURI: chain[i+1],
			LinkType: "follows", LinkStrength: 0.5, CreatedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("InsertLink: %v", err)
		}
	}

	sub, err := g.Graph(ctx, chain[0], 2, nil)
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	// depth 2 from chain[0] should reach chain[0..2], not chain[3].
	if len(sub.Nodes) != 3 {
		t.Errorf("len(Nodes) = %d, want 3 at depth 2", len(sub.Nodes))
	}

	full, err := g.Graph(ctx, chain[0], MaxDepth+10, nil)
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(full.Nodes) != len(chain) {
		t.Errorf("len(Nodes) = %d, want %d (depth should clamp at MaxDepth, well past this short chain)", len(full.Nodes), len(chain))
	}
}
