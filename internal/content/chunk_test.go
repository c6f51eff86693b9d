// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package content

import (
	"strings"
	"testing"
)

func TestChunkSpans_AtomicForCode(t *testing.T) {
	text := "```go\nfunc main() {}\n```\n"
	spans := Analyze(text)
	chunks := ChunkSpans("thread-1", text, spans, 0, ChunkOptions{})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 atomic chunk, got %d", len(chunks))
	}
	if chunks[0].ContentType != SpanCode || chunks[0].Language != "go" {
		t.Errorf("unexpected chunk: %+v", chunks[0])
	}
}

func TestChunkSpans_ProsePacking(t *testing.T) {
	paragraph := strings.Repeat("word ", 40) // ~40 words
	text := paragraph + "\n\n" + paragraph + "\n\n" + paragraph + "\n\n" + paragraph
	spans := Analyze(text)
	chunks := ChunkSpans("thread-1", text, spans, 0, ChunkOptions{TargetProseWords: 80})

	if len(chunks) < 2 {
		t.Fatalf("expected multiple packed chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if c.WordCount > 120 {
			t.Errorf("chunk exceeds target word budget by too much: %d words", c.WordCount)
		}
	}
}

func TestChunkSpans_ChunkIndexMonotone(t *testing.T) {
	text := "# Title\n\nSome prose follows that is long enough to matter here.\n\n- a\n- b\n"
	spans := Analyze(text)
	chunks := ChunkSpans("thread-1", text, spans, 5, ChunkOptions{})
	for i, c := range chunks {
		if c.ChunkIndex != 5+i {
			t.Errorf("expected chunkIndex %d, got %d", 5+i, c.ChunkIndex)
		}
	}
}

func TestIsJunk(t *testing.T) {
	cases := []struct {
		role string
		text string
		want bool
	}{
		{"tool", "some reasonably long tool output text here", true},
		{"assistant", "short", true},
		{"assistant", strings.Repeat("a", 40), false},
		{"assistant", "Traceback (most recent call last):\nsome long trailing detail that fills space", true},
		{"assistant", "[image attachment]", true},
	}
	for _, c := range cases {
		if got := IsJunk(c.role, c.text); got != c.want {
			t.Errorf("IsJunk(%q, %q) = %v, want %v", c.role, c.text, got, c.want)
		}
	}
}
