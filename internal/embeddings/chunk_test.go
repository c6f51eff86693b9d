// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"strings"
	"testing"
)

func TestSplitForEmbedding_ShortText(t *testing.T) {
	text := "This is a short text that should not be split."
	chunks := SplitForEmbedding(text, DefaultMaxChunkChars)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != text {
		t.Errorf("chunk mismatch: got %q", chunks[0])
	}
}

func TestSplitForEmbedding_LongText(t *testing.T) {
	paragraph := "This is a sample sentence. It has more than one clause. Each one ends with a period. "
	text := strings.Repeat(paragraph, 60)

	chunks := SplitForEmbedding(text, 1000)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for long text, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c) > 1000+200 {
			t.Errorf("chunk exceeds bound by too much: len=%d", len(c))
		}
	}

	rejoined := strings.Join(chunks, " ")
	if !strings.Contains(rejoined, "sample sentence") {
		t.Errorf("chunks lost content")
	}
}

func TestSplitForEmbedding_PrefersParagraphBoundary(t *testing.T) {
	text := strings.Repeat("word ", 100) + "\n\n" + strings.Repeat("tail ", 100)
	chunks := SplitForEmbedding(text, len(text)/2+20)
	if len(chunks) < 2 {
		t.Fatalf("expected split, got %d chunk(s)", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "word") || strings.Contains(chunks[0], "tail") {
		t.Errorf("first chunk should end at the paragraph break, got %q", chunks[0])
	}
}

func TestCentroid_NormalizesAndAverages(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
	}
	c := Centroid(vectors)
	if len(c) != 3 {
		t.Fatalf("expected dim 3, got %d", len(c))
	}

	var normSq float64
	for _, v := range c {
		normSq += float64(v) * float64(v)
	}
	if normSq < 0.99 || normSq > 1.01 {
		t.Errorf("expected unit norm, got normSq=%f", normSq)
	}
}

func TestCentroid_Empty(t *testing.T) {
	if c := Centroid(nil); c != nil {
		t.Errorf("expected nil for empty input, got %v", c)
	}
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	a, _ := e.EmbedText(nil, "hello world")
	b, _ := e.EmbedText(nil, "hello world")

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("mock embedder not deterministic at index %d: %f != %f", i, a[i], b[i])
		}
	}

	other, _ := e.EmbedText(nil, "something else")
	same := true
	for i := range a {
		if a[i] != other[i] {
			same = false
			break
		}
	}
	if same {
		t.Errorf("expected different text to produce different embedding")
	}
}
