// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/northbound/archivist/internal/archiveerr"
)

func TestEmbedWithRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	embed := func(ctx context.Context, text string) ([]float32, error) {
		calls++
		return []float32{1, 0}, nil
	}

	v, err := embedWithRetry(context.Background(), "short text", embed)
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 2 || calls != 1 {
		t.Errorf("v=%v calls=%d", v, calls)
	}
}

func TestEmbedWithRetryQuarterPrefix(t *testing.T) {
	full := "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz"
	var seen []string
	embed := func(ctx context.Context, text string) ([]float32, error) {
		seen = append(seen, text)
		// Fail until handed a quarter-length prefix.
		if len(text) > len(full)/4 {
			return nil, archiveerr.New(archiveerr.KindContextTooLong, "backend", fmt.Errorf("context too long"))
		}
		return []float32{0.5}, nil
	}

	v, err := embedWithRetry(context.Background(), full, embed)
	if err != nil {
		t.Fatalf("ladder should have recovered: %v", err)
	}
	if len(v) != 1 {
		t.Errorf("v = %v", v)
	}
	if len(seen) != 3 {
		t.Fatalf("attempts = %d, want 3 (full, half, quarter)", len(seen))
	}
	if len(seen[1]) != len(full)/2 || len(seen[2]) != len(full)/4 {
		t.Errorf("prefix lengths = %d, %d", len(seen[1]), len(seen[2]))
	}
}

func TestEmbedWithRetryExhaustsLadder(t *testing.T) {
	calls := 0
	embed := func(ctx context.Context, text string) ([]float32, error) {
		calls++
		return nil, archiveerr.New(archiveerr.KindContextTooLong, "backend", fmt.Errorf("context too long"))
	}

	_, err := embedWithRetry(context.Background(), "some text that never fits", embed)
	if !errors.Is(err, archiveerr.ContextTooLong) {
		t.Errorf("err = %v, want ContextTooLong", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestEmbedWithRetryPassesThroughOtherErrors(t *testing.T) {
	boom := archiveerr.New(archiveerr.KindBackend, "backend", fmt.Errorf("connection refused"))
	calls := 0
	embed := func(ctx context.Context, text string) ([]float32, error) {
		calls++
		return nil, boom
	}

	_, err := embedWithRetry(context.Background(), "anything", embed)
	if !errors.Is(err, archiveerr.Backend) {
		t.Errorf("err = %v, want Backend", err)
	}
	// No ladder for non-oversize failures.
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestMockEmbedderDeterministic(t *testing.T) {
	e := NewMockEmbedder(8)
	ctx := context.Background()

	a, err := e.EmbedText(ctx, "same input")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.EmbedText(ctx, "same input")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if norm < 0.999 || norm > 1.001 {
		t.Errorf("norm² = %v, want ≈1", norm)
	}
}
