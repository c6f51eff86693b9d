// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/northbound/archivist/internal/store"
)

func TestRRFContribution(t *testing.T) {
	if got := rrfContribution(0.6, 0, 60); got != 0 {
		t.Errorf("rank 0 should contribute 0, got %v", got)
	}
	first := rrfContribution(0.6, 1, 60)
	second := rrfContribution(0.6, 2, 60)
	if !(first > second) {
		t.Errorf("rank 1 contribution (%v) should exceed rank 2 (%v)", first, second)
	}
	if got := rrfContribution(0.6, 1, 60); got != 0.6*(1.0/61.0) {
		t.Errorf("rrfContribution(0.6, 1, 60) = %v, want %v", got, 0.6*(1.0/61.0))
	}
}

func TestDeadlineExpired(t *testing.T) {
	if deadlineExpired(time.Time{}) {
		t.Error("zero deadline should never be expired")
	}
	if !deadlineExpired(time.Now().Add(-time.Second)) {
		t.Error("a deadline in the past should be expired")
	}
	if deadlineExpired(time.Now().Add(time.Hour)) {
		t.Error("a deadline in the future should not be expired")
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	if opts.SearchLimit != 100 || opts.Limit != 20 {
		t.Errorf("unexpected default limits: %+v", opts)
	}
	if opts.DenseWeight != DefaultDenseWeight || opts.SparseWeight != DefaultSparseWeight {
		t.Errorf("unexpected default weights: %+v", opts)
	}
}

func TestSearchRequiresVectorIndex(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "search.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()

	// No vector index attached: the dense pass must fail fast rather than
	// silently returning an empty result set.
	_, err = Search(context.Background(), s, "hello", []float32{0.1, 0.2}, Options{})
	if err == nil {
		t.Error("expected an error when no vector index is attached")
	}
}
