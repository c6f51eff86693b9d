// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package harvest

import "testing"

func TestDeduplicatePrefix(t *testing.T) {
	texts := []string{
		"The quarterly review covered revenue growth and churn across every region.",
		"The quarterly review covered revenue growth and churn in a totally different way.",
		"A completely unrelated note about lunch plans for Friday.",
	}
	kept, rejected := Deduplicate(texts, DedupOptions{Method: DedupPrefix, PrefixLength: 40})
	if rejected != 1 {
		t.Errorf("rejected = %d, want 1", rejected)
	}
	if len(kept) != 2 {
		t.Errorf("len(kept) = %d, want 2", len(kept))
	}
	if kept[0] != 0 || kept[1] != 2 {
		t.Errorf("kept = %v, want [0 2]", kept)
	}
}

func TestDeduplicateJaccard(t *testing.T) {
	texts := []string{
		"alpha bravo charlie delta echo foxtrot golf hotel india juliet",
		"alpha bravo charlie delta echo foxtrot golf hotel india kilo",
		"zulu yankee xray whiskey victor uniform tango",
	}
	kept, rejected := Deduplicate(texts, DedupOptions{Method: DedupJaccard, JaccardThreshold: 0.8})
	if rejected != 1 {
		t.Errorf("rejected = %d, want 1 (near-identical word sets)", rejected)
	}
	if len(kept) != 2 {
		t.Errorf("len(kept) = %d, want 2", len(kept))
	}
}

func TestDeduplicatePreservesOrderAndAllowsDistinctText(t *testing.T) {
	texts := []string{"first unique passage here", "second unique passage there", "third unique passage elsewhere"}
	kept, rejected := Deduplicate(texts, DedupOptions{})
	if rejected != 0 {
		t.Errorf("rejected = %d, want 0", rejected)
	}
	if len(kept) != 3 {
		t.Fatalf("len(kept) = %d, want 3", len(kept))
	}
	for i, idx := range kept {
		if idx != i {
			t.Errorf("kept[%d] = %d, want %d (order should be preserved)", i, idx, i)
		}
	}
}

func TestJaccardIdenticalEmptySets(t *testing.T) {
	if got := jaccard(map[string]bool{}, map[string]bool{}); got != 1 {
		t.Errorf("jaccard of two empty sets = %v, want 1", got)
	}
}
