// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package harvest

import (
	"regexp"
	"strings"
)

// DedupMethod names how Deduplicate collapses near-duplicate candidates.
type DedupMethod string

const (
	DedupPrefix  DedupMethod = "prefix"
	DedupJaccard DedupMethod = "jaccard"
	DedupBoth    DedupMethod = "both"
)

// DedupOptions configures Deduplicate; zero values fall back to the
// service defaults (prefixLength 120, jaccardThreshold 0.8, method both).
type DedupOptions struct {
	Method           DedupMethod
	PrefixLength     int
	JaccardThreshold float64
}

func (o DedupOptions) withDefaults() DedupOptions {
	if o.Method == "" {
		o.Method = DedupBoth
	}
	if o.PrefixLength <= 0 {
		o.PrefixLength = 120
	}
	if o.JaccardThreshold <= 0 {
		o.JaccardThreshold = 0.8
	}
	return o
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func normalize(text string) string {
	return whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), " ")
}

func wordSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(normalize(text)) {
		set[w] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	var intersection int
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Deduplicate drops (not merges) candidates considered duplicates of an
// earlier-accepted candidate in texts, preserving input order of the
// survivors. It returns the indices of kept items and the count rejected.
func Deduplicate(texts []string, opts DedupOptions) (kept []int, rejected int) {
	opts = opts.withDefaults()

	seenPrefixes := map[string]bool{}
	var seenSets []map[string]bool

	for i, t := range texts {
		norm := normalize(t)
		isDup := false

		if opts.Method == DedupPrefix || opts.Method == DedupBoth {
			prefix := norm
			if len(prefix) > opts.PrefixLength {
				prefix = prefix[:opts.PrefixLength]
			}
			if seenPrefixes[prefix] {
				isDup = true
			}
		}

		if !isDup && (opts.Method == DedupJaccard || opts.Method == DedupBoth) {
			set := wordSet(t)
			for _, s := range seenSets {
				if jaccard(set, s) >= opts.JaccardThreshold {
					isDup = true
					break
				}
			}
			if !isDup {
				seenSets = append(seenSets, set)
			}
		}

		if isDup {
			rejected++
			continue
		}

		prefix := norm
		if len(prefix) > opts.PrefixLength {
			prefix = prefix[:opts.PrefixLength]
		}
		seenPrefixes[prefix] = true
		kept = append(kept, i)
	}
	return kept, rejected
}
