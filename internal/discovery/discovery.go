// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package discovery implements metadata discovery: it introspects a
// fixed, code-declared set of fields across the store's tables and emits
// adaptive filter facets, cached for an hour.
package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/northbound/archivist/internal/store"
)

// FieldKind names the facet shape a declared field produces.
type FieldKind string

const (
	KindEnum        FieldKind = "enum"
	KindDateRange   FieldKind = "date_range"
	KindNumericRange FieldKind = "numeric_range"
	KindBoolean     FieldKind = "boolean"
)

// FieldSpec declares one introspectable field: which table/column backs it,
// what facet name it surfaces under, and what kind of facet to build.
type FieldSpec struct {
	Name   string
	Table  string
	Column string
	Kind   FieldKind
}

// DeclaredFields lists every field the discovery service introspects. New
// fields are added here, never inferred from schema reflection: discovery
// covers declared fields across declared tables, not a generic
// information_schema walk.
var DeclaredFields = []FieldSpec{
	{Name: "conversation_source", Table: "conversations", Column: "source", Kind: KindEnum},
	{Name: "conversation_interesting", Table: "conversations", Column: "is_interesting", Kind: KindBoolean},
	{Name: "conversation_created_at", Table: "conversations", Column: "created_at", Kind: KindDateRange},
	{Name: "message_role", Table: "messages", Column: "role", Kind: KindEnum},
	{Name: "content_type", Table: "content_items", Column: "type", Kind: KindEnum},
	{Name: "content_source", Table: "content_items", Column: "source", Kind: KindEnum},
	{Name: "content_own", Table: "content_items", Column: "is_own_content", Kind: KindBoolean},
	{Name: "content_created_at", Table: "content_items", Column: "created_at", Kind: KindDateRange},
	{Name: "block_type", Table: "content_blocks", Column: "block_type", Kind: KindEnum},
	{Name: "chunk_content_type", Table: "chunks", Column: "content_type", Kind: KindEnum},
	{Name: "link_type", Table: "links", Column: "link_type", Kind: KindEnum},
	{Name: "link_strength", Table: "links", Column: "link_strength", Kind: KindNumericRange},
	{Name: "image_source", Table: "image_analyses", Column: "source", Kind: KindEnum},
	{Name: "image_confidence", Table: "image_analyses", Column: "confidence", Kind: KindNumericRange},
}

const (
	DefaultMaxDistinct = 50
	DefaultMinCoverage = 5.0 // percent
	cacheTTL           = time.Hour
)

// Facet is one discovered filter dimension.
type Facet struct {
	Name          string
	Kind          FieldKind
	Coverage      float64
	DistinctCount int
	TotalRows     int
	NonNullCount  int
	Values        []store.ValueCount `json:",omitempty"`
	Min           interface{}        `json:",omitempty"`
	Max           interface{}        `json:",omitempty"`
	TrueCount     int                `json:",omitempty"`
	FalseCount    int                `json:",omitempty"`
}

// DiscoveryResult is the cached, full introspection output.
type DiscoveryResult struct {
	Facets       []Facet
	DiscoveredAt time.Time
	TotalRecords int
}

// Options overrides the field-level defaults.
type Options struct {
	MaxDistinct int
	MinCoverage float64 // percent, one threshold applied to every field (no per-field override); 0 means use DefaultMinCoverage
}

// Service introspects a Store for faceted filters, caching the result for
// an hour. The cache is invalidated explicitly (ImportCompleted) rather
// than on every write, since discovery is meant to be a cheap, occasional
// read against a fairly stable corpus.
type Service struct {
	store *store.Store
	opts  Options

	mu       sync.Mutex
	cached   *DiscoveryResult
	cachedAt time.Time
}

func NewService(s *store.Store, opts Options) *Service {
	if opts.MaxDistinct <= 0 {
		opts.MaxDistinct = DefaultMaxDistinct
	}
	if opts.MinCoverage <= 0 {
		opts.MinCoverage = DefaultMinCoverage
	}
	return &Service{store: s, opts: opts}
}

// ImportCompleted invalidates the cache; call it once an import pipeline
// run finishes, since that is the only event that meaningfully changes
// facet coverage/cardinality.
func (d *Service) ImportCompleted() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cached = nil
}

// Discover returns the cached result if still fresh, else recomputes.
func (d *Service) Discover(ctx context.Context) (DiscoveryResult, error) {
	d.mu.Lock()
	if d.cached != nil && time.Since(d.cachedAt) < cacheTTL {
		result := *d.cached
		d.mu.Unlock()
		return result, nil
	}
	d.mu.Unlock()

	result, err := d.computeFacets(ctx)
	if err != nil {
		return DiscoveryResult{}, err
	}

	d.mu.Lock()
	d.cached = &result
	d.cachedAt = time.Now()
	d.mu.Unlock()
	return result, nil
}

func (d *Service) computeFacets(ctx context.Context) (DiscoveryResult, error) {
	stats, err := d.store.GetStats(ctx)
	if err != nil {
		return DiscoveryResult{}, err
	}

	var facets []Facet
	for _, field := range DeclaredFields {
		facet, ok, err := d.computeFacet(ctx, field)
		if err != nil {
			return DiscoveryResult{}, err
		}
		if ok {
			facets = append(facets, facet)
		}
	}

	total := stats.Conversations + stats.Messages + stats.ContentItems + stats.ContentBlocks + stats.Chunks
	return DiscoveryResult{
		Facets:       facets,
		DiscoveredAt: time.Now(),
		TotalRecords: total,
	}, nil
}

// computeFacet introspects one declared field; ok is false when the field
// is skipped for low coverage or degeneracy.
func (d *Service) computeFacet(ctx context.Context, field FieldSpec) (Facet, bool, error) {
	total, nonNull, err := d.store.FieldCoverage(ctx, field.Table, field.Column)
	if err != nil {
		return Facet{}, false, err
	}
	if total == 0 {
		return Facet{}, false, nil
	}

	coverage := 100 * float64(nonNull) / float64(total)
	if coverage < d.opts.MinCoverage {
		return Facet{}, false, nil
	}

	facet := Facet{
		Name:         field.Name,
		Kind:         field.Kind,
		Coverage:     coverage,
		TotalRows:    total,
		NonNullCount: nonNull,
	}

	switch field.Kind {
	case KindEnum:
		distinct, err := d.store.FieldDistinctCount(ctx, field.Table, field.Column)
		if err != nil {
			return Facet{}, false, err
		}
		if distinct > d.opts.MaxDistinct {
			return Facet{}, false, nil
		}
		values, err := d.store.FieldTopValues(ctx, field.Table, field.Column, DefaultMaxDistinct)
		if err != nil {
			return Facet{}, false, err
		}
		facet.DistinctCount = distinct
		facet.Values = values

	case KindDateRange, KindNumericRange:
		min, max, err := d.store.FieldRange(ctx, field.Table, field.Column)
		if err != nil {
			return Facet{}, false, err
		}
		if field.Kind == KindNumericRange && min != nil && max != nil && equalScalar(min, max) {
			return Facet{}, false, nil
		}
		facet.Min = min
		facet.Max = max

	case KindBoolean:
		trueCount, falseCount, err := d.store.FieldBooleanCounts(ctx, field.Table, field.Column)
		if err != nil {
			return Facet{}, false, err
		}
		if trueCount == 0 || falseCount == 0 {
			return Facet{}, false, nil
		}
		facet.TrueCount = trueCount
		facet.FalseCount = falseCount
	}

	return facet, true, nil
}

func equalScalar(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return aok && bok && af == bf
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
