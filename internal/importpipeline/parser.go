// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package importpipeline implements the import pipeline and parsers: a
// job state machine that detects a source file's format, routes it to the
// highest-confidence registered parser, and writes the resulting units
// into the Content Graph Store.
package importpipeline

import (
	"context"
	"time"
)

// Unit is one parsed item a format parser emits, destined to become a
// ContentItem row.
type Unit struct {
	Type       string
	Text       string
	Title      string
	CreatedAt  time.Time
	AuthorName string
	URI        string
	Metadata   map[string]interface{}
}

// Detection is a parser's confidence that it can handle a given path.
type Detection struct {
	SourceType string
	Confidence float64
}

// ParseOptions configures one parse call.
type ParseOptions struct {
	SkipEmbeddings bool
}

// ProgressFunc reports parse progress within a single file (e.g. sheet N
// of M, page N of M); units with no natural sub-progress call it once
// with (1, 1).
type ProgressFunc func(current, total int)

// Parser is a format plugin: it declares how confident it is that it can
// handle a path, and, when chosen, streams parsed units.
type Parser interface {
	Name() string
	Detect(path string) (Detection, bool)
	Parse(ctx context.Context, path string, opts ParseOptions, progress ProgressFunc) ([]Unit, error)
}

// Registry holds parsers in registration order; DetectBest picks the
// highest-confidence match, ties broken by registration order (first
// registered wins).
type Registry struct {
	parsers []Parser
}

func NewRegistry(parsers ...Parser) *Registry {
	return &Registry{parsers: parsers}
}

func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// DetectBest returns the parser with the highest Detect confidence for
// path, or ok=false if no registered parser claims it.
func (r *Registry) DetectBest(path string) (Parser, Detection, bool) {
	var best Parser
	var bestDet Detection
	found := false

	for _, p := range r.parsers {
		det, ok := p.Detect(path)
		if !ok {
			continue
		}
		if !found || det.Confidence > bestDet.Confidence {
			best, bestDet, found = p, det, true
		}
	}
	return best, bestDet, found
}
