// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package content implements the Content Analyzer and Content Chunker: it
// segments raw message text into typed spans and packs those spans into
// chunks ready for embedding and storage.
package content

// SpanType classifies a region of text produced by the Analyzer.
type SpanType string

const (
	SpanCode    SpanType = "code"
	SpanMath    SpanType = "math"
	SpanTable   SpanType = "table"
	SpanHeading SpanType = "heading"
	SpanList    SpanType = "list"
	SpanProse   SpanType = "prose"
)

// Span is a typed, contiguous region of the input text. Offsets are byte
// offsets into the original string. Spans emitted by Analyze cover the
// whole input without gaps or overlaps.
type Span struct {
	Type        SpanType
	Language    string
	StartOffset int
	EndOffset   int
	Content     string
}
