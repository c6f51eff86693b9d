// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package content

import (
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultTargetProseWords = 150
	DefaultMaxChunkWords    = 500
	DefaultContextChars     = 100
)

// Chunk is a unit of text ready for embedding and storage, produced from
// one or more Spans of the same source text.
type Chunk struct {
	ID            string
	ThreadID      string
	ChunkIndex    int
	Content       string
	WordCount     int
	TokenCount    int
	ContentType   SpanType
	Language      string
	StartOffset   int
	EndOffset     int
	ContextBefore string
	ContextAfter  string
	EmbeddingID   string
}

// ChunkOptions configures chunk packing; zero values fall back to the service
// defaults.
type ChunkOptions struct {
	TargetProseWords int
	MaxChunkWords    int
	ContextChars     int
}

func (o ChunkOptions) withDefaults() ChunkOptions {
	if o.TargetProseWords <= 0 {
		o.TargetProseWords = DefaultTargetProseWords
	}
	if o.MaxChunkWords <= 0 {
		o.MaxChunkWords = DefaultMaxChunkWords
	}
	if o.ContextChars <= 0 {
		o.ContextChars = DefaultContextChars
	}
	return o
}

// ChunkSpans packs Analyze's output into Chunks. threadID is the owning
// conversation id; startIndex is the chunkIndex of the first chunk emitted
// (callers append across messages and must keep chunkIndex monotone within
// a thread).
func ChunkSpans(threadID string, source string, spans []Span, startIndex int, opts ChunkOptions) []Chunk {
	opts = opts.withDefaults()
	var chunks []Chunk
	idx := startIndex

	emit := func(spanType SpanType, language, content string, start, end int) {
		chunks = append(chunks, Chunk{
			ID:            uuid.New().String(),
			ThreadID:      threadID,
			ChunkIndex:    idx,
			Content:       content,
			WordCount:     wordCount(content),
			TokenCount:    tokenCount(content),
			ContentType:   spanType,
			Language:      language,
			StartOffset:   start,
			EndOffset:     end,
			ContextBefore: contextWindow(source, start, -opts.ContextChars),
			ContextAfter:  contextWindow(source, end, opts.ContextChars),
		})
		idx++
	}

	for _, span := range spans {
		if span.Type != SpanProse {
			emit(span.Type, span.Language, span.Content, span.StartOffset, span.EndOffset)
			continue
		}
		for _, p := range packProse(span, opts) {
			emit(SpanProse, "", p.content, p.start, p.end)
		}
	}

	return chunks
}

type prosePiece struct {
	content    string
	start, end int
}

// packProse splits a prose span into paragraphs, packs consecutive
// paragraphs into chunks of at most targetProseWords words, and splits any
// single paragraph that itself exceeds maxChunkWords on sentence
// boundaries.
func packProse(span Span, opts ChunkOptions) []prosePiece {
	paragraphs := splitParagraphs(span.Content, span.StartOffset)

	var pieces []prosePiece
	var bufStart, bufEnd int
	var bufWords int
	var buf strings.Builder
	haveBuf := false

	flush := func() {
		if !haveBuf {
			return
		}
		pieces = append(pieces, prosePiece{content: buf.String(), start: bufStart, end: bufEnd})
		buf.Reset()
		bufWords = 0
		haveBuf = false
	}

	for _, p := range paragraphs {
		words := wordCount(p.content)
		if words > opts.MaxChunkWords {
			flush()
			for _, sentencePiece := range splitBySentenceBudget(p, opts.MaxChunkWords) {
				pieces = append(pieces, sentencePiece)
			}
			continue
		}
		if haveBuf && bufWords+words > opts.TargetProseWords {
			flush()
		}
		if !haveBuf {
			bufStart = p.start
			haveBuf = true
		} else {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p.content)
		bufEnd = p.end
		bufWords += words
	}
	flush()
	return pieces
}

type paragraph struct {
	content    string
	start, end int
}

func splitParagraphs(text string, baseOffset int) []paragraph {
	var out []paragraph
	parts := strings.Split(text, "\n\n")
	offset := baseOffset
	for _, part := range parts {
		start := offset
		end := offset + len(part)
		if strings.TrimSpace(part) != "" {
			out = append(out, paragraph{content: strings.TrimSpace(part), start: start, end: end})
		}
		offset = end + 2 // account for the "\n\n" separator
	}
	return out
}

func splitBySentenceBudget(p paragraph, maxWords int) []prosePiece {
	sentences := splitSentences(p.content)
	var pieces []prosePiece
	var bufStart int
	var buf strings.Builder
	var bufWords int
	haveBuf := false
	cursor := p.start

	flush := func(end int) {
		if !haveBuf {
			return
		}
		pieces = append(pieces, prosePiece{content: buf.String(), start: bufStart, end: end})
		buf.Reset()
		bufWords = 0
		haveBuf = false
	}

	for _, s := range sentences {
		idx := strings.Index(p.content[cursor-p.start:], s)
		sStart := cursor
		if idx >= 0 {
			sStart = cursor + idx
		}
		sEnd := sStart + len(s)
		cursor = sEnd

		words := wordCount(s)
		if haveBuf && bufWords+words > maxWords {
			flush(sStart)
		}
		if !haveBuf {
			bufStart = sStart
			haveBuf = true
		} else {
			buf.WriteString(" ")
		}
		buf.WriteString(s)
		bufWords += words
	}
	flush(p.end)
	return pieces
}

func splitSentences(text string) []string {
	var sentences []string
	var buf strings.Builder
	for i, r := range text {
		buf.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			rest := text[i+len(string(r)):]
			if rest == "" || strings.HasPrefix(rest, " ") || strings.HasPrefix(rest, "\n") {
				sentences = append(sentences, strings.TrimSpace(buf.String()))
				buf.Reset()
			}
		}
	}
	if strings.TrimSpace(buf.String()) != "" {
		sentences = append(sentences, strings.TrimSpace(buf.String()))
	}
	return sentences
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func tokenCount(s string) int {
	n := len(s) / 4
	if n == 0 && len(s) > 0 {
		n = 1
	}
	return n
}

func contextWindow(source string, pos, delta int) string {
	if delta < 0 {
		start := pos + delta
		if start < 0 {
			start = 0
		}
		if pos > len(source) {
			pos = len(source)
		}
		return source[start:pos]
	}
	end := pos + delta
	if end > len(source) {
		end = len(source)
	}
	if pos > len(source) {
		pos = len(source)
	}
	return source[pos:end]
}
