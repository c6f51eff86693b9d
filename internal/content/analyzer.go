// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package content

import (
	"regexp"
	"strings"
)

var (
	fenceOpenRe  = regexp.MustCompile("^```([a-zA-Z0-9_+-]*)\\s*$")
	fenceCloseRe = regexp.MustCompile("^```\\s*$")
	blockMathRe  = regexp.MustCompile(`^\$\$\s*$`)
	// A $...$ pair anywhere in a line; the delimiters must hug non-space
	// content so "$5 and $10" stays prose.
	inlineMathRe = regexp.MustCompile(`\$[^$\s](?:[^$\n]*[^$\s])?\$`)
	bracketMathOpenRe  = regexp.MustCompile(`^\\\[\s*$`)
	bracketMathCloseRe = regexp.MustCompile(`^\\\]\s*$`)
	headingRe    = regexp.MustCompile(`^#{1,6}\s+\S`)
	tableRowRe   = regexp.MustCompile(`^\s*\|.*\|\s*$`)
	tableSepRe   = regexp.MustCompile(`^\s*\|?[\s:|-]+\|[\s:|-]*\|?\s*$`)
	listRe       = regexp.MustCompile(`^\s*([-*+]|\d+\.)\s+\S`)
)

type line struct {
	start, end int // end exclusive, covers trailing newline if present
	text       string
}

func splitLines(text string) []line {
	var lines []line
	start := 0
	for start <= len(text) {
		idx := strings.IndexByte(text[start:], '\n')
		if idx < 0 {
			if start < len(text) {
				lines = append(lines, line{start: start, end: len(text), text: text[start:]})
			}
			break
		}
		end := start + idx + 1
		lines = append(lines, line{start: start, end: end, text: text[start:end]})
		start = end
	}
	return lines
}

func trimNL(s string) string {
	return strings.TrimRight(s, "\n")
}

// Analyze segments text into a linear list of typed spans covering the
// whole input without gaps, applying the detection rules in order: fenced
// code, block math, inline math, tables, headings, lists, prose. Ties are
// broken by lowest-numbered rule; the segmenter is deterministic.
func Analyze(text string) []Span {
	if text == "" {
		return nil
	}
	lines := splitLines(text)

	var spans []Span
	var proseStart = -1
	flushProse := func(uptoLineIdx int) {
		if proseStart < 0 {
			return
		}
		end := lines[uptoLineIdx-1].end
		spans = append(spans, Span{
			Type:        SpanProse,
			StartOffset: lines[proseStart].start,
			EndOffset:   end,
			Content:     text[lines[proseStart].start:end],
		})
		proseStart = -1
	}

	i := 0
	for i < len(lines) {
		l := lines[i]
		trimmed := trimNL(l.text)

		if m := fenceOpenRe.FindStringSubmatch(trimmed); m != nil {
			flushProse(i)
			j := i + 1
			for j < len(lines) && !fenceCloseRe.MatchString(trimNL(lines[j].text)) {
				j++
			}
			end := lines[i].end
			if j < len(lines) {
				end = lines[j].end
			} else {
				end = lines[len(lines)-1].end
			}
			spans = append(spans, Span{
				Type:        SpanCode,
				Language:    m[1],
				StartOffset: l.start,
				EndOffset:   end,
				Content:     text[l.start:end],
			})
			i = j + 1
			continue
		}

		if blockMathRe.MatchString(trimmed) {
			flushProse(i)
			j := i + 1
			for j < len(lines) && !blockMathRe.MatchString(trimNL(lines[j].text)) {
				j++
			}
			end := lines[i].end
			if j < len(lines) {
				end = lines[j].end
			} else {
				end = lines[len(lines)-1].end
			}
			spans = append(spans, Span{Type: SpanMath, StartOffset: l.start, EndOffset: end, Content: text[l.start:end]})
			i = j + 1
			continue
		}

		if bracketMathOpenRe.MatchString(trimmed) {
			flushProse(i)
			j := i + 1
			for j < len(lines) && !bracketMathCloseRe.MatchString(trimNL(lines[j].text)) {
				j++
			}
			end := lines[i].end
			if j < len(lines) {
				end = lines[j].end
			} else {
				end = lines[len(lines)-1].end
			}
			spans = append(spans, Span{Type: SpanMath, StartOffset: l.start, EndOffset: end, Content: text[l.start:end]})
			i = j + 1
			continue
		}

		// Inline math splits the line into prose/math/prose sub-spans
		// around each balanced $...$ pair; a line with an odd number of
		// dollar signs is unbalanced and stays prose.
		if ms := inlineMathRe.FindAllStringIndex(trimmed, -1); len(ms) > 0 && strings.Count(trimmed, "$")%2 == 0 {
			flushProse(i)
			cursor := l.start
			for _, m := range ms {
				mStart, mEnd := l.start+m[0], l.start+m[1]
				if mStart > cursor {
					spans = append(spans, Span{Type: SpanProse, StartOffset: cursor, EndOffset: mStart, Content: text[cursor:mStart]})
				}
				spans = append(spans, Span{Type: SpanMath, StartOffset: mStart, EndOffset: mEnd, Content: text[mStart:mEnd]})
				cursor = mEnd
			}
			if cursor < l.end {
				rest := text[cursor:l.end]
				if strings.TrimSpace(rest) == "" {
					// fold a whitespace-only tail into the math span
					spans[len(spans)-1].EndOffset = l.end
					spans[len(spans)-1].Content = text[spans[len(spans)-1].StartOffset:l.end]
				} else {
					spans = append(spans, Span{Type: SpanProse, StartOffset: cursor, EndOffset: l.end, Content: rest})
				}
			}
			i++
			continue
		}

		if tableRowRe.MatchString(trimmed) && i+1 < len(lines) && tableSepRe.MatchString(trimNL(lines[i+1].text)) {
			flushProse(i)
			j := i + 2
			for j < len(lines) && tableRowRe.MatchString(trimNL(lines[j].text)) {
				j++
			}
			end := lines[j-1].end
			spans = append(spans, Span{Type: SpanTable, StartOffset: l.start, EndOffset: end, Content: text[l.start:end]})
			i = j
			continue
		}

		if headingRe.MatchString(trimmed) {
			flushProse(i)
			spans = append(spans, Span{Type: SpanHeading, StartOffset: l.start, EndOffset: l.end, Content: text[l.start:l.end]})
			i++
			continue
		}

		if listRe.MatchString(trimmed) {
			flushProse(i)
			j := i + 1
			for j < len(lines) && (listRe.MatchString(trimNL(lines[j].text)) || strings.TrimSpace(trimNL(lines[j].text)) == "") {
				j++
			}
			// trailing blank lines belong to whatever follows, not the list
			for j > i+1 && strings.TrimSpace(trimNL(lines[j-1].text)) == "" {
				j--
			}
			end := lines[j-1].end
			spans = append(spans, Span{Type: SpanList, StartOffset: l.start, EndOffset: end, Content: text[l.start:end]})
			i = j
			continue
		}

		if proseStart < 0 {
			proseStart = i
		}
		i++
	}
	flushProse(len(lines))

	return spans
}
