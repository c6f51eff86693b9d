// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package blocks

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	fenceRe        = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)\\s*\\n(.*?)```")
	promptLineRe   = regexp.MustCompile(`(?im)^\s*prompt\s*:\s*(.+)$`)
	artifactTagRe  = regexp.MustCompile(`(?is)<artifact\b[^>]*>(.*?)</artifact>|<canvas\b[^>]*>(.*?)</canvas>`)
	jsonObjectOrArrayRe = regexp.MustCompile(`(?s)(\{.*\}|\[.*\])`)
)

const minProseLength = 30

// Input is everything the extractor needs about one message. It is kept
// local to this package (rather than importing a shared Message type) so
// the extractor can be exercised without pulling in the store.
type Input struct {
	MessageID            string
	ConversationID       string
	GizmoID              string
	Content              string
	CreatedAt            time.Time
}

// TranscriptionGizmoIDs is the known set of "journal/notebook" provenance
// markers that cause a whole message to be treated as a transcription
// block rather than segmented further.
var TranscriptionGizmoIDs = map[string]bool{}

// Extract applies the block-extraction heuristics to one message, in the
// priority order: transcription provenance, fenced code, image-gen
// prompts, artifact/canvas wrappers, embedded JSON, remainder as prose.
// Callers should run content.IsJunk first; Extract does not re-check it.
func Extract(in Input) []Block {
	if in.GizmoID != "" && TranscriptionGizmoIDs[in.GizmoID] {
		return []Block{newBlock(in, BlockTranscription, "", in.Content, 0, len(in.Content), nil)}
	}

	text := in.Content
	var blocks []Block
	var covered []span

	for _, m := range fenceRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		lang := text[m[2]:m[3]]
		body := text[m[4]:m[5]]
		blocks = append(blocks, newBlock(in, BlockCode, lang, body, start, end, nil))
		covered = append(covered, span{start, end})
	}

	for _, m := range promptLineRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if overlaps(covered, start, end) {
			continue
		}
		prompt := text[m[2]:m[3]]
		blocks = append(blocks, newBlock(in, BlockImagePrompt, "", prompt, start, end, nil))
		covered = append(covered, span{start, end})
	}

	for _, m := range artifactTagRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if overlaps(covered, start, end) {
			continue
		}
		bt := BlockArtifact
		var body string
		if m[2] != -1 {
			body = text[m[2]:m[3]]
		} else {
			bt = BlockCanvas
			body = text[m[4]:m[5]]
		}
		blocks = append(blocks, newBlock(in, bt, "", body, start, end, nil))
		covered = append(covered, span{start, end})
	}

	for _, m := range jsonObjectOrArrayRe.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		if overlaps(covered, start, end) {
			continue
		}
		candidate := text[start:end]
		var v interface{}
		if json.Unmarshal([]byte(candidate), &v) != nil {
			continue
		}
		blocks = append(blocks, newBlock(in, BlockJSONData, "", candidate, start, end, nil))
		covered = append(covered, span{start, end})
	}

	remainder := stripCovered(text, covered)
	if trimmed := strings.TrimSpace(remainder); len(trimmed) >= minProseLength {
		blocks = append(blocks, newBlock(in, BlockProse, "", trimmed, 0, len(text), nil))
	}

	return blocks
}

type span struct{ start, end int }

func overlaps(covered []span, start, end int) bool {
	for _, c := range covered {
		if start < c.end && end > c.start {
			return true
		}
	}
	return false
}

func stripCovered(text string, covered []span) string {
	if len(covered) == 0 {
		return text
	}
	var b strings.Builder
	cursor := 0
	sorted := append([]span(nil), covered...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].start < sorted[i].start {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	for _, s := range sorted {
		if s.start > cursor {
			b.WriteString(text[cursor:s.start])
		}
		if s.end > cursor {
			cursor = s.end
		}
	}
	if cursor < len(text) {
		b.WriteString(text[cursor:])
	}
	return b.String()
}

func newBlock(in Input, bt BlockType, language, content string, start, end int, metadata map[string]interface{}) Block {
	return Block{
		ID:                   uuid.New().String(),
		ParentMessageID:      in.MessageID,
		ParentConversationID: in.ConversationID,
		BlockType:            bt,
		Language:             language,
		Content:              content,
		StartOffset:          start,
		EndOffset:            end,
		GizmoID:              in.GizmoID,
		CreatedAt:            in.CreatedAt,
		Metadata:             metadata,
	}
}
