// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package blocks implements the content block extractor: it pulls
// higher-level semantic artifacts out of a whole message, with provenance
// back to the message and conversation they came from.
package blocks

import "time"

type BlockType string

const (
	BlockCode          BlockType = "code"
	BlockImagePrompt   BlockType = "image_prompt"
	BlockArtifact      BlockType = "artifact"
	BlockCanvas        BlockType = "canvas"
	BlockTranscription BlockType = "transcription"
	BlockJSONData      BlockType = "json_data"
	BlockProse         BlockType = "prose"
)

// Block is a sub-message semantic unit extracted from a message's text.
type Block struct {
	ID                   string
	ParentMessageID      string
	ParentConversationID string
	BlockType            BlockType
	Language             string
	Content              string
	StartOffset          int
	EndOffset            int
	GizmoID              string
	CreatedAt            time.Time
	Metadata             map[string]interface{}
	EmbeddingID          string
}
