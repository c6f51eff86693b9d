// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package walker implements the conversation walker: it traverses an
// archive root, parses each conversation's JSON tree, and linearizes it
// into an ordered message sequence via breadth-first search from the root
// node.
package walker

import "time"

// Conversation is the archive-root-level unit the walker emits.
type Conversation struct {
	ID           string
	Title        string
	Source       string
	Folder       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
	Metadata     map[string]interface{}
}

// Message is one linearized node of a conversation tree.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	ParentID       string
	CreatedAt      time.Time
	GizmoID        string
	Attachments    []string
}
