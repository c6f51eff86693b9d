// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package walker

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// rawNode mirrors the mapping entry shape of a platform export: a node
// has an optional parent, a list of children, and an optional message
// (the root node of the tree typically carries no message).
type rawNode struct {
	Parent   string   `json:"parent"`
	Children []string `json:"children"`
	Message  *rawMessage `json:"message"`
}

type rawMessage struct {
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	Content struct {
		Parts []interface{} `json:"parts"`
	} `json:"content"`
	Metadata struct {
		Attachments []struct {
			Name string `json:"name"`
		} `json:"attachments"`
		ModelSlug string `json:"model_slug"`
		GizmoID   string `json:"gizmo_id"`
	} `json:"metadata"`
	CreateTime float64 `json:"create_time"`
}

type rawConversation struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	CreateTime float64            `json:"create_time"`
	UpdateTime float64            `json:"update_time"`
	Mapping    map[string]rawNode `json:"mapping"`
}

// ParseConversationFile loads and linearizes one conversation.json file.
// It returns an error (never a panic) on any malformed structure so the
// caller can skip the folder and continue the walk.
func ParseConversationFile(path, folder, source string) (Conversation, []Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Conversation{}, nil, fmt.Errorf("read %s: %w", path, err)
	}

	var raw rawConversation
	if err := json.Unmarshal(data, &raw); err != nil {
		return Conversation{}, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if raw.ID == "" || len(raw.Mapping) == 0 {
		return Conversation{}, nil, fmt.Errorf("%s: missing id or mapping", path)
	}

	rootID, err := findRoot(raw.Mapping)
	if err != nil {
		return Conversation{}, nil, fmt.Errorf("%s: %w", path, err)
	}

	messages := linearize(raw.ID, raw.Mapping, rootID)

	conv := Conversation{
		ID:           raw.ID,
		Title:        raw.Title,
		Source:       source,
		Folder:       folder,
		CreatedAt:    unixToTime(raw.CreateTime),
		UpdatedAt:    unixToTime(raw.UpdateTime),
		MessageCount: len(messages),
		Metadata:     map[string]interface{}{},
	}
	return conv, messages, nil
}

// findRoot locates the single node with no parent (or a parent not present
// in the mapping, which some exports emit as an empty string).
func findRoot(mapping map[string]rawNode) (string, error) {
	for id, node := range mapping {
		if node.Parent == "" {
			return id, nil
		}
		if _, ok := mapping[node.Parent]; !ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("no root node found in mapping")
}

// linearize performs a breadth-first traversal of the tree starting at
// rootID, emitting one Message per visited node that carries an actual
// message payload (the root itself usually does not).
func linearize(conversationID string, mapping map[string]rawNode, rootID string) []Message {
	var messages []Message
	queue := []string{rootID}
	visited := map[string]bool{}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		node, ok := mapping[id]
		if !ok {
			continue
		}

		if node.Message != nil {
			messages = append(messages, Message{
				ID:             id,
				ConversationID: conversationID,
				Role:           node.Message.Author.Role,
				Content:        joinParts(node.Message.Content.Parts),
				ParentID:       node.Parent,
				CreatedAt:      unixToTime(node.Message.CreateTime),
				GizmoID:        node.Message.Metadata.GizmoID,
				Attachments:    attachmentNames(node.Message.Metadata.Attachments),
			})
		}

		queue = append(queue, node.Children...)
	}
	return messages
}

func joinParts(parts []interface{}) string {
	var out string
	for i, p := range parts {
		s, ok := p.(string)
		if !ok {
			continue
		}
		if i > 0 {
			out += "\n"
		}
		out += s
	}
	return out
}

func attachmentNames(attachments []struct {
	Name string `json:"name"`
}) []string {
	names := make([]string, 0, len(attachments))
	for _, a := range attachments {
		names = append(names, a.Name)
	}
	return names
}

func unixToTime(sec float64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), int64((sec-float64(int64(sec)))*1e9))
}
