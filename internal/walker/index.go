// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package walker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/northbound/archivist/internal/logger"
)

// IndexEntry is one row of the cached lightweight index used by list/search
// surfaces outside the core.
type IndexEntry struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Folder       string    `json:"folder"`
	MessageCount int       `json:"message_count"`
	TextLength   int       `json:"text_length"`
	HasMedia     bool      `json:"has_media"`
	HasImages    bool      `json:"has_images"`
	HasAudio     bool      `json:"has_audio"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	IndexedAt    time.Time `json:"indexed_at"`
}

const indexFileName = "_conversation_index.json"

// LoadIndex reads the cached index, keyed by folder name. A missing file
// is not an error: an empty index is returned.
func LoadIndex(archiveRoot string) (map[string]IndexEntry, error) {
	path := filepath.Join(archiveRoot, indexFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]IndexEntry{}, nil
		}
		return nil, err
	}
	var entries map[string]IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SaveIndex writes the index atomically (temp file + rename).
func SaveIndex(archiveRoot string, entries map[string]IndexEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(archiveRoot, indexFileName)
	tmp, err := os.CreateTemp(archiveRoot, ".index-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// RefreshIndex rebuilds entries incrementally: a folder's entry is only
// recomputed when its conversation.json is newer than the cached
// indexedAt timestamp.
func RefreshIndex(archiveRoot string, conv Conversation, messages []Message, existing map[string]IndexEntry) IndexEntry {
	convPath := filepath.Join(archiveRoot, conv.Folder, "conversation.json")
	info, err := os.Stat(convPath)
	if err == nil {
		if prev, ok := existing[conv.Folder]; ok && !info.ModTime().After(prev.IndexedAt) {
			return prev
		}
	} else {
		logger.Warnf("walker: stat %s: %v", convPath, err)
	}

	var textLen int
	hasImages, hasAudio := false, false
	for _, m := range messages {
		textLen += len(m.Content)
		for _, a := range m.Attachments {
			lower := strings.ToLower(a)
			switch {
			case strings.HasSuffix(lower, ".png"), strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"), strings.HasSuffix(lower, ".webp"):
				hasImages = true
			case strings.HasSuffix(lower, ".mp3"), strings.HasSuffix(lower, ".wav"), strings.HasSuffix(lower, ".m4a"):
				hasAudio = true
			}
		}
	}

	return IndexEntry{
		ID:           conv.ID,
		Title:        conv.Title,
		Folder:       conv.Folder,
		MessageCount: conv.MessageCount,
		TextLength:   textLen,
		HasMedia:     hasImages || hasAudio,
		HasImages:    hasImages,
		HasAudio:     hasAudio,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
		IndexedAt:    time.Now(),
	}
}
