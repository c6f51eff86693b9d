// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package walker

import (
	"context"
	"os"
	"path/filepath"
	"regexp"

	"github.com/northbound/archivist/internal/logger"
)

var folderNameRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-.+$`)

// Result is one item emitted by Walk: either a successfully parsed
// conversation, or an error tied to the folder that produced it. The
// indexer logs Err and continues; the walker never aborts a full run for
// one bad conversation.
type Result struct {
	Conversation Conversation
	Messages     []Message
	Folder       string
	Err          error
}

// Walk traverses archiveRoot and returns a channel of Results, one per
// sub-folder matching the conversation naming pattern. It emits results as
// it discovers them (an async-iterator in Go's idiom: a buffered channel
// plus a producer goroutine) and closes the channel once the walk is
// complete or ctx is cancelled.
func Walk(ctx context.Context, archiveRoot, source string) <-chan Result {
	out := make(chan Result, 8)

	go func() {
		defer close(out)

		entries, err := os.ReadDir(archiveRoot)
		if err != nil {
			logger.Errorf("walker: read archive root %s: %v", archiveRoot, err)
			return
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				return
			}
			if !entry.IsDir() || !folderNameRe.MatchString(entry.Name()) {
				continue
			}

			folder := entry.Name()
			convPath := filepath.Join(archiveRoot, folder, "conversation.json")
			if _, err := os.Stat(convPath); err != nil {
				continue
			}

			conv, messages, err := ParseConversationFile(convPath, folder, source)
			if err != nil {
				logger.Warnf("walker: skipping %s: %v", folder, err)
				select {
				case out <- Result{Folder: folder, Err: err}:
				case <-ctx.Done():
					return
				}
				continue
			}

			select {
			case out <- Result{Conversation: conv, Messages: messages, Folder: folder}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
