// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package walker

import (
	"context"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/northbound/archivist/internal/logger"
)

// DirtySet tracks archive folders that changed since the last indexer run.
// Watch mode is best-effort: it never promises real-time indexing, only a
// hint consumed by the next batch run.
type DirtySet struct {
	mu      sync.Mutex
	folders map[string]bool
}

func NewDirtySet() *DirtySet {
	return &DirtySet{folders: map[string]bool{}}
}

func (d *DirtySet) mark(folder string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.folders[folder] = true
}

// Drain returns the accumulated dirty folders and clears the set.
func (d *DirtySet) Drain() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.folders))
	for f := range d.folders {
		out = append(out, f)
	}
	d.folders = map[string]bool{}
	return out
}

// Watch starts an fsnotify watch on archiveRoot and marks the top-level
// folder of any changed path as dirty. It returns immediately; the caller
// reads DirtySet.Drain() on its own schedule (e.g. before the next index
// run). Watch mode is optional and failures are logged, not fatal.
func Watch(ctx context.Context, archiveRoot string) (*DirtySet, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(archiveRoot); err != nil {
		watcher.Close()
		return nil, err
	}

	dirty := NewDirtySet()

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if folder := topLevelFolder(archiveRoot, event.Name); folder != "" {
					dirty.mark(folder)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("walker: watch error: %v", err)
			}
		}
	}()

	return dirty, nil
}

func topLevelFolder(root, path string) string {
	rel := path
	if len(path) > len(root) && path[:len(root)] == root {
		rel = path[len(root):]
	}
	for len(rel) > 0 && (rel[0] == '/' || rel[0] == '\\') {
		rel = rel[1:]
	}
	for i := 0; i < len(rel); i++ {
		if rel[i] == '/' || rel[i] == '\\' {
			return rel[:i]
		}
	}
	return rel
}
