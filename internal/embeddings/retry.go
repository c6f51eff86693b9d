// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"context"
	"errors"

	"github.com/northbound/archivist/internal/archiveerr"
)

// embedWithRetry calls embed once, and if it fails with ContextTooLong,
// retries with a half-length, then a quarter-length prefix of text before
// giving up.
func embedWithRetry(ctx context.Context, text string, embed func(context.Context, string) ([]float32, error)) ([]float32, error) {
	v, err := embed(ctx, text)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, archiveerr.ContextTooLong) {
		return nil, err
	}

	for _, fraction := range []int{2, 4} {
		prefixLen := len(text) / fraction
		if prefixLen == 0 {
			break
		}
		v, err = embed(ctx, text[:prefixLen])
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, archiveerr.ContextTooLong) {
			return nil, err
		}
	}
	return nil, archiveerr.New(archiveerr.KindContextTooLong, "embed", err)
}
