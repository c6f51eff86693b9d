// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
)

// MockEmbedder generates deterministic embeddings for tests and offline
// runs: same text, same vector, no network calls. Vectors are derived by
// hashing the text in counter mode — digest(text || counter) supplies the
// component stream — so two distinct inputs land far apart while repeated
// calls are byte-identical.
type MockEmbedder struct {
	dim int
}

func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{dim: dim}
}

func (e *MockEmbedder) Dimension() int {
	return e.dim
}

func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	embedding := make([]float32, e.dim)

	var counter [8]byte
	var block [sha256.Size]byte
	for i := 0; i < e.dim; i++ {
		// One digest yields 8 components; refresh it every 8th index.
		if i%8 == 0 {
			binary.BigEndian.PutUint64(counter[:], uint64(i/8))
			h := sha256.New()
			h.Write([]byte(text))
			h.Write(counter[:])
			h.Sum(block[:0])
		}
		bits := binary.BigEndian.Uint32(block[(i%8)*4:])
		// Map the 32 hash bits onto [-1, 1).
		embedding[i] = float32(int32(bits)) / float32(math.MaxInt32)
	}

	var sum float64
	for _, v := range embedding {
		sum += float64(v) * float64(v)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range embedding {
			embedding[i] /= norm
		}
	}
	return embedding, nil
}

func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := e.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		result[i] = embedding
	}
	return result, nil
}

// Summarize returns a truncated echo of prompt; no model is involved.
func (e *MockEmbedder) Summarize(ctx context.Context, prompt string) (string, error) {
	if len(prompt) <= 80 {
		return prompt, nil
	}
	return fmt.Sprintf("%s...", prompt[:80]), nil
}
