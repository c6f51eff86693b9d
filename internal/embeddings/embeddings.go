// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"context"
	"fmt"
	"math"
)

// Embedder generates vector embeddings (and, where the backend supports it,
// short summaries) from text. Implementations are single-threaded w.r.t. the
// backend: callers must not issue overlapping requests against one instance.
type Embedder interface {
	// EmbedText generates an embedding vector for the given text. On a
	// "context too long" backend error the implementation retries with
	// progressively smaller prefixes before giving up.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Summarize asks the backend to produce a short summary of prompt.
	// The mock has no chat endpoint and returns a truncated echo of prompt.
	Summarize(ctx context.Context, prompt string) (string, error)

	// Dimension returns the dimension of the embedding vectors.
	Dimension() int
}

// NewEmbedder creates an embedder based on the provided type and configuration.
// Supported types: "openai", "ollama", "mock" (for testing).
func NewEmbedder(embedderType string, config map[string]string) (Embedder, error) {
	switch embedderType {
	case "openai":
		apiKey := config["api_key"]
		if apiKey == "" {
			return nil, fmt.Errorf("openai api_key is required")
		}
		model := config["model"]
		if model == "" {
			model = "text-embedding-3-small"
		}
		return NewOpenAIEmbedder(apiKey, model)
	case "ollama":
		baseURL := config["base_url"]
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := config["model"]
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaEmbedder(baseURL, model)
	case "mock":
		dim := 768
		if dimStr := config["dimension"]; dimStr != "" {
			fmt.Sscanf(dimStr, "%d", &dim)
		}
		return NewMockEmbedder(dim), nil
	default:
		return nil, fmt.Errorf("unknown embedder type: %s", embedderType)
	}
}

// Centroid mean-pools a set of same-dimension vectors and L2-normalizes the
// result. Used by callers that split oversize text into chunks and want a
// single representative vector for the whole text.
func Centroid(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			sum[i] += float64(v[i])
		}
	}
	n := float64(len(vectors))
	out := make([]float32, dim)
	var normSq float64
	for i := range sum {
		mean := sum[i] / n
		out[i] = float32(mean)
		normSq += mean * mean
	}
	norm := math.Sqrt(normSq)
	if norm > 0 {
		for i := range out {
			out[i] = float32(float64(out[i]) / norm)
		}
	}
	return out
}
