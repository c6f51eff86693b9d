// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/northbound/archivist/internal/archiveerr"
)

// OllamaEmbedder talks to a local Ollama service: embeddings are requested
// from /api/embeddings, summaries from /api/chat, and Probe checks
// /api/tags. The /api/embed and /api/embed_batch routes are not used, and
// EmbedBatch sends one /api/embeddings request per text.
type OllamaEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
	dim     int
}

// NewOllamaEmbedder creates a new Ollama-backed embedder.
func NewOllamaEmbedder(baseURL, model string) (*OllamaEmbedder, error) {
	return &OllamaEmbedder{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
		dim:     768,
	}, nil
}

func (e *OllamaEmbedder) Dimension() int {
	return e.dim
}

func (e *OllamaEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return embedWithRetry(ctx, text, e.embedOnce)
}

func (e *OllamaEmbedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	type requestPayload struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}

	jsonData, err := json.Marshal(requestPayload{Model: e.model, Prompt: text})
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindFatal, "ollama.embed", err)
	}

	url := fmt.Sprintf("%s/api/embeddings", e.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindFatal, "ollama.embed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, archiveerr.New(archiveerr.KindTimeout, "ollama.embed", err)
		}
		return nil, archiveerr.New(archiveerr.KindBackend, "ollama.embed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusRequestEntityTooLarge {
		body, _ := io.ReadAll(resp.Body)
		return nil, archiveerr.New(archiveerr.KindContextTooLong, "ollama.embed", fmt.Errorf("%s", body))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, archiveerr.New(archiveerr.KindBackend, "ollama.embed", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	type responsePayload struct {
		Embedding []float64 `json:"embedding"`
	}
	var response responsePayload
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, archiveerr.New(archiveerr.KindFatal, "ollama.embed", err)
	}

	result := make([]float32, len(response.Embedding))
	for i, v := range response.Embedding {
		result[i] = float32(v)
	}
	return result, nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := e.EmbedText(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		result[i] = embedding
	}
	return result, nil
}

// Summarize uses the model service's chat endpoint to produce a short
// summary, backing the optional summary-pyramid feature.
func (e *OllamaEmbedder) Summarize(ctx context.Context, prompt string) (string, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type requestPayload struct {
		Model    string    `json:"model"`
		Messages []message `json:"messages"`
		Stream   bool      `json:"stream"`
	}

	jsonData, err := json.Marshal(requestPayload{
		Model:    e.model,
		Messages: []message{{Role: "user", Content: prompt}},
		Stream:   false,
	})
	if err != nil {
		return "", archiveerr.New(archiveerr.KindFatal, "ollama.summarize", err)
	}

	url := fmt.Sprintf("%s/api/chat", e.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", archiveerr.New(archiveerr.KindFatal, "ollama.summarize", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", archiveerr.New(archiveerr.KindTimeout, "ollama.summarize", err)
		}
		return "", archiveerr.New(archiveerr.KindBackend, "ollama.summarize", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", archiveerr.New(archiveerr.KindBackend, "ollama.summarize", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	type responsePayload struct {
		Message message `json:"message"`
	}
	var response responsePayload
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", archiveerr.New(archiveerr.KindFatal, "ollama.summarize", err)
	}
	return response.Message.Content, nil
}

// Probe checks backend availability via GET /api/tags.
func (e *OllamaEmbedder) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", e.baseURL+"/api/tags", nil)
	if err != nil {
		return archiveerr.New(archiveerr.KindFatal, "ollama.probe", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "ollama.probe", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return archiveerr.New(archiveerr.KindBackend, "ollama.probe", fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}
