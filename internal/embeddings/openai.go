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

// OpenAIEmbedder uses OpenAI's embedding and chat-completion APIs.
type OpenAIEmbedder struct {
	apiKey string
	model  string
	client *http.Client
	dim    int
}

// NewOpenAIEmbedder creates a new OpenAI-backed embedder.
func NewOpenAIEmbedder(apiKey, model string) (*OpenAIEmbedder, error) {
	dim := 1536
	if model == "text-embedding-3-large" {
		dim = 3072
	}
	return &OpenAIEmbedder{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
		dim:    dim,
	}, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dim
}

func (e *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return embedWithRetry(ctx, text, func(ctx context.Context, t string) ([]float32, error) {
		vs, err := e.embedBatchOnce(ctx, []string{t})
		if err != nil {
			return nil, err
		}
		return vs[0], nil
	})
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embedBatchOnce(ctx, texts)
}

func (e *OpenAIEmbedder) embedBatchOnce(ctx context.Context, texts []string) ([][]float32, error) {
	type requestPayload struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}

	jsonData, err := json.Marshal(requestPayload{Input: texts, Model: e.model})
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindFatal, "openai.embed", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindFatal, "openai.embed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", e.apiKey))

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, archiveerr.New(archiveerr.KindTimeout, "openai.embed", err)
		}
		return nil, archiveerr.New(archiveerr.KindBackend, "openai.embed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		return nil, archiveerr.New(archiveerr.KindContextTooLong, "openai.embed", fmt.Errorf("%s", body))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, archiveerr.New(archiveerr.KindBackend, "openai.embed", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	type responsePayload struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	var response responsePayload
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, archiveerr.New(archiveerr.KindFatal, "openai.embed", err)
	}
	if len(response.Data) != len(texts) {
		return nil, archiveerr.New(archiveerr.KindFatal, "openai.embed", fmt.Errorf("expected %d embeddings, got %d", len(texts), len(response.Data)))
	}

	result := make([][]float32, len(response.Data))
	for i, data := range response.Data {
		result[i] = make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			result[i][j] = float32(v)
		}
	}
	return result, nil
}

// Summarize uses OpenAI's chat-completions endpoint.
func (e *OpenAIEmbedder) Summarize(ctx context.Context, prompt string) (string, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type requestPayload struct {
		Model    string    `json:"model"`
		Messages []message `json:"messages"`
	}

	jsonData, err := json.Marshal(requestPayload{
		Model:    "gpt-4o-mini",
		Messages: []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", archiveerr.New(archiveerr.KindFatal, "openai.summarize", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", archiveerr.New(archiveerr.KindFatal, "openai.summarize", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", e.apiKey))

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", archiveerr.New(archiveerr.KindTimeout, "openai.summarize", err)
		}
		return "", archiveerr.New(archiveerr.KindBackend, "openai.summarize", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", archiveerr.New(archiveerr.KindBackend, "openai.summarize", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	type responsePayload struct {
		Choices []struct {
			Message message `json:"message"`
		} `json:"choices"`
	}
	var response responsePayload
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", archiveerr.New(archiveerr.KindFatal, "openai.summarize", err)
	}
	if len(response.Choices) == 0 {
		return "", archiveerr.New(archiveerr.KindFatal, "openai.summarize", fmt.Errorf("no choices in response"))
	}
	return response.Choices[0].Message.Content, nil
}
