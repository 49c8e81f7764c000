// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultEmbeddingsURL is the OpenAI API base used for query embeddings.
	DefaultEmbeddingsURL = "https://api.openai.com/v1"

	// DefaultEmbeddingModel must match the model the corpus was embedded with.
	DefaultEmbeddingModel = "text-embedding-3-small"

	embeddingsTimeout = 30 * time.Second
)

// ErrNoEmbedding indicates the embeddings API returned no vector.
var ErrNoEmbedding = errors.New("no embedding in response")

// Embedder turns a query string into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EmbeddingsClient calls the OpenAI embeddings endpoint.
type EmbeddingsClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewEmbeddingsClient creates an embeddings client.
func NewEmbeddingsClient(apiKey string) *EmbeddingsClient {
	return &EmbeddingsClient{
		baseURL:    DefaultEmbeddingsURL,
		apiKey:     strings.TrimSpace(apiKey),
		model:      DefaultEmbeddingModel,
		httpClient: &http.Client{Timeout: embeddingsTimeout},
	}
}

// WithBaseURL sets a custom API base, used in tests.
func (c *EmbeddingsClient) WithBaseURL(url string) *EmbeddingsClient {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithModel overrides the embedding model. Empty keeps the default.
// The model must match the one the corpus was embedded with.
func (c *EmbeddingsClient) WithModel(model string) *EmbeddingsClient {
	if model != "" {
		c.model = model
	}
	return c
}

type embeddingsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for the text. Newlines are flattened
// before embedding to match how the corpus was indexed.
func (c *EmbeddingsClient) Embed(ctx context.Context, text string) ([]float64, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))

	body, err := json.Marshal(embeddingsRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings API returned HTTP %d: %s", resp.StatusCode, respBody)
	}

	var parsed embeddingsResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, ErrNoEmbedding
	}
	return parsed.Data[0].Embedding, nil
}
