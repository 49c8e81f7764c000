// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package rerank reorders candidate documents with Cohere's Rerank API.
// When the API is unreachable the original order is kept with zero scores,
// so reranking never blocks the answer pipeline.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/sciquery/internal/rag"
)

const (
	// DefaultBaseURL is the Cohere API base.
	DefaultBaseURL = "https://api.cohere.com/v2"

	// DefaultModel is the multilingual rerank model.
	DefaultModel = "rerank-v3.5"

	rerankTimeout = 30 * time.Second
)

// Client calls the Cohere Rerank endpoint. It satisfies rag.Reranker.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a rerank client.
func NewClient(apiKey string) *Client {
	return &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     strings.TrimSpace(apiKey),
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: rerankTimeout},
	}
}

// WithBaseURL sets a custom API base, used in tests.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithModel overrides the rerank model. Empty keeps the default.
func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank reorders docs by relevance to the query, replacing each document's
// similarity with the rerank score. On any API failure the input order is
// returned with zero scores.
func (c *Client) Rerank(ctx context.Context, query string, docs []rag.Document) ([]rag.Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	scored, err := c.call(ctx, query, docs)
	if err != nil {
		log.Printf("RERANK_FALLBACK | err=%v", err)
		fallback := make([]rag.Document, len(docs))
		copy(fallback, docs)
		for i := range fallback {
			fallback[i].Similarity = 0
		}
		return fallback, nil
	}
	return scored, nil
}

func (c *Client) call(ctx context.Context, query string, docs []rag.Document) ([]rag.Document, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}

	body, err := json.Marshal(rerankRequest{
		Model:     c.model,
		Query:     query,
		Documents: texts,
		TopN:      len(docs),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank API returned HTTP %d: %s", resp.StatusCode, respBody)
	}

	var parsed rerankResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	out := make([]rag.Document, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Index < 0 || r.Index >= len(docs) {
			continue
		}
		d := docs[r.Index]
		d.Similarity = r.RelevanceScore
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	return out, nil
}
