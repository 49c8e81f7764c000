// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/sciquery/internal/rag"
)

const matchTimeout = 30 * time.Second

// Client retrieves documents from a Supabase-backed vector store through the
// match_documents RPC function. It satisfies rag.Retriever.
type Client struct {
	baseURL    string
	apiKey     string
	embedder   Embedder
	httpClient *http.Client
}

// NewClient creates a vector store client. baseURL is the Supabase project
// URL; apiKey is the anon key.
func NewClient(baseURL, apiKey string, embedder Embedder) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		embedder:   embedder,
		httpClient: &http.Client{Timeout: matchTimeout},
	}
}

type matchRequest struct {
	QueryEmbedding []float64 `json:"query_embedding"`
	MatchThreshold float64   `json:"match_threshold"`
	MatchCount     int       `json:"match_count"`
}

// matchRow is one row returned by the match_documents function.
type matchRow struct {
	ID         json.Number `json:"id"`
	Title      string      `json:"title"`
	URL        string      `json:"url"`
	Content    string      `json:"content"`
	Similarity float64     `json:"similarity"`
	CreatedAt  string      `json:"created_at"`
	Metadata   struct {
		Date         string     `json:"date"`
		JournalRef   string     `json:"journal_ref"`
		JournalTitle string     `json:"journal_title"`
		Authors      [][]string `json:"authors"`
	} `json:"metadata"`
}

// Retrieve embeds the query and runs vector similarity search.
func (c *Client) Retrieve(ctx context.Context, query string, limit int, minSimilarity float64) ([]rag.Document, error) {
	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	body, err := json.Marshal(matchRequest{
		QueryEmbedding: embedding,
		MatchThreshold: minSimilarity,
		MatchCount:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/rest/v1/rpc/match_documents"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vector store request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vector store returned HTTP %d: %s", resp.StatusCode, respBody)
	}

	var rows []matchRow
	if err := json.Unmarshal(respBody, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	log.Printf("VECTOR_SEARCH | rows=%d duration=%v", len(rows), time.Since(start))

	docs := make([]rag.Document, 0, len(rows))
	for _, r := range rows {
		date := r.Metadata.Date
		if date == "" {
			date = r.CreatedAt
		}
		docs = append(docs, rag.Document{
			ID:           r.ID.String(),
			Title:        r.Title,
			URL:          r.URL,
			Content:      r.Content,
			Similarity:   r.Similarity,
			Provider:     "database",
			Date:         date,
			JournalRef:   r.Metadata.JournalRef,
			JournalTitle: r.Metadata.JournalTitle,
			Authors:      r.Metadata.Authors,
		})
	}
	return docs, nil
}
