// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/sciquery/internal/rag"
)

// ScientificDomains restricts Tavily searches to scholarly sources.
var ScientificDomains = []string{
	"scholar.google.com", "ncbi.nlm.nih.gov/pmc", "arxiv.org", "sciencedirect.com",
	"webofscience.com", "researchgate.net", "ieeexplore.ieee.org", "jstor.org",
	"biorxiv.org", "scopus.com", "pubs.acs.org", "peerj.com", "plos.org",
	"dl.acm.org", "nature.com", "medrxiv.org", "ssrn.com", "link.springer.com",
	"europepmc.org", "onlinelibrary.wiley.com",
}

const searchTimeout = 30 * time.Second

var searchHTTPClient = &http.Client{Timeout: searchTimeout}

// provider runs one web search backend.
type provider interface {
	name() string
	search(ctx context.Context, query string, limit int) ([]rag.Document, error)
}

func newDoc(providerName, title, link, content string, now time.Time) rag.Document {
	return rag.Document{
		Title:    title,
		URL:      link,
		Content:  content,
		Provider: providerName,
		Date:     now.Format(time.RFC3339),
	}
}

// =============================================================================
// TAVILY
// =============================================================================

type tavilyProvider struct {
	apiKey  string
	baseURL string
}

func (p *tavilyProvider) name() string { return "tavily" }

type tavilyRequest struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	MaxResults     int      `json:"max_results"`
	IncludeDomains []string `json:"include_domains"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (p *tavilyProvider) search(ctx context.Context, query string, limit int) ([]rag.Document, error) {
	body, err := json.Marshal(tavilyRequest{
		Query:          query,
		SearchDepth:    "advanced",
		MaxResults:     limit,
		IncludeDomains: ScientificDomains,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	raw, err := doSearchRequest(req)
	if err != nil {
		return nil, err
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("tavily: failed to parse response: %w", err)
	}

	now := time.Now()
	docs := make([]rag.Document, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		docs = append(docs, newDoc("tavily", r.Title, r.URL, r.Content, now))
	}
	return docs, nil
}

// =============================================================================
// SERP API
// =============================================================================

type serpProvider struct {
	apiKey  string
	baseURL string
}

func (p *serpProvider) name() string { return "serp" }

type serpResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
	ScholarlyArticles struct {
		Articles []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"articles"`
	} `json:"scholarly_articles"`
}

func (p *serpProvider) search(ctx context.Context, query string, limit int) ([]rag.Document, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("device", "desktop")
	params.Set("num", strconv.Itoa(limit))
	params.Set("api_key", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	raw, err := doSearchRequest(req)
	if err != nil {
		return nil, err
	}

	var parsed serpResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("serp: failed to parse response: %w", err)
	}

	now := time.Now()
	var docs []rag.Document
	for _, r := range parsed.OrganicResults {
		docs = append(docs, newDoc("serp", r.Title, r.Link, r.Snippet, now))
	}
	for _, a := range parsed.ScholarlyArticles.Articles {
		docs = append(docs, newDoc("serp", a.Title, a.Link, a.Snippet, now))
	}
	return docs, nil
}

// =============================================================================
// SERPER (Google Scholar)
// =============================================================================

type serperProvider struct {
	apiKey  string
	baseURL string
}

func (p *serperProvider) name() string { return "serper" }

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (p *serperProvider) search(ctx context.Context, query string, limit int) ([]rag.Document, error) {
	body, err := json.Marshal(map[string]string{"q": query})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/scholar", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	raw, err := doSearchRequest(req)
	if err != nil {
		return nil, err
	}

	var parsed serperResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("serper: failed to parse response: %w", err)
	}

	now := time.Now()
	docs := make([]rag.Document, 0, len(parsed.Organic))
	for _, r := range parsed.Organic {
		docs = append(docs, newDoc("serper", r.Title, r.Link, r.Snippet, now))
	}
	return docs, nil
}

// doSearchRequest executes a search API call and returns the body.
func doSearchRequest(req *http.Request) ([]byte, error) {
	resp, err := searchHTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
