// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"log"
	"sync"

	"github.com/jeranaias/sciquery/internal/rag"
)

// Default API endpoints, overridable for tests.
const (
	DefaultTavilyURL = "https://api.tavily.com"
	DefaultSerpURL   = "https://serpapi.com"
	DefaultSerperURL = "https://google.serper.dev"
)

// Keys holds the web search API keys. Empty keys disable their provider.
type Keys struct {
	Tavily string
	Serp   string
	Serper string
}

// Manager rotates web searches across Tavily, SERP, and Serper, skipping
// providers that are out of quota or unconfigured. It satisfies
// rag.Searcher: exhausting every provider yields an empty result, never an
// error, so the pipeline can resolve to its fallback answer.
type Manager struct {
	mu        sync.Mutex
	providers []provider
	cursor    int
	usage     *UsageStore
}

// NewManager creates a search manager with the given keys and usage store.
func NewManager(keys Keys, usage *UsageStore) *Manager {
	m := &Manager{usage: usage}
	if keys.Tavily != "" {
		m.providers = append(m.providers, &tavilyProvider{apiKey: keys.Tavily, baseURL: DefaultTavilyURL})
	}
	if keys.Serp != "" {
		m.providers = append(m.providers, &serpProvider{apiKey: keys.Serp, baseURL: DefaultSerpURL})
	}
	if keys.Serper != "" {
		m.providers = append(m.providers, &serperProvider{apiKey: keys.Serper, baseURL: DefaultSerperURL})
	}
	return m
}

// Search tries each provider in rotation until one returns documents. Usage
// is counted only for the provider that actually delivered results.
func (m *Manager) Search(ctx context.Context, query string, limit int) ([]rag.Document, error) {
	for attempts := 0; attempts < m.providerCount(); attempts++ {
		p := m.nextProvider()
		if !m.usage.CanUse(p.name()) {
			log.Printf("SEARCH_SKIPPED | provider=%s reason=quota", p.name())
			continue
		}

		docs, err := p.search(ctx, query, limit)
		if err != nil {
			log.Printf("SEARCH_ERROR | provider=%s err=%v", p.name(), err)
			continue
		}
		if len(docs) == 0 {
			log.Printf("SEARCH_EMPTY | provider=%s", p.name())
			continue
		}

		m.usage.Increment(p.name())
		log.Printf("SEARCH_OK | provider=%s docs=%d", p.name(), len(docs))
		return docs, nil
	}

	log.Printf("SEARCH_EXHAUSTED | providers=%d", m.providerCount())
	return nil, nil
}

func (m *Manager) providerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.providers)
}

func (m *Manager) nextProvider() provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.providers[m.cursor%len(m.providers)]
	m.cursor = (m.cursor + 1) % len(m.providers)
	return p
}
