// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

const (
	// DefaultCooldown is how long a provider stays out of rotation after a
	// failed request.
	DefaultCooldown = 30 * time.Minute

	// PrimaryProvider is tried first for latency-sensitive calls when it is
	// not cooling down.
	PrimaryProvider = "cerebras"
)

// ErrAllProvidersExhausted indicates every configured provider is either
// cooling down or has already failed for the current request.
var ErrAllProvidersExhausted = errors.New("all providers exhausted")

// Provider is one upstream completion endpoint in the rotation.
type Provider struct {
	Name   string
	client ChatClient
}

// NewProvider wraps a chat client for the router.
func NewProvider(name string, client ChatClient) *Provider {
	return &Provider{Name: name, client: client}
}

// Chat forwards to the underlying client.
func (p *Provider) Chat(ctx context.Context, messages []ChatMessage, temperature float64) (*ChatResponse, error) {
	return p.client.Chat(ctx, messages, temperature)
}

// =============================================================================
// ROUTER
// =============================================================================

// Router selects providers round-robin, skipping any that recently failed.
// A failed provider re-enters the rotation after the cooldown period.
type Router struct {
	mu        sync.Mutex
	providers []*Provider
	cursor    int
	cooldowns map[string]time.Time
	cooldown  time.Duration
	primary   string

	// now is replaceable so cooldown expiry is testable without sleeping.
	now func() time.Time
}

// NewRouter creates a router over the given providers in rotation order.
func NewRouter(providers ...*Provider) *Router {
	return &Router{
		providers: providers,
		cooldowns: make(map[string]time.Time),
		cooldown:  DefaultCooldown,
		primary:   PrimaryProvider,
		now:       time.Now,
	}
}

// WithCooldown sets the failure cooldown period.
func (r *Router) WithCooldown(d time.Duration) *Router {
	r.cooldown = d
	return r
}

// WithPrimary sets the provider preferred by primary-first selection.
func (r *Router) WithPrimary(name string) *Router {
	r.primary = name
	return r
}

// Choose returns the next available provider. With preferPrimary set, the
// primary provider is returned whenever it is available; otherwise selection
// is round-robin from the current cursor. Providers named in exclude are
// skipped, which lets a single request avoid retrying a provider that
// already failed for it.
func (r *Router) Choose(preferPrimary bool, exclude ...string) (*Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.providers) == 0 {
		return nil, ErrAllProvidersExhausted
	}

	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	if preferPrimary {
		for _, p := range r.providers {
			if p.Name == r.primary && !skip[p.Name] && r.availableLocked(p.Name) {
				return p, nil
			}
		}
	}

	for i := 0; i < len(r.providers); i++ {
		p := r.providers[(r.cursor+i)%len(r.providers)]
		if skip[p.Name] || !r.availableLocked(p.Name) {
			continue
		}
		r.cursor = (r.cursor + i + 1) % len(r.providers)
		return p, nil
	}
	return nil, ErrAllProvidersExhausted
}

// ReportFailure puts a provider into cooldown.
func (r *Router) ReportFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until := r.now().Add(r.cooldown)
	r.cooldowns[name] = until
	log.Printf("PROVIDER_COOLDOWN | provider=%s until=%s", name, until.Format(time.RFC3339))
}

// ReportSuccess records a successful call. Rotation already advanced when
// the provider was chosen, and an active cooldown stays in place until it
// expires on its own: a call that succeeds moments after another session's
// failure does not return the provider to rotation early.
func (r *Router) ReportSuccess(name string) {}

// Available returns the names of providers currently in rotation.
func (r *Router) Available() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		if r.availableLocked(p.Name) {
			names = append(names, p.Name)
		}
	}
	return names
}

// availableLocked reports whether a provider is out of cooldown.
// Caller holds r.mu.
func (r *Router) availableLocked(name string) bool {
	until, ok := r.cooldowns[name]
	if !ok {
		return true
	}
	if r.now().After(until) {
		delete(r.cooldowns, name)
		return true
	}
	return false
}
