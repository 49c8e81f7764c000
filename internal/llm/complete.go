// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// DefaultSlowAfter is how long the first provider gets before a fallback
// provider is raced against it.
const DefaultSlowAfter = 5 * time.Second

// Completion is the result of a successful Complete call.
type Completion struct {
	Content  string
	Provider string
}

// Completer runs chat completions across the provider rotation with
// race-based fallback.
//
// The first provider is chosen by the router. If it has not answered within
// the slow threshold, a second provider is started alongside it and the first
// usable answer wins; the loser's request is cancelled. A provider that
// errors out goes into cooldown and the next one is tried. When every
// provider has been tried or is cooling down, ErrAllProvidersExhausted is
// returned wrapping the last underlying error.
type Completer struct {
	router    *Router
	slowAfter time.Duration
}

// NewCompleter creates a completer over the given router.
func NewCompleter(router *Router) *Completer {
	return &Completer{
		router:    router,
		slowAfter: DefaultSlowAfter,
	}
}

// WithSlowAfter sets the race-fallback threshold.
func (e *Completer) WithSlowAfter(d time.Duration) *Completer {
	e.slowAfter = d
	return e
}

// Router returns the underlying provider router.
func (e *Completer) Router() *Router {
	return e.router
}

// Request describes one completion to run across the provider rotation.
type Request struct {
	Messages      []ChatMessage
	Temperature   float64
	PreferPrimary bool
}

type attemptResult struct {
	provider *Provider
	content  string
	err      error
}

// Complete runs the request against the provider rotation and returns the
// first usable answer. PreferPrimary routes the initial attempt to the
// primary provider when it is available.
func (e *Completer) Complete(ctx context.Context, req Request) (*Completion, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan attemptResult, 8)
	launch := func(p *Provider) {
		go func() {
			resp, err := p.Chat(runCtx, req.Messages, req.Temperature)
			if err != nil {
				results <- attemptResult{provider: p, err: err}
				return
			}
			results <- attemptResult{provider: p, content: resp.GetContent()}
		}()
	}

	first, err := e.router.Choose(req.PreferPrimary)
	if err != nil {
		return nil, err
	}
	tried := []string{first.Name}
	launch(first)
	inFlight := 1

	slow := time.NewTimer(e.slowAfter)
	defer slow.Stop()

	var lastErr error
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-slow.C:
			// First provider is slow. Race a fallback alongside it rather
			// than abandoning a request that may still complete.
			p, err := e.router.Choose(false, tried...)
			if err != nil {
				continue
			}
			tried = append(tried, p.Name)
			launch(p)
			inFlight++
			log.Printf("LLM_RACE | slow=%s fallback=%s", first.Name, p.Name)

		case res := <-results:
			inFlight--
			if res.err == nil && strings.TrimSpace(res.content) != "" {
				e.router.ReportSuccess(res.provider.Name)
				return &Completion{Content: res.content, Provider: res.provider.Name}, nil
			}

			if res.err != nil {
				lastErr = res.err
				// A cancelled loser of the race is not a provider failure.
				if !errors.Is(res.err, context.Canceled) {
					e.router.ReportFailure(res.provider.Name)
				}
			} else {
				lastErr = fmt.Errorf("%w: %s", ErrEmptyCompletion, res.provider.Name)
				e.router.ReportFailure(res.provider.Name)
			}

			p, err := e.router.Choose(false, tried...)
			if err != nil {
				if inFlight == 0 {
					return nil, fmt.Errorf("%w: %v", ErrAllProvidersExhausted, lastErr)
				}
				continue
			}
			tried = append(tried, p.Name)
			launch(p)
			inFlight++
		}
	}
}
