// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func completerOver(providers ...*Provider) *Completer {
	return NewCompleter(NewRouter(providers...)).WithSlowAfter(50 * time.Millisecond)
}

func TestCompleteFirstProviderWins(t *testing.T) {
	e := completerOver(
		NewProvider("fast", &fakeClient{content: "answer from fast"}),
		NewProvider("never", &fakeClient{content: "unused"}),
	)

	got, err := e.Complete(context.Background(), Request{Messages: []ChatMessage{NewUserMessage("q")}})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got.Provider != "fast" {
		t.Errorf("provider = %s, want fast", got.Provider)
	}
	if got.Content != "answer from fast" {
		t.Errorf("content = %q", got.Content)
	}
}

func TestCompleteSlowProviderRaced(t *testing.T) {
	e := completerOver(
		NewProvider("slow", &fakeClient{content: "slow answer", delay: 5 * time.Second}),
		NewProvider("backup", &fakeClient{content: "backup answer"}),
	)

	start := time.Now()
	got, err := e.Complete(context.Background(), Request{Messages: []ChatMessage{NewUserMessage("q")}})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got.Provider != "backup" {
		t.Errorf("provider = %s, want backup", got.Provider)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Complete waited for the slow provider instead of racing")
	}
}

func TestCompleteSlowProviderCanStillWin(t *testing.T) {
	// The slow provider beats the raced fallback, which is even slower.
	e := completerOver(
		NewProvider("slowish", &fakeClient{content: "slowish answer", delay: 150 * time.Millisecond}),
		NewProvider("slower", &fakeClient{content: "slower answer", delay: 5 * time.Second}),
	)

	got, err := e.Complete(context.Background(), Request{Messages: []ChatMessage{NewUserMessage("q")}})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got.Provider != "slowish" {
		t.Errorf("provider = %s, want slowish", got.Provider)
	}
}

func TestCompleteFailoverOnError(t *testing.T) {
	e := completerOver(
		NewProvider("broken", &fakeClient{err: errors.New("upstream 500")}),
		NewProvider("healthy", &fakeClient{content: "recovered"}),
	)

	got, err := e.Complete(context.Background(), Request{Messages: []ChatMessage{NewUserMessage("q")}})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got.Provider != "healthy" {
		t.Errorf("provider = %s, want healthy", got.Provider)
	}

	// The failed provider went into cooldown.
	avail := e.Router().Available()
	for _, name := range avail {
		if name == "broken" {
			t.Error("failed provider still in rotation")
		}
	}
}

func TestCompleteAllProvidersFail(t *testing.T) {
	e := completerOver(
		NewProvider("a", &fakeClient{err: errors.New("down")}),
		NewProvider("b", &fakeClient{err: errors.New("down")}),
	)

	_, err := e.Complete(context.Background(), Request{Messages: []ChatMessage{NewUserMessage("q")}})
	if !errors.Is(err, ErrAllProvidersExhausted) {
		t.Errorf("Complete = %v, want ErrAllProvidersExhausted", err)
	}
}

func TestCompleteEmptyContentTreatedAsFailure(t *testing.T) {
	e := completerOver(
		NewProvider("empty", &fakeClient{content: "   "}),
		NewProvider("real", &fakeClient{content: "real answer"}),
	)

	got, err := e.Complete(context.Background(), Request{Messages: []ChatMessage{NewUserMessage("q")}})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got.Provider != "real" {
		t.Errorf("provider = %s, want real", got.Provider)
	}
}

func TestCompleteContextCancelled(t *testing.T) {
	e := completerOver(
		NewProvider("slow", &fakeClient{content: "x", delay: 5 * time.Second}),
		NewProvider("alsoslow", &fakeClient{content: "y", delay: 5 * time.Second}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := e.Complete(ctx, Request{Messages: []ChatMessage{NewUserMessage("q")}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Complete = %v, want context.DeadlineExceeded", err)
	}
}

func TestCompletePreferPrimary(t *testing.T) {
	providers := []*Provider{
		NewProvider("groq", &fakeClient{content: "from groq"}),
		NewProvider("cerebras", &fakeClient{content: "from cerebras"}),
	}
	e := NewCompleter(NewRouter(providers...)).WithSlowAfter(time.Second)

	got, err := e.Complete(context.Background(), Request{Messages: []ChatMessage{NewUserMessage("q")}, PreferPrimary: true})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got.Provider != "cerebras" {
		t.Errorf("provider = %s, want cerebras", got.Provider)
	}
}
