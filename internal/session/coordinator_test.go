// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/sciquery/internal/admission"
	"github.com/jeranaias/sciquery/internal/rag"
	"github.com/jeranaias/sciquery/internal/stream"
)

type fakeProcessor struct {
	answer  *rag.Answer
	err     error
	block   chan struct{} // when set, Process waits for close or ctx
	started chan struct{} // closed when Process begins
	once    sync.Once     // Process may run more than once per fake
}

func (p *fakeProcessor) Process(ctx context.Context, question string, emit rag.StatusFunc) (*rag.Answer, error) {
	if p.started != nil {
		p.once.Do(func() { close(p.started) })
	}
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	if emit != nil {
		emit(rag.StatusValidating)
		emit(rag.StatusCompleted)
	}
	return p.answer, nil
}

type fakeStore struct {
	savedUser     string
	savedQuestion string
	updatedID     string
	updatedStatus string
	saveErr       error
}

func (s *fakeStore) SaveQuery(ctx context.Context, userID, question string) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	s.savedUser = userID
	s.savedQuestion = question
	return "query-1", nil
}

func (s *fakeStore) UpdateQuery(ctx context.Context, queryID, status string, answer *rag.Answer, errorMessage string) error {
	s.updatedID = queryID
	s.updatedStatus = status
	return nil
}

func goodAnswer() *rag.Answer {
	return &rag.Answer{
		Text: "Answer.\n\nSources:\n- Paper",
		Documents: []rag.Document{
			{Title: "Paper", Content: "evidence", Similarity: 0.9, Provider: "database"},
		},
		ProcessingTime: 1.5,
	}
}

// drain collects every event until the stream is done.
func drain(t *testing.T, s *stream.Stream) []stream.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []stream.Event
	for {
		ev, err := s.Next(ctx)
		if err != nil {
			if errors.Is(err, stream.ErrDone) {
				return events
			}
			t.Fatalf("Next failed: %v", err)
		}
		events = append(events, ev)
	}
}

func eventTypes(events []stream.Event) []stream.EventType {
	types := make([]stream.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func TestRunPersistsAndCompletes(t *testing.T) {
	store := &fakeStore{}
	c := NewCoordinator(admission.NewController(2), &fakeProcessor{answer: goodAnswer()}, store)
	sess := New("user123", "What is dark matter?")

	go c.Run(context.Background(), sess)
	events := drain(t, sess.Stream)

	types := eventTypes(events)
	want := []stream.EventType{stream.EventStatus, stream.EventStatus, stream.EventAnswer, stream.EventDocument, stream.EventComplete}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event #%d = %s, want %s", i, types[i], want[i])
		}
	}

	complete := events[len(events)-1].Data.(stream.CompletePayload)
	if complete.QueryID == nil || *complete.QueryID != "query-1" {
		t.Errorf("query_id = %v, want query-1", complete.QueryID)
	}
	if store.savedUser != "user123" || store.updatedStatus != "completed" {
		t.Errorf("store = %+v", store)
	}
	if sess.State() != StateCompleted {
		t.Errorf("state = %s, want completed", sess.State())
	}
}

func TestRunInvalidQuestionNotPersisted(t *testing.T) {
	store := &fakeStore{}
	answer := &rag.Answer{Text: rag.InvalidQuestionAnswer, Invalid: true, ProcessingTime: 0.3}
	c := NewCoordinator(admission.NewController(2), &fakeProcessor{answer: answer}, store)
	sess := New("u", "How old are you?")

	go c.Run(context.Background(), sess)
	events := drain(t, sess.Stream)

	complete := events[len(events)-1].Data.(stream.CompletePayload)
	if complete.QueryID != nil {
		t.Error("invalid question got a query_id")
	}
	if complete.FromWebSearch {
		t.Error("invalid question marked as web search")
	}
	if store.savedUser != "" {
		t.Error("invalid question was persisted")
	}
}

func TestRunFallbackAnswerNotPersisted(t *testing.T) {
	store := &fakeStore{}
	answer := &rag.Answer{Text: rag.FallbackAnswer, FromWebSearch: true, ProcessingTime: 2.0}
	c := NewCoordinator(admission.NewController(2), &fakeProcessor{answer: answer}, store)
	sess := New("u", "q")

	go c.Run(context.Background(), sess)
	events := drain(t, sess.Stream)

	complete := events[len(events)-1].Data.(stream.CompletePayload)
	if complete.QueryID != nil {
		t.Error("fallback answer got a query_id")
	}
	if !complete.FromWebSearch {
		t.Error("fallback answer not marked as web search")
	}
	if store.savedUser != "" {
		t.Error("fallback answer was persisted")
	}
}

func TestRunPipelineErrorEmitsErrorEvent(t *testing.T) {
	c := NewCoordinator(admission.NewController(2), &fakeProcessor{err: errors.New("all providers exhausted")}, &fakeStore{})
	sess := New("u", "q")

	go c.Run(context.Background(), sess)
	events := drain(t, sess.Stream)

	last := events[len(events)-1]
	if last.Type != stream.EventError {
		t.Fatalf("terminal event = %s, want error", last.Type)
	}
	payload := last.Data.(stream.ErrorPayload)
	if !strings.Contains(payload.Error, "exhausted") {
		t.Errorf("error payload = %+v", payload)
	}
	if sess.State() != StateFailed {
		t.Errorf("state = %s, want failed", sess.State())
	}
}

func TestRunQueuesWhenAtCapacity(t *testing.T) {
	ac := admission.NewController(1)
	blocker := &fakeProcessor{answer: goodAnswer(), block: make(chan struct{}), started: make(chan struct{})}
	c := NewCoordinator(ac, blocker, nil).WithQueuePoll(10 * time.Millisecond)

	first := New("u", "q1")
	go c.Run(context.Background(), first)
	<-blocker.started

	second := New("u", "q2")
	go c.Run(context.Background(), second)

	// The queued session announces its position.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := second.Stream.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	payload := ev.Data.(stream.StatusPayload)
	if payload.Position != 1 {
		t.Errorf("position = %d, want 1", payload.Position)
	}
	if !strings.Contains(payload.Status, "Position: 1") {
		t.Errorf("status = %q", payload.Status)
	}

	// Finishing the first session promotes the second.
	close(blocker.block)
	events := drain(t, second.Stream)
	if events[len(events)-1].Type != stream.EventComplete {
		t.Errorf("second session did not complete: %v", eventTypes(events))
	}
}

func TestRunDisconnectWhileQueuedReleasesSlot(t *testing.T) {
	ac := admission.NewController(1)
	blocker := &fakeProcessor{answer: goodAnswer(), block: make(chan struct{}), started: make(chan struct{})}
	c := NewCoordinator(ac, blocker, nil).WithQueuePoll(10 * time.Millisecond)

	first := New("u", "q1")
	go c.Run(context.Background(), first)
	<-blocker.started

	ctx, cancel := context.WithCancel(context.Background())
	second := New("u", "q2")
	done := make(chan struct{})
	go func() {
		c.Run(ctx, second)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	if second.State() != StateCancelled {
		t.Errorf("state = %s, want cancelled", second.State())
	}
	if got := ac.PendingCount(); got != 0 {
		t.Errorf("pending = %d, want 0 after disconnect", got)
	}
	close(blocker.block)
}

func TestRunDisconnectWhileActiveReleasesSlot(t *testing.T) {
	ac := admission.NewController(1)
	store := &fakeStore{}
	blocker := &fakeProcessor{answer: goodAnswer(), block: make(chan struct{}), started: make(chan struct{})}
	c := NewCoordinator(ac, blocker, store)

	ctx, cancel := context.WithCancel(context.Background())
	sess := New("u", "q")
	done := make(chan struct{})
	go func() {
		c.Run(ctx, sess)
		close(done)
	}()
	<-blocker.started

	// Client disconnects while the pipeline is generating.
	cancel()
	<-done

	if sess.State() != StateCancelled {
		t.Errorf("state = %s, want cancelled", sess.State())
	}
	if got := ac.ActiveCount(); got != 0 {
		t.Errorf("active = %d, want 0 after disconnect", got)
	}
	if store.savedUser != "" {
		t.Error("cancelled session was persisted")
	}
	// The consumer is gone, so no terminal event goes out.
	if sess.Stream.Finished() {
		t.Error("terminal event emitted for a disconnected session")
	}
}

func TestRunStateIsTerminalWhenCompleteArrives(t *testing.T) {
	c := NewCoordinator(admission.NewController(1), &fakeProcessor{answer: goodAnswer()}, nil)
	sess := New("u", "q")
	go c.Run(context.Background(), sess)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		ev, err := sess.Stream.Next(ctx)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if ev.Type == stream.EventComplete {
			// The session state is already terminal the moment the
			// terminal event is delivered.
			if got := sess.State(); got != StateCompleted {
				t.Errorf("state = %s on complete delivery, want completed", got)
			}
			return
		}
	}
}

func TestRunSyncAtCapacity(t *testing.T) {
	ac := admission.NewController(1)
	blocker := &fakeProcessor{answer: goodAnswer(), block: make(chan struct{}), started: make(chan struct{})}
	c := NewCoordinator(ac, blocker, nil)

	first := New("u", "q1")
	go c.Run(context.Background(), first)
	<-blocker.started

	if _, _, err := c.RunSync(context.Background(), New("u", "q2")); !errors.Is(err, ErrAtCapacity) {
		t.Errorf("RunSync = %v, want ErrAtCapacity", err)
	}
	close(blocker.block)
}

func TestRunSyncSuccess(t *testing.T) {
	store := &fakeStore{}
	c := NewCoordinator(admission.NewController(2), &fakeProcessor{answer: goodAnswer()}, store)

	answer, queryID, err := c.RunSync(context.Background(), New("user123", "q"))
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	if answer == nil || queryID != "query-1" {
		t.Errorf("answer=%v queryID=%q", answer, queryID)
	}
	if store.updatedStatus != "completed" {
		t.Errorf("store = %+v", store)
	}
}
