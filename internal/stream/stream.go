// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrDone indicates the terminal event has already been delivered.
	ErrDone = errors.New("event stream done")

	// ErrClosed indicates the stream was closed before a terminal event,
	// typically because the client disconnected.
	ErrClosed = errors.New("event stream closed")
)

// pollInterval is how long Next waits between checks when no event is
// immediately available and no wakeup has arrived.
const pollInterval = 100 * time.Millisecond

// =============================================================================
// STREAM
// =============================================================================

// Stream is a per-session ordered queue of status events. The orchestrator
// writes, the transport reads; Emit never blocks pipeline progress.
//
// Invariants: events are delivered in emission order, at most one terminal
// event is ever queued, and nothing is accepted after the terminal event or
// after Close.
type Stream struct {
	mu       sync.Mutex
	events   []Event
	closed   bool // consumer gone, drop everything
	sealed   bool // terminal event queued, no more writes
	finished bool // terminal event delivered to the consumer

	// notify wakes a blocked Next without making Emit block. Capacity 1:
	// a pending wakeup is as good as many.
	notify chan struct{}
}

// New creates an empty event stream.
func New() *Stream {
	return &Stream{
		notify: make(chan struct{}, 1),
	}
}

// Emit appends an event to the stream. It never blocks. Events emitted after
// Close or after a terminal event are dropped.
func (s *Stream) Emit(ev Event) {
	s.mu.Lock()
	if s.closed || s.sealed {
		s.mu.Unlock()
		if ev.Terminal() {
			log.Printf("STREAM_DROP | type=%s reason=stream_finished", ev.Type)
		}
		return
	}
	if ev.Terminal() {
		s.sealed = true
	}
	s.events = append(s.events, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next returns the next event, waiting until one is available. It returns
// ErrDone after the terminal event has been delivered, ErrClosed if the
// stream was closed, and the context error if ctx is cancelled first.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return Event{}, ErrClosed
		}
		if len(s.events) > 0 {
			ev := s.events[0]
			s.events = s.events[1:]
			if ev.Terminal() {
				s.finished = true
			}
			s.mu.Unlock()
			return ev, nil
		}
		if s.finished {
			s.mu.Unlock()
			return Event{}, ErrDone
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-s.notify:
		case <-ticker.C:
		}
	}
}

// Close shuts the stream down without a terminal event. Pending events are
// discarded and no further events are accepted or delivered. Safe to call
// more than once and safe to race with a concurrent Emit.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.events = nil
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Finished reports whether the terminal event has been delivered.
func (s *Stream) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// =============================================================================
// EMIT HELPERS
// =============================================================================

// Status emits a stage-label status event.
func (s *Stream) Status(label string) {
	s.Emit(Event{Type: EventStatus, Data: StatusPayload{Status: label}})
}

// QueuedStatus emits a status event carrying the current queue position.
func (s *Stream) QueuedStatus(label string, position int) {
	s.Emit(Event{Type: EventStatus, Data: StatusPayload{Status: label, Position: position}})
}

// Answer emits the final answer text.
func (s *Stream) Answer(content string) {
	s.Emit(Event{Type: EventAnswer, Data: AnswerPayload{Content: content}})
}

// Document emits one supporting document.
func (s *Stream) Document(d DocumentPayload) {
	s.Emit(Event{Type: EventDocument, Data: d})
}

// Complete emits the successful terminal event.
func (s *Stream) Complete(fromWebSearch bool, processingTime float64, queryID *string) {
	s.Emit(Event{Type: EventComplete, Data: CompletePayload{
		FromWebSearch:  fromWebSearch,
		ProcessingTime: processingTime,
		QueryID:        queryID,
	}})
}

// Error emits the failure terminal event.
func (s *Stream) Error(errText, message string, queryID *string) {
	s.Emit(Event{Type: EventError, Data: ErrorPayload{
		Error:   errText,
		Message: message,
		QueryID: queryID,
	}})
}
