// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/sciquery/internal/stream"
)

// State is the lifecycle state of a request session.
type State string

const (
	StateQueued    State = "queued"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Session is one in-flight question. It owns the event stream the transport
// drains and tracks lifecycle timestamps.
type Session struct {
	ID       string
	UserID   string
	Question string
	Stream   *stream.Stream

	mu         sync.Mutex
	state      State
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
}

// New creates a queued session for a user's question.
func New(userID, question string) *Session {
	return &Session{
		ID:        fmt.Sprintf("%s_%s", userID, uuid.NewString()),
		UserID:    userID,
		Question:  question,
		Stream:    stream.New(),
		state:     StateQueued,
		createdAt: time.Now(),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch st {
	case StateActive:
		s.startedAt = time.Now()
	case StateCompleted, StateFailed, StateCancelled:
		s.finishedAt = time.Now()
	}
	s.state = st
}

// Age returns how long ago the session was created.
func (s *Session) Age() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.createdAt)
}

// Terminal reports whether the session reached a final state.
func (s *Session) Terminal() bool {
	switch s.State() {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}
