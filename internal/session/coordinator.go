// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jeranaias/sciquery/internal/admission"
	"github.com/jeranaias/sciquery/internal/rag"
	"github.com/jeranaias/sciquery/internal/stream"
)

// ErrAtCapacity indicates a non-streaming request arrived while every
// processing slot was taken.
var ErrAtCapacity = errors.New("server is at capacity")

// DefaultQueuePoll is how often a queued session re-checks its position.
const DefaultQueuePoll = time.Second

// Processor answers a question, reporting stage transitions as it goes.
// *rag.Pipeline satisfies this.
type Processor interface {
	Process(ctx context.Context, question string, emit rag.StatusFunc) (*rag.Answer, error)
}

// HistoryStore persists query history. *storage.Store satisfies this.
type HistoryStore interface {
	SaveQuery(ctx context.Context, userID, question string) (string, error)
	UpdateQuery(ctx context.Context, queryID, status string, answer *rag.Answer, errorMessage string) error
}

// Coordinator drives a session from admission through the pipeline to its
// terminal event, persisting completed answers along the way.
type Coordinator struct {
	admission *admission.Controller
	processor Processor
	store     HistoryStore
	queuePoll time.Duration
}

// NewCoordinator wires the session coordinator. store may be nil to disable
// history persistence.
func NewCoordinator(ac *admission.Controller, p Processor, store HistoryStore) *Coordinator {
	return &Coordinator{
		admission: ac,
		processor: p,
		store:     store,
		queuePoll: DefaultQueuePoll,
	}
}

// WithQueuePoll sets the queue position poll interval.
func (c *Coordinator) WithQueuePoll(d time.Duration) *Coordinator {
	c.queuePoll = d
	return c
}

// Run drives the session to a terminal event on its stream. It blocks until
// the session finishes or ctx is cancelled (client disconnect), and releases
// the admission slot on every exit path.
func (c *Coordinator) Run(ctx context.Context, sess *Session) {
	defer c.release(sess.ID)

	active, position := c.admission.Admit(sess.ID)
	if !active {
		if !c.waitForSlot(ctx, sess, position) {
			sess.setState(StateCancelled)
			return
		}
	}

	sess.setState(StateActive)
	log.Printf("SESSION_START | id=%s user=%s", sess.ID, sess.UserID)

	emit := func(s rag.Status) {
		sess.Stream.Status(string(s))
	}

	answer, err := c.processor.Process(ctx, sess.Question, emit)
	if err != nil {
		if ctx.Err() != nil {
			log.Printf("SESSION_CANCELLED | id=%s", sess.ID)
			sess.setState(StateCancelled)
			return
		}
		log.Printf("SESSION_FAILED | id=%s err=%v", sess.ID, err)
		// State flips before the terminal event goes out, so a consumer
		// that sees the event also sees the terminal state.
		sess.setState(StateFailed)
		sess.Stream.Status(string(rag.StatusFailed))
		sess.Stream.Error(err.Error(), "An error occurred in processing", nil)
		return
	}

	c.deliver(ctx, sess, answer)
}

// deliver emits the answer, documents, and terminal event, persisting the
// query before the complete event goes out so the client-visible query_id
// is durable.
func (c *Coordinator) deliver(ctx context.Context, sess *Session, answer *rag.Answer) {
	sess.Stream.Answer(answer.Text)

	var queryID *string
	if answer.Persistable() && c.store != nil {
		id, err := c.persist(ctx, sess, answer)
		if err != nil {
			log.Printf("SESSION_PERSIST_ERROR | id=%s err=%v", sess.ID, err)
			sess.setState(StateFailed)
			sess.Stream.Status(string(rag.StatusFailed))
			sess.Stream.Error(err.Error(), "An error occurred in processing", nil)
			return
		}
		queryID = &id
	} else {
		// Documents still go out for answers that are not kept.
		for _, d := range answer.Documents {
			sess.Stream.Document(documentPayload(d))
		}
	}

	fromWeb := answer.FromWebSearch
	if answer.Invalid {
		fromWeb = false
	}
	sess.setState(StateCompleted)
	sess.Stream.Complete(fromWeb, answer.ProcessingTime, queryID)
	log.Printf("SESSION_DONE | id=%s persisted=%t time=%.2fs", sess.ID, queryID != nil, answer.ProcessingTime)
}

// persist saves the query, streams its documents, and marks it completed.
func (c *Coordinator) persist(ctx context.Context, sess *Session, answer *rag.Answer) (string, error) {
	id, err := c.store.SaveQuery(ctx, sess.UserID, sess.Question)
	if err != nil {
		return "", fmt.Errorf("failed to save query: %w", err)
	}

	for _, d := range answer.Documents {
		sess.Stream.Document(documentPayload(d))
	}

	if err := c.store.UpdateQuery(ctx, id, "completed", answer, ""); err != nil {
		return "", fmt.Errorf("failed to record answer: %w", err)
	}
	return id, nil
}

// waitForSlot polls until the session is promoted to a slot. Returns false
// if ctx was cancelled while waiting.
func (c *Coordinator) waitForSlot(ctx context.Context, sess *Session, position int) bool {
	sess.Stream.QueuedStatus(queuedLabel(position), position)

	ticker := time.NewTicker(c.queuePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if c.admission.IsActive(sess.ID) {
				return true
			}
			if p := c.admission.PositionOf(sess.ID); p != position {
				position = p
				sess.Stream.QueuedStatus(queuedLabel(position), position)
			}
		}
	}
}

// RunSync processes a non-streaming request. It fails fast with
// ErrAtCapacity instead of queueing, and returns the answer plus the stored
// query id (empty when the answer was not persisted).
func (c *Coordinator) RunSync(ctx context.Context, sess *Session) (*rag.Answer, string, error) {
	active, _ := c.admission.Admit(sess.ID)
	if !active {
		c.release(sess.ID)
		return nil, "", ErrAtCapacity
	}
	defer c.release(sess.ID)

	sess.setState(StateActive)
	answer, err := c.processor.Process(ctx, sess.Question, nil)
	if err != nil {
		sess.setState(StateFailed)
		return nil, "", err
	}

	var queryID string
	if answer.Persistable() && c.store != nil {
		id, err := c.store.SaveQuery(ctx, sess.UserID, sess.Question)
		if err == nil {
			err = c.store.UpdateQuery(ctx, id, "completed", answer, "")
		}
		if err != nil {
			sess.setState(StateFailed)
			return nil, "", err
		}
		queryID = id
	}

	sess.setState(StateCompleted)
	return answer, queryID, nil
}

func (c *Coordinator) release(id string) {
	if next, promoted := c.admission.Release(id); promoted {
		log.Printf("SESSION_PROMOTED | id=%s", next)
	}
}

func queuedLabel(position int) string {
	return fmt.Sprintf("%s (Position: %d)", rag.StatusQueued, position)
}

func documentPayload(d rag.Document) stream.DocumentPayload {
	return stream.DocumentPayload{
		Title:        d.Title,
		Content:      d.Content,
		URL:          d.URL,
		Similarity:   d.Similarity,
		Provider:     d.Provider,
		Date:         d.Date,
		JournalRef:   d.JournalRef,
		JournalTitle: d.JournalTitle,
	}
}
