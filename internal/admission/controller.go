// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package admission

import (
	"log"
	"sync"
	"time"
)

// DefaultMaxConcurrent is the default bound on concurrently running
// orchestrations.
const DefaultMaxConcurrent = 10

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller bounds the number of concurrently executing sessions and queues
// the overflow in FIFO order.
//
// A single mutex covers both the active set and the pending queue. Admission
// and queueing must be atomic with respect to each other: with separate locks
// two sessions could both observe free capacity and both be admitted,
// breaking the concurrency bound.
type Controller struct {
	mu      sync.Mutex
	max     int
	active  map[string]time.Time
	pending []string
}

// NewController creates a Controller with the given concurrency bound.
// A bound of zero or less falls back to DefaultMaxConcurrent.
func NewController(maxConcurrent int) *Controller {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Controller{
		max:    maxConcurrent,
		active: make(map[string]time.Time),
	}
}

// Admit registers a session. If capacity allows it is marked active and
// (true, 0) is returned; otherwise it is appended to the pending queue and
// (false, position) is returned with its 1-based queue position.
func (c *Controller) Admit(id string) (active bool, position int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.active) < c.max {
		c.active[id] = time.Now()
		return true, 0
	}

	c.pending = append(c.pending, id)
	pos := len(c.pending)
	log.Printf("ADMISSION_QUEUED | id=%s position=%d active=%d", id, pos, len(c.active))
	return false, pos
}

// Release removes a session from the active set (or the pending queue, if it
// never ran) and, when capacity allows, promotes the head of the queue. The
// promoted session id is returned so the caller can wake its worker.
// Releasing an unknown id is a no-op, which makes the disconnect path
// idempotent with normal completion.
func (c *Controller) Release(id string) (next string, promoted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.active[id]; ok {
		delete(c.active, id)
	} else {
		// Session may still be queued (disconnect while waiting).
		for i, pid := range c.pending {
			if pid == id {
				c.pending = append(c.pending[:i], c.pending[i+1:]...)
				break
			}
		}
	}

	if len(c.pending) > 0 && len(c.active) < c.max {
		next = c.pending[0]
		c.pending = c.pending[1:]
		c.active[next] = time.Now()
		return next, true
	}
	return "", false
}

// PositionOf returns the 1-based queue position of a session, or 0 if the
// session is active or unknown.
func (c *Controller) PositionOf(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, pid := range c.pending {
		if pid == id {
			return i + 1
		}
	}
	return 0
}

// IsActive reports whether a session currently holds an admission slot.
func (c *Controller) IsActive(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[id]
	return ok
}

// ActiveCount returns the number of sessions currently active.
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// PendingCount returns the number of sessions waiting in the queue.
func (c *Controller) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
