// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

// =============================================================================
// EVENT TYPES
// =============================================================================

// EventType identifies the kind of a status event. The values double as the
// SSE event names on the wire.
type EventType string

const (
	// EventStatus carries a human-readable stage label, plus a queue
	// position while the session is still waiting for admission.
	EventStatus EventType = "status"

	// EventAnswer carries the final answer text. Emitted once, before any
	// document events.
	EventAnswer EventType = "answer"

	// EventDocument carries one supporting document. Zero or more per
	// session, in rank order.
	EventDocument EventType = "document"

	// EventComplete is the successful terminal event.
	EventComplete EventType = "complete"

	// EventError is the failure terminal event.
	EventError EventType = "error"
)

// Event is one entry in a session's status stream. Data holds the typed
// payload for the event's Type and is what gets marshalled onto the wire.
type Event struct {
	Type EventType
	Data any
}

// Terminal reports whether no further events may follow this one.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// =============================================================================
// PAYLOADS
// =============================================================================

// StatusPayload is the payload for EventStatus.
type StatusPayload struct {
	Status   string `json:"status"`
	Position int    `json:"position,omitempty"`
}

// AnswerPayload is the payload for EventAnswer.
type AnswerPayload struct {
	Content string `json:"content"`
}

// DocumentPayload is the payload for EventDocument.
type DocumentPayload struct {
	Title        string  `json:"title"`
	Content      string  `json:"content"`
	URL          string  `json:"url"`
	Similarity   float64 `json:"similarity"`
	Provider     string  `json:"provider"`
	Date         string  `json:"date"`
	JournalRef   string  `json:"journal_ref"`
	JournalTitle string  `json:"journal_title"`
}

// CompletePayload is the payload for EventComplete. QueryID is nil when the
// outcome was not persisted (invalid question, graded failure).
type CompletePayload struct {
	FromWebSearch  bool    `json:"from_websearch"`
	ProcessingTime float64 `json:"processing_time"`
	QueryID        *string `json:"query_id"`
}

// ErrorPayload is the payload for EventError.
type ErrorPayload struct {
	Error   string  `json:"error"`
	Message string  `json:"message"`
	QueryID *string `json:"query_id"`
}
