// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// client.go - HTTP and SSE client for the sciquery server.

package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/sciquery/internal/storage"
	"github.com/jeranaias/sciquery/internal/stream"
)

// =============================================================================
// CLIENT
// =============================================================================

const (
	// DefaultServerURL is where a locally run server listens.
	DefaultServerURL = "http://127.0.0.1:8000"

	// DefaultSyncTimeout bounds non-streaming requests. Streaming
	// requests are bounded by the caller's context instead, since a
	// queued question can legitimately wait several minutes.
	DefaultSyncTimeout = 5 * time.Minute
)

// ErrHandlerStop is returned from an event handler to stop consuming
// the stream without treating it as a failure.
var ErrHandlerStop = errors.New("client: handler requested stop")

// Client talks to a sciquery server.
type Client struct {
	baseURL string
	token   string
	userID  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client for the server at baseURL. Requests are issued
// on behalf of userID, which the server uses for queue history.
func New(baseURL, userID string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultServerURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// EVENTS
// =============================================================================

// Event is one decoded server-sent event. Exactly one of the payload
// fields is non-nil, matching Type.
type Event struct {
	Type     stream.EventType
	Status   *stream.StatusPayload
	Answer   *stream.AnswerPayload
	Document *stream.DocumentPayload
	Complete *stream.CompletePayload
	Err      *stream.ErrorPayload
}

// Handler receives decoded events in server order. Returning a non-nil
// error stops the stream; ErrHandlerStop stops it without Ask failing.
type Handler func(Event) error

// AskResult is the outcome of a non-streaming request.
type AskResult struct {
	Answer         string                   `json:"answer"`
	Documents      []stream.DocumentPayload `json:"documents"`
	FromWebSearch  bool                     `json:"from_websearch"`
	ProcessingTime float64                  `json:"processing_time"`
	QueryID        *string                  `json:"query_id"`
}

// =============================================================================
// REQUESTS
// =============================================================================

type askBody struct {
	Question string `json:"question"`
	UserID   string `json:"user_id"`
	Stream   bool   `json:"stream"`
}

// APIError is a non-2xx response decoded from the server's error
// envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Ask submits a question and streams pipeline events to handler until
// a terminal event arrives or the context is cancelled.
func (c *Client) Ask(ctx context.Context, question string, handler Handler) error {
	body, err := json.Marshal(askBody{Question: question, UserID: c.userID, Stream: true})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.decodeError(resp)
	}

	err = readEvents(resp.Body, handler)
	if errors.Is(err, ErrHandlerStop) {
		return nil
	}
	return err
}

// AskSync submits a question and blocks until the full answer is
// available. Queue position updates are not visible in this mode.
func (c *Client) AskSync(ctx context.Context, question string) (*AskResult, error) {
	body, err := json.Marshal(askBody{Question: question, UserID: c.userID, Stream: false})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultSyncTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contacting server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp)
	}

	var result AskResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &result, nil
}

// History fetches the caller's past queries, newest first.
func (c *Client) History(ctx context.Context) ([]storage.QueryRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+c.userID, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contacting server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp)
	}

	var payload struct {
		Queries []storage.QueryRecord `json:"queries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return payload.Queries, nil
}

// Health describes the server's current load.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Active  int    `json:"active"`
	Queued  int    `json:"queued"`
}

// ServerHealth fetches the server's health summary.
func (c *Client) ServerHealth(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contacting server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp)
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &h, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}

// =============================================================================
// SSE READER
// =============================================================================

// readEvents parses an SSE body frame by frame and dispatches each to
// handler. Comment lines (keep-alive pings) and unknown event types are
// skipped. Returns nil once the body ends cleanly.
func readEvents(r io.Reader, handler Handler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType string
	var data strings.Builder

	dispatch := func() error {
		if eventType == "" && data.Len() == 0 {
			return nil
		}
		ev, ok, err := decodeEvent(eventType, data.String())
		eventType = ""
		data.Reset()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return handler(ev)
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
			// Keep-alive comment.
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	// Flush a final frame that was not newline-terminated.
	return dispatch()
}

func decodeEvent(eventType, data string) (Event, bool, error) {
	ev := Event{Type: stream.EventType(eventType)}
	var dst any

	switch ev.Type {
	case stream.EventStatus:
		ev.Status = &stream.StatusPayload{}
		dst = ev.Status
	case stream.EventAnswer:
		ev.Answer = &stream.AnswerPayload{}
		dst = ev.Answer
	case stream.EventDocument:
		ev.Document = &stream.DocumentPayload{}
		dst = ev.Document
	case stream.EventComplete:
		ev.Complete = &stream.CompletePayload{}
		dst = ev.Complete
	case stream.EventError:
		ev.Err = &stream.ErrorPayload{}
		dst = ev.Err
	default:
		return Event{}, false, nil
	}

	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return Event{}, false, fmt.Errorf("decoding %s event: %w", eventType, err)
	}
	return ev, true, nil
}
