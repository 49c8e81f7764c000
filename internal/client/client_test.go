// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/sciquery/internal/stream"
)

// sseServer replies to POST /ask with the given raw SSE body.
func sseServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ask" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, body)
	}))
}

func TestAskStreamOrderAndPings(t *testing.T) {
	body := strings.Join([]string{
		"event: status",
		`data: {"status":"Validating question"}`,
		"",
		": ping",
		"",
		"event: status",
		`data: {"status":"In queue","position":2}`,
		"",
		"event: answer",
		`data: {"content":"Water boils at 100 C at sea level."}`,
		"",
		"event: document",
		`data: {"title":"Boiling points","content":"...","similarity":0.91}`,
		"",
		"event: complete",
		`data: {"from_websearch":false,"processing_time":1.25,"query_id":"q-42"}`,
		"",
	}, "\n") + "\n"

	ts := sseServer(t, body)
	defer ts.Close()

	c := New(ts.URL, "alice")
	var got []Event
	err := c.Ask(context.Background(), "Why does water boil?", func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)

	wantTypes := []stream.EventType{
		stream.EventStatus, stream.EventStatus, stream.EventAnswer,
		stream.EventDocument, stream.EventComplete,
	}
	require.Len(t, got, len(wantTypes))
	for i, want := range wantTypes {
		assert.Equal(t, want, got[i].Type, "event %d", i)
	}

	assert.Equal(t, 2, got[1].Status.Position)
	assert.Contains(t, got[2].Answer.Content, "100 C")
	assert.Equal(t, 0.91, got[3].Document.Similarity)

	done := got[4].Complete
	require.NotNil(t, done.QueryID)
	assert.Equal(t, "q-42", *done.QueryID)
	assert.False(t, done.FromWebSearch)
}

func TestAskErrorEvent(t *testing.T) {
	body := "event: status\n" +
		`data: {"status":"Validating question"}` + "\n\n" +
		"event: error\n" +
		`data: {"error":"An error occurred in processing","message":"all providers exhausted"}` + "\n\n"

	ts := sseServer(t, body)
	defer ts.Close()

	c := New(ts.URL, "alice")
	var errEvent *stream.ErrorPayload
	err := c.Ask(context.Background(), "Why?", func(ev Event) error {
		if ev.Type == stream.EventError {
			errEvent = ev.Err
		}
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, errEvent)
	assert.Equal(t, "all providers exhausted", errEvent.Message)
}

func TestAskHandlerStop(t *testing.T) {
	body := "event: answer\n" +
		`data: {"content":"first"}` + "\n\n" +
		"event: complete\n" +
		`data: {"from_websearch":false,"processing_time":0.1}` + "\n\n"

	ts := sseServer(t, body)
	defer ts.Close()

	c := New(ts.URL, "alice")
	seen := 0
	err := c.Ask(context.Background(), "Why?", func(ev Event) error {
		seen++
		return ErrHandlerStop
	})
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
}

func TestAskSkipsUnknownEventTypes(t *testing.T) {
	body := "event: heartbeat\n" +
		`data: {"n":1}` + "\n\n" +
		"event: complete\n" +
		`data: {"from_websearch":true,"processing_time":2.5}` + "\n\n"

	ts := sseServer(t, body)
	defer ts.Close()

	c := New(ts.URL, "alice")
	var types []stream.EventType
	err := c.Ask(context.Background(), "Why?", func(ev Event) error {
		types = append(types, ev.Type)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []stream.EventType{stream.EventComplete}, types)
}

func TestAskSync(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"answer":"42","documents":[],"from_websearch":false,"processing_time":0.8,"query_id":"q-7"}`)
	}))
	defer ts.Close()

	c := New(ts.URL, "alice", WithToken("tok-1"))
	result, err := c.AskSync(context.Background(), "What is the answer?")
	require.NoError(t, err)
	assert.Equal(t, "42", result.Answer)
	require.NotNil(t, result.QueryID)
	assert.Equal(t, "q-7", *result.QueryID)
}

func TestAskSyncServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"Server is at capacity. Please try again later.","code":503}}`)
	}))
	defer ts.Close()

	c := New(ts.URL, "alice")
	_, err := c.AskSync(context.Background(), "Why?")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "at capacity")
}

func TestHistory(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/history/alice" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"queries":[{"id":"q-1","user_id":"alice","question":"Why?","status":"completed"}]}`)
	}))
	defer ts.Close()

	c := New(ts.URL, "alice")
	records, err := c.History(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "q-1", records[0].ID)
	assert.Equal(t, "completed", records[0].Status)
}

func TestServerHealth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok","version":"1.0.0","active":3,"queued":1}`)
	}))
	defer ts.Close()

	c := New(ts.URL, "alice")
	h, err := c.ServerHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, h.Active)
	assert.Equal(t, 1, h.Queued)
}

func TestReadEventsFinalFrameWithoutTrailingBlank(t *testing.T) {
	r := strings.NewReader("event: complete\n" + `data: {"from_websearch":false,"processing_time":0.5}`)
	var types []stream.EventType
	err := readEvents(r, func(ev Event) error {
		types = append(types, ev.Type)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []stream.EventType{stream.EventComplete}, types)
}
