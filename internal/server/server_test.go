// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/sciquery/internal/admission"
	"github.com/jeranaias/sciquery/internal/rag"
	"github.com/jeranaias/sciquery/internal/session"
	"github.com/jeranaias/sciquery/internal/storage"
)

type fakeProcessor struct {
	answer *rag.Answer
	err    error
	block  chan struct{}
}

func (p *fakeProcessor) Process(ctx context.Context, question string, emit rag.StatusFunc) (*rag.Answer, error) {
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
	records []storage.QueryRecord
	err     error
}

func (s *fakeStore) SaveQuery(ctx context.Context, userID, question string) (string, error) {
	return "query-1", nil
}

func (s *fakeStore) UpdateQuery(ctx context.Context, queryID, status string, answer *rag.Answer, errorMessage string) error {
	return nil
}

func (s *fakeStore) UserQueries(ctx context.Context, userID string) ([]storage.QueryRecord, error) {
	return s.records, s.err
}

func validAnswer() *rag.Answer {
	return &rag.Answer{
		Text: "The answer.\n\nSources:\n- Paper",
		Documents: []rag.Document{
			{Title: "Paper", Content: "evidence", Similarity: 0.9, Provider: "database"},
		},
		ProcessingTime: 1.2,
	}
}

func newTestServer(t *testing.T, proc session.Processor, store *fakeStore, maxConcurrent int) (*Server, *httptest.Server) {
	t.Helper()

	ac := admission.NewController(maxConcurrent)
	var hist session.HistoryStore
	var reader History
	if store != nil {
		hist = store
		reader = store
	}
	coord := session.NewCoordinator(ac, proc, hist)

	srv := NewServer(0, coord, ac, reader)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postAsk(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/ask", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /ask failed: %v", err)
	}
	return resp
}

// waitForActive polls /health until the active request count is reached.
func waitForActive(t *testing.T, ts *httptest.Server, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatalf("GET /health failed: %v", err)
		}
		var h HealthResponse
		err = json.NewDecoder(resp.Body).Decode(&h)
		resp.Body.Close()
		if err == nil && h.Active >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("never reached %d active requests", want)
}

func TestAskValidation(t *testing.T) {
	_, ts := newTestServer(t, &fakeProcessor{answer: validAnswer()}, nil, 2)

	tests := []struct {
		name string
		body string
	}{
		{"missing user_id", `{"question": "What is dark matter?", "stream": false}`},
		{"question too short", `{"question": "ab", "user_id": "u", "stream": false}`},
		{"question too long", `{"question": "` + strings.Repeat("x", 1001) + `", "user_id": "u", "stream": false}`},
		{"malformed body", `{"question": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postAsk(t, ts, tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestAskNonStreaming(t *testing.T) {
	_, ts := newTestServer(t, &fakeProcessor{answer: validAnswer()}, &fakeStore{}, 2)

	resp := postAsk(t, ts, `{"question": "What is dark matter?", "user_id": "u", "stream": false}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got askResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !strings.HasPrefix(got.Answer, "The answer.") {
		t.Errorf("answer = %q", got.Answer)
	}
	if len(got.Documents) != 1 {
		t.Errorf("documents = %d, want 1", len(got.Documents))
	}
	if got.QueryID == nil || *got.QueryID != "query-1" {
		t.Errorf("query_id = %v, want query-1", got.QueryID)
	}
}

func TestAskNonStreamingAtCapacity(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	_, ts := newTestServer(t, &fakeProcessor{answer: validAnswer(), block: block}, nil, 1)

	// Occupy the only slot with a streaming request.
	started := make(chan struct{})
	go func() {
		close(started)
		resp, err := http.Get(ts.URL + "/ask?" + url.Values{
			"question": {"slow question"},
			"user_id":  {"u"},
		}.Encode())
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}()
	<-started

	// Wait for the streaming request to claim the slot.
	waitForActive(t, ts, 1)

	resp := postAsk(t, ts, `{"question": "another question", "user_id": "u", "stream": false}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestAskStreamingSSE(t *testing.T) {
	_, ts := newTestServer(t, &fakeProcessor{answer: validAnswer()}, &fakeStore{}, 2)

	resp, err := http.Get(ts.URL + "/ask?" + url.Values{
		"question": {"What is dark matter?"},
		"user_id":  {"u"},
	}.Encode())
	if err != nil {
		t.Fatalf("GET /ask failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	text := string(body)

	for _, want := range []string{"event: status", "event: answer", "event: document", "event: complete"} {
		if !strings.Contains(text, want) {
			t.Errorf("body missing %q:\n%s", want, text)
		}
	}
	if !strings.Contains(text, `"query_id":"query-1"`) {
		t.Errorf("complete event missing query_id:\n%s", text)
	}

	// The terminal event is the last frame.
	frames := strings.Split(strings.TrimSpace(text), "\n\n")
	if last := frames[len(frames)-1]; !strings.HasPrefix(last, "event: complete") {
		t.Errorf("last frame = %q, want complete", last)
	}
}

func TestAskStreamingError(t *testing.T) {
	_, ts := newTestServer(t, &fakeProcessor{err: errors.New("all providers exhausted")}, nil, 2)

	resp, err := http.Get(ts.URL + "/ask?" + url.Values{
		"question": {"What is dark matter?"},
		"user_id":  {"u"},
	}.Encode())
	if err != nil {
		t.Fatalf("GET /ask failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "event: error") {
		t.Errorf("body missing error event:\n%s", body)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	store := &fakeStore{records: []storage.QueryRecord{
		{ID: "q1", UserID: "alice", Question: "first", Status: storage.QueryCompleted, Documents: []rag.Document{}},
	}}
	_, ts := newTestServer(t, &fakeProcessor{answer: validAnswer()}, store, 2)

	resp, err := http.Get(ts.URL + "/history/alice")
	if err != nil {
		t.Fatalf("GET /history failed: %v", err)
	}
	defer resp.Body.Close()

	var got historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(got.Queries) != 1 || got.Queries[0].ID != "q1" {
		t.Errorf("queries = %+v", got.Queries)
	}
}

func TestHistoryWithoutStore(t *testing.T) {
	_, ts := newTestServer(t, &fakeProcessor{answer: validAnswer()}, nil, 2)

	resp, err := http.Get(ts.URL + "/history/alice")
	if err != nil {
		t.Fatalf("GET /history failed: %v", err)
	}
	defer resp.Body.Close()

	var got historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Queries == nil || len(got.Queries) != 0 {
		t.Errorf("queries = %+v, want empty list", got.Queries)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t, &fakeProcessor{answer: validAnswer()}, nil, 2)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var got HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Status != "ok" || got.Version != Version {
		t.Errorf("health = %+v", got)
	}
}

func TestStatsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, &fakeProcessor{answer: validAnswer()}, &fakeStore{}, 2)

	resp := postAsk(t, ts, `{"question": "What is dark matter?", "user_id": "u", "stream": false}`)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	statsResp, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats failed: %v", err)
	}
	defer statsResp.Body.Close()

	var got StatsResponse
	if err := json.NewDecoder(statsResp.Body).Decode(&got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.TotalRequests < 1 || got.Completed < 1 {
		t.Errorf("stats = %+v", got)
	}
}

func TestAuthMiddleware(t *testing.T) {
	auth := &AuthConfig{Enabled: true, BearerToken: "secret-token"}
	handler := AuthMiddleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer secret-token", http.StatusOK},
		{"wrong token", "Bearer wrong", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/health", nil)
			r.RemoteAddr = "127.0.0.1:12345"
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestValidateBearerToken(t *testing.T) {
	if ValidateBearerToken("", "") {
		t.Error("empty tokens validated")
	}
	if ValidateBearerToken("a", "") {
		t.Error("empty expected token validated")
	}
	if !ValidateBearerToken("tok", "tok") {
		t.Error("matching tokens rejected")
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"direct connection", "203.0.113.5:443", "", "203.0.113.5"},
		{"spoofed header from untrusted source", "203.0.113.5:443", "10.1.1.1", "203.0.113.5"},
		{"forwarded through trusted proxy", "127.0.0.1:9000", "203.0.113.7, 10.0.0.1", "203.0.113.7"},
		{"invalid forwarded value", "127.0.0.1:9000", "not-an-ip", "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("GetClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORSMiddleware(DefaultCORSConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodOptions, "/ask", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/ask", nil)
	r.Header.Set("Origin", "http://evil.example.com")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow-origin for disallowed origin = %q", got)
	}
}
