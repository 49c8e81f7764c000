// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/sciquery/internal/admission"
	"github.com/jeranaias/sciquery/internal/rag"
	"github.com/jeranaias/sciquery/internal/session"
	"github.com/jeranaias/sciquery/internal/storage"
	"github.com/jeranaias/sciquery/internal/stream"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPort is the default port for the HTTP server.
	DefaultPort = 8000

	// MinQuestionLength is the minimum accepted question length.
	MinQuestionLength = 3

	// MaxQuestionLength is the maximum accepted question length.
	MaxQuestionLength = 1000

	// MaxRequestBodySize caps the request body (64KB).
	MaxRequestBodySize = 64 * 1024

	// PingInterval is how often an idle SSE connection gets a keep-alive
	// comment.
	PingInterval = 15 * time.Second

	// Version is the server version.
	Version = "1.0.0"
)

// ============================================================================
// SERVER STATS
// ============================================================================

// ServerStats tracks request counters since startup.
type ServerStats struct {
	mu            sync.Mutex
	totalRequests int64
	completed     int64
	failed        int64
	rejected      int64
	startTime     time.Time
}

// NewServerStats creates a zeroed ServerStats.
func NewServerStats() *ServerStats {
	return &ServerStats{startTime: time.Now()}
}

func (s *ServerStats) recordRequest() {
	s.mu.Lock()
	s.totalRequests++
	s.mu.Unlock()
}

func (s *ServerStats) recordOutcome(state session.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch state {
	case session.StateCompleted:
		s.completed++
	case session.StateFailed:
		s.failed++
	}
}

func (s *ServerStats) recordRejected() {
	s.mu.Lock()
	s.rejected++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters.
func (s *ServerStats) Snapshot() (total, completed, failed, rejected int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalRequests, s.completed, s.failed, s.rejected
}

// Uptime returns how long the server has been running.
func (s *ServerStats) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// ============================================================================
// SERVER
// ============================================================================

// History reads a user's stored queries. *storage.Store satisfies this.
type History interface {
	UserQueries(ctx context.Context, userID string) ([]storage.QueryRecord, error)
}

// Server is the HTTP front end. Every question goes through the session
// coordinator, which owns admission, processing, and persistence.
type Server struct {
	port   int
	router *http.ServeMux
	server *http.Server

	coordinator *session.Coordinator
	admission   *admission.Controller
	history     History
	stats       *ServerStats
	auth        *AuthConfig
	cors        *CORSConfig
}

// NewServer creates a Server on the given port (0 means DefaultPort).
// history may be nil when persistence is disabled.
func NewServer(port int, coordinator *session.Coordinator, ac *admission.Controller, history History) *Server {
	if port == 0 {
		port = DefaultPort
	}

	s := &Server{
		port:        port,
		router:      http.NewServeMux(),
		coordinator: coordinator,
		admission:   ac,
		history:     history,
		stats:       NewServerStats(),
		auth:        DefaultAuthConfig(),
		cors:        DefaultCORSConfig(),
	}

	s.setupRoutes()
	return s
}

// WithAuth sets the authentication configuration.
func (s *Server) WithAuth(config *AuthConfig) *Server {
	s.auth = config
	return s
}

// WithCORS sets the CORS configuration.
func (s *Server) WithCORS(config *CORSConfig) *Server {
	s.cors = config
	return s
}

// Port returns the server port.
func (s *Server) Port() int {
	return s.port
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /{$}", s.handleRoot)
	s.router.HandleFunc("GET /ask", s.handleAsk)
	s.router.HandleFunc("POST /ask", s.handleAsk)
	s.router.HandleFunc("GET /history/{user_id}", s.handleHistory)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /stats", s.handleStats)
}

// Handler returns the full handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	handler := Chain(
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(log.Default()),
		RateLimitMiddleware(DefaultRateLimiter()),
		CORSMiddleware(s.cors),
	)(s.router)

	if s.auth != nil && s.auth.Enabled {
		handler = AuthMiddleware(s.auth)(handler)
	}
	return handler
}

// ============================================================================
// ASK HANDLER
// ============================================================================

// askRequest is the POST /ask body. Stream defaults to true.
type askRequest struct {
	Question string `json:"question"`
	UserID   string `json:"user_id"`
	Stream   *bool  `json:"stream,omitempty"`
}

// askResponse is the non-streaming answer payload.
type askResponse struct {
	Answer         string         `json:"answer"`
	Documents      []rag.Document `json:"documents"`
	FromWebSearch  bool           `json:"from_websearch"`
	ProcessingTime float64        `json:"processing_time"`
	QueryID        *string        `json:"query_id"`
}

// handleAsk handles GET and POST /ask. GET always streams; POST streams
// unless the body sets "stream": false.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	s.stats.recordRequest()

	var req askRequest
	streaming := true

	if r.Method == http.MethodGet {
		req.Question = r.URL.Query().Get("question")
		req.UserID = r.URL.Query().Get("user_id")
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("ASK_BAD_BODY | err=%v", err)
			s.writeError(w, http.StatusBadRequest, "Invalid request format")
			return
		}
		if req.Stream != nil {
			streaming = *req.Stream
		}
	}

	req.Question = strings.TrimSpace(req.Question)
	req.UserID = strings.TrimSpace(req.UserID)

	if req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if n := len(req.Question); n < MinQuestionLength || n > MaxQuestionLength {
		s.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("question must be between %d and %d characters", MinQuestionLength, MaxQuestionLength))
		return
	}

	sess := session.New(req.UserID, req.Question)
	if streaming {
		s.streamSession(w, r, sess)
	} else {
		s.syncSession(w, r, sess)
	}
}

// streamSession runs the session and relays its events as SSE until the
// terminal event or client disconnect.
func (s *Server) streamSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	go s.coordinator.Run(ctx, sess)

	for {
		// Bounded wait doubles as the keep-alive timer.
		evCtx, cancel := context.WithTimeout(ctx, PingInterval)
		ev, err := sess.Stream.Next(evCtx)
		cancel()

		if err != nil {
			if errors.Is(err, stream.ErrDone) {
				break
			}
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
				continue
			}
			// Client went away. Closing the stream lets the pipeline's
			// emits fall into the void while it winds down.
			log.Printf("SSE_DISCONNECT | id=%s", sess.ID)
			sess.Stream.Close()
			return
		}

		s.writeSSE(w, flusher, ev)
	}

	s.stats.recordOutcome(sess.State())
}

// syncSession answers a non-streaming request, failing fast when the server
// is at capacity.
func (s *Server) syncSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	answer, queryID, err := s.coordinator.RunSync(r.Context(), sess)
	if err != nil {
		if errors.Is(err, session.ErrAtCapacity) {
			s.stats.recordRejected()
			s.writeError(w, http.StatusServiceUnavailable, "Server is at capacity. Please try again later.")
			return
		}
		log.Printf("ASK_ERROR | id=%s err=%v", sess.ID, err)
		s.stats.recordOutcome(session.StateFailed)
		s.writeError(w, http.StatusInternalServerError, "An error occurred in processing")
		return
	}

	docs := answer.Documents
	if docs == nil {
		docs = []rag.Document{}
	}
	fromWeb := answer.FromWebSearch
	if answer.Invalid {
		fromWeb = false
	}
	var id *string
	if queryID != "" {
		id = &queryID
	}

	s.stats.recordOutcome(session.StateCompleted)
	s.writeJSON(w, http.StatusOK, askResponse{
		Answer:         answer.Text,
		Documents:      docs,
		FromWebSearch:  fromWeb,
		ProcessingTime: answer.ProcessingTime,
		QueryID:        id,
	})
}

// writeSSE writes one event in SSE framing.
func (s *Server) writeSSE(w http.ResponseWriter, flusher http.Flusher, ev stream.Event) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		log.Printf("SSE_MARSHAL_ERROR | type=%s err=%v", ev.Type, err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	flusher.Flush()
}

// ============================================================================
// HISTORY HANDLER
// ============================================================================

// historyResponse wraps a user's stored queries.
type historyResponse struct {
	Queries []storage.QueryRecord `json:"queries"`
}

// handleHistory handles GET /history/{user_id}.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.PathValue("user_id"))
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if s.history == nil {
		s.writeJSON(w, http.StatusOK, historyResponse{Queries: []storage.QueryRecord{}})
		return
	}

	records, err := s.history.UserQueries(r.Context(), userID)
	if err != nil {
		log.Printf("HISTORY_ERROR | user=%s err=%v", userID, err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	if records == nil {
		records = []storage.QueryRecord{}
	}

	s.writeJSON(w, http.StatusOK, historyResponse{Queries: records})
}

// ============================================================================
// HEALTH AND STATS HANDLERS
// ============================================================================

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Active  int    `json:"active_requests"`
	Queued  int    `json:"queued_requests"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Active:  s.admission.ActiveCount(),
		Queued:  s.admission.PendingCount(),
	})
}

// StatsResponse is the server statistics payload.
type StatsResponse struct {
	TotalRequests int64 `json:"total_requests"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	Rejected      int64 `json:"rejected"`
	Active        int   `json:"active_requests"`
	Queued        int   `json:"queued_requests"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total, completed, failed, rejected := s.stats.Snapshot()
	s.writeJSON(w, http.StatusOK, StatsResponse{
		TotalRequests: total,
		Completed:     completed,
		Failed:        failed,
		Rejected:      rejected,
		Active:        s.admission.ActiveCount(),
		Queued:        s.admission.PendingCount(),
		UptimeSeconds: int64(s.stats.Uptime().Seconds()),
	})
}

// handleRoot handles GET /.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"service": "sciquery",
		"version": Version,
		"endpoints": []string{
			"GET /ask", "POST /ask", "GET /history/{user_id}", "GET /health", "GET /stats",
		},
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	// WriteTimeout stays zero: SSE connections are long-lived.
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	log.Printf("SERVER_START | addr=%s version=%s", addr, Version)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | active=%d queued=%d", s.admission.ActiveCount(), s.admission.PendingCount())
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
