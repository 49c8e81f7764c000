// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists query history in a local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/sciquery/internal/rag"
)

// Query lifecycle states as stored in the status column.
const (
	QueryPending   = "pending"
	QueryCompleted = "completed"
	QueryFailed    = "failed"
)

// ErrNotFound indicates the query id does not exist.
var ErrNotFound = errors.New("query not found")

const schema = `
CREATE TABLE IF NOT EXISTS queries (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	question      TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	answer        TEXT,
	error_message TEXT,
	created_at    TEXT NOT NULL,
	updated_at    TEXT
);
CREATE INDEX IF NOT EXISTS idx_queries_user_created ON queries(user_id, created_at DESC);
`

// storedAnswer is the JSON blob kept in the answer column.
type storedAnswer struct {
	Answer         string         `json:"answer"`
	Documents      []rag.Document `json:"documents"`
	FromWebSearch  bool           `json:"from_websearch"`
	ProcessingTime float64        `json:"processing_time"`
}

// QueryRecord is one row of a user's query history.
type QueryRecord struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Question       string         `json:"question"`
	Answer         string         `json:"answer,omitempty"`
	Status         string         `json:"status"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at,omitempty"`
	Documents      []rag.Document `json:"documents"`
	FromWebSearch  bool           `json:"from_websearch"`
	ProcessingTime float64        `json:"processing_time"`
}

// Store is the query history database.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the history database at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveQuery inserts a pending query and returns its generated id.
func (s *Store) SaveQuery(ctx context.Context, userID, question string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queries (id, user_id, question, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, userID, question, QueryPending, now)
	if err != nil {
		return "", fmt.Errorf("failed to save query: %w", err)
	}

	log.Printf("QUERY_SAVED | id=%s user=%s", id, userID)
	return id, nil
}

// UpdateQuery sets the status and, when present, the answer or error message
// of a stored query.
func (s *Store) UpdateQuery(ctx context.Context, queryID, status string, answer *rag.Answer, errorMessage string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	var answerJSON sql.NullString
	if answer != nil {
		blob, err := json.Marshal(storedAnswer{
			Answer:         answer.Text,
			Documents:      answer.Documents,
			FromWebSearch:  answer.FromWebSearch,
			ProcessingTime: answer.ProcessingTime,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		answerJSON = sql.NullString{String: string(blob), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE queries
		 SET status = ?, updated_at = ?,
		     answer = COALESCE(?, answer),
		     error_message = COALESCE(NULLIF(?, ''), error_message)
		 WHERE id = ?`,
		status, now, answerJSON, errorMessage, queryID)
	if err != nil {
		return fmt.Errorf("failed to update query: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, queryID)
	}

	log.Printf("QUERY_UPDATED | id=%s status=%s", queryID, status)
	return nil
}

// UserQueries returns all queries for a user, newest first, with the stored
// answer blob unpacked into its parts.
func (s *Store) UserQueries(ctx context.Context, userID string) ([]QueryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, question, status, answer, error_message, created_at, updated_at
		 FROM queries WHERE user_id = ? ORDER BY created_at DESC, id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []QueryRecord
	for rows.Next() {
		var rec QueryRecord
		var answer, errMsg, updatedAt sql.NullString
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Question, &rec.Status,
			&answer, &errMsg, &rec.CreatedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec.ErrorMessage = errMsg.String
		rec.UpdatedAt = updatedAt.String
		rec.Documents = []rag.Document{}

		if answer.Valid && answer.String != "" {
			var stored storedAnswer
			if err := json.Unmarshal([]byte(answer.String), &stored); err == nil {
				rec.Answer = stored.Answer
				if stored.Documents != nil {
					rec.Documents = stored.Documents
				}
				rec.FromWebSearch = stored.FromWebSearch
				rec.ProcessingTime = stored.ProcessingTime
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
