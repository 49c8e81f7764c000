// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package rag

// Document is a single piece of supporting evidence, either a paper from the
// vector store or a web search result.
type Document struct {
	ID           string     `json:"id,omitempty"`
	Title        string     `json:"title"`
	URL          string     `json:"url"`
	Content      string     `json:"content"`
	Similarity   float64    `json:"similarity"`
	Provider     string     `json:"provider"` // "database" or the search provider name
	Date         string     `json:"date,omitempty"`
	JournalRef   string     `json:"journal_ref,omitempty"`
	JournalTitle string     `json:"journal_title,omitempty"`
	Authors      [][]string `json:"authors,omitempty"`
}

// Answer is the final pipeline result.
type Answer struct {
	Text           string
	Documents      []Document
	FromWebSearch  bool
	Invalid        bool // question rejected as non-scientific
	ProcessingTime float64
}

// Persistable reports whether the answer should be stored in query history.
// Rejected questions and fallback apologies carry no documents and are not
// kept.
func (a *Answer) Persistable() bool {
	return !a.Invalid && len(a.Documents) > 0
}
