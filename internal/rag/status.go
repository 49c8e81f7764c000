// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package rag

// Status is a human-readable processing stage label. The label text is what
// clients see in status events, so these strings are part of the API.
type Status string

// Processing stages in pipeline order.
const (
	StatusQueued          Status = "Request queued - waiting for available processing slot"
	StatusValidating      Status = "Validating your scientific question..."
	StatusInvalidQuestion Status = "Question validation failed - not a scientific question"
	StatusSearchingDB     Status = "Searching scientific database for relevant papers..."
	StatusSearchingWeb    Status = "Searching the web for scientific answers..."
	StatusAnalyzingPapers Status = "Analyzing scientific papers for relevance..."
	StatusReranking       Status = "Re-ranking results based on scientific relevance..."
	StatusPreparingAnswer Status = "Preparing comprehensive scientific answer..."
	StatusCheckingAnswer  Status = "Verifying answer accuracy and scientific validity..."
	StatusCompleted       Status = "Request completed successfully"
	StatusFailed          Status = "Request failed - an error occurred"
)
