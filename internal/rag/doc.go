// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package rag implements the retrieval-augmented answer pipeline.
//
// A question flows through validation, vector-store retrieval, reranking,
// answer generation, and two quality grades (groundedness and relevance).
// When the database path cannot produce a verified answer the pipeline falls
// back to web search and repeats rerank/generate/grade over the web results;
// if that also fails, a fixed apology answer is returned so every request
// ends in a terminal response.
package rag
