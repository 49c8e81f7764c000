// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the question-answering service over HTTP.
//
// Endpoints:
//   - GET  /ask               - Ask a question, answer streamed as SSE
//   - POST /ask               - Ask a question (SSE by default, JSON with "stream": false)
//   - GET  /history/{user_id} - Query history for a user
//   - GET  /health            - Health check
//   - GET  /stats             - Server statistics
//   - GET  /                  - Service info
//
// Streaming responses emit status, answer, document, and a single terminal
// complete or error event per request.
package server
