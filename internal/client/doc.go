// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client is the HTTP client for a sciquery server.
//
// It speaks both transport modes the server offers: Server-Sent Events
// for streaming (Ask) and plain JSON for one-shot requests (AskSync).
// The SSE reader tolerates keep-alive comment frames and unknown event
// types so that older clients keep working against newer servers.
package client
