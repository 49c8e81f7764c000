// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session ties a single question's lifecycle together: admission
// (or queueing) for a processing slot, running the answer pipeline, emitting
// events on the session's stream, and persisting completed answers.
//
// The coordinator guarantees a terminal outcome on every path: a complete
// or error event when the pipeline finishes, or a released slot and a
// cancelled state when the client disconnects first. Persistence happens
// before the complete event so the query_id handed to the client is always
// durable.
package session
