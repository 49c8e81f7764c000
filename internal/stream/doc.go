// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream provides the per-session status event channel between the
// answer pipeline and the HTTP transport.
//
// The pipeline emits ordered lifecycle events (status, answer, documents,
// complete, error); the transport drains them with Next and forwards each
// one as a server-sent event. Emit never blocks the pipeline, and a stream
// carries exactly one terminal event after which nothing else is delivered.
// Close handles the client-disconnect path: pending events are discarded
// and later emits become no-ops.
package stream
