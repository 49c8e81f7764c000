// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the sciquery command-line interface.
//
// The CLI is a thin client over the HTTP API: ask streams one question,
// chat runs an interactive REPL, history lists past queries. Output is
// TTY-aware. Markdown answers render through glamour on a terminal and
// fall back to plain text when piped.
package cli
