// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across sciquery.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file writing with fsync, used by the
//     search usage store and config persistence
//   - TruncateRunes: UTF-8 safe truncation for log lines and previews
//
// # Usage
//
//	// Truncate a question before logging it
//	log.Printf("QUERY | question=%s", util.TruncateRunes(question, 50))
//
//	// Persist a counter file without risking a torn write
//	err := util.AtomicWriteFile(path, data, 0644)
package util
