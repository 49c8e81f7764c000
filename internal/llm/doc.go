// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm routes chat completions across multiple upstream inference
// providers.
//
// Four OpenAI-compatible endpoints (Cerebras, Groq, Fireworks, SambaNova)
// serve equivalent Llama 3.3 70B models. The Router hands them out
// round-robin, putting a provider into a 30 minute cooldown when it fails
// and preferring the primary provider for latency-sensitive calls. The
// Completer adds race-based fallback on top: a slow first provider gets a
// second one raced against it, and the first usable answer wins.
package llm
