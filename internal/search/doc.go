// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search provides the web search fallback over three metered
// providers: Tavily, SERP API, and Serper's Google Scholar endpoint.
//
// Each provider has a quota (monthly for Tavily and SERP, lifetime for
// Serper) tracked in a JSON counter file that survives restarts. The
// manager rotates across providers, skipping any that are out of quota,
// missing a key, or currently failing, and returns an empty result rather
// than an error when all of them are unavailable.
package search
