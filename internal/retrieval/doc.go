// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package retrieval is the vector store client. Queries are embedded with
// the OpenAI embeddings API and matched against the paper corpus through a
// Supabase match_documents RPC call.
package retrieval
