// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package admission bounds concurrent query processing.
//
// The Controller holds one shared active set and one FIFO pending queue
// behind a single mutex. Sessions call Admit when a request arrives, poll
// PositionOf while queued, and call Release on every exit path. Release
// promotes the queue head when a slot frees up and hands the promoted id
// back to the caller, which is responsible for waking that session.
//
// The controller never fails; a caller that is not yet admitted simply
// observes its queue position until one of the active sessions finishes.
package admission
