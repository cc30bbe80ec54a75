// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package battle implements the arena round engine: picking two
// distinct unthrottled models, dispatching their completion calls
// concurrently, and driving the per-interaction vote state machine.
//
// The package is organized around three collaborators:
//
//   - Selector draws the model pair for a round, excluding models
//     inside their rate-limit cooldown.
//   - Dispatcher fans out the two completion calls and normalizes
//     each side's outcome into a SideResult.
//   - Session serializes the prompt/result/vote lifecycle for one
//     user interaction and guarantees exactly one vote per round.
//
// Model identities stay concealed until a session reaches the voted
// state; only then are they revealed to the caller.
package battle
