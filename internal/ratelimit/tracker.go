// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ratelimit tracks per-model cool-down state after throttle signals.
//
// When the upstream API answers 429 for a model, that model is excluded from
// selection until a fixed cooldown window has elapsed. Entries are never
// swept by a background goroutine; expired entries are simply ignored on
// read (lazy expiry), which keeps the tracker allocation-free in steady
// state and bounded by pool size.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultCooldown is the cooldown window applied after a throttle signal.
const DefaultCooldown = 60 * time.Second

// Tracker records the last observed throttle signal per model.
// Safe for concurrent use; contention is low and bounded by pool size.
type Tracker struct {
	mu       sync.Mutex
	entries  map[string]time.Time
	cooldown time.Duration
}

// NewTracker creates a tracker with the given cooldown window.
// A non-positive cooldown falls back to DefaultCooldown.
func NewTracker(cooldown time.Duration) *Tracker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Tracker{
		entries:  make(map[string]time.Time),
		cooldown: cooldown,
	}
}

// Cooldown returns the configured cooldown window.
func (t *Tracker) Cooldown() time.Duration {
	return t.cooldown
}

// IsThrottled reports whether modelID is inside its cooldown window at now.
func (t *Tracker) IsThrottled(modelID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.entries[modelID]
	if !ok {
		return false
	}
	return now.Sub(last) < t.cooldown
}

// MarkThrottled records a throttle signal for modelID observed at now.
// Timestamps only move forward: an out-of-order write carrying an earlier
// timestamp than the stored one is ignored, so concurrent upserts can only
// extend the cooldown, never shorten it.
func (t *Tracker) MarkThrottled(modelID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.entries[modelID]; ok && now.Before(last) {
		return
	}
	t.entries[modelID] = now
}

// ThrottledCount returns how many models are inside their cooldown at now.
// Used for stats reporting only.
func (t *Tracker) ThrottledCount(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for _, last := range t.entries {
		if now.Sub(last) < t.cooldown {
			count++
		}
	}
	return count
}
