// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestTracker_CooldownWindow(t *testing.T) {
	tr := NewTracker(60 * time.Second)
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if tr.IsThrottled("mistral:latest", t0) {
		t.Error("model should not be throttled before any signal")
	}

	tr.MarkThrottled("mistral:latest", t0)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"immediately after signal", t0, true},
		{"inside window", t0.Add(30 * time.Second), true},
		{"one second before expiry", t0.Add(59 * time.Second), true},
		{"exactly at expiry", t0.Add(60 * time.Second), false},
		{"after expiry", t0.Add(61 * time.Second), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tr.IsThrottled("mistral:latest", tc.at); got != tc.want {
				t.Errorf("IsThrottled at %v = %v, want %v", tc.at.Sub(t0), got, tc.want)
			}
		})
	}
}

func TestTracker_MonotonicTimestamps(t *testing.T) {
	tr := NewTracker(60 * time.Second)
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tr.MarkThrottled("phi4:latest", t0.Add(10*time.Second))
	// Out-of-order write with an earlier timestamp must be ignored.
	tr.MarkThrottled("phi4:latest", t0)

	if !tr.IsThrottled("phi4:latest", t0.Add(65*time.Second)) {
		t.Error("earlier out-of-order write shortened the cooldown")
	}
	if tr.IsThrottled("phi4:latest", t0.Add(71*time.Second)) {
		t.Error("cooldown should expire 60s after the latest signal")
	}
}

func TestTracker_IndependentModels(t *testing.T) {
	tr := NewTracker(60 * time.Second)
	now := time.Now()

	tr.MarkThrottled("mistral:latest", now)

	if tr.IsThrottled("phi4:latest", now) {
		t.Error("throttling one model must not affect another")
	}
	if got := tr.ThrottledCount(now); got != 1 {
		t.Errorf("ThrottledCount = %d, want 1", got)
	}
}

func TestTracker_ConcurrentUpserts(t *testing.T) {
	tr := NewTracker(60 * time.Second)
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tr.MarkThrottled("mistral:latest", now.Add(time.Duration(n)*time.Millisecond))
		}(i)
	}
	wg.Wait()

	// Last-writer-wins under the monotonic policy: the latest timestamp
	// among all writers must be the one retained.
	if !tr.IsThrottled("mistral:latest", now.Add(49*time.Millisecond+59*time.Second)) {
		t.Error("expected cooldown to extend to the latest concurrent signal")
	}
}

func TestNewTracker_DefaultCooldown(t *testing.T) {
	tr := NewTracker(0)
	if tr.Cooldown() != DefaultCooldown {
		t.Errorf("Cooldown = %v, want %v", tr.Cooldown(), DefaultCooldown)
	}
}
