// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package battle

import (
	"math/rand"
	"time"

	"github.com/jeranaias/promptarena/internal/model"
	"github.com/jeranaias/promptarena/internal/ratelimit"
)

// Selector draws the two models for a round from the registry,
// excluding models inside their rate-limit cooldown.
//
// Selection is pure with respect to the injected random source, so
// tests can seed it for deterministic pairings.
type Selector struct {
	registry *model.Registry
	tracker  *ratelimit.Tracker
	rng      *rand.Rand
}

// NewSelector creates a selector over the given registry and tracker.
// A nil rng falls back to a time-seeded source.
func NewSelector(registry *model.Registry, tracker *ratelimit.Tracker, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Selector{
		registry: registry,
		tracker:  tracker,
		rng:      rng,
	}
}

// Select returns two distinct model ids eligible at the given time,
// drawn uniformly without replacement. The A/B slot assignment is
// itself random so position carries no information about identity.
//
// Returns ErrInsufficientModels when fewer than two models are
// currently outside their cooldown.
func (s *Selector) Select(now time.Time) (idA, idB string, err error) {
	eligible := s.Eligible(now)
	if len(eligible) < 2 {
		return "", "", ErrInsufficientModels
	}

	// Draw without replacement. Shuffling the snapshot randomizes both
	// the pair and the slot assignment in one step.
	s.rng.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})

	return eligible[0], eligible[1], nil
}

// Eligible returns a snapshot of model ids not currently throttled.
func (s *Selector) Eligible(now time.Time) []string {
	ids := s.registry.IDs()
	eligible := make([]string, 0, len(ids))
	for _, id := range ids {
		if !s.tracker.IsThrottled(id, now) {
			eligible = append(eligible, id)
		}
	}
	return eligible
}
