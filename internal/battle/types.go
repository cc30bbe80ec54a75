// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package battle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Error variables for the round engine.
var (
	// ErrInsufficientModels indicates fewer than two models are currently
	// eligible for selection. Not fatal; the caller retries shortly.
	ErrInsufficientModels = errors.New("fewer than two models available")

	// ErrAlreadyVoted indicates a vote was already cast for this round.
	// Benign; the second attempt is a no-op.
	ErrAlreadyVoted = errors.New("vote already cast for this round")

	// ErrNotAwaitingVote indicates a vote arrived before results were ready.
	ErrNotAwaitingVote = errors.New("round is not awaiting a vote")

	// ErrInvalidChoice indicates an unrecognized vote choice.
	ErrInvalidChoice = errors.New("invalid vote choice")
)

// ValidationError reports a rejected prompt. Recovered locally and
// surfaced as a user message; session state is untouched.
type ValidationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid prompt: %s", e.Reason)
}

// Choice is the user's verdict on a round.
type Choice string

// Valid vote choices.
const (
	ChoiceA       Choice = "A"
	ChoiceB       Choice = "B"
	ChoiceTie     Choice = "Tie"
	ChoiceBothBad Choice = "BothBad"
)

// ParseChoice normalizes a raw choice string. The legacy spelling
// "Both Bad" is accepted for compatibility with older vote payloads.
func ParseChoice(raw string) (Choice, error) {
	switch raw {
	case "A":
		return ChoiceA, nil
	case "B":
		return ChoiceB, nil
	case "Tie":
		return ChoiceTie, nil
	case "BothBad", "Both Bad":
		return ChoiceBothBad, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidChoice, raw)
	}
}

// FailureKind classifies a per-side completion failure.
type FailureKind string

// Failure kinds for a side's completion call.
const (
	FailureTimeout         FailureKind = "timeout"
	FailureThrottled       FailureKind = "throttled"
	FailureInvalidResponse FailureKind = "invalid_response"
	FailureNetworkError    FailureKind = "network_error"
	FailureAPIError        FailureKind = "api_error"
)

// SideResult is the outcome of one model's completion call. Exactly
// one of (Text non-empty + OK) or Failure is meaningful.
type SideResult struct {
	OK               bool
	Text             string
	Latency          time.Duration
	CompletionTokens int
	Failure          FailureKind
	Err              error
}

// RoundRequest describes a round at creation time. Immutable once
// built; ModelA and ModelB are always distinct.
type RoundRequest struct {
	ID        string
	Prompt    string
	ModelA    string
	ModelB    string
	CreatedAt time.Time
}

// RoundResult aggregates both sides' outcomes for a round.
type RoundResult struct {
	Request RoundRequest
	SideA   SideResult
	SideB   SideResult
}

// HashPrompt returns the hex SHA-256 of the prompt text. Used both
// for new-prompt detection and as the stored prompt reference, so the
// raw text never reaches the vote store.
func HashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// NewRoundID derives a round identifier from the prompt hash and the
// creation time.
func NewRoundID(prompt string, at time.Time) string {
	return fmt.Sprintf("%s-%d", HashPrompt(prompt)[:12], at.UnixNano())
}
