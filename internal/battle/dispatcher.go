// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package battle

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/promptarena/internal/cloud"
)

// CompletionCaller issues a single chat-completion call. Satisfied by
// *cloud.Client; tests substitute mocks with controlled latency.
type CompletionCaller interface {
	Chat(ctx context.Context, model, prompt string) (*cloud.Completion, error)
}

// Dispatcher fans out the two completion calls for a round and
// aggregates their outcomes. Timeouts and retries live inside the
// client; the dispatcher only classifies what comes back.
type Dispatcher struct {
	client CompletionCaller
}

// NewDispatcher creates a dispatcher over the given completion caller.
func NewDispatcher(client CompletionCaller) *Dispatcher {
	return &Dispatcher{client: client}
}

// Dispatch runs both sides concurrently and waits for both to resolve.
// Neither side's failure or delay drops or delays the other side's
// result; the combined RoundResult is returned only once both sides
// have settled.
func (d *Dispatcher) Dispatch(ctx context.Context, req RoundRequest) RoundResult {
	result := RoundResult{Request: req}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		result.SideA = d.callSide(ctx, req.ModelA, req.Prompt)
	}()
	go func() {
		defer wg.Done()
		result.SideB = d.callSide(ctx, req.ModelB, req.Prompt)
	}()

	wg.Wait()
	return result
}

// callSide runs one model's completion call and normalizes the outcome.
func (d *Dispatcher) callSide(ctx context.Context, modelID, prompt string) SideResult {
	start := time.Now()
	completion, err := d.client.Chat(ctx, modelID, prompt)
	if err != nil {
		kind := classifyFailure(err)
		log.Printf("ROUND_SIDE_FAILED | model=%s kind=%s elapsed=%v err=%v",
			modelID, kind, time.Since(start), err)
		return SideResult{
			Failure: kind,
			Err:     err,
			Latency: time.Since(start),
		}
	}

	return SideResult{
		OK:               true,
		Text:             completion.Text,
		Latency:          completion.Latency,
		CompletionTokens: completion.CompletionTokens,
	}
}

// classifyFailure maps a completion error onto a per-side failure kind.
func classifyFailure(err error) FailureKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, cloud.ErrRateLimited):
		return FailureThrottled
	case errors.Is(err, cloud.ErrInvalidResponse):
		return FailureInvalidResponse
	}

	var apiErr *cloud.APIError
	if errors.As(err, &apiErr) {
		return FailureAPIError
	}
	if errors.Is(err, cloud.ErrAuthFailed) || errors.Is(err, cloud.ErrModelNotFound) ||
		errors.Is(err, cloud.ErrNotConfigured) {
		return FailureAPIError
	}

	// Anything else is a transport-level problem.
	return FailureNetworkError
}
