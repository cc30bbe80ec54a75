// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package battle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/promptarena/internal/cloud"
)

// fakeCaller returns canned outcomes per model with optional latency.
type fakeCaller struct {
	outcomes map[string]fakeOutcome
}

type fakeOutcome struct {
	text    string
	err     error
	latency time.Duration
}

func (f *fakeCaller) Chat(ctx context.Context, model, prompt string) (*cloud.Completion, error) {
	out, ok := f.outcomes[model]
	if !ok {
		return nil, fmt.Errorf("unexpected model %q", model)
	}
	if out.latency > 0 {
		select {
		case <-time.After(out.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if out.err != nil {
		return nil, out.err
	}
	return &cloud.Completion{Text: out.text, Latency: out.latency}, nil
}

func testRound(modelA, modelB string) RoundRequest {
	now := time.Now()
	return RoundRequest{
		ID:        NewRoundID("hello", now),
		Prompt:    "hello",
		ModelA:    modelA,
		ModelB:    modelB,
		CreatedAt: now,
	}
}

func TestDispatch_BothSidesSucceed(t *testing.T) {
	caller := &fakeCaller{outcomes: map[string]fakeOutcome{
		"m1": {text: "Hi there"},
		"m2": {text: "Hello!"},
	}}
	d := NewDispatcher(caller)

	result := d.Dispatch(context.Background(), testRound("m1", "m2"))

	assert.True(t, result.SideA.OK)
	assert.Equal(t, "Hi there", result.SideA.Text)
	assert.True(t, result.SideB.OK)
	assert.Equal(t, "Hello!", result.SideB.Text)
}

func TestDispatch_WaitsForSlowerSide(t *testing.T) {
	// Side B resolves far later than side A; the combined result must
	// still include B's success.
	caller := &fakeCaller{outcomes: map[string]fakeOutcome{
		"fast": {text: "quick"},
		"slow": {text: "eventually", latency: 300 * time.Millisecond},
	}}
	d := NewDispatcher(caller)

	start := time.Now()
	result := d.Dispatch(context.Background(), testRound("fast", "slow"))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond,
		"dispatch returned before the slow side resolved")
	assert.True(t, result.SideA.OK)
	assert.True(t, result.SideB.OK)
	assert.Equal(t, "eventually", result.SideB.Text)
}

func TestDispatch_OneSideFailureDoesNotAffectOther(t *testing.T) {
	caller := &fakeCaller{outcomes: map[string]fakeOutcome{
		"good": {text: "fine"},
		"bad":  {err: fmt.Errorf("%w: empty completion content", cloud.ErrInvalidResponse)},
	}}
	d := NewDispatcher(caller)

	result := d.Dispatch(context.Background(), testRound("good", "bad"))

	assert.True(t, result.SideA.OK)
	assert.Equal(t, "fine", result.SideA.Text)
	assert.False(t, result.SideB.OK)
	assert.Equal(t, FailureInvalidResponse, result.SideB.Failure)
}

func TestDispatch_TimeoutSide(t *testing.T) {
	caller := &fakeCaller{outcomes: map[string]fakeOutcome{
		"hangs": {err: context.DeadlineExceeded},
		"ok":    {text: "done"},
	}}
	d := NewDispatcher(caller)

	result := d.Dispatch(context.Background(), testRound("hangs", "ok"))

	assert.False(t, result.SideA.OK)
	assert.Equal(t, FailureTimeout, result.SideA.Failure)
	assert.True(t, result.SideB.OK)
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"deadline", context.DeadlineExceeded, FailureTimeout},
		{"wrapped deadline", fmt.Errorf("attempt: %w", context.DeadlineExceeded), FailureTimeout},
		{"rate limited", fmt.Errorf("max retries exceeded: %w", cloud.ErrRateLimited), FailureThrottled},
		{"invalid response", cloud.ErrInvalidResponse, FailureInvalidResponse},
		{"api error", &cloud.APIError{Status: 503, Message: "overloaded"}, FailureAPIError},
		{"auth", cloud.ErrAuthFailed, FailureAPIError},
		{"model missing", cloud.ErrModelNotFound, FailureAPIError},
		{"network", errors.New("dial tcp: connection refused"), FailureNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyFailure(tt.err))
		})
	}
}
