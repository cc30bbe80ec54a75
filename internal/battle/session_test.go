// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package battle

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/promptarena/internal/votes"
)

func newTestSession(store votes.Store) *Session {
	return NewSession("session-test", store, 2000)
}

func resultFor(req RoundRequest, textA, textB string) RoundResult {
	return RoundResult{
		Request: req,
		SideA:   SideResult{OK: true, Text: textA},
		SideB:   SideResult{OK: true, Text: textB},
	}
}

func waitForVotes(t *testing.T, store *votes.MemoryStore, want int) []votes.Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if recs := store.Records(); len(recs) >= want {
			return recs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d vote(s), have %d", want, len(store.Records()))
	return nil
}

func TestSubmitPrompt_Validation(t *testing.T) {
	s := newTestSession(votes.NewMemoryStore())
	now := time.Now()

	var verr *ValidationError

	_, _, _, err := s.SubmitPrompt("", "m1", "m2", now)
	require.ErrorAs(t, err, &verr)

	_, _, _, err = s.SubmitPrompt("   \n ", "m1", "m2", now)
	require.ErrorAs(t, err, &verr)

	_, _, _, err = s.SubmitPrompt(strings.Repeat("x", 2001), "m1", "m2", now)
	require.ErrorAs(t, err, &verr)

	// A rejected prompt leaves the session untouched.
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, uint64(0), s.Seq())
}

func TestSubmitPrompt_SamePromptDoesNotRestartRound(t *testing.T) {
	s := newTestSession(votes.NewMemoryStore())
	now := time.Now()

	seq1, req1, resumed, err := s.SubmitPrompt("hello", "m1", "m2", now)
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, StateDispatching, s.State())

	seq2, req2, resumed2, err := s.SubmitPrompt("hello", "m3", "m4", now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, resumed2, "identical prompt must resume the live round")

	assert.Equal(t, seq1, seq2)
	assert.Equal(t, req1.ID, req2.ID)
	// The live round keeps its original model pair.
	assert.Equal(t, "m1", req2.ModelA)
}

func TestStaleResultDropped(t *testing.T) {
	s := newTestSession(votes.NewMemoryStore())
	now := time.Now()

	oldSeq, oldReq, _, err := s.SubmitPrompt("first prompt", "m1", "m2", now)
	require.NoError(t, err)

	// New prompt arrives while the first round is still dispatching.
	newSeq, newReq, resumed, err := s.SubmitPrompt("second prompt", "m3", "m4", now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, resumed)
	require.NotEqual(t, oldSeq, newSeq)

	// The stale result lands afterwards and must vanish.
	s.ResultsReady(oldSeq, resultFor(oldReq, "stale A", "stale B"))
	assert.Equal(t, StateDispatching, s.State())

	s.ResultsReady(newSeq, resultFor(newReq, "fresh A", "fresh B"))
	assert.Equal(t, StateAwaitingVote, s.State())

	snap := s.Snapshot()
	assert.Equal(t, "fresh A", snap.SideA.Text)
	assert.Equal(t, "fresh B", snap.SideB.Text)
}

func TestCastVote_SecondCallIsNoOp(t *testing.T) {
	store := votes.NewMemoryStore()
	s := newTestSession(store)
	now := time.Now()

	seq, req, _, err := s.SubmitPrompt("pick one", "m1", "m2", now)
	require.NoError(t, err)
	s.ResultsReady(seq, resultFor(req, "left", "right"))

	a, b, err := s.CastVote(ChoiceA, now)
	require.NoError(t, err)
	assert.Equal(t, "m1", a)
	assert.Equal(t, "m2", b)

	recs := waitForVotes(t, store, 1)
	assert.Equal(t, "A", recs[0].Vote)

	// Second vote: benign no-op, state and stored vote unchanged.
	a2, b2, err := s.CastVote(ChoiceB, now.Add(time.Second))
	assert.ErrorIs(t, err, ErrAlreadyVoted)
	assert.Equal(t, "m1", a2)
	assert.Equal(t, "m2", b2)
	assert.Equal(t, StateVoted, s.State())

	time.Sleep(50 * time.Millisecond)
	recs = store.Records()
	require.Len(t, recs, 1, "second vote must not insert a record")
	assert.Equal(t, "A", recs[0].Vote)
}

func TestCastVote_Guards(t *testing.T) {
	s := newTestSession(votes.NewMemoryStore())
	now := time.Now()

	// Voting before any prompt.
	_, _, err := s.CastVote(ChoiceA, now)
	assert.ErrorIs(t, err, ErrNotAwaitingVote)

	// Voting while still dispatching.
	_, _, _, err = s.SubmitPrompt("hello", "m1", "m2", now)
	require.NoError(t, err)
	_, _, err = s.CastVote(ChoiceA, now)
	assert.ErrorIs(t, err, ErrNotAwaitingVote)

	// Invalid choice.
	_, _, err = s.CastVote(Choice("Maybe"), now)
	assert.ErrorIs(t, err, ErrInvalidChoice)
}

func TestRevealedModels_OnlyAfterVote(t *testing.T) {
	s := newTestSession(votes.NewMemoryStore())
	now := time.Now()

	seq, req, _, err := s.SubmitPrompt("hello", "m1", "m2", now)
	require.NoError(t, err)

	_, _, ok := s.RevealedModels()
	assert.False(t, ok)

	s.ResultsReady(seq, resultFor(req, "x", "y"))
	_, _, ok = s.RevealedModels()
	assert.False(t, ok)

	snap := s.Snapshot()
	assert.Empty(t, snap.ModelA, "identity must stay concealed before voting")

	_, _, err = s.CastVote(ChoiceTie, now)
	require.NoError(t, err)

	a, b, ok := s.RevealedModels()
	assert.True(t, ok)
	assert.Equal(t, "m1", a)
	assert.Equal(t, "m2", b)
}

func TestEndToEnd_TieVote(t *testing.T) {
	store := votes.NewMemoryStore()
	s := newTestSession(store)
	now := time.Now()

	seq, req, _, err := s.SubmitPrompt("Hello", "M1", "M3", now)
	require.NoError(t, err)

	s.ResultsReady(seq, resultFor(req, "Hi there", "Hello!"))
	require.Equal(t, StateAwaitingVote, s.State())

	a, b, err := s.CastVote(ChoiceTie, now)
	require.NoError(t, err)
	assert.Equal(t, "M1", a)
	assert.Equal(t, "M3", b)

	recs := waitForVotes(t, store, 1)
	rec := recs[0]
	assert.Equal(t, "Tie", rec.Vote)
	assert.Equal(t, "M1", rec.ModelA)
	assert.Equal(t, "M3", rec.ModelB)
	assert.Equal(t, HashPrompt("Hello"), rec.PromptHash)
	assert.Equal(t, req.ID, rec.RoundID)
	assert.Equal(t, "session-test", rec.SessionID)
}

func TestEndToEnd_TimeoutSideStillVotable(t *testing.T) {
	store := votes.NewMemoryStore()
	s := newTestSession(store)
	now := time.Now()

	seq, req, _, err := s.SubmitPrompt("slow question", "mA", "mB", now)
	require.NoError(t, err)

	result := RoundResult{
		Request: req,
		SideA:   SideResult{Failure: FailureTimeout},
		SideB:   SideResult{OK: true, Text: "made it"},
	}
	s.ResultsReady(seq, result)

	// A failed side never blocks the vote.
	require.Equal(t, StateAwaitingVote, s.State())

	_, _, err = s.CastVote(ChoiceB, now)
	require.NoError(t, err)

	recs := waitForVotes(t, store, 1)
	assert.Equal(t, "B", recs[0].Vote)
}

// slowStore delays inserts to expose callers that race the
// fire-and-forget vote write.
type slowStore struct {
	*votes.MemoryStore
	delay time.Duration
}

func (s *slowStore) Insert(ctx context.Context, rec votes.Record) error {
	time.Sleep(s.delay)
	return s.MemoryStore.Insert(ctx, rec)
}

func TestWaitPersisted_BlocksUntilInsertLands(t *testing.T) {
	store := &slowStore{MemoryStore: votes.NewMemoryStore(), delay: 50 * time.Millisecond}
	s := NewSession("session-test", store, 2000)
	now := time.Now()

	seq, req, _, err := s.SubmitPrompt("hello", "m1", "m2", now)
	require.NoError(t, err)
	s.ResultsReady(seq, resultFor(req, "x", "y"))

	_, _, err = s.CastVote(ChoiceA, now)
	require.NoError(t, err)

	s.WaitPersisted()
	require.Len(t, store.Records(), 1, "insert must have landed once WaitPersisted returns")
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		raw     string
		want    Choice
		wantErr bool
	}{
		{"A", ChoiceA, false},
		{"B", ChoiceB, false},
		{"Tie", ChoiceTie, false},
		{"BothBad", ChoiceBothBad, false},
		{"Both Bad", ChoiceBothBad, false},
		{"a", "", true},
		{"", "", true},
		{"Neither", "", true},
	}

	for _, tt := range tests {
		got, err := ParseChoice(tt.raw)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidChoice, "raw=%q", tt.raw)
			continue
		}
		require.NoError(t, err, "raw=%q", tt.raw)
		assert.Equal(t, tt.want, got)
	}
}
