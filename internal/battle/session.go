// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package battle

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jeranaias/promptarena/internal/votes"
)

// State is the session lifecycle position.
type State string

// Session states. Voted is terminal for a given prompt; a genuinely
// new prompt starts a fresh round within the same session object.
const (
	StateIdle         State = "idle"
	StateDispatching  State = "dispatching"
	StateAwaitingVote State = "awaiting_vote"
	StateVoted        State = "voted"
)

// DefaultMaxPromptLength caps prompt size when no limit is configured.
const DefaultMaxPromptLength = 2000

// voteStoreTimeout bounds the fire-and-forget insert so a hung store
// cannot leak goroutines forever.
const voteStoreTimeout = 30 * time.Second

// Session serializes the prompt/result/vote lifecycle for one user
// interaction. All transitions hold the session mutex; the vote store
// insert is issued after the lock is released so persistence latency
// never blocks the user.
type Session struct {
	id        string
	store     votes.Store
	maxPrompt int

	mu         sync.Mutex
	state      State
	seq        uint64
	req        RoundRequest
	result     RoundResult
	promptHash string
	choice     Choice
	votedAt    time.Time

	pending sync.WaitGroup
}

// NewSession creates a session keyed by id. maxPromptLength of zero or
// less falls back to DefaultMaxPromptLength. The store may not be nil.
func NewSession(id string, store votes.Store, maxPromptLength int) *Session {
	if maxPromptLength <= 0 {
		maxPromptLength = DefaultMaxPromptLength
	}
	return &Session{
		id:        id,
		store:     store,
		maxPrompt: maxPromptLength,
		state:     StateIdle,
	}
}

// ID returns the session token.
func (s *Session) ID() string { return s.id }

// logID is the truncated session id used in log lines.
//
// SECURITY: The id doubles as the caller's session token and never
// appears in full in logs.
func (s *Session) logID() string {
	if len(s.id) <= 8 {
		return s.id
	}
	return s.id[:8]
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Seq returns the current round sequence number. Results delivered
// with an older sequence are dropped.
func (s *Session) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// SubmitPrompt begins a round for the given prompt and model pair.
//
// An empty or over-length prompt is rejected with a ValidationError
// and the session is left untouched. A prompt whose content hash
// matches the active round is treated as the same round: the current
// sequence and request are returned with resumed=true and dispatch
// must NOT be restarted. A genuinely new prompt resets the session and
// bumps the sequence, so any in-flight result for the old round will
// be discarded on arrival.
//
// The returned sequence must be echoed back via ResultsReady.
func (s *Session) SubmitPrompt(prompt, modelA, modelB string, now time.Time) (seq uint64, req RoundRequest, resumed bool, err error) {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return 0, RoundRequest{}, false, &ValidationError{Reason: "prompt is empty"}
	}
	if n := utf8.RuneCountInString(prompt); n > s.maxPrompt {
		return 0, RoundRequest{}, false, &ValidationError{
			Reason: fmt.Sprintf("prompt is %d characters, limit is %d", n, s.maxPrompt),
		}
	}

	hash := HashPrompt(prompt)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Same prompt, round still live: no restart.
	if hash == s.promptHash && (s.state == StateDispatching || s.state == StateAwaitingVote) {
		return s.seq, s.req, true, nil
	}

	s.seq++
	s.promptHash = hash
	s.state = StateDispatching
	s.result = RoundResult{}
	s.choice = ""
	s.req = RoundRequest{
		ID:        NewRoundID(prompt, now),
		Prompt:    prompt,
		ModelA:    modelA,
		ModelB:    modelB,
		CreatedAt: now,
	}
	return s.seq, s.req, false, nil
}

// ResultsReady delivers a completed round. Results carrying a stale
// sequence number belong to an abandoned round and are dropped
// silently; the state check alone is not sufficient because a new
// round may already be dispatching.
func (s *Session) ResultsReady(seq uint64, result RoundResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.seq {
		log.Printf("STALE_RESULT_DROPPED | session=%s got_seq=%d want_seq=%d", s.logID(), seq, s.seq)
		return
	}
	if s.state != StateDispatching {
		log.Printf("STALE_RESULT_DROPPED | session=%s state=%s", s.logID(), s.state)
		return
	}

	s.result = result
	s.state = StateAwaitingVote
}

// CastVote finalizes the round with the user's choice and reveals the
// model identities. The second call for the same round is a benign
// no-op returning ErrAlreadyVoted alongside the already-revealed ids.
//
// The vote record insert is issued in a goroutine after the session
// lock is released; a store failure is logged, never rolled back into
// session state.
func (s *Session) CastVote(choice Choice, now time.Time) (revealA, revealB string, err error) {
	switch choice {
	case ChoiceA, ChoiceB, ChoiceTie, ChoiceBothBad:
	default:
		return "", "", fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
	}

	s.mu.Lock()

	if s.state == StateVoted {
		a, b := s.req.ModelA, s.req.ModelB
		s.mu.Unlock()
		return a, b, ErrAlreadyVoted
	}
	if s.state != StateAwaitingVote {
		state := s.state
		s.mu.Unlock()
		return "", "", fmt.Errorf("%w: state=%s", ErrNotAwaitingVote, state)
	}

	s.state = StateVoted
	s.choice = choice
	s.votedAt = now

	rec := votes.Record{
		RoundID:    s.req.ID,
		Vote:       string(choice),
		ModelA:     s.req.ModelA,
		ModelB:     s.req.ModelB,
		PromptHash: s.promptHash,
		SessionID:  s.id,
		CreatedAt:  now,
	}
	revealA, revealB = s.req.ModelA, s.req.ModelB

	// Persistence must not hold the transition lock.
	s.pending.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), voteStoreTimeout)
		defer cancel()
		if err := s.store.Insert(ctx, rec); err != nil {
			// RELIABILITY: Voting UX is never blocked by persistence; the
			// failure is surfaced through the log for observability.
			log.Printf("VOTE_STORE_FAILED | session=%s round=%s err=%v", s.logID(), rec.RoundID, err)
		}
	}()

	return revealA, revealB, nil
}

// WaitPersisted blocks until any in-flight vote insert has finished.
// One-shot callers that exit right after voting use this instead of
// guessing at a sleep.
func (s *Session) WaitPersisted() {
	s.pending.Wait()
}

// RevealedModels returns the true model identities, available only
// once the round is voted.
func (s *Session) RevealedModels() (modelA, modelB string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateVoted {
		return "", "", false
	}
	return s.req.ModelA, s.req.ModelB, true
}

// Snapshot is a copy of the session's observable state for the
// presentation layer. Model identities are included only after voting.
type Snapshot struct {
	State   State
	Seq     uint64
	RoundID string
	SideA   SideResult
	SideB   SideResult
	Choice  Choice
	ModelA  string
	ModelB  string
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:   s.state,
		Seq:     s.seq,
		RoundID: s.req.ID,
		SideA:   s.result.SideA,
		SideB:   s.result.SideB,
		Choice:  s.choice,
	}
	if s.state == StateVoted {
		snap.ModelA = s.req.ModelA
		snap.ModelB = s.req.ModelB
	}
	return snap
}
