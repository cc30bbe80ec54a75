// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the arena HTTP API.
//
// Endpoints:
//   - POST /arena/rounds - submit a prompt, run a blind round
//   - POST /arena/votes  - cast the vote for a round, reveal identities
//   - GET  /arena/models - list the configured model pool
//   - GET  /health       - health check
//   - GET  /stats        - usage statistics
//
// Responses keep model identities concealed until the round is voted.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/promptarena/internal/battle"
	"github.com/jeranaias/promptarena/internal/model"
	"github.com/jeranaias/promptarena/internal/ratelimit"
	"github.com/jeranaias/promptarena/internal/votes"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPort is the default port for the HTTP server.
	DefaultPort = 8787

	// MaxRequestBodySize is the maximum size for request body to prevent DoS.
	MaxRequestBodySize = 64 * 1024

	// sessionIdleTimeout is how long a session survives without activity.
	sessionIdleTimeout = 30 * time.Minute

	// Version is the server version.
	Version = "0.1.0"
)

// ============================================================================
// SERVER STATS
// ============================================================================

// ArenaStats tracks server usage counters.
type ArenaStats struct {
	RoundsStarted   atomic.Int64
	RoundsCompleted atomic.Int64
	VotesCast       atomic.Int64
	StartTime       time.Time
}

// NewArenaStats creates zeroed stats anchored at the current time.
func NewArenaStats() *ArenaStats {
	return &ArenaStats{StartTime: time.Now()}
}

// Uptime returns the server uptime duration.
func (s *ArenaStats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// ============================================================================
// SERVER
// ============================================================================

// sessionEntry pairs a session with its last activity time for eviction.
type sessionEntry struct {
	session  *battle.Session
	lastSeen time.Time
}

// Server is the arena HTTP API server.
type Server struct {
	port   int
	router *http.ServeMux
	server *http.Server

	registry   *model.Registry
	tracker    *ratelimit.Tracker
	selector   *battle.Selector
	dispatcher *battle.Dispatcher
	store      votes.Store
	stats      *ArenaStats

	maxPromptLength int
	auth            *AuthConfig
	rateLimitRPM    int

	sessionsMu sync.Mutex
	sessions   map[string]*sessionEntry
}

// Options carries the collaborators the server orchestrates.
type Options struct {
	Port            int
	Registry        *model.Registry
	Tracker         *ratelimit.Tracker
	Selector        *battle.Selector
	Dispatcher      *battle.Dispatcher
	Store           votes.Store
	MaxPromptLength int
	BearerToken     string
	RateLimitRPM    int
}

// NewServer creates a new Server from the given options.
func NewServer(opts Options) *Server {
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}

	s := &Server{
		port:            port,
		router:          http.NewServeMux(),
		registry:        opts.Registry,
		tracker:         opts.Tracker,
		selector:        opts.Selector,
		dispatcher:      opts.Dispatcher,
		store:           opts.Store,
		stats:           NewArenaStats(),
		maxPromptLength: opts.MaxPromptLength,
		rateLimitRPM:    opts.RateLimitRPM,
		sessions:        make(map[string]*sessionEntry),
		auth: &AuthConfig{
			Enabled:     opts.BearerToken != "",
			BearerToken: opts.BearerToken,
		},
	}

	s.setupRoutes()
	return s
}

// Port returns the server port.
func (s *Server) Port() int {
	return s.port
}

// Handler returns the full middleware-wrapped handler. Exposed for
// tests driving the server through httptest.
func (s *Server) Handler() http.Handler {
	rpm := s.rateLimitRPM
	if rpm <= 0 {
		rpm = 60
	}

	handler := Chain(
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(log.Default()),
		RateLimitMiddleware(NewRateLimiter(rpm)),
	)(s.router)

	if s.auth.Enabled {
		handler = AuthMiddleware(s.auth)(handler)
	}
	return handler
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /arena/rounds", s.handleRound)
	s.router.HandleFunc("POST /arena/votes", s.handleVote)
	s.router.HandleFunc("GET /arena/models", s.handleModels)

	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /stats", s.handleStats)
}

// ============================================================================
// SESSIONS
// ============================================================================

// sessionFor returns the session for the given token, creating one
// when token is empty or unknown. The returned token identifies the
// session in subsequent requests.
func (s *Server) sessionFor(token string) (*battle.Session, string) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	now := time.Now()
	if token != "" {
		if entry, ok := s.sessions[token]; ok {
			entry.lastSeen = now
			return entry.session, token
		}
	}

	token = uuid.NewString()
	sess := battle.NewSession(token, s.store, s.maxPromptLength)
	s.sessions[token] = &sessionEntry{session: sess, lastSeen: now}

	// Opportunistic eviction keeps the map bounded without a sweeper.
	for t, entry := range s.sessions {
		if now.Sub(entry.lastSeen) > sessionIdleTimeout {
			delete(s.sessions, t)
		}
	}

	return sess, token
}

// lookupSession finds an existing session without creating one.
func (s *Server) lookupSession(token string) (*battle.Session, bool) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	entry, ok := s.sessions[token]
	if !ok {
		return nil, false
	}
	entry.lastSeen = time.Now()
	return entry.session, true
}

// ============================================================================
// ROUND HANDLER
// ============================================================================

// RoundRequest is the POST /arena/rounds request body.
type RoundRequest struct {
	Prompt       string `json:"prompt"`
	SessionToken string `json:"session_token,omitempty"`
}

// SideView is one anonymized side of a round response.
type SideView struct {
	OK        bool   `json:"ok"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// RoundResponse is the POST /arena/rounds response body. Model
// identities are deliberately absent.
type RoundResponse struct {
	RoundID      string   `json:"round_id"`
	SessionToken string   `json:"session_token"`
	SideA        SideView `json:"side_a"`
	SideB        SideView `json:"side_b"`
}

// handleRound handles POST /arena/rounds.
func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req RoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("ROUND_BAD_REQUEST | err=%v", err)
		s.writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	now := time.Now()
	idA, idB, err := s.selector.Select(now)
	if err != nil {
		if errors.Is(err, battle.ErrInsufficientModels) {
			s.writeError(w, http.StatusServiceUnavailable,
				"Too many models are cooling down; try again shortly")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Model selection failed")
		return
	}

	sess, token := s.sessionFor(req.SessionToken)

	seq, roundReq, resumed, err := sess.SubmitPrompt(req.Prompt, idA, idB, now)
	if err != nil {
		var verr *battle.ValidationError
		if errors.As(err, &verr) {
			s.writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Round setup failed")
		return
	}

	// A resubmit of the live round's prompt must not burn two fresh
	// upstream calls; the session keeps the results it already holds.
	if resumed {
		snap := sess.Snapshot()
		if snap.State != battle.StateAwaitingVote {
			s.writeError(w, http.StatusConflict, "Round is still in flight; retry shortly")
			return
		}
		s.writeJSON(w, http.StatusOK, RoundResponse{
			RoundID:      snap.RoundID,
			SessionToken: token,
			SideA:        sideView(snap.SideA),
			SideB:        sideView(snap.SideB),
		})
		return
	}

	s.stats.RoundsStarted.Add(1)
	log.Printf("ROUND_START | round=%s session=%s", roundReq.ID, shortToken(token))

	result := s.dispatcher.Dispatch(r.Context(), roundReq)
	sess.ResultsReady(seq, result)

	snap := sess.Snapshot()
	if snap.State != battle.StateAwaitingVote || snap.Seq != seq {
		// A newer prompt superseded this round while it was in flight.
		s.writeError(w, http.StatusConflict, "Round was superseded by a newer prompt")
		return
	}

	s.stats.RoundsCompleted.Add(1)
	s.writeJSON(w, http.StatusOK, RoundResponse{
		RoundID:      roundReq.ID,
		SessionToken: token,
		SideA:        sideView(result.SideA),
		SideB:        sideView(result.SideB),
	})
}

// sideView anonymizes a side's outcome for the wire.
func sideView(side battle.SideResult) SideView {
	view := SideView{
		OK:        side.OK,
		LatencyMS: side.Latency.Milliseconds(),
	}
	if side.OK {
		view.Text = side.Text
	} else {
		view.Error = string(side.Failure)
	}
	return view
}

// ============================================================================
// VOTE HANDLER
// ============================================================================

// VoteRequest is the POST /arena/votes request body.
type VoteRequest struct {
	SessionToken string `json:"session_token"`
	Choice       string `json:"choice"`
}

// VoteResponse is the POST /arena/votes response body, carrying the
// revealed identities.
type VoteResponse struct {
	Choice       string `json:"choice"`
	ModelA       string `json:"model_a"`
	ModelB       string `json:"model_b"`
	AlreadyVoted bool   `json:"already_voted,omitempty"`
}

// handleVote handles POST /arena/votes.
func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("VOTE_BAD_REQUEST | err=%v", err)
		s.writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	choice, err := battle.ParseChoice(req.Choice)
	if err != nil {
		s.writeError(w, http.StatusBadRequest,
			"choice must be one of A, B, Tie, BothBad")
		return
	}

	sess, ok := s.lookupSession(req.SessionToken)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Unknown session token")
		return
	}

	modelA, modelB, err := sess.CastVote(choice, time.Now())
	switch {
	case err == nil:
		s.stats.VotesCast.Add(1)
		log.Printf("VOTE_CAST | session=%s choice=%s", shortToken(req.SessionToken), choice)
		s.writeJSON(w, http.StatusOK, VoteResponse{
			Choice: string(choice),
			ModelA: modelA,
			ModelB: modelB,
		})
	case errors.Is(err, battle.ErrAlreadyVoted):
		// Benign repeat: report the existing outcome, change nothing.
		snap := sess.Snapshot()
		s.writeJSON(w, http.StatusOK, VoteResponse{
			Choice:       string(snap.Choice),
			ModelA:       modelA,
			ModelB:       modelB,
			AlreadyVoted: true,
		})
	case errors.Is(err, battle.ErrNotAwaitingVote):
		s.writeError(w, http.StatusConflict, "No round is awaiting a vote")
	default:
		s.writeError(w, http.StatusBadRequest, err.Error())
	}
}

// ============================================================================
// MODELS HANDLER
// ============================================================================

// ModelView describes one pool entry.
type ModelView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Category      string `json:"category,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`
	Throttled     bool   `json:"throttled"`
}

// ModelsResponse is the GET /arena/models response body.
type ModelsResponse struct {
	Models []ModelView `json:"models"`
}

// handleModels handles GET /arena/models.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	list := s.registry.List()

	views := make([]ModelView, 0, len(list))
	for _, m := range list {
		views = append(views, ModelView{
			ID:            m.ID,
			Name:          m.Name,
			Category:      m.Category,
			ContextLength: m.ContextLength,
			Throttled:     s.tracker.IsThrottled(m.ID, now),
		})
	}

	s.writeJSON(w, http.StatusOK, ModelsResponse{Models: views})
}

// ============================================================================
// HEALTH AND STATS HANDLERS
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	ModelCount int    `json:"model_count"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Version:    Version,
		ModelCount: s.registry.Count(),
	})
}

// StatsResponse represents the usage statistics response.
type StatsResponse struct {
	RoundsStarted   int64 `json:"rounds_started"`
	RoundsCompleted int64 `json:"rounds_completed"`
	VotesCast       int64 `json:"votes_cast"`
	VotesStored     int64 `json:"votes_stored"`
	ThrottledModels int   `json:"throttled_models"`
	UptimeSeconds   int64 `json:"uptime_seconds"`
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	stored, err := s.store.Count(ctx)
	if err != nil {
		log.Printf("STATS_STORE_ERROR | err=%v", err)
		stored = -1
	}

	s.writeJSON(w, http.StatusOK, StatsResponse{
		RoundsStarted:   s.stats.RoundsStarted.Load(),
		RoundsCompleted: s.stats.RoundsCompleted.Load(),
		VotesCast:       s.stats.VotesCast.Load(),
		VotesStored:     stored,
		ThrottledModels: s.tracker.ThrottledCount(time.Now()),
		UptimeSeconds:   int64(s.stats.Uptime().Seconds()),
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("SERVER_START | addr=%s version=%s models=%d", addr, Version, s.registry.Count())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// shortToken truncates a session token for logging.
//
// SECURITY: The full token authorizes vote casting for the session
// and never belongs in logs.
func shortToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"code":    status,
		},
	})
}
