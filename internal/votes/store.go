// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package votes persists finalized arena votes.
//
// A vote record is written exactly once per round, never updated. The
// store is deliberately narrow: insert, count, close. Duplicate inserts
// from a retried ambiguous failure may land as two records; the session
// layer guarantees at-most-one issue per round, not the store.
package votes

import (
	"context"
	"time"
)

// Record is a finalized vote document. The prompt is stored only as a
// hash; the raw text never reaches the store.
type Record struct {
	RoundID    string
	Vote       string
	ModelA     string
	ModelB     string
	PromptHash string
	SessionID  string
	CreatedAt  time.Time
}

// Store persists vote records.
type Store interface {
	// Insert writes one record. Called at most once per round by the
	// session layer.
	Insert(ctx context.Context, rec Record) error

	// Count returns the total number of stored votes.
	Count(ctx context.Context) (int64, error)

	// Close releases the store's resources.
	Close() error
}
