// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package votes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrDatabaseError = errors.New("database error")
	ErrEmptyRecord   = errors.New("vote record missing required fields")
)

// =============================================================================
// SQLITE STORE
// =============================================================================

const createVotesTable = `
CREATE TABLE IF NOT EXISTS votes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	round_id    TEXT NOT NULL,
	vote        TEXT NOT NULL,
	model_a     TEXT NOT NULL,
	model_b     TEXT NOT NULL,
	prompt_hash TEXT NOT NULL,
	session_id  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_votes_round ON votes(round_id);
CREATE INDEX IF NOT EXISTS idx_votes_created ON votes(created_at);
`

// SQLiteStore persists votes in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the vote database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s failed: %v", ErrDatabaseError, pragma, err)
		}
	}

	if _, err := db.Exec(createVotesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: schema init failed: %v", ErrDatabaseError, err)
	}

	return &SQLiteStore{db: db}, nil
}

// Insert implements Store.
func (s *SQLiteStore) Insert(ctx context.Context, rec Record) error {
	if rec.RoundID == "" || rec.Vote == "" {
		return ErrEmptyRecord
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO votes (round_id, vote, model_a, model_b, prompt_hash, session_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RoundID, rec.Vote, rec.ModelA, rec.ModelB, rec.PromptHash, rec.SessionID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert vote: %v", ErrDatabaseError, err)
	}
	return nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM votes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count votes: %v", ErrDatabaseError, err)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
