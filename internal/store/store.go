// Copyright 2026 The Manifold Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store persists execution history to SQLite, backing the `manifold
// history` command and the HTTP API's /v1/history endpoint. Unlike the
// engine's in-memory ledger, the store keeps full results across restarts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/manifold-ai/manifold/pkg/engine"
	pkgerrors "github.com/manifold-ai/manifold/pkg/errors"
)

// Record is one persisted execution.
type Record struct {
	ID         string    `json:"id"`
	Prompt     string    `json:"prompt"`
	Strategy   string    `json:"strategy"`
	Models     int       `json:"models"`
	Success    bool      `json:"success"`
	Confidence float64   `json:"confidence"`
	ElapsedMS  float64   `json:"elapsed_ms"`
	Speedup    float64   `json:"speedup"`
	CreatedAt  time.Time `json:"created_at"`

	// Result is the full execution result, stored as JSON.
	Result *engine.ExecutionResult `json:"result,omitempty"`
}

// Store is a SQLite-backed execution history. WAL mode keeps concurrent
// reads cheap while the engine appends.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path and runs migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	connStr := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			prompt TEXT NOT NULL,
			strategy TEXT NOT NULL,
			models INTEGER NOT NULL,
			success INTEGER NOT NULL,
			confidence REAL NOT NULL,
			elapsed_ms REAL NOT NULL,
			speedup REAL NOT NULL,
			result_json TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		`CREATE INDEX IF NOT EXISTS idx_executions_created_at
			ON executions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_strategy
			ON executions(strategy)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Save persists one completed execution.
func (s *Store) Save(ctx context.Context, prompt string, result *engine.ExecutionResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}
	if result.ID == "" {
		return fmt.Errorf("result id is required")
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `INSERT INTO executions
	          (id, prompt, strategy, models, success, confidence, elapsed_ms, speedup, result_json, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		result.ID,
		prompt,
		result.Strategy,
		result.ModelsExecuted,
		boolToInt(result.Success),
		result.Confidence,
		result.Elapsed.Milliseconds(),
		result.Speedup,
		string(resultJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

// Get retrieves one execution by ID, including the full result.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	query := `SELECT id, prompt, strategy, models, success, confidence, elapsed_ms, speedup, result_json, created_at
	          FROM executions WHERE id = ?`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id), true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &pkgerrors.NotFoundError{Resource: "execution", ID: id}
		}
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return rec, nil
}

// List returns the most recent executions, newest first. Full results are
// omitted; use Get for one execution's details.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, prompt, strategy, models, success, confidence, elapsed_ms, speedup, result_json, created_at
	          FROM executions ORDER BY created_at DESC, id LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}
	return records, nil
}

// Prune deletes executions older than the retention window and returns the
// number removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM executions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune executions: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner, includeResult bool) (*Record, error) {
	var rec Record
	var success int
	var resultJSON string
	var createdAt string

	if err := row.Scan(
		&rec.ID,
		&rec.Prompt,
		&rec.Strategy,
		&rec.Models,
		&success,
		&rec.Confidence,
		&rec.ElapsedMS,
		&rec.Speedup,
		&resultJSON,
		&createdAt,
	); err != nil {
		return nil, err
	}

	rec.Success = success != 0
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if includeResult {
		var result engine.ExecutionResult
		if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		rec.Result = &result
	}

	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
