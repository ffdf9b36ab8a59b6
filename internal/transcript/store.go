// Copyright 2024 Parts Assistant Project
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

// Package transcript records every chat exchange and the feedback users give
// on it in a SQLite database.
package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Feedback ratings
const (
	RatingUp   = "up"
	RatingDown = "down"
)

var (
	// ErrExchangeNotFound is returned when feedback targets an unknown exchange
	ErrExchangeNotFound = errors.New("exchange not found")
	// ErrInvalidRating is returned for ratings other than up or down
	ErrInvalidRating = errors.New("rating must be 'up' or 'down'")
)

// Exchange is one query and the pipeline's outcome
type Exchange struct {
	ID          string        `json:"id"`
	SessionID   string        `json:"session_id"`
	Query       string        `json:"query"`
	Intent      string        `json:"intent"`
	ModelNumber string        `json:"model_number,omitempty"`
	PartNumber  string        `json:"part_number,omitempty"`
	Brand       string        `json:"brand,omitempty"`
	Symptom     string        `json:"symptom,omitempty"`
	Status      string        `json:"status"`
	SourceURL   string        `json:"source_url,omitempty"`
	Latency     time.Duration `json:"latency"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Feedback is a user's rating of an exchange
type Feedback struct {
	ID         string    `json:"id"`
	ExchangeID string    `json:"exchange_id"`
	Rating     string    `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Stats summarizes recorded exchanges and feedback
type Stats struct {
	TotalExchanges int            `json:"total_exchanges"`
	ByIntent       map[string]int `json:"by_intent"`
	ByStatus       map[string]int `json:"by_status"`
	AvgLatencyMS   float64        `json:"avg_latency_ms"`
	FeedbackUp     int            `json:"feedback_up"`
	FeedbackDown   int            `json:"feedback_down"`
}

// Store handles queries to the SQLite transcript database
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewStore opens (creating if needed) the transcript database at dbPath.
// ":memory:" keeps everything in memory.
func NewStore(dbPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
			return nil, fmt.Errorf("failed to create transcript directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writes
	db.SetMaxOpenConns(1)

	store := &Store{db: db, logger: logger, now: time.Now}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Transcript store initialized", zap.String("db_path", dbPath))
	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS exchanges (
			id TEXT PRIMARY KEY,
			session_id TEXT,
			query TEXT NOT NULL,
			intent TEXT,
			model_number TEXT,
			part_number TEXT,
			brand TEXT,
			symptom TEXT,
			status TEXT NOT NULL,
			source_url TEXT,
			latency_ms INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges(session_id);
		CREATE TABLE IF NOT EXISTS feedback (
			id TEXT PRIMARY KEY,
			exchange_id TEXT NOT NULL REFERENCES exchanges(id) ON DELETE CASCADE,
			rating TEXT NOT NULL CHECK (rating IN ('up', 'down')),
			comment TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordExchange stores an exchange, assigning an ID and timestamp when unset
func (s *Store) RecordExchange(ctx context.Context, ex *Exchange) error {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = s.now().UTC()
	}

	query := `
		INSERT INTO exchanges (id, session_id, query, intent, model_number, part_number,
			brand, symptom, status, source_url, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		ex.ID, ex.SessionID, ex.Query, ex.Intent, ex.ModelNumber, ex.PartNumber,
		ex.Brand, ex.Symptom, ex.Status, ex.SourceURL, ex.Latency.Milliseconds(), ex.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}

	s.logger.Debug("Exchange recorded",
		zap.String("exchange_id", ex.ID),
		zap.String("intent", ex.Intent),
		zap.String("status", ex.Status))
	return nil
}

// GetExchange returns the exchange with id, or ErrExchangeNotFound
func (s *Store) GetExchange(ctx context.Context, id string) (*Exchange, error) {
	query := `
		SELECT id, session_id, query, intent, model_number, part_number, brand,
			symptom, status, source_url, latency_ms, created_at
		FROM exchanges WHERE id = ?
	`

	var ex Exchange
	var latencyMS int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&ex.ID, &ex.SessionID, &ex.Query, &ex.Intent, &ex.ModelNumber, &ex.PartNumber,
		&ex.Brand, &ex.Symptom, &ex.Status, &ex.SourceURL, &latencyMS, &ex.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExchangeNotFound
		}
		return nil, fmt.Errorf("failed to scan exchange: %w", err)
	}
	ex.Latency = time.Duration(latencyMS) * time.Millisecond

	return &ex, nil
}

// RecordFeedback stores a rating for an existing exchange
func (s *Store) RecordFeedback(ctx context.Context, fb *Feedback) error {
	if fb.Rating != RatingUp && fb.Rating != RatingDown {
		return ErrInvalidRating
	}

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM exchanges WHERE id = ?", fb.ExchangeID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up exchange: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrExchangeNotFound, fb.ExchangeID)
	}

	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = s.now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO feedback (id, exchange_id, rating, comment, created_at) VALUES (?, ?, ?, ?, ?)",
		fb.ID, fb.ExchangeID, fb.Rating, fb.Comment, fb.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}

	s.logger.Info("Feedback recorded",
		zap.String("exchange_id", fb.ExchangeID),
		zap.String("rating", fb.Rating))
	return nil
}

// Stats aggregates exchange counts, latency and feedback totals
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByIntent: make(map[string]int),
		ByStatus: make(map[string]int),
	}

	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), AVG(latency_ms) FROM exchanges").
		Scan(&stats.TotalExchanges, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to count exchanges: %w", err)
	}
	stats.AvgLatencyMS = avg.Float64

	if err := s.countBy(ctx, "SELECT intent, COUNT(*) FROM exchanges GROUP BY intent", stats.ByIntent); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "SELECT status, COUNT(*) FROM exchanges GROUP BY status", stats.ByStatus); err != nil {
		return nil, err
	}

	ratings := make(map[string]int)
	if err := s.countBy(ctx, "SELECT rating, COUNT(*) FROM feedback GROUP BY rating", ratings); err != nil {
		return nil, err
	}
	stats.FeedbackUp = ratings[RatingUp]
	stats.FeedbackDown = ratings[RatingDown]

	return stats, nil
}

func (s *Store) countBy(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key sql.NullString
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan stats row: %w", err)
		}
		into[key.String] = count
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating stats rows: %w", err)
	}
	return nil
}
