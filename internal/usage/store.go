// Package usage records token usage for every reasoning-service round.
// Records are append-only and indexed by owner and timestamp for
// aggregation queries.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/laraib28/todo-k8s/internal/database"
)

// Record is one model call's token usage.
type Record struct {
	ID           string
	Timestamp    time.Time
	RequestID    string
	OwnerID      string
	Model        string
	Round        int
	InputTokens  int
	OutputTokens int
}

// Summary holds aggregated token totals.
type Summary struct {
	TotalRecords      int   `json:"total_records"`
	TotalInputTokens  int64 `json:"total_input_tokens"`
	TotalOutputTokens int64 `json:"total_output_tokens"`
}

// Store is an append-only SQL store for usage records. All public
// methods are safe for concurrent use.
type Store struct {
	db *sql.DB
	d  database.Dialect
}

// NewStore creates a usage store, running migrations on first use.
func NewStore(db *sql.DB, d database.Dialect) (*Store, error) {
	s := &Store{db: db, d: d}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate usage schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS usage_records (
			id            TEXT PRIMARY KEY,
			timestamp     BIGINT NOT NULL,
			request_id    TEXT NOT NULL,
			owner_id      TEXT NOT NULL,
			model         TEXT NOT NULL,
			round         INTEGER NOT NULL,
			input_tokens  INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_usage_owner_time ON usage_records(owner_id, timestamp);
	`)
	return err
}

// Record persists a usage record. If rec.ID is empty, a UUIDv7 is
// generated; a zero Timestamp means now.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate usage record ID: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, s.d.Rebind(`
		INSERT INTO usage_records
			(id, timestamp, request_id, owner_id, model, round, input_tokens, output_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`),
		rec.ID,
		rec.Timestamp.UTC().UnixNano(),
		rec.RequestID,
		rec.OwnerID,
		rec.Model,
		rec.Round,
		rec.InputTokens,
		rec.OutputTokens,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Summary returns owner's totals for records within [start, end).
func (s *Store) Summary(ctx context.Context, owner string, start, end time.Time) (*Summary, error) {
	row := s.db.QueryRowContext(ctx, s.d.Rebind(`
		SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
		FROM usage_records
		WHERE owner_id = ? AND timestamp >= ? AND timestamp < ?
	`), owner, start.UTC().UnixNano(), end.UTC().UnixNano())

	var sum Summary
	if err := row.Scan(&sum.TotalRecords, &sum.TotalInputTokens, &sum.TotalOutputTokens); err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	return &sum, nil
}

// SummaryByModel returns owner's per-model totals for records within [start, end).
func (s *Store) SummaryByModel(ctx context.Context, owner string, start, end time.Time) (map[string]*Summary, error) {
	rows, err := s.db.QueryContext(ctx, s.d.Rebind(`
		SELECT model, COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
		FROM usage_records
		WHERE owner_id = ? AND timestamp >= ? AND timestamp < ?
		GROUP BY model
	`), owner, start.UTC().UnixNano(), end.UTC().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query usage by model: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*Summary)
	for rows.Next() {
		var model string
		var sum Summary
		if err := rows.Scan(&model, &sum.TotalRecords, &sum.TotalInputTokens, &sum.TotalOutputTokens); err != nil {
			return nil, fmt.Errorf("scan usage by model: %w", err)
		}
		result[model] = &sum
	}
	return result, rows.Err()
}
