package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ToolCall is one audited tool invocation.
type ToolCall struct {
	ID        string        `json:"id"`
	RequestID string        `json:"request_id,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Round     int           `json:"round"`
	ToolName  string        `json:"tool_name"`
	Arguments string        `json:"arguments"`
	Result    string        `json:"result"`
	Success   bool          `json:"success"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// RecordToolCall appends an invocation to owner's audit trail. ID and
// StartedAt are filled in when empty.
func (s *Store) RecordToolCall(ctx context.Context, owner string, tc ToolCall) error {
	if owner == "" {
		return ErrNoOwner
	}
	if tc.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate tool call id: %w", err)
		}
		tc.ID = id.String()
	}
	if tc.StartedAt.IsZero() {
		tc.StartedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, s.d.Rebind(`
		INSERT INTO tool_calls
			(id, owner_id, request_id, call_id, round, tool_name, arguments, result, success, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), tc.ID, owner, tc.RequestID, tc.CallID, tc.Round, tc.ToolName, tc.Arguments, tc.Result,
		tc.Success, tc.StartedAt.UnixNano(), tc.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert tool call: %w", err)
	}
	return nil
}

// ToolCalls returns owner's newest limit tool invocations, newest first.
func (s *Store) ToolCalls(ctx context.Context, owner string, limit int) ([]ToolCall, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, s.d.Rebind(`
		SELECT id, request_id, call_id, round, tool_name, arguments, result, success, started_at, duration_ms
		FROM tool_calls
		WHERE owner_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`), owner, limit)
	if err != nil {
		return nil, fmt.Errorf("query tool calls: %w", err)
	}
	defer rows.Close()

	calls := []ToolCall{}
	for rows.Next() {
		var (
			tc          ToolCall
			started, ms int64
		)
		if err := rows.Scan(&tc.ID, &tc.RequestID, &tc.CallID, &tc.Round, &tc.ToolName,
			&tc.Arguments, &tc.Result, &tc.Success, &started, &ms); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		tc.StartedAt = time.Unix(0, started).UTC()
		tc.Duration = time.Duration(ms) * time.Millisecond
		calls = append(calls, tc)
	}
	return calls, rows.Err()
}
