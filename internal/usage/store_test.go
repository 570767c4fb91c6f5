package usage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/laraib28/todo-k8s/internal/database"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db, database.SQLite)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestRecordAndSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	records := []Record{
		{Timestamp: base, RequestID: "r1", OwnerID: "alice", Model: "gpt-4o", Round: 1, InputTokens: 1000, OutputTokens: 200},
		{Timestamp: base.Add(time.Second), RequestID: "r1", OwnerID: "alice", Model: "gpt-4o", Round: 2, InputTokens: 1300, OutputTokens: 50},
		{Timestamp: base.Add(time.Minute), RequestID: "r2", OwnerID: "alice", Model: "claude-sonnet-4", Round: 1, InputTokens: 700, OutputTokens: 90},
		{Timestamp: base, RequestID: "r3", OwnerID: "bob", Model: "gpt-4o", Round: 1, InputTokens: 5000, OutputTokens: 5000},
		{Timestamp: base.Add(48 * time.Hour), RequestID: "r4", OwnerID: "alice", Model: "gpt-4o", Round: 1, InputTokens: 1, OutputTokens: 1},
	}
	for _, rec := range records {
		if err := s.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	sum, err := s.Summary(ctx, "alice", base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalRecords != 3 {
		t.Errorf("TotalRecords = %d, want 3", sum.TotalRecords)
	}
	if sum.TotalInputTokens != 3000 {
		t.Errorf("TotalInputTokens = %d, want 3000", sum.TotalInputTokens)
	}
	if sum.TotalOutputTokens != 340 {
		t.Errorf("TotalOutputTokens = %d, want 340", sum.TotalOutputTokens)
	}

	byModel, err := s.SummaryByModel(ctx, "alice", base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("SummaryByModel: %v", err)
	}
	if len(byModel) != 2 {
		t.Fatalf("got %d models, want 2", len(byModel))
	}
	if gpt := byModel["gpt-4o"]; gpt == nil || gpt.TotalRecords != 2 || gpt.TotalInputTokens != 2300 {
		t.Errorf("gpt-4o = %+v", gpt)
	}
}

func TestSummary_Empty(t *testing.T) {
	s := newTestStore(t)
	sum, err := s.Summary(context.Background(), "nobody", time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalRecords != 0 || sum.TotalInputTokens != 0 {
		t.Errorf("expected zero summary, got %+v", sum)
	}
}

func TestRecord_GeneratesID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for range 2 {
		if err := s.Record(ctx, Record{RequestID: "r", OwnerID: "alice", Model: "m"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(DISTINCT id) FROM usage_records`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("distinct ids = %d, want 2", n)
	}
}
