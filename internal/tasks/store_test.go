package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/laraib28/todo-k8s/internal/database"

	_ "modernc.org/sqlite"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Every :memory: connection is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db, database.SQLite)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

// fixedClock makes s.now return the same instant on every call.
func fixedClock(s *Store, at time.Time) {
	s.now = func() time.Time { return at }
}

func ptr[T any](v T) *T { return &v }

func mustCreate(t *testing.T, s *Store, owner, title string) *Task {
	t.Helper()
	task, err := s.Create(context.Background(), owner, title, "", "")
	if err != nil {
		t.Fatalf("create %q: %v", title, err)
	}
	return task
}

func TestCreate_Defaults(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	task, err := s.Create(ctx, "alice", "  Buy milk  ", "2%", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.ID == 0 {
		t.Error("expected an assigned id")
	}
	if task.Title != "Buy milk" {
		t.Errorf("title = %q, want trimmed %q", task.Title, "Buy milk")
	}
	if task.Priority != PriorityMedium {
		t.Errorf("priority = %q, want medium", task.Priority)
	}
	if task.IsComplete {
		t.Error("new task should be incomplete")
	}
	if !task.CreatedAt.Equal(task.UpdatedAt) {
		t.Errorf("created_at %v != updated_at %v", task.CreatedAt, task.UpdatedAt)
	}

	got, err := s.Get(ctx, "alice", task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(task, got); diff != "" {
		t.Errorf("stored task mismatch (-created +loaded):\n%s", diff)
	}
}

func TestCreate_Validation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	long := make([]byte, MaxTitleLen+1)
	for i := range long {
		long[i] = 'x'
	}
	longDesc := make([]byte, MaxDescriptionLen+1)
	for i := range longDesc {
		longDesc[i] = 'y'
	}

	tests := []struct {
		name        string
		owner       string
		title       string
		description string
		priority    Priority
		want        error
	}{
		{name: "empty owner", owner: "", title: "x", want: ErrUnauthorized},
		{name: "blank owner", owner: "  ", title: "x", want: ErrUnauthorized},
		{name: "empty title", owner: "alice", title: "", want: ErrInvalidArgument},
		{name: "whitespace title", owner: "alice", title: "   ", want: ErrInvalidArgument},
		{name: "long title", owner: "alice", title: string(long), want: ErrInvalidArgument},
		{name: "long description", owner: "alice", title: "x", description: string(longDesc), want: ErrInvalidArgument},
		{name: "bad priority", owner: "alice", title: "x", priority: "urgent", want: ErrInvalidArgument},
		{name: "case sensitive priority", owner: "alice", title: "x", priority: "High", want: ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, tt.owner, tt.title, tt.description, tt.priority)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	res, err := s.List(ctx, "alice", ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if res.Count != 0 {
		t.Errorf("rejected creates left %d records", res.Count)
	}
}

func TestCreate_TitleBoundary(t *testing.T) {
	s := setupTestStore(t)

	// 200 multi-byte runes is within the limit.
	title := ""
	for range MaxTitleLen {
		title += "é"
	}
	if _, err := s.Create(context.Background(), "alice", title, "", PriorityLow); err != nil {
		t.Fatalf("create %d-rune title: %v", MaxTitleLen, err)
	}
}

func TestCreate_PriorityMessage(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Create(context.Background(), "alice", "x", "", "urgent")
	var ae *ArgumentError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *ArgumentError, got %T", err)
	}
	if want := "Invalid priority. Must be: low, medium, or high"; ae.Reason != want {
		t.Errorf("reason = %q, want %q", ae.Reason, want)
	}
}

func TestOwnerIsolation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	task := mustCreate(t, s, "alice", "secret plan")

	if _, err := s.Get(ctx, "bob", task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get by other owner: err = %v, want ErrNotFound", err)
	}
	if _, err := s.SetComplete(ctx, "bob", task.ID, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("complete by other owner: err = %v, want ErrNotFound", err)
	}
	if _, err := s.Update(ctx, "bob", task.ID, Changes{Title: ptr("mine now")}); !errors.Is(err, ErrNotFound) {
		t.Errorf("update by other owner: err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "bob", task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete by other owner: err = %v, want ErrNotFound", err)
	}

	res, err := s.List(ctx, "bob", ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if res.Count != 0 {
		t.Errorf("bob sees %d tasks, want 0", res.Count)
	}

	got, err := s.Get(ctx, "alice", task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "secret plan" || got.IsComplete {
		t.Errorf("alice's task was modified: %+v", got)
	}
}

func TestList_OrderAndLimit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		fixedClock(s, base.Add(time.Duration(i)*time.Minute))
		mustCreate(t, s, "alice", fmt.Sprintf("task %d", i))
	}
	// Two records with identical timestamps fall back to id order.
	fixedClock(s, base.Add(10*time.Minute))
	mustCreate(t, s, "alice", "tie a")
	mustCreate(t, s, "alice", "tie b")

	res, err := s.List(ctx, "alice", ListFilter{Limit: 4})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var titles []string
	for _, task := range res.Tasks {
		titles = append(titles, task.Title)
	}
	want := []string{"tie b", "tie a", "task 4", "task 3"}
	if diff := cmp.Diff(want, titles); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if res.Count != 4 {
		t.Errorf("count = %d, want 4", res.Count)
	}
}

func TestList_LimitBounds(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	fixedClock(s, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	for i := range MaxListLimit + 5 {
		mustCreate(t, s, "alice", fmt.Sprintf("task %d", i))
	}

	tests := []struct {
		limit int
		want  int
	}{
		{limit: 0, want: DefaultListLimit},
		{limit: -3, want: DefaultListLimit},
		{limit: 7, want: 7},
		{limit: MaxListLimit + 1, want: MaxListLimit},
	}
	for _, tt := range tests {
		res, err := s.List(ctx, "alice", ListFilter{Limit: tt.limit})
		if err != nil {
			t.Fatalf("limit %d: %v", tt.limit, err)
		}
		if res.Count != tt.want || len(res.Tasks) != tt.want {
			t.Errorf("limit %d: count = %d, want %d", tt.limit, res.Count, tt.want)
		}
	}

	if _, err := s.List(ctx, "", ListFilter{}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("empty owner: err = %v, want ErrUnauthorized", err)
	}
}

func TestList_Filters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	done := mustCreate(t, s, "alice", "file taxes")
	if _, err := s.SetComplete(ctx, "alice", done.ID, true); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := s.Create(ctx, "alice", "call mom", "", PriorityHigh); err != nil {
		t.Fatalf("create: %v", err)
	}
	mustCreate(t, s, "alice", "water plants")

	tests := []struct {
		name   string
		filter ListFilter
		want   []string
	}{
		{name: "all", filter: ListFilter{}, want: []string{"water plants", "call mom", "file taxes"}},
		{name: "complete", filter: ListFilter{IsComplete: ptr(true)}, want: []string{"file taxes"}},
		{name: "incomplete", filter: ListFilter{IsComplete: ptr(false)}, want: []string{"water plants", "call mom"}},
		{name: "high", filter: ListFilter{Priority: PriorityHigh}, want: []string{"call mom"}},
		{name: "incomplete medium", filter: ListFilter{IsComplete: ptr(false), Priority: PriorityMedium}, want: []string{"water plants"}},
		{name: "title", filter: ListFilter{TitleQuery: "TAX"}, want: []string{"file taxes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.List(ctx, "alice", tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			got := []string{}
			for _, task := range res.Tasks {
				got = append(got, task.Title)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestList_FuzzyTitle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, "alice", "Buy groceries")
	mustCreate(t, s, "alice", "Grocery run")
	mustCreate(t, s, "alice", "100% done_ish")

	tests := []struct {
		query     string
		wantCount int
	}{
		{query: "grocery", wantCount: 2},
		{query: "groceries", wantCount: 2},
		{query: "xyz", wantCount: 0},
		{query: "100%", wantCount: 1},
		{query: "e_i", wantCount: 1},
		{query: "%", wantCount: 1},
		{query: "_", wantCount: 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res, err := s.List(ctx, "alice", ListFilter{TitleQuery: tt.query})
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if res.Count != tt.wantCount {
				t.Errorf("count = %d, want %d (%v)", res.Count, tt.wantCount, res.Tasks)
			}
		})
	}
}

func TestList_FuzzyTitleUnicode(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, "alice", "Café ÉCLAIRS")
	renamed := mustCreate(t, s, "alice", "ride")
	if _, err := s.Update(ctx, "alice", renamed.ID, Changes{Title: ptr("ÜBER to airport")}); err != nil {
		t.Fatalf("update: %v", err)
	}

	for _, q := range []string{"éclair", "CAFÉ", "über"} {
		res, err := s.List(ctx, "alice", ListFilter{TitleQuery: q})
		if err != nil {
			t.Fatalf("list %q: %v", q, err)
		}
		if res.Count != 1 {
			t.Errorf("query %q: count = %d, want 1", q, res.Count)
		}
	}
}

func TestTitleVariants(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{query: "", want: nil},
		{query: "  ", want: nil},
		{query: "Task", want: []string{"task", "tasks"}},
		{query: "tasks", want: []string{"tasks", "task"}},
		{query: "grocery", want: []string{"grocery", "groceries", "grocerys"}},
		{query: "groceries", want: []string{"groceries", "grocery", "grocerie"}},
		{query: "s", want: []string{"s"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, titleVariants(tt.query)); diff != "" {
				t.Errorf("titleVariants(%q) mismatch (-want +got):\n%s", tt.query, diff)
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fixedClock(s, created)
	task := mustCreate(t, s, "alice", "draft")

	fixedClock(s, created.Add(time.Hour))
	got, err := s.Update(ctx, "alice", task.ID, Changes{
		Title:    ptr("final"),
		Priority: ptr(PriorityHigh),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Title != "final" || got.Priority != PriorityHigh {
		t.Errorf("update not applied: %+v", got)
	}
	if got.Description != "" {
		t.Errorf("description changed to %q", got.Description)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at moved to %v", got.CreatedAt)
	}
	if !got.UpdatedAt.Equal(created.Add(time.Hour)) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, created.Add(time.Hour))
	}
}

func TestUpdate_EmptyChangesRefreshTimestamp(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fixedClock(s, created)
	task := mustCreate(t, s, "alice", "water plants")

	fixedClock(s, created.Add(time.Minute))
	got, err := s.Update(ctx, "alice", task.ID, Changes{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Title != task.Title || got.Priority != task.Priority || got.Description != task.Description {
		t.Errorf("fields changed: %+v", got)
	}
	if !got.UpdatedAt.Equal(created.Add(time.Minute)) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, created.Add(time.Minute))
	}

	if _, err := s.Update(ctx, "", task.ID, Changes{}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("empty owner: err = %v, want ErrUnauthorized", err)
	}
	if _, err := s.Update(ctx, "alice", task.ID+100, Changes{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing task: err = %v, want ErrNotFound", err)
	}
}

func TestUpdate_RejectsWithoutPartialWrite(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	task := mustCreate(t, s, "alice", "original")

	_, err := s.Update(ctx, "alice", task.ID, Changes{
		Title:    ptr("changed"),
		Priority: ptr(Priority("critical")),
	})
	var ae *ArgumentError
	if !errors.As(err, &ae) || ae.Reason != "Invalid priority" {
		t.Fatalf("err = %v, want Invalid priority", err)
	}

	got, err := s.Get(ctx, "alice", task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(task, got); diff != "" {
		t.Errorf("task changed after rejected update (-before +after):\n%s", diff)
	}

	if _, err := s.Update(ctx, "alice", task.ID, Changes{Title: ptr(" ")}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("blank title: err = %v, want ErrInvalidArgument", err)
	}
}

func TestSetComplete_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 5, 5, 12, 0, 0, 0, time.UTC)
	fixedClock(s, now)
	task := mustCreate(t, s, "alice", "stretch")

	// The clock does not move, so each write must still advance updated_at.
	prev := task.UpdatedAt
	for i := range 3 {
		got, err := s.SetComplete(ctx, "alice", task.ID, true)
		if err != nil {
			t.Fatalf("complete #%d: %v", i, err)
		}
		if !got.IsComplete {
			t.Errorf("complete #%d: is_complete = false", i)
		}
		if !got.UpdatedAt.After(prev) {
			t.Errorf("complete #%d: updated_at %v not after %v", i, got.UpdatedAt, prev)
		}
		prev = got.UpdatedAt
	}

	got, err := s.SetComplete(ctx, "alice", task.ID, false)
	if err != nil {
		t.Fatalf("uncomplete: %v", err)
	}
	if got.IsComplete {
		t.Error("uncomplete left is_complete = true")
	}
}

func TestDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	task := mustCreate(t, s, "alice", "temporary")
	if err := s.Delete(ctx, "alice", task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "alice", task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "alice", task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
	if _, err := s.SetComplete(ctx, "alice", 999, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("complete missing: err = %v, want ErrNotFound", err)
	}
}

func TestConcurrentMutations(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	task := mustCreate(t, s, "alice", "shared")

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for i := range workers {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := s.SetComplete(ctx, "alice", task.ID, i%2 == 0); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := s.Create(ctx, "alice", fmt.Sprintf("new %d", i), "", ""); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent op: %v", err)
	}

	res, err := s.List(ctx, "alice", ListFilter{Limit: MaxListLimit})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if res.Count != workers+1 {
		t.Errorf("count = %d, want %d", res.Count, workers+1)
	}
	seen := make(map[int64]bool)
	for _, task := range res.Tasks {
		if seen[task.ID] {
			t.Errorf("duplicate id %d", task.ID)
		}
		seen[task.ID] = true
	}
}

func TestNextStamp(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := nextStamp(base.Add(time.Second), base); !got.Equal(base.Add(time.Second)) {
		t.Errorf("clock ahead: got %v", got)
	}
	if got := nextStamp(base, base); !got.Equal(base.Add(time.Nanosecond)) {
		t.Errorf("clock equal: got %v", got)
	}
	if got := nextStamp(base.Add(-time.Hour), base); !got.Equal(base.Add(time.Nanosecond)) {
		t.Errorf("clock behind: got %v", got)
	}
}
