package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/laraib28/todo-k8s/internal/database"
)

// ListFilter narrows a List call. Zero values mean "no constraint".
type ListFilter struct {
	IsComplete *bool
	Priority   Priority
	TitleQuery string

	// Limit caps the number of returned records. Values below one select
	// DefaultListLimit; values above MaxListLimit are clamped.
	Limit int
}

// ListResult is the outcome of a List call.
type ListResult struct {
	Tasks []Task `json:"tasks"`
	Count int    `json:"count"`
}

// Changes holds the optional fields of an Update. Nil fields are left
// untouched.
type Changes struct {
	Title       *string
	Description *string
	Priority    *Priority
}

// Store persists tasks in a SQL database.
type Store struct {
	db  *sql.DB
	d   database.Dialect
	now func() time.Time
}

// NewStore creates a task store, running migrations on first use.
func NewStore(db *sql.DB, d database.Dialect) (*Store, error) {
	s := &Store{db: db, d: d, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate tasks: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS tasks (
			id          %s,
			owner_id    TEXT NOT NULL,
			title       TEXT NOT NULL,
			title_fold  TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			priority    TEXT NOT NULL DEFAULT 'medium',
			is_complete %s NOT NULL DEFAULT FALSE,
			created_at  BIGINT NOT NULL,
			updated_at  BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_owner_created ON tasks(owner_id, created_at);
	`, s.d.Serial, s.d.Bool))
	return err
}

const taskColumns = `id, owner_id, title, description, priority, is_complete, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*Task, error) {
	var (
		t                Task
		priority         string
		created, updated int64
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &priority, &t.IsComplete, &created, &updated); err != nil {
		return nil, err
	}
	t.Priority = Priority(priority)
	t.CreatedAt = time.Unix(0, created).UTC()
	t.UpdatedAt = time.Unix(0, updated).UTC()
	return &t, nil
}

// Create stores a new incomplete task for owner. An empty priority
// selects PriorityMedium.
func (s *Store) Create(ctx context.Context, owner, title, description string, priority Priority) (*Task, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	title, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	description, err = normalizeDescription(description)
	if err != nil {
		return nil, err
	}
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return nil, errInvalidPriority
	}

	now := s.now().UTC()
	t := &Task{
		OwnerID:     owner,
		Title:       title,
		Description: description,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.QueryRowContext(ctx, s.d.Rebind(`
		INSERT INTO tasks (owner_id, title, title_fold, description, priority, is_complete, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), owner, title, foldTitle(title), description, string(priority), false, now.UnixNano(), now.UnixNano()).Scan(&t.ID)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

// Get returns one of owner's tasks.
func (s *Store) Get(ctx context.Context, owner string, id int64) (*Task, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, s.d.Rebind(
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner_id = ?`,
	), id, owner)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, nil
}

// List returns owner's tasks matching f, newest first.
func (s *Store) List(ctx context.Context, owner string, f ListFilter) (*ListResult, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}

	limit := f.Limit
	switch {
	case limit < 1:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	var (
		where = []string{"owner_id = ?"}
		args  = []any{owner}
	)
	if f.IsComplete != nil {
		where = append(where, "is_complete = ?")
		args = append(args, *f.IsComplete)
	}
	if f.Priority != "" {
		if !f.Priority.Valid() {
			return nil, errInvalidPriority
		}
		where = append(where, "priority = ?")
		args = append(args, string(f.Priority))
	}
	if variants := titleVariants(f.TitleQuery); len(variants) > 0 {
		likes := make([]string, len(variants))
		for i, v := range variants {
			likes[i] = `title_fold LIKE ? ESCAPE '\'`
			args = append(args, likePattern(v))
		}
		where = append(where, "("+strings.Join(likes, " OR ")+")")
	}
	args = append(args, limit)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, s.d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	res := &ListResult{Tasks: []Task{}}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		res.Tasks = append(res.Tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	res.Count = len(res.Tasks)
	return res, nil
}

// Update applies the non-nil fields of c to one of owner's tasks. Empty
// changes only refresh UpdatedAt. Nothing is written if any field fails
// validation.
func (s *Store) Update(ctx context.Context, owner string, id int64, c Changes) (*Task, error) {
	return s.mutate(ctx, owner, id, func(t *Task) error {
		if c.Title != nil {
			title, err := normalizeTitle(*c.Title)
			if err != nil {
				return err
			}
			t.Title = title
		}
		if c.Description != nil {
			desc, err := normalizeDescription(*c.Description)
			if err != nil {
				return err
			}
			t.Description = desc
		}
		if c.Priority != nil {
			if !c.Priority.Valid() {
				return invalid("Invalid priority")
			}
			t.Priority = *c.Priority
		}
		return nil
	})
}

// SetComplete marks one of owner's tasks complete or incomplete. Setting
// the value it already has still refreshes UpdatedAt.
func (s *Store) SetComplete(ctx context.Context, owner string, id int64, complete bool) (*Task, error) {
	return s.mutate(ctx, owner, id, func(t *Task) error {
		t.IsComplete = complete
		return nil
	})
}

// Delete removes one of owner's tasks.
func (s *Store) Delete(ctx context.Context, owner string, id int64) error {
	if err := checkOwner(owner); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.d.Rebind(
		`DELETE FROM tasks WHERE id = ? AND owner_id = ?`,
	), id, owner)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// mutate loads a task under the write lock, lets apply change it in
// memory, and writes it back with a fresh UpdatedAt.
func (s *Store) mutate(ctx context.Context, owner string, id int64, apply func(*Task) error) (*Task, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, s.d.Rebind(
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner_id = ?`+s.d.ForUpdate,
	), id, owner)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task %d: %w", id, err)
	}

	if err := apply(t); err != nil {
		return nil, err
	}
	t.UpdatedAt = nextStamp(s.now().UTC(), t.UpdatedAt)

	_, err = tx.ExecContext(ctx, s.d.Rebind(`
		UPDATE tasks
		SET title = ?, title_fold = ?, description = ?, priority = ?, is_complete = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`), t.Title, foldTitle(t.Title), t.Description, string(t.Priority), t.IsComplete, t.UpdatedAt.UnixNano(), id, owner)
	if err != nil {
		return nil, fmt.Errorf("update task %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

// nextStamp returns now, or prev plus one nanosecond when the clock has
// not moved past prev.
func nextStamp(now, prev time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Nanosecond)
}
