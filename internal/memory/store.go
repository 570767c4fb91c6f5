// Package memory persists per-owner conversation history and an audit
// trail of tool invocations. Both are append-only.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/laraib28/todo-k8s/internal/database"
)

// Conversation roles that may be persisted.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNoOwner is returned when an operation is attempted without an owner.
var ErrNoOwner = errors.New("memory: owner required")

// Message is one persisted conversation turn.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a SQL-backed conversation log.
type Store struct {
	db  *sql.DB
	d   database.Dialect
	now func() time.Time

	mu   sync.Mutex
	last int64 // newest created_at handed out, unix nanos
}

// NewStore creates a conversation log, running migrations on first use.
func NewStore(db *sql.DB, d database.Dialect) (*Store, error) {
	s := &Store{db: db, d: d, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate memory: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			owner_id   TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_owner ON messages(owner_id, created_at);

		CREATE TABLE IF NOT EXISTS tool_calls (
			id           TEXT PRIMARY KEY,
			owner_id     TEXT NOT NULL,
			request_id   TEXT NOT NULL DEFAULT '',
			call_id      TEXT NOT NULL DEFAULT '',
			round        INTEGER NOT NULL DEFAULT 0,
			tool_name    TEXT NOT NULL,
			arguments    TEXT NOT NULL,
			result       TEXT NOT NULL DEFAULT '',
			success      %s NOT NULL DEFAULT FALSE,
			started_at   BIGINT NOT NULL,
			duration_ms  BIGINT NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_tool_calls_owner ON tool_calls(owner_id, started_at);
	`, s.d.Bool))
	return err
}

// stamp returns a creation time strictly after every earlier one from
// this store, so messages appended back to back keep their order.
func (s *Store) stamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.now().UnixNano()
	if n <= s.last {
		n = s.last + 1
	}
	s.last = n
	return n
}

// AddMessage appends one turn to owner's conversation.
func (s *Store) AddMessage(ctx context.Context, owner, role, content string) error {
	if owner == "" {
		return ErrNoOwner
	}
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("memory: invalid role %q", role)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate message id: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.d.Rebind(`
		INSERT INTO messages (id, owner_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), id.String(), owner, role, content, s.stamp())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// RecentMessages returns owner's newest limit messages, oldest first.
func (s *Store) RecentMessages(ctx context.Context, owner string, limit int) ([]Message, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}
	if limit <= 0 {
		return []Message{}, nil
	}

	rows, err := s.db.QueryContext(ctx, s.d.Rebind(`
		SELECT id, role, content, created_at
		FROM messages
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`), owner, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m       Message
			created int64
		)
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = time.Unix(0, created).UTC()
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	// Newest-first from the query; callers want reading order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}
