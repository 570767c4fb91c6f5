// Package tasks stores per-user task records. Every operation is keyed by
// an owner identifier supplied by the caller; a record owned by someone
// else is indistinguishable from one that does not exist.
package tasks

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Field limits shared with the tool schemas.
const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 2000
	DefaultListLimit  = 50
	MaxListLimit      = 100
)

// Priority is a task's urgency level.
type Priority string

// Known priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists the valid priorities in schema order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority validates a priority name. Matching is exact.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", errInvalidPriority
	}
	return p, nil
}

// Task is a user-owned unit of work.
type Task struct {
	ID          int64     `json:"id"`
	OwnerID     string    `json:"-"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    Priority  `json:"priority"`
	IsComplete  bool      `json:"is_complete"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Sentinel errors. Check with errors.Is.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("task not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ArgumentError describes a rejected field value. It matches
// ErrInvalidArgument under errors.Is.
type ArgumentError struct {
	Reason string
}

// Error implements the error interface.
func (e *ArgumentError) Error() string { return "invalid argument: " + e.Reason }

// Is makes errors.Is(err, ErrInvalidArgument) true.
func (e *ArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

func invalid(format string, args ...any) error {
	return &ArgumentError{Reason: fmt.Sprintf(format, args...)}
}

var errInvalidPriority = invalid("Invalid priority. Must be: low, medium, or high")

func checkOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return ErrUnauthorized
	}
	return nil
}

// normalizeTitle trims s and enforces the 1..MaxTitleLen rune bound.
func normalizeTitle(s string) (string, error) {
	s = strings.TrimSpace(s)
	if n := utf8.RuneCountInString(s); n == 0 || n > MaxTitleLen {
		return "", invalid("Title must be between 1 and %d characters", MaxTitleLen)
	}
	return s, nil
}

func normalizeDescription(s string) (string, error) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > MaxDescriptionLen {
		return "", invalid("Description must be at most %d characters", MaxDescriptionLen)
	}
	return s, nil
}

// foldTitle is the case folding applied to stored titles and search
// queries alike. Matching runs against the folded column so it does not
// depend on the database's LOWER, which in SQLite folds ASCII only.
func foldTitle(s string) string {
	return strings.ToLower(s)
}

// titleVariants expands a search query into the lowercase substrings
// a title may contain to count as a match. Besides the query itself it
// adds one naive singular/plural form: a trailing "s" is stripped or
// appended, and "ies" and "y" endings are swapped so that
// "grocery" and "groceries" find each other.
func titleVariants(query string) []string {
	q := foldTitle(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	variants := []string{q}
	add := func(v string) {
		if v == "" {
			return
		}
		for _, existing := range variants {
			if existing == v {
				return
			}
		}
		variants = append(variants, v)
	}

	switch {
	case strings.HasSuffix(q, "ies"):
		add(strings.TrimSuffix(q, "ies") + "y")
		add(strings.TrimSuffix(q, "s"))
	case strings.HasSuffix(q, "s"):
		add(strings.TrimSuffix(q, "s"))
	case strings.HasSuffix(q, "y"):
		add(strings.TrimSuffix(q, "y") + "ies")
		add(q + "s")
	default:
		add(q + "s")
	}
	return variants
}

// likePattern wraps v in % wildcards, escaping LIKE metacharacters so
// they match literally. The query must use ESCAPE '\'.
func likePattern(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(v) + "%"
}
