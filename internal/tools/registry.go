package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/laraib28/todo-k8s/internal/tasks"
)

// TaskStore is the subset of *tasks.Store the tools need.
type TaskStore interface {
	Create(ctx context.Context, owner, title, description string, priority tasks.Priority) (*tasks.Task, error)
	List(ctx context.Context, owner string, f tasks.ListFilter) (*tasks.ListResult, error)
	Update(ctx context.Context, owner string, id int64, c tasks.Changes) (*tasks.Task, error)
	SetComplete(ctx context.Context, owner string, id int64, complete bool) (*tasks.Task, error)
	Delete(ctx context.Context, owner string, id int64) error
	Get(ctx context.Context, owner string, id int64) (*tasks.Task, error)
}

type handler func(ctx context.Context, owner string, a args) (Result, error)

// Registry dispatches tool calls to the task store. A Registry built
// without a store is the "tools unavailable" variant: it offers no
// definitions and Available reports false.
type Registry struct {
	store    TaskStore
	handlers map[Name]handler
	defs     []map[string]any
	logger   *slog.Logger
}

// NewRegistry returns a ready registry backed by store. Pass a nil store
// to build one with tools unavailable.
func NewRegistry(store TaskStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{store: store, logger: logger}
	if store == nil {
		return r
	}

	r.handlers = map[Name]handler{
		CreateTask:           r.createTask,
		ListTasks:            r.listTasks,
		UpdateTask:           r.updateTask,
		ToggleTaskCompletion: r.toggleTaskCompletion,
		DeleteTask:           r.deleteTask,
		GetTask:              r.getTask,
	}
	for _, d := range definitions() {
		r.defs = append(r.defs, d.wire())
	}
	return r
}

// Available reports whether tool calls can be served.
func (r *Registry) Available() bool {
	return r != nil && r.store != nil
}

// Definitions returns the tool schemas offered to the model, or nil when
// tools are unavailable. The slice is shared; callers must not modify it.
func (r *Registry) Definitions() []map[string]any {
	if !r.Available() {
		return nil
	}
	return r.defs
}

// Execute runs one tool call on behalf of owner. It never returns an
// error or panics: every failure is reported in the Result.
func (r *Registry) Execute(ctx context.Context, owner, name string, arguments map[string]any) (res Result) {
	if !r.Available() {
		return failure(msgUnavailable)
	}
	if strings.TrimSpace(owner) == "" {
		return failure(msgUnauthorized)
	}
	n, ok := ParseName(name)
	if !ok {
		return failure("Unknown tool: " + name)
	}

	a := args(arguments)
	if a == nil {
		a = args{}
	}
	if raw, ok := a.rawArguments(); ok {
		r.logger.Warn("tool arguments were not valid JSON", "tool", name, "raw", raw)
		return failure("Invalid arguments: expected a JSON object")
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", p)
			res = failure(fmt.Sprintf("Tool execution failed: %v", p))
		}
	}()

	out, err := r.handlers[n](ctx, owner, a)
	if err != nil {
		return r.describe(name, err)
	}
	return out
}

// describe converts a handler error into a failed envelope.
func (r *Registry) describe(name string, err error) Result {
	var ae *argError
	var te *tasks.ArgumentError
	switch {
	case errors.As(err, &ae):
		return failure(ae.msg)
	case errors.As(err, &te):
		return failure(te.Reason)
	case errors.Is(err, tasks.ErrUnauthorized):
		return failure(msgUnauthorized)
	case errors.Is(err, tasks.ErrNotFound):
		return failure(msgNotFound)
	default:
		r.logger.Warn("tool execution failed", "tool", name, "error", err)
		return failure("Tool execution failed: " + err.Error())
	}
}

func taskResult(t *tasks.Task) Result {
	return Result{Success: true, Task: t}
}

func (r *Registry) createTask(ctx context.Context, owner string, a args) (Result, error) {
	title, _, err := a.str("title", true)
	if err != nil {
		return Result{}, err
	}
	desc, _, err := a.str("description", false)
	if err != nil {
		return Result{}, err
	}
	p, _, err := a.priority("Invalid priority. Must be: low, medium, or high")
	if err != nil {
		return Result{}, err
	}

	t, err := r.store.Create(ctx, owner, title, desc, p)
	if err != nil {
		return Result{}, err
	}
	return taskResult(t), nil
}

func (r *Registry) listTasks(ctx context.Context, owner string, a args) (Result, error) {
	var f tasks.ListFilter
	var err error

	if f.IsComplete, err = a.boolean("is_complete", false); err != nil {
		return Result{}, err
	}
	if f.Priority, _, err = a.priority("Invalid priority. Must be: low, medium, or high"); err != nil {
		return Result{}, err
	}
	if f.TitleQuery, _, err = a.str("title_query", false); err != nil {
		return Result{}, err
	}
	limit, ok, err := a.integer("limit", false)
	if err != nil {
		return Result{}, err
	}
	if ok {
		if limit < 1 || limit > tasks.MaxListLimit {
			return Result{}, badArg("limit must be between 1 and %d", tasks.MaxListLimit)
		}
		f.Limit = int(limit)
	}

	list, err := r.store.List(ctx, owner, f)
	if err != nil {
		return Result{}, err
	}
	count := list.Count
	return Result{Success: true, Tasks: list.Tasks, Count: &count}, nil
}

func (r *Registry) updateTask(ctx context.Context, owner string, a args) (Result, error) {
	id, _, err := a.integer("task_id", true)
	if err != nil {
		return Result{}, err
	}

	var c tasks.Changes
	if title, ok, err := a.str("title", false); err != nil {
		return Result{}, err
	} else if ok {
		c.Title = &title
	}
	if desc, ok, err := a.str("description", false); err != nil {
		return Result{}, err
	} else if ok {
		c.Description = &desc
	}
	if p, ok, err := a.priority("Invalid priority"); err != nil {
		return Result{}, err
	} else if ok {
		c.Priority = &p
	}

	t, err := r.store.Update(ctx, owner, id, c)
	if err != nil {
		return Result{}, err
	}
	return taskResult(t), nil
}

func (r *Registry) toggleTaskCompletion(ctx context.Context, owner string, a args) (Result, error) {
	id, _, err := a.integer("task_id", true)
	if err != nil {
		return Result{}, err
	}
	complete, err := a.boolean("is_complete", true)
	if err != nil {
		return Result{}, err
	}

	t, err := r.store.SetComplete(ctx, owner, id, *complete)
	if err != nil {
		return Result{}, err
	}
	return taskResult(t), nil
}

func (r *Registry) deleteTask(ctx context.Context, owner string, a args) (Result, error) {
	id, _, err := a.integer("task_id", true)
	if err != nil {
		return Result{}, err
	}
	if err := r.store.Delete(ctx, owner, id); err != nil {
		return Result{}, err
	}
	return Result{Success: true, TaskID: &id, Message: msgDeleted}, nil
}

func (r *Registry) getTask(ctx context.Context, owner string, a args) (Result, error) {
	id, _, err := a.integer("task_id", true)
	if err != nil {
		return Result{}, err
	}
	t, err := r.store.Get(ctx, owner, id)
	if err != nil {
		return Result{}, err
	}
	return taskResult(t), nil
}
