// Package agent implements the chat orchestration loop: it turns one
// user message into a final reply by alternating reasoning-service calls
// with task tool invocations, up to a fixed round budget.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/laraib28/todo-k8s/internal/llm"
	"github.com/laraib28/todo-k8s/internal/memory"
	"github.com/laraib28/todo-k8s/internal/metrics"
	"github.com/laraib28/todo-k8s/internal/prompts"
	"github.com/laraib28/todo-k8s/internal/tools"
	"github.com/laraib28/todo-k8s/internal/usage"
)

// Defaults applied by NewLoop when the corresponding Config field is zero.
const (
	DefaultMaxRounds    = 5
	DefaultHistoryLimit = 10
)

// ErrUnauthorized is returned when ProcessMessage is called without an owner.
var ErrUnauthorized = errors.New("agent: owner required")

// MemoryStore is the conversation log the loop reads and appends to.
type MemoryStore interface {
	AddMessage(ctx context.Context, owner, role, content string) error
	RecentMessages(ctx context.Context, owner string, limit int) ([]memory.Message, error)
	RecordToolCall(ctx context.Context, owner string, tc memory.ToolCall) error
}

// UsageRecorder receives one record per reasoning-service round.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// Config holds the loop's collaborators and limits.
type Config struct {
	Logger  *slog.Logger
	Memory  MemoryStore
	LLM     llm.Client
	Tools   *tools.Registry
	Usage   UsageRecorder    // optional
	Metrics *metrics.Metrics // optional

	Model        string
	MaxRounds    int
	HistoryLimit int
	MaxTokens    int
	Temperature  *float64
}

// Metadata describes the last successful task action of a turn.
type Metadata struct {
	Action string `json:"action"`
	TaskID *int64 `json:"task_id,omitempty"`
	Count  *int   `json:"count,omitempty"`
}

// Action tags reported in Metadata.
const (
	ActionTaskCreated     = "task_created"
	ActionTaskUpdated     = "task_updated"
	ActionTaskDeleted     = "task_deleted"
	ActionTaskCompleted   = "task_completed"
	ActionTaskUncompleted = "task_uncompleted"
	ActionTasksListed     = "tasks_listed"
	ActionNone            = "no_action"
)

// Response is the outcome of one chat turn.
type Response struct {
	Message  string    `json:"message"`
	Metadata *Metadata `json:"metadata,omitempty"`

	// Rounds is the number of reasoning-service calls made.
	Rounds int `json:"-"`
	// RequestID correlates log lines, usage records and tool audits.
	RequestID string `json:"-"`
}

// Loop is the chat orchestration loop. It holds no per-turn state and is
// safe for concurrent use.
type Loop struct {
	logger  *slog.Logger
	memory  MemoryStore
	llm     llm.Client
	tools   *tools.Registry
	usage   UsageRecorder
	metrics *metrics.Metrics

	model        string
	maxRounds    int
	historyLimit int
	opts         llm.ChatOptions
}

// NewLoop creates a loop from cfg. A nil Tools registry is treated as
// the tools-unavailable variant.
func NewLoop(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := cfg.Tools
	if reg == nil {
		reg = tools.NewRegistry(nil, logger)
	}
	l := &Loop{
		logger:       logger,
		memory:       cfg.Memory,
		llm:          cfg.LLM,
		tools:        reg,
		usage:        cfg.Usage,
		metrics:      cfg.Metrics,
		model:        cfg.Model,
		maxRounds:    cfg.MaxRounds,
		historyLimit: cfg.HistoryLimit,
		opts:         llm.ChatOptions{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature},
	}
	if l.maxRounds <= 0 {
		l.maxRounds = DefaultMaxRounds
	}
	if l.historyLimit <= 0 {
		l.historyLimit = DefaultHistoryLimit
	}
	return l
}

// turn is the state owned by one ProcessMessage call.
type turn struct {
	owner     string
	requestID string
	messages  []llm.Message
	metadata  *Metadata
	rounds    int
	log       *slog.Logger
}

// ProcessMessage runs one chat turn for owner. Tool failures are folded
// into the transcript; reasoning-service failures are returned after the
// retry layer gives up.
func (l *Loop) ProcessMessage(ctx context.Context, owner, text string) (*Response, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, ErrUnauthorized
	}

	requestID := newRequestID()
	t := &turn{
		owner:     owner,
		requestID: requestID,
		log:       l.logger.With("request_id", requestID, "owner", owner),
	}
	start := time.Now()
	t.log.Info("chat turn started", "model", l.model, "tools", l.tools.Available())

	if err := l.memory.AddMessage(ctx, owner, memory.RoleUser, text); err != nil {
		l.metrics.ChatTurn(metrics.OutcomeError, 0)
		return nil, fmt.Errorf("append user message: %w", err)
	}
	if err := l.buildTranscript(ctx, t); err != nil {
		l.metrics.ChatTurn(metrics.OutcomeError, 0)
		return nil, err
	}

	var (
		reply string
		err   error
	)
	if l.tools.Available() {
		reply, err = l.runWithTools(ctx, t)
	} else {
		reply, err = l.runPlain(ctx, t)
	}
	if err != nil {
		t.log.Error("reasoning call failed", "rounds", t.rounds, "error", err)
		l.metrics.ChatTurn(metrics.OutcomeError, t.rounds)
		return nil, err
	}

	outcome := metrics.OutcomeReply
	if strings.TrimSpace(reply) == "" {
		reply = prompts.FallbackReply
		outcome = metrics.OutcomeFallback
	}

	if err := l.memory.AddMessage(ctx, owner, memory.RoleAssistant, reply); err != nil {
		l.metrics.ChatTurn(metrics.OutcomeError, t.rounds)
		return nil, fmt.Errorf("append assistant reply: %w", err)
	}

	l.metrics.ChatTurn(outcome, t.rounds)
	t.log.Info("chat turn finished",
		"rounds", t.rounds,
		"outcome", outcome,
		"action", actionOf(t.metadata),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return &Response{
		Message:   reply,
		Metadata:  t.metadata,
		Rounds:    t.rounds,
		RequestID: requestID,
	}, nil
}

func (l *Loop) buildTranscript(ctx context.Context, t *turn) error {
	history, err := l.memory.RecentMessages(ctx, t.owner, l.historyLimit)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	system := prompts.SystemPrompt()
	if !l.tools.Available() {
		system += prompts.ToolsUnavailableNote
	}

	t.messages = make([]llm.Message, 0, len(history)+1)
	t.messages = append(t.messages, llm.Message{Role: "system", Content: system})
	for _, m := range history {
		t.messages = append(t.messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	t.log.Debug("transcript assembled", "history", len(history))
	return nil
}

// runPlain makes a single call without tool schemas.
func (l *Loop) runPlain(ctx context.Context, t *turn) (string, error) {
	resp, err := l.call(ctx, t, nil)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// runWithTools alternates model calls and tool dispatch until the model
// answers with text or the round budget runs out. An exhausted budget
// yields an empty reply and clears the metadata.
func (l *Loop) runWithTools(ctx context.Context, t *turn) (string, error) {
	defs := l.tools.Definitions()
	for t.rounds < l.maxRounds {
		resp, err := l.call(ctx, t, defs)
		if err != nil {
			return "", err
		}
		if !resp.HasToolCalls() {
			return resp.Message.Content, nil
		}
		for i, tc := range resp.Message.ToolCalls {
			l.dispatch(ctx, t, i, tc)
		}
	}

	t.log.Warn("round budget exhausted without a final reply", "max_rounds", l.maxRounds)
	t.metadata = nil
	return "", nil
}

func (l *Loop) call(ctx context.Context, t *turn, defs []map[string]any) (*llm.ChatResponse, error) {
	t.rounds++
	round := t.rounds
	t.log.Debug("calling reasoning service", "round", round, "messages", len(t.messages), "tools", len(defs))

	resp, err := l.llm.Chat(ctx, l.model, t.messages, defs, l.opts)
	if err != nil {
		return nil, fmt.Errorf("reasoning call (round %d): %w", round, err)
	}
	l.recordUsage(ctx, t, round, resp)
	return resp, nil
}

// dispatch executes one tool call and appends the invocation and its
// result to the transcript.
func (l *Loop) dispatch(ctx context.Context, t *turn, i int, tc llm.ToolCall) {
	if tc.ID == "" {
		tc.ID = fmt.Sprintf("call_%d_%d", t.rounds, i)
	}
	name := tc.Function.Name

	started := time.Now()
	res := l.tools.Execute(ctx, t.owner, name, tc.Function.Arguments)
	elapsed := time.Since(started)
	payload := res.JSON()

	if res.Success {
		t.log.Debug("tool call succeeded", "round", t.rounds, "tool", name, "elapsed", elapsed)
		if md := metadataFor(name, res); md != nil {
			t.metadata = md
		}
	} else {
		t.log.Warn("tool call failed", "round", t.rounds, "tool", name, "error", res.Error)
	}
	l.metrics.ToolCall(name, res.Success)

	t.messages = append(t.messages,
		llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{tc}},
		llm.Message{Role: "tool", Content: payload, ToolCallID: tc.ID},
	)

	l.audit(ctx, t, tc, payload, res.Success, started, elapsed)
}

func (l *Loop) recordUsage(ctx context.Context, t *turn, round int, resp *llm.ChatResponse) {
	if l.usage == nil {
		return
	}
	model := resp.Model
	if model == "" {
		model = l.model
	}
	err := l.usage.Record(ctx, usage.Record{
		RequestID:    t.requestID,
		OwnerID:      t.owner,
		Model:        model,
		Round:        round,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	})
	if err != nil {
		t.log.Warn("failed to record usage", "round", round, "error", err)
	}
}

func (l *Loop) audit(ctx context.Context, t *turn, tc llm.ToolCall, result string, success bool, started time.Time, elapsed time.Duration) {
	argJSON, err := json.Marshal(tc.Function.Arguments)
	if err != nil {
		argJSON = []byte("{}")
	}
	err = l.memory.RecordToolCall(ctx, t.owner, memory.ToolCall{
		RequestID: t.requestID,
		CallID:    tc.ID,
		Round:     t.rounds,
		ToolName:  tc.Function.Name,
		Arguments: string(argJSON),
		Result:    result,
		Success:   success,
		StartedAt: started,
		Duration:  elapsed,
	})
	if err != nil {
		t.log.Warn("failed to audit tool call", "tool", tc.Function.Name, "error", err)
	}
}

// metadataFor maps a successful tool result to its action metadata.
func metadataFor(name string, res tools.Result) *Metadata {
	if !res.Success {
		return nil
	}
	n, ok := tools.ParseName(name)
	if !ok {
		return nil
	}

	md := &Metadata{Action: ActionNone}
	switch n {
	case tools.CreateTask:
		md.Action = ActionTaskCreated
	case tools.UpdateTask:
		md.Action = ActionTaskUpdated
	case tools.DeleteTask:
		md.Action = ActionTaskDeleted
	case tools.ListTasks:
		md.Action = ActionTasksListed
	case tools.ToggleTaskCompletion:
		md.Action = ActionTaskUncompleted
		if res.Task != nil && res.Task.IsComplete {
			md.Action = ActionTaskCompleted
		}
	}

	if id, ok := res.SubjectID(); ok {
		md.TaskID = &id
	}
	if res.Count != nil {
		c := *res.Count
		md.Count = &c
	}
	return md
}

func actionOf(md *Metadata) string {
	if md == nil {
		return ""
	}
	return md.Action
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
