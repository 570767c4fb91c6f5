// Package llm talks to the reasoning services that drive the chat loop.
// Every provider is adapted to the same Client interface and the same
// provider-neutral message types; wire format conversion happens at the
// provider boundaries (openai.go, anthropic.go, ollama.go).
package llm

import (
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message is one entry in the transcript sent to a provider.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // for tool results
}

// ToolCall is a model's request to invoke a named tool.
type ToolCall struct {
	// ID is the provider-assigned call identifier. Tool result messages
	// echo it back in ToolCallID.
	ID       string       `json:"id,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the decoded name and arguments of a ToolCall.
// Arguments that could not be decoded arrive as {"_raw": "<text>"}.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// RawArgumentsKey carries undecodable tool arguments.
const RawArgumentsKey = "_raw"

// ChatOptions are per-request sampling parameters. Zero values leave the
// provider default in place.
type ChatOptions struct {
	MaxTokens   int
	Temperature *float64
}

// ChatResponse is the unified response from any provider.
type ChatResponse struct {
	Model   string
	Message Message

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int

	// Duration is the wall-clock time of the request.
	Duration time.Duration
}

// HasToolCalls reports whether the model asked for tool invocations
// instead of returning final text.
func (r *ChatResponse) HasToolCalls() bool {
	return r != nil && len(r.Message.ToolCalls) > 0
}
