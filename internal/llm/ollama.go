package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaClient is a client for a local Ollama server.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL string, logger *slog.Logger) *OllamaClient {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newProviderClient(),
		logger:     logger.With("provider", "ollama"),
	}
}

type ollamaRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Options  *ollamaOptions   `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

// ollamaMessage matches Message except that tool calls carry no ID and
// arguments are objects rather than strings.
type ollamaMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	ToolCalls []struct {
		Function FunctionCall `json:"function"`
	} `json:"tool_calls,omitempty"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	TotalDuration   int64         `json:"total_duration,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

// Chat sends a non-streaming chat request to Ollama.
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any, opts ChatOptions) (*ChatResponse, error) {
	req := ollamaRequest{
		Model:    model,
		Messages: convertToOllama(messages),
		Tools:    tools,
	}
	if opts.MaxTokens > 0 || opts.Temperature != nil {
		req.Options = &ollamaOptions{Temperature: opts.Temperature, NumPredict: opts.MaxTokens}
	}

	c.logger.Debug("preparing request", "model", model, "messages", len(messages), "tools", len(tools))

	start := time.Now()
	var resp ollamaResponse
	if err := postJSON(ctx, c.httpClient, c.logger, "ollama", c.baseURL+"/api/chat", nil, req, &resp); err != nil {
		return nil, err
	}

	result := &ChatResponse{
		Model: resp.Model,
		Message: Message{
			Role:    "assistant",
			Content: resp.Message.Content,
		},
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
		Duration:     time.Since(start),
	}
	for i, tc := range resp.Message.ToolCalls {
		result.Message.ToolCalls = append(result.Message.ToolCalls, ToolCall{
			ID:       fmt.Sprintf("ollama_%d", i),
			Function: tc.Function,
		})
	}
	// Smaller models often write the call into the content instead of
	// using the native field.
	if len(tools) > 0 && len(result.Message.ToolCalls) == 0 && result.Message.Content != "" {
		if parsed := parseTextToolCalls(result.Message.Content); len(parsed) > 0 {
			result.Message.ToolCalls = parsed
			result.Message.Content = ""
		}
	}

	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.Message.ToolCalls),
	)
	return result, nil
}

// Ping checks if Ollama is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	return get(ctx, c.httpClient, "ollama", c.baseURL+"/api/tags", nil)
}

func convertToOllama(messages []Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages))
	for _, msg := range messages {
		om := ollamaMessage{Role: msg.Role, Content: msg.Content}
		for _, tc := range msg.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, struct {
				Function FunctionCall `json:"function"`
			}{Function: tc.Function})
		}
		out = append(out, om)
	}
	return out
}

// parseTextToolCalls extracts tool calls written into content text.
// Handled forms:
//   - {"name": "...", "arguments": {...}}
//   - [{"name": "...", "arguments": {...}}, ...]
//   - either of the above wrapped in <tool_call>...</tool_call>
func parseTextToolCalls(content string) []ToolCall {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "<tool_call>"); start != -1 {
		content = content[start+len("<tool_call>"):]
		if end := strings.Index(content, "</tool_call>"); end != -1 {
			content = content[:end]
		}
		content = strings.TrimSpace(content)
	}
	if content == "" {
		return nil
	}

	var calls []FunctionCall
	if err := json.Unmarshal([]byte(content), &calls); err != nil {
		var single FunctionCall
		if err := json.Unmarshal([]byte(content), &single); err != nil {
			return nil
		}
		calls = []FunctionCall{single}
	}

	var result []ToolCall
	for i, fc := range calls {
		if fc.Name == "" {
			continue
		}
		if fc.Arguments == nil {
			fc.Arguments = map[string]any{}
		}
		result = append(result, ToolCall{ID: fmt.Sprintf("text_%d", i), Function: fc})
	}
	return result
}
