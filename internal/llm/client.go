package llm

import "context"

// Client is the interface that all providers implement.
type Client interface {
	// Chat sends one request and returns the model's reply. tools holds
	// OpenAI-style function definitions; nil offers no tools.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any, opts ChatOptions) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
