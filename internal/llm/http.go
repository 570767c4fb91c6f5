package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/laraib28/todo-k8s/internal/httpkit"
)

// newProviderClient returns the HTTP client shared by the provider
// implementations. There is no overall timeout; callers bound each
// request with a context deadline.
func newProviderClient() *http.Client {
	return httpkit.NewClient(httpkit.WithTimeout(0))
}

// postJSON sends body as JSON and decodes a 2xx response into out.
// Non-2xx responses and transport failures come back as *Error.
func postJSON(ctx context.Context, hc *http.Client, logger *slog.Logger, provider, url string, header http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	logger.Log(ctx, LevelTrace, "request payload", "json", string(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return transportError(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return statusError(provider, resp.StatusCode, errBody)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindService, Provider: provider, StatusCode: resp.StatusCode,
			Message: "decode response", Err: err}
	}
	return nil
}

// get issues a GET and reports non-2xx statuses as *Error.
func get(ctx context.Context, hc *http.Client, provider, url string, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return transportError(provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(provider, resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}
	httpkit.DrainAndClose(resp.Body, 64*1024)
	return nil
}

// decodeArguments parses a JSON-encoded argument string. Undecodable
// input is preserved under RawArgumentsKey so the caller can report it.
func decodeArguments(s string) map[string]any {
	if s == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(s), &args); err != nil || args == nil {
		return map[string]any{RawArgumentsKey: s}
	}
	return args
}
