package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig bounds a RetryClient.
type RetryConfig struct {
	// Attempts is the total number of calls, including the first.
	Attempts int

	// BaseDelay is the wait after the first failure; it doubles after
	// each further failure up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// CallTimeout bounds each individual attempt. Zero means no bound
	// beyond the caller's context.
	CallTimeout time.Duration
}

// DefaultRetryConfig is three attempts waiting 2s then 4s, capped at 10s.
var DefaultRetryConfig = RetryConfig{
	Attempts:    3,
	BaseDelay:   2 * time.Second,
	MaxDelay:    10 * time.Second,
	CallTimeout: 60 * time.Second,
}

// RetryClient wraps a Client and retries transient failures (rate
// limits and connectivity) with exponential backoff. Other errors are
// returned immediately.
type RetryClient struct {
	next   Client
	cfg    RetryConfig
	logger *slog.Logger

	sleep   func(ctx context.Context, d time.Duration) error
	onRetry func(kind ErrorKind)
}

// NewRetryClient wraps next.
func NewRetryClient(next Client, cfg RetryConfig, logger *slog.Logger) *RetryClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &RetryClient{
		next:   next,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

// OnRetry registers a hook called once per retry with the kind of the
// failure that triggered it.
func (r *RetryClient) OnRetry(fn func(kind ErrorKind)) {
	r.onRetry = fn
}

// Backoff returns the wait before attempt n+1, after n failures.
func (r *RetryClient) Backoff(n int) time.Duration {
	d := r.cfg.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if r.cfg.MaxDelay > 0 && d >= r.cfg.MaxDelay {
			return r.cfg.MaxDelay
		}
	}
	if r.cfg.MaxDelay > 0 && d > r.cfg.MaxDelay {
		return r.cfg.MaxDelay
	}
	return d
}

// Chat calls the wrapped client, retrying transient failures.
func (r *RetryClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any, opts ChatOptions) (*ChatResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		resp, err := r.attempt(ctx, model, messages, tools, opts)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("LLM call succeeded after retry", "model", model, "attempt", attempt)
			}
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("llm call abandoned: %w", ctx.Err())
		}
		if !IsTransient(err) || attempt == r.cfg.Attempts {
			break
		}

		kind, _ := KindOf(err)
		delay := r.Backoff(attempt)
		r.logger.Warn("LLM call failed, retrying",
			"model", model,
			"attempt", attempt,
			"max_attempts", r.cfg.Attempts,
			"kind", kind.String(),
			"delay", delay,
			"error", err,
		)
		if r.onRetry != nil {
			r.onRetry(kind)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("llm call abandoned: %w", err)
		}
	}
	return nil, lastErr
}

func (r *RetryClient) attempt(ctx context.Context, model string, messages []Message, tools []map[string]any, opts ChatOptions) (*ChatResponse, error) {
	if r.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
	}
	return r.next.Chat(ctx, model, messages, tools, opts)
}

// Ping passes through without retrying.
func (r *RetryClient) Ping(ctx context.Context) error {
	return r.next.Ping(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
