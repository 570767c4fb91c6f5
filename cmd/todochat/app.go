package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/laraib28/todo-k8s/internal/agent"
	"github.com/laraib28/todo-k8s/internal/config"
	"github.com/laraib28/todo-k8s/internal/database"
	"github.com/laraib28/todo-k8s/internal/llm"
	"github.com/laraib28/todo-k8s/internal/memory"
	"github.com/laraib28/todo-k8s/internal/metrics"
	"github.com/laraib28/todo-k8s/internal/tasks"
	"github.com/laraib28/todo-k8s/internal/tools"
	"github.com/laraib28/todo-k8s/internal/usage"
)

// app is the assembled service shared by serve and ask.
type app struct {
	db      *sql.DB
	tasks   *tasks.Store
	memory  *memory.Store
	usage   *usage.Store
	metrics *metrics.Metrics
	llm     llm.Client
	loop    *agent.Loop

	// providers holds the configured reasoning providers by name, for
	// reachability watching.
	providers map[string]llm.Client
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if cfg.Database.Driver != "postgres" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, dialect, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a := &app{db: db, metrics: metrics.New()}

	if a.tasks, err = tasks.NewStore(db, dialect); err != nil {
		a.Close()
		return nil, fmt.Errorf("open task store: %w", err)
	}
	if a.memory, err = memory.NewStore(db, dialect); err != nil {
		a.Close()
		return nil, fmt.Errorf("open conversation log: %w", err)
	}
	if a.usage, err = usage.NewStore(db, dialect); err != nil {
		a.Close()
		return nil, fmt.Errorf("open usage store: %w", err)
	}
	logger.Info("database opened", "driver", dialect.Name)

	provider, providers, err := createLLMClient(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	retry := llm.NewRetryClient(provider, llm.RetryConfig{
		Attempts:    cfg.Retry.Attempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		CallTimeout: cfg.Agent.CallTimeout,
	}, logger)
	retry.OnRetry(func(kind llm.ErrorKind) { a.metrics.LLMRetry(kind.String()) })
	a.llm = retry
	a.providers = providers

	// A nil store yields the tools-unavailable registry.
	reg := tools.NewRegistry(nil, logger)
	if cfg.Agent.ToolsOn() {
		reg = tools.NewRegistry(a.tasks, logger)
	} else {
		logger.Warn("task tools disabled; replies will not change any task")
	}

	temp := cfg.Agent.Temperature
	a.loop = agent.NewLoop(agent.Config{
		Logger:       logger,
		Memory:       a.memory,
		LLM:          a.llm,
		Tools:        reg,
		Usage:        a.usage,
		Metrics:      a.metrics,
		Model:        cfg.Models.Default,
		MaxRounds:    cfg.Agent.MaxRounds,
		HistoryLimit: cfg.Agent.HistoryLimit,
		MaxTokens:    cfg.Agent.MaxTokens,
		Temperature:  &temp,
	})
	return a, nil
}

// Close releases the database connection.
func (a *app) Close() error {
	return a.db.Close()
}

// createLLMClient builds a multi-provider client. Each configured provider
// is registered under its name, every listed model is mapped to its
// provider, and the default model's provider serves unlisted models.
func createLLMClient(cfg *config.Config, logger *slog.Logger) (llm.Client, map[string]llm.Client, error) {
	providers := make(map[string]llm.Client)
	if cfg.OpenAI.Configured() {
		providers["openai"] = llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, logger)
	}
	if cfg.Anthropic.Configured() {
		providers["anthropic"] = llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger)
	}
	if cfg.Ollama.Configured() {
		providers["ollama"] = llm.NewOllamaClient(cfg.Ollama.URL, logger)
	}

	defaultProvider := cfg.ProviderFor(cfg.Models.Default)
	fallback, ok := providers[defaultProvider]
	if !ok {
		return nil, nil, fmt.Errorf("provider %q for default model %q is not configured", defaultProvider, cfg.Models.Default)
	}

	multi := llm.NewMultiClient(fallback)
	for name, c := range providers {
		multi.AddProvider(name, c)
		logger.Info("reasoning provider configured", "provider", name)
	}
	for _, m := range cfg.Models.Available {
		if _, ok := providers[m.Provider]; !ok {
			logger.Warn("model mapped to an unconfigured provider", "model", m.Name, "provider", m.Provider)
			continue
		}
		multi.AddModel(m.Name, m.Provider)
	}
	logger.Info("LLM client initialized", "default_model", cfg.Models.Default, "default_provider", defaultProvider)
	return multi, providers, nil
}
