// Package api implements the HTTP boundary of the chat service: owner
// resolution, request validation, rate limiting and the mapping of
// reasoning-service failures onto HTTP status codes.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"

	"github.com/laraib28/todo-k8s/internal/agent"
	"github.com/laraib28/todo-k8s/internal/buildinfo"
	"github.com/laraib28/todo-k8s/internal/connwatch"
	"github.com/laraib28/todo-k8s/internal/memory"
	"github.com/laraib28/todo-k8s/internal/metrics"
	"github.com/laraib28/todo-k8s/internal/usage"
)

// ChatProcessor runs one chat turn.
type ChatProcessor interface {
	ProcessMessage(ctx context.Context, owner, text string) (*agent.Response, error)
}

// HistoryStore exposes an owner's conversation and tool audit trail.
type HistoryStore interface {
	RecentMessages(ctx context.Context, owner string, limit int) ([]memory.Message, error)
	ToolCalls(ctx context.Context, owner string, limit int) ([]memory.ToolCall, error)
}

// UsageStore aggregates token usage.
type UsageStore interface {
	Summary(ctx context.Context, owner string, start, end time.Time) (*usage.Summary, error)
	SummaryByModel(ctx context.Context, owner string, start, end time.Time) (map[string]*usage.Summary, error)
}

// OwnerResolver identifies the owner of a request.
type OwnerResolver interface {
	Owner(r *http.Request) (string, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// DependencyStatus reports the last known state of watched services.
type DependencyStatus interface {
	Status() []connwatch.Status
}

// Config wires the server's collaborators.
type Config struct {
	Address string
	Port    int
	Logger  *slog.Logger

	Chat    ChatProcessor
	History HistoryStore
	Usage   UsageStore // optional
	Auth    OwnerResolver
	Metrics *metrics.Metrics // optional
	DB      Pinger           // optional, checked by /health
	Deps    DependencyStatus // optional, reported by /health

	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	logger  *slog.Logger

	chat    ChatProcessor
	history HistoryStore
	usage   UsageStore
	auth    OwnerResolver
	metrics *metrics.Metrics
	db      Pinger
	deps    DependencyStatus

	origins []string
	limiter *limiterPool
	server  *http.Server
}

// NewServer creates a server from cfg.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: cfg.Address,
		port:    cfg.Port,
		logger:  logger,
		chat:    cfg.Chat,
		history: cfg.History,
		usage:   cfg.Usage,
		auth:    cfg.Auth,
		metrics: cfg.Metrics,
		db:      cfg.DB,
		deps:    cfg.Deps,
		origins: cfg.AllowedOrigins,
		limiter: newLimiterPool(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat", s.requireOwner(s.handleChat))
	mux.HandleFunc("GET /v1/history", s.requireOwner(s.handleHistory))
	mux.HandleFunc("GET /v1/tools/calls", s.requireOwner(s.handleToolCalls))
	mux.HandleFunc("GET /v1/usage", s.requireOwner(s.handleUsage))

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	var h http.Handler = mux
	if len(s.origins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins:   s.origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: true,
		}).Handler(h)
	}
	return s.withLogging(h)
}

// Start serves HTTP until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// A chat turn may wait through several model calls and retries.
		WriteTimeout: 5 * time.Minute,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequest(route, rec.code)

		level := slog.LevelInfo
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			level = slog.LevelDebug
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.code,
			"duration", time.Since(start),
		)
	})
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    errType,
			"code":    code,
		},
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, buildinfo.RuntimeInfo(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			s.errorResponse(w, http.StatusServiceUnavailable, errTypeUnavailable, "database unreachable")
			return
		}
	}

	// An unreachable reasoning provider degrades the service but does not
	// fail the probe: chats may still reach another provider.
	status := "healthy"
	body := map[string]any{"uptime": buildinfo.Uptime().Round(time.Second).String()}
	if s.deps != nil {
		deps := s.deps.Status()
		for _, d := range deps {
			if !d.Ready {
				status = "degraded"
			}
		}
		body["dependencies"] = deps
	}
	body["status"] = status
	writeJSON(w, body, s.logger)
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return defaultVal
	}
	return n
}
