package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/laraib28/todo-k8s/internal/auth"
)

// MaxMessageLength bounds the characters accepted in one chat message.
const MaxMessageLength = 2000

// History limits for GET /v1/history and GET /v1/tools/calls.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

const maxBodyBytes = 64 << 10

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// requireOwner resolves the request owner or rejects it with 401.
func (s *Server) requireOwner(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			s.errorResponse(w, http.StatusUnauthorized, errTypeAuthentication, "Unauthorized")
			return
		}
		owner, err := s.auth.Owner(r)
		if err != nil {
			s.logger.Debug("request rejected", "path", r.URL.Path, "error", err)
			s.errorResponse(w, http.StatusUnauthorized, errTypeAuthentication, "Unauthorized")
			return
		}
		next(w, r.WithContext(auth.WithOwner(r.Context(), owner)))
	}
}

// handleChat runs one chat turn.
// POST /v1/chat {"message": "add buy milk to my list"}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	owner := auth.OwnerFromContext(r.Context())

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, errTypeInvalidRequest, "invalid request body")
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		s.errorResponse(w, http.StatusBadRequest, errTypeInvalidRequest, "message is required")
		return
	}
	if utf8.RuneCountInString(msg) > MaxMessageLength {
		s.errorResponse(w, http.StatusBadRequest, errTypeInvalidRequest, "message must be at most 2000 characters")
		return
	}

	if !s.limiter.Allow(owner) {
		s.errorResponse(w, http.StatusTooManyRequests, errTypeRateLimit, msgTooManyChats)
		return
	}

	resp, err := s.chat.ProcessMessage(r.Context(), owner, msg)
	if err != nil {
		code, errType, userMsg := classify(err)
		s.logger.Error("chat turn failed", "owner", owner, "status", code, "error", err)
		s.errorResponse(w, code, errType, userMsg)
		return
	}
	writeJSON(w, resp, s.logger)
}

// handleHistory returns the owner's most recent conversation messages
// in chronological order.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	owner := auth.OwnerFromContext(r.Context())
	limit := min(parseIntParam(r, "limit", defaultHistoryLimit), maxHistoryLimit)

	msgs, err := s.history.RecentMessages(r.Context(), owner, limit)
	if err != nil {
		s.logger.Error("history lookup failed", "owner", owner, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, errTypeInternal, msgInternal)
		return
	}
	writeJSON(w, map[string]any{
		"messages": msgs,
		"count":    len(msgs),
	}, s.logger)
}

// handleToolCalls returns the owner's tool audit trail, newest first.
func (s *Server) handleToolCalls(w http.ResponseWriter, r *http.Request) {
	owner := auth.OwnerFromContext(r.Context())
	limit := min(parseIntParam(r, "limit", defaultHistoryLimit), maxHistoryLimit)

	calls, err := s.history.ToolCalls(r.Context(), owner, limit)
	if err != nil {
		s.logger.Error("tool call lookup failed", "owner", owner, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, errTypeInternal, msgInternal)
		return
	}
	writeJSON(w, map[string]any{
		"tool_calls": calls,
		"count":      len(calls),
	}, s.logger)
}

// handleUsage summarizes token usage since the given time, 24 hours ago
// by default.
// GET /v1/usage?since=2026-01-02T15:04:05Z
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, errTypeUnavailable, "usage tracking not configured")
		return
	}
	owner := auth.OwnerFromContext(r.Context())

	end := time.Now()
	start := end.Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, errTypeInvalidRequest, "since must be an RFC 3339 timestamp")
			return
		}
		start = t
	}

	total, err := s.usage.Summary(r.Context(), owner, start, end)
	if err != nil {
		s.logger.Error("usage summary failed", "owner", owner, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, errTypeInternal, msgInternal)
		return
	}
	byModel, err := s.usage.SummaryByModel(r.Context(), owner, start, end)
	if err != nil {
		s.logger.Error("usage summary by model failed", "owner", owner, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, errTypeInternal, msgInternal)
		return
	}

	writeJSON(w, map[string]any{
		"since":    start.UTC().Format(time.RFC3339),
		"until":    end.UTC().Format(time.RFC3339),
		"total":    total,
		"by_model": byModel,
	}, s.logger)
}
