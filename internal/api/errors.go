package api

import (
	"errors"
	"net/http"

	"github.com/laraib28/todo-k8s/internal/agent"
	"github.com/laraib28/todo-k8s/internal/auth"
	"github.com/laraib28/todo-k8s/internal/llm"
)

// Error types reported in error bodies.
const (
	errTypeInvalidRequest = "invalid_request_error"
	errTypeAuthentication = "authentication_error"
	errTypeRateLimit      = "rate_limit_error"
	errTypeUnavailable    = "service_unavailable"
	errTypeUpstream       = "upstream_error"
	errTypeInternal       = "internal_error"
)

// User-facing messages for reasoning-service failures.
const (
	msgRateLimited  = "AI service rate limit exceeded. Please try again later."
	msgUnreachable  = "Unable to connect to AI service. Please try again later."
	msgServiceFault = "The AI service returned an error. Please try again later."
	msgInternal     = "Internal server error"
	msgTooManyChats = "Too many requests. Please slow down."
)

// classify maps an error from the chat path to a status code, error
// type and user-facing message. Provider details stay in the logs.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, agent.ErrUnauthorized),
		errors.Is(err, auth.ErrNoCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, errTypeAuthentication, "Unauthorized"
	}

	if kind, ok := llm.KindOf(err); ok {
		switch kind {
		case llm.KindRateLimit:
			return http.StatusTooManyRequests, errTypeRateLimit, msgRateLimited
		case llm.KindConnectivity:
			return http.StatusServiceUnavailable, errTypeUnavailable, msgUnreachable
		default:
			return http.StatusBadGateway, errTypeUpstream, msgServiceFault
		}
	}
	return http.StatusInternalServerError, errTypeInternal, msgInternal
}
