package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies provider failures for retry and status mapping.
type ErrorKind int

const (
	// KindService is a non-transient provider error (bad request,
	// authentication, unexpected response). Not retried.
	KindService ErrorKind = iota

	// KindRateLimit means the provider throttled the request.
	KindRateLimit

	// KindConnectivity covers transport failures, timeouts and
	// gateway errors.
	KindConnectivity
)

// String returns the metric/log label for k.
func (k ErrorKind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindConnectivity:
		return "connectivity"
	default:
		return "service"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int // zero for transport failures
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return KindService, false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindRateLimit || kind == KindConnectivity)
}

// classifyStatus maps a non-2xx HTTP status to an error kind.
func classifyStatus(code int) ErrorKind {
	switch code {
	case http.StatusTooManyRequests:
		return KindRateLimit
	case http.StatusRequestTimeout, http.StatusBadGateway, http.StatusServiceUnavailable,
		http.StatusGatewayTimeout, 529: // 529: Anthropic "overloaded"
		return KindConnectivity
	default:
		return KindService
	}
}

// statusError builds an *Error from a non-2xx response body, pulling the
// message out of the common {"error":{"message":...}} shapes.
func statusError(provider string, code int, body string) *Error {
	return &Error{
		Kind:       classifyStatus(code),
		Provider:   provider,
		StatusCode: code,
		Message:    errorMessage(body),
	}
}

func transportError(provider string, err error) *Error {
	return &Error{Kind: KindConnectivity, Provider: provider, Err: err}
}

func errorMessage(body string) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal([]byte(body), &envelope) == nil && len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if json.Unmarshal(envelope.Error, &flat) == nil && flat != "" {
			return flat
		}
	}
	return strings.TrimSpace(body)
}
