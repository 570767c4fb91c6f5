// Package metrics defines the Prometheus collectors for the chat service.
// A nil *Metrics is valid and records nothing, so components can be
// built without instrumentation in tests and one-shot CLI runs.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chat turn outcomes.
const (
	OutcomeReply    = "reply"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	turns     *prometheus.CounterVec
	rounds    prometheus.Histogram
	toolCalls *prometheus.CounterVec
	retries   *prometheus.CounterVec
	requests  *prometheus.CounterVec
	depUp     *prometheus.GaugeVec
}

// New creates and registers the collectors, along with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todochat_chat_turns_total",
			Help: "Chat turns processed, by outcome.",
		}, []string{"outcome"}),
		rounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "todochat_chat_rounds",
			Help:    "Reasoning rounds used per chat turn.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todochat_tool_calls_total",
			Help: "Tool invocations, by tool and success.",
		}, []string{"tool", "success"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todochat_llm_retries_total",
			Help: "Reasoning service retries, by failure kind.",
		}, []string{"kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todochat_http_requests_total",
			Help: "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
		depUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "todochat_dependency_up",
			Help: "Whether a watched dependency answered its last probe (1) or not (0).",
		}, []string{"service"}),
	}
	m.reg.MustRegister(
		m.turns, m.rounds, m.toolCalls, m.retries, m.requests, m.depUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ChatTurn records one finished turn.
func (m *Metrics) ChatTurn(outcome string, rounds int) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	if rounds > 0 {
		m.rounds.Observe(float64(rounds))
	}
}

// ToolCall records one tool invocation.
func (m *Metrics) ToolCall(tool string, success bool) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, strconv.FormatBool(success)).Inc()
}

// LLMRetry records one retry of a reasoning-service call.
func (m *Metrics) LLMRetry(kind string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(kind).Inc()
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// DependencyUp sets the reachability gauge for a watched service.
func (m *Metrics) DependencyUp(service string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.depUp.WithLabelValues(service).Set(v)
}
