// Package connwatch tracks the reachability of the services todochat
// depends on, such as the reasoning providers. Each watcher probes its
// service with exponential backoff until the first success, then polls
// at a fixed interval and reports transitions.
//
// connwatch never blocks requests: a chat turn still goes out to a
// provider reported down. The status only feeds /health and metrics.
package connwatch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Probe checks whether a service is reachable. It returns nil if healthy.
type Probe func(ctx context.Context) error

// Schedule controls probe timing.
type Schedule struct {
	// InitialDelay is the wait after the first failed startup probe. It
	// doubles after each further failure, up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// StartupAttempts bounds the backoff phase before falling back to
	// regular polling.
	StartupAttempts int

	PollInterval time.Duration
	ProbeTimeout time.Duration
}

// DefaultSchedule is 2s, 4s, 8s ... capped at 60s for six attempts, then
// a probe every minute.
var DefaultSchedule = Schedule{
	InitialDelay:    2 * time.Second,
	MaxDelay:        60 * time.Second,
	StartupAttempts: 6,
	PollInterval:    time.Minute,
	ProbeTimeout:    10 * time.Second,
}

func (s Schedule) withDefaults() Schedule {
	if s.InitialDelay <= 0 {
		s.InitialDelay = DefaultSchedule.InitialDelay
	}
	if s.MaxDelay <= 0 {
		s.MaxDelay = DefaultSchedule.MaxDelay
	}
	if s.StartupAttempts <= 0 {
		s.StartupAttempts = DefaultSchedule.StartupAttempts
	}
	if s.PollInterval <= 0 {
		s.PollInterval = DefaultSchedule.PollInterval
	}
	if s.ProbeTimeout <= 0 {
		s.ProbeTimeout = DefaultSchedule.ProbeTimeout
	}
	return s
}

// Status is a point-in-time view of one watched service.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Watcher monitors one service.
type Watcher struct {
	name     string
	probe    Probe
	sched    Schedule
	onChange func(ready bool, err error)
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	ready     bool
	lastErr   error
	lastCheck time.Time
}

// Status returns the watcher's current view.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Status{Name: w.name, Ready: w.ready, LastCheck: w.lastCheck}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// Stop cancels the watcher and waits for it to exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	delay := w.sched.InitialDelay
	for attempt := 1; attempt <= w.sched.StartupAttempts; attempt++ {
		if w.check(ctx) == nil {
			break
		}
		if attempt == w.sched.StartupAttempts {
			w.logger.Warn("service unreachable at startup, polling", "attempts", attempt)
			break
		}
		if !sleep(ctx, delay) {
			return
		}
		delay = min(delay*2, w.sched.MaxDelay)
	}

	ticker := time.NewTicker(w.sched.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

// check runs one probe, records the result and reports a transition.
// The first result always counts as a transition.
func (w *Watcher) check(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, w.sched.ProbeTimeout)
	err := w.probe(pctx)
	cancel()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	w.mu.Lock()
	first := w.lastCheck.IsZero()
	changed := first || w.ready != (err == nil)
	w.ready = err == nil
	w.lastErr = err
	w.lastCheck = time.Now()
	w.mu.Unlock()

	if !changed {
		return err
	}
	switch {
	case err == nil:
		w.logger.Info("service reachable")
	case first:
		w.logger.Debug("service not reachable yet", "error", err)
	default:
		w.logger.Warn("service became unreachable", "error", err)
	}
	if w.onChange != nil {
		w.onChange(err == nil, err)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Manager owns a set of watchers. A nil *Manager reports no services.
type Manager struct {
	logger *slog.Logger

	mu       sync.RWMutex
	watchers map[string]*Watcher
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger, watchers: make(map[string]*Watcher)}
}

// Watch starts a watcher for name. onChange, if non-nil, is called
// synchronously from the watcher goroutine on every ready/down
// transition and must not block.
func (m *Manager) Watch(ctx context.Context, name string, probe Probe, sched Schedule, onChange func(ready bool, err error)) *Watcher {
	wctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		name:     name,
		probe:    probe,
		sched:    sched.withDefaults(),
		onChange: onChange,
		logger:   m.logger.With("service", name),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	if old, ok := m.watchers[name]; ok {
		defer old.Stop()
	}
	m.watchers[name] = w
	m.mu.Unlock()

	go w.run(wctx)
	return w
}

// Status returns every watcher's status, sorted by name.
func (m *Manager) Status() []Status {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.watchers))
	for _, w := range m.watchers {
		out = append(out, w.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stop shuts down all watchers.
func (m *Manager) Stop() {
	if m == nil {
		return
	}
	m.mu.RLock()
	ws := make([]*Watcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		ws = append(ws, w)
	}
	m.mu.RUnlock()
	for _, w := range ws {
		w.Stop()
	}
}
