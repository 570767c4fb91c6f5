package connwatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var fastSchedule = Schedule{
	InitialDelay:    time.Millisecond,
	MaxDelay:        4 * time.Millisecond,
	StartupAttempts: 3,
	PollInterval:    5 * time.Millisecond,
	ProbeTimeout:    time.Second,
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcher_BecomesReadyAfterFailures(t *testing.T) {
	var calls atomic.Int32
	probe := func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	var mu sync.Mutex
	var transitions []bool
	m := NewManager(nil)
	defer m.Stop()
	w := m.Watch(context.Background(), "openai", probe, fastSchedule, func(ready bool, _ error) {
		mu.Lock()
		transitions = append(transitions, ready)
		mu.Unlock()
	})

	waitFor(t, func() bool { return w.Status().Ready })

	s := w.Status()
	if s.Name != "openai" || s.LastError != "" || s.LastCheck.IsZero() {
		t.Errorf("Status() = %+v", s)
	}

	mu.Lock()
	defer mu.Unlock()
	// The first failure and the recovery are transitions; the repeat
	// failure is not.
	if len(transitions) != 2 || transitions[0] || !transitions[1] {
		t.Errorf("transitions = %v, want [false true]", transitions)
	}
}

func TestWatcher_ReportsOutage(t *testing.T) {
	var down atomic.Bool
	probe := func(context.Context) error {
		if down.Load() {
			return errors.New("503 service unavailable")
		}
		return nil
	}

	m := NewManager(nil)
	defer m.Stop()
	w := m.Watch(context.Background(), "ollama", probe, fastSchedule, nil)
	waitFor(t, func() bool { return w.Status().Ready })

	down.Store(true)
	waitFor(t, func() bool { return !w.Status().Ready })
	if got := w.Status().LastError; got != "503 service unavailable" {
		t.Errorf("LastError = %q", got)
	}
}

func TestWatcher_StartupExhaustedKeepsPolling(t *testing.T) {
	var calls atomic.Int32
	probe := func(context.Context) error {
		calls.Add(1)
		return errors.New("down")
	}

	m := NewManager(nil)
	defer m.Stop()
	w := m.Watch(context.Background(), "db", probe, fastSchedule, nil)

	waitFor(t, func() bool { return calls.Load() > int32(fastSchedule.StartupAttempts)+1 })
	if w.Status().Ready {
		t.Error("Ready = true for a service that never answered")
	}
}

func TestWatcher_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(nil)
	w := m.Watch(ctx, "svc", func(context.Context) error { return nil }, fastSchedule, nil)
	cancel()

	select {
	case <-w.done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not exit after context cancel")
	}
}

func TestManager_Status(t *testing.T) {
	m := NewManager(nil)
	defer m.Stop()
	ok := func(context.Context) error { return nil }
	a := m.Watch(context.Background(), "b-service", ok, fastSchedule, nil)
	b := m.Watch(context.Background(), "a-service", ok, fastSchedule, nil)
	waitFor(t, func() bool { return a.Status().Ready && b.Status().Ready })

	got := m.Status()
	if len(got) != 2 || got[0].Name != "a-service" || got[1].Name != "b-service" {
		t.Errorf("Status() = %+v, want sorted by name", got)
	}

	var nilMgr *Manager
	if s := nilMgr.Status(); s != nil {
		t.Errorf("nil manager Status() = %v", s)
	}
	nilMgr.Stop()
}

func TestManager_WatchReplaces(t *testing.T) {
	m := NewManager(nil)
	defer m.Stop()
	ok := func(context.Context) error { return nil }
	first := m.Watch(context.Background(), "svc", ok, fastSchedule, nil)
	m.Watch(context.Background(), "svc", ok, fastSchedule, nil)

	select {
	case <-first.done:
	case <-time.After(2 * time.Second):
		t.Fatal("replaced watcher still running")
	}
	if n := len(m.Status()); n != 1 {
		t.Errorf("len(Status()) = %d, want 1", n)
	}
}

func TestScheduleDefaults(t *testing.T) {
	got := Schedule{}.withDefaults()
	if got != DefaultSchedule {
		t.Errorf("withDefaults() = %+v, want %+v", got, DefaultSchedule)
	}
}
