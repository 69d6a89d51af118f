// ABOUTME: Tests for the countdown runner
// ABOUTME: Tests event delivery, replacement, cancellation, and shutdown
package alarm

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type manualNow struct {
	mu  sync.Mutex
	now time.Time
}

func (m *manualNow) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualNow) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

func newTestRunner(t *testing.T, start time.Time) (*Runner, *manualNow) {
	t.Helper()
	clock := &manualNow{now: start}
	r := NewRunner(RunnerConfig{TickInterval: 5 * time.Millisecond, Now: clock.Now}, zap.NewNop())
	t.Cleanup(r.Stop)
	return r, clock
}

func nextEvent(t *testing.T, r *Runner) Event {
	t.Helper()
	select {
	case ev := <-r.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alarm event")
	}
	return Event{}
}

func TestRunnerDeliversEventsInOrder(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, seoul)
	r, clock := newTestRunner(t, start)

	spec := mustSpec(t, at(start, 3*time.Second), []int{2, 1})
	if _, err := r.Start(spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Set(start.Add(time.Second))
	if ev := nextEvent(t, r); ev.Kind != EventPreAlert || ev.Lead != 2 {
		t.Fatalf("expected PreAlert(2), got %+v", ev)
	}

	clock.Set(start.Add(2 * time.Second))
	if ev := nextEvent(t, r); ev.Kind != EventPreAlert || ev.Lead != 1 {
		t.Fatalf("expected PreAlert(1), got %+v", ev)
	}

	clock.Set(start.Add(3 * time.Second))
	if ev := nextEvent(t, r); ev.Kind != EventCompleted {
		t.Fatalf("expected Completed, got %+v", ev)
	}

	st, ok := r.Snapshot()
	if !ok || st.Phase != PhaseCompleted {
		t.Errorf("expected completed snapshot, got %+v", st)
	}

	clock.Set(start.Add(time.Minute))
	select {
	case ev := <-r.Events():
		t.Errorf("unexpected event after completion: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunnerRejectsPastTarget(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, seoul)
	r, _ := newTestRunner(t, start)

	spec := mustSpec(t, at(start, -time.Second), nil)
	if _, err := r.Start(spec); !errors.Is(err, ErrTargetInPast) {
		t.Fatalf("expected ErrTargetInPast, got %v", err)
	}
	if _, ok := r.Snapshot(); ok {
		t.Error("expected no active alarm after rejection")
	}
}

func TestRunnerReplaceAndCancel(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, seoul)
	r, clock := newTestRunner(t, start)

	first := mustSpec(t, at(start, 10*time.Second), nil)
	second := mustSpec(t, at(start, 20*time.Second), nil)

	if _, err := r.Start(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Start(second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st, ok := r.Snapshot()
	if !ok || st.Spec.ID != second.ID {
		t.Fatalf("expected second alarm to replace the first, got %+v", st.Spec)
	}

	clock.Set(start.Add(15 * time.Second))
	select {
	case ev := <-r.Events():
		t.Fatalf("replaced alarm must not fire, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	r.Cancel()
	if _, ok := r.Snapshot(); ok {
		t.Error("expected no alarm after Cancel")
	}

	clock.Set(start.Add(30 * time.Second))
	select {
	case ev := <-r.Events():
		t.Errorf("cancelled alarm must not fire, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunnerCancelDuringTickDropsState(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, seoul)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls atomic.Int32
	now := func() time.Time {
		// The first call is Start; hold the first tick inside Now
		if calls.Add(1) == 2 {
			entered <- struct{}{}
			<-release
		}
		return start
	}

	r := NewRunner(RunnerConfig{TickInterval: 5 * time.Millisecond, Now: now}, zap.NewNop())
	t.Cleanup(r.Stop)

	spec := mustSpec(t, at(start, 30*time.Second), []int{60})
	if _, err := r.Start(spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("tick never read the clock")
	}

	r.Cancel()
	close(release)

	select {
	case st := <-r.Updates():
		t.Fatalf("cancelled alarm published a state: %+v", st)
	case ev := <-r.Events():
		t.Fatalf("cancelled alarm fired: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	if _, ok := r.Snapshot(); ok {
		t.Error("expected no alarm after Cancel")
	}
}

func TestRunnerPublishesUpdates(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, seoul)
	r, _ := newTestRunner(t, start)

	spec := mustSpec(t, at(start, 30*time.Second), nil)
	if _, err := r.Start(spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case st := <-r.Updates():
		if st.Spec.ID != spec.ID || st.Remaining != 30 {
			t.Errorf("unexpected update %+v", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state update")
	}
}

func TestRunnerStopIsIdempotent(t *testing.T) {
	r := NewRunner(RunnerConfig{}, nil)
	r.Stop()
	r.Stop()
}
