// ABOUTME: Ticker-driven countdown runner
// ABOUTME: Owns the active alarm state and publishes snapshots and events
package alarm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/checktime/checktime-go/internal/metrics"
)

// RunnerConfig configures a Runner
type RunnerConfig struct {
	// TickInterval between recomputations (default: 250ms)
	TickInterval time.Duration

	// Now supplies the reference time, usually a projected remote clock (default: time.Now)
	Now func() time.Time
}

// Runner drives at most one countdown at a time
type Runner struct {
	config RunnerConfig
	log    *zap.Logger

	mu     sync.Mutex
	state  State
	active bool
	has    bool
	gen    uint64 // bumped by Start and Cancel

	events  chan Event
	updates chan State

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner and starts its tick loop
func NewRunner(config RunnerConfig, log *zap.Logger) *Runner {
	if config.TickInterval <= 0 {
		config.TickInterval = 250 * time.Millisecond
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &Runner{
		config:  config,
		log:     log,
		events:  make(chan Event, 16),
		updates: make(chan State, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	r.wg.Add(1)
	go r.run()

	return r
}

// Start validates spec and replaces any running countdown
func (r *Runner) Start(spec Spec) (State, error) {
	st, err := Schedule(spec, r.config.Now())
	if err != nil {
		return State{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		r.log.Info("replacing alarm", zap.String("alarm_id", r.state.Spec.ID))
	}
	r.gen++
	r.state = st
	r.active = true
	r.has = true

	metrics.AlarmsScheduled.Inc()
	r.log.Info("alarm scheduled",
		zap.String("alarm_id", st.Spec.ID),
		zap.Stringer("target", st.Spec.Target),
		zap.Ints("pre_alerts", st.Spec.PreAlerts),
		zap.Int("remaining_s", st.Remaining))

	r.publish(st)
	return st, nil
}

// Cancel discards the running countdown, if any
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		r.log.Info("alarm cancelled", zap.String("alarm_id", r.state.Spec.ID))
	}
	r.gen++
	r.active = false
	r.has = false
	r.state = State{}

	// Drop an unread snapshot of the discarded countdown
	select {
	case <-r.updates:
	default:
	}
}

// Snapshot returns the latest state. ok is false when no alarm was started or it was cancelled.
func (r *Runner) Snapshot() (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.has
}

// Events delivers pre-alert and completion events. The tick loop holds the
// runner lock while delivering, so readers must not block on the runner.
func (r *Runner) Events() <-chan Event {
	return r.events
}

// Updates delivers the latest state after each tick; intermediate states may be dropped
func (r *Runner) Updates() <-chan State {
	return r.updates
}

// Stop ends the tick loop and waits for it to exit
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Runner) tick() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	gen := r.gen
	r.mu.Unlock()

	now := r.config.Now()

	// State, events and the snapshot are committed together so a Cancel or
	// Start that ran while Now was being read wins.
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active || r.gen != gen {
		return
	}

	next, events := Tick(r.state, now)
	r.state = next
	if next.Done() {
		r.active = false
	}

	for _, ev := range events {
		metrics.AlarmEvents.WithLabelValues(ev.Kind.String()).Inc()
		if ev.Kind == EventCompleted {
			r.log.Info("alarm completed", zap.String("alarm_id", ev.AlarmID))
		} else {
			r.log.Info("pre-alert",
				zap.String("alarm_id", ev.AlarmID),
				zap.Int("lead_s", ev.Lead),
				zap.Int("remaining_s", ev.Remaining))
		}

		select {
		case r.events <- ev:
		case <-r.ctx.Done():
			return
		}
	}

	r.publish(next)
}

// publish replaces any unread update with st. Callers hold r.mu.
func (r *Runner) publish(st State) {
	select {
	case <-r.updates:
	default:
	}
	select {
	case r.updates <- st:
	default:
	}
}
