// ABOUTME: High-level Alarm API
// ABOUTME: Counts down to a time of day on a Clock and delivers pre-alert events
package checktime

import (
	"sync"
	"time"

	"github.com/checktime/checktime-go/internal/alarm"
)

// Event is a pre-alert or completion
type Event = alarm.Event

// Event kinds
const (
	EventPreAlert  = alarm.EventPreAlert
	EventCompleted = alarm.EventCompleted
)

// Alarm is a running countdown
type Alarm struct {
	runner *alarm.Runner
	state  alarm.State
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewAlarm starts a countdown to at ("HH:MM:SS", today in the clock's zone) on
// the clock's time, firing a pre-alert leads seconds before. Before the first
// sync the local clock is used.
func (c *Clock) NewAlarm(at string, leads []int) (*Alarm, error) {
	tod, err := alarm.ParseClock(at)
	if err != nil {
		return nil, err
	}
	spec, err := alarm.NewSpec(tod, leads, alarm.Options{})
	if err != nil {
		return nil, err
	}

	runner := alarm.NewRunner(alarm.RunnerConfig{
		Now: c.reference,
	}, c.config.Logger)

	st, err := runner.Start(spec)
	if err != nil {
		runner.Stop()
		return nil, err
	}

	a := &Alarm{
		runner: runner,
		state:  st,
		events: make(chan Event, 8),
		done:   make(chan struct{}),
	}
	go a.forward()
	return a, nil
}

// forward relays runner events and closes Events after completion
func (a *Alarm) forward() {
	defer close(a.events)
	for {
		select {
		case ev := <-a.runner.Events():
			select {
			case a.events <- ev:
			case <-a.done:
				return
			}
			if ev.Kind == alarm.EventCompleted {
				return
			}
		case <-a.done:
			return
		}
	}
}

// Events delivers pre-alerts and the final completion; closed afterwards
func (a *Alarm) Events() <-chan Event {
	return a.events
}

// Target returns the resolved target instant
func (a *Alarm) Target() time.Time {
	return a.state.TargetAt
}

// Remaining returns whole seconds left at the last tick
func (a *Alarm) Remaining() int {
	if st, ok := a.runner.Snapshot(); ok {
		return st.Remaining
	}
	return 0
}

// Stop cancels the alarm. Safe to call more than once.
func (a *Alarm) Stop() {
	a.once.Do(func() {
		close(a.done)
		a.runner.Stop()
	})
}
