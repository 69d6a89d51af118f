// ABOUTME: Countdown state machine for scheduled alarms
// ABOUTME: Recomputes remaining time from absolute instants and fires each alert once
package alarm

import (
	"time"
)

// Phase is the lifecycle stage of a countdown
type Phase int

const (
	PhasePending Phase = iota
	PhaseCounting
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseCounting:
		return "counting"
	case PhaseCompleted:
		return "completed"
	}
	return "unknown"
}

// EventKind distinguishes pre-alerts from completion
type EventKind int

const (
	EventPreAlert EventKind = iota
	EventCompleted
)

func (k EventKind) String() string {
	if k == EventCompleted {
		return "completed"
	}
	return "pre_alert"
}

// Event is emitted by Tick when a threshold is crossed
type Event struct {
	Kind      EventKind
	AlarmID   string
	Lead      int // seconds; zero for EventCompleted
	Remaining int
	At        time.Time
	Options   Options
}

// State is one alarm's countdown. Treat it as a value: Tick returns a new State.
type State struct {
	Spec      Spec
	TargetAt  time.Time
	Remaining int
	Phase     Phase

	fired map[int]bool
}

// Fired reports whether the pre-alert for lead seconds has been delivered
func (s State) Fired(lead int) bool {
	return s.fired[lead]
}

// Done reports whether the countdown reached its terminal phase
func (s State) Done() bool {
	return s.Phase == PhaseCompleted
}

// Schedule resolves spec against today's date in now's location.
// A target strictly before now is rejected.
func Schedule(spec Spec, now time.Time) (State, error) {
	if err := spec.Target.Validate(); err != nil {
		return State{}, err
	}

	leads, err := normalizeLeads(spec.PreAlerts)
	if err != nil {
		return State{}, err
	}
	spec.PreAlerts = leads

	target := time.Date(now.Year(), now.Month(), now.Day(),
		spec.Target.Hour, spec.Target.Minute, spec.Target.Second, 0, now.Location())

	if target.Before(now) {
		return State{}, &ValidationError{Field: "target", Value: spec.Target.String(), Reason: ErrTargetInPast}
	}

	return State{
		Spec:      spec,
		TargetAt:  target,
		Remaining: remainingSeconds(target, now),
		Phase:     PhasePending,
		fired:     make(map[int]bool, len(leads)),
	}, nil
}

// Tick recomputes the countdown at now and returns the events it crossed.
// Completed states are returned unchanged.
func Tick(st State, now time.Time) (State, []Event) {
	if st.Phase == PhaseCompleted {
		return st, nil
	}

	next := st
	next.Remaining = remainingSeconds(st.TargetAt, now)
	next.fired = make(map[int]bool, len(st.fired)+1)
	for lead := range st.fired {
		next.fired[lead] = true
	}

	var events []Event
	for _, lead := range st.Spec.PreAlerts {
		if next.fired[lead] || next.Remaining > lead {
			continue
		}
		next.fired[lead] = true
		events = append(events, Event{
			Kind:      EventPreAlert,
			AlarmID:   st.Spec.ID,
			Lead:      lead,
			Remaining: next.Remaining,
			At:        now,
			Options:   st.Spec.Options,
		})
	}

	if next.Remaining == 0 {
		next.Phase = PhaseCompleted
		events = append(events, Event{
			Kind:    EventCompleted,
			AlarmID: st.Spec.ID,
			At:      now,
			Options: st.Spec.Options,
		})
	} else {
		next.Phase = PhaseCounting
	}

	return next, events
}

func remainingSeconds(target, now time.Time) int {
	d := target.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}
