// ABOUTME: Alarm specification and its validation
// ABOUTME: Parses time-of-day input and normalizes pre-alert lead times
package alarm

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DefaultPreAlerts are the lead times offered by the alarm form
var DefaultPreAlerts = []int{60, 30, 10}

var (
	// ErrTargetInPast is returned when the resolved target precedes now
	ErrTargetInPast = errors.New("target time is in the past")

	// ErrMalformedTime is returned for missing, non-numeric or out of range components
	ErrMalformedTime = errors.New("malformed time of day")

	// ErrInvalidLead is returned for non-positive pre-alert lead times
	ErrInvalidLead = errors.New("invalid pre-alert lead time")
)

// ValidationError reports a rejected alarm. Use errors.Is against the Err* sentinels.
type ValidationError struct {
	Field  string
	Value  string
	Reason error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// TimeOfDay is a wall-clock time without a date component
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// Validate checks that every component is in range
func (t TimeOfDay) Validate() error {
	switch {
	case t.Hour < 0 || t.Hour > 23:
		return &ValidationError{Field: "hour", Value: strconv.Itoa(t.Hour), Reason: ErrMalformedTime}
	case t.Minute < 0 || t.Minute > 59:
		return &ValidationError{Field: "minute", Value: strconv.Itoa(t.Minute), Reason: ErrMalformedTime}
	case t.Second < 0 || t.Second > 59:
		return &ValidationError{Field: "second", Value: strconv.Itoa(t.Second), Reason: ErrMalformedTime}
	}
	return nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// ParseTimeOfDay builds a TimeOfDay from form input. All three fields are required.
func ParseTimeOfDay(hour, minute, second string) (TimeOfDay, error) {
	var tod TimeOfDay
	fields := []struct {
		name  string
		value string
		dst   *int
	}{
		{"hour", hour, &tod.Hour},
		{"minute", minute, &tod.Minute},
		{"second", second, &tod.Second},
	}

	for _, f := range fields {
		v := strings.TrimSpace(f.value)
		if v == "" {
			return TimeOfDay{}, &ValidationError{Field: f.name, Reason: ErrMalformedTime}
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return TimeOfDay{}, &ValidationError{Field: f.name, Value: v, Reason: ErrMalformedTime}
		}
		*f.dst = n
	}

	if err := tod.Validate(); err != nil {
		return TimeOfDay{}, err
	}
	return tod, nil
}

// ParseClock parses "HH:MM:SS" as used on the command line
func ParseClock(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return TimeOfDay{}, &ValidationError{Field: "time", Value: s, Reason: ErrMalformedTime}
	}
	return ParseTimeOfDay(parts[0], parts[1], parts[2])
}

// Options are presentation flags carried alongside the alarm
type Options struct {
	Sound     bool
	Highlight bool
}

// Spec describes one alarm request
type Spec struct {
	ID        string
	Target    TimeOfDay
	PreAlerts []int // distinct, descending
	Options   Options
}

// NewSpec validates the target and lead times and assigns an ID
func NewSpec(target TimeOfDay, preAlerts []int, opts Options) (Spec, error) {
	if err := target.Validate(); err != nil {
		return Spec{}, err
	}

	leads, err := normalizeLeads(preAlerts)
	if err != nil {
		return Spec{}, err
	}

	return Spec{
		ID:        uuid.New().String(),
		Target:    target,
		PreAlerts: leads,
		Options:   opts,
	}, nil
}

// ParseLeads parses a comma separated list such as "60,30,10"
func ParseLeads(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var leads []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, &ValidationError{Field: "pre-alert", Value: part, Reason: ErrInvalidLead}
		}
		leads = append(leads, n)
	}
	return normalizeLeads(leads)
}

func normalizeLeads(leads []int) ([]int, error) {
	seen := make(map[int]bool, len(leads))
	out := make([]int, 0, len(leads))
	for _, l := range leads {
		if l <= 0 {
			return nil, &ValidationError{Field: "pre-alert", Value: strconv.Itoa(l), Reason: ErrInvalidLead}
		}
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out, nil
}
