// ABOUTME: Remote time samples and single-sample offset estimation
// ABOUTME: Converts one request/response exchange into a clock offset with a quality grade
package sync

import (
	"errors"
	"fmt"
	"time"
)

// DefaultMaxRoundTrip is the sanity ceiling above which a sample is discarded
const DefaultMaxRoundTrip = 3 * time.Second

var (
	// ErrRejected is wrapped by every estimator rejection
	ErrRejected = errors.New("sample rejected")

	// ErrNoTimeInfo means the remote side did not report a time
	ErrNoTimeInfo = fmt.Errorf("%w: no time info", ErrRejected)

	// ErrUnreliableSample means the exchange took too long or is inconsistent
	ErrUnreliableSample = fmt.Errorf("%w: unreliable sample", ErrRejected)
)

// Sample is one observation of the remote clock.
// A zero RemoteClaimedAt means the remote side did not provide a time.
type Sample struct {
	LocalSentAt     time.Time
	LocalReceivedAt time.Time
	RemoteClaimedAt time.Time
	Source          string
}

// HasRemoteTime reports whether the sample carries a remote timestamp
func (s Sample) HasRemoteTime() bool {
	return !s.RemoteClaimedAt.IsZero()
}

// RoundTrip returns the locally measured request latency
func (s Sample) RoundTrip() time.Duration {
	return s.LocalReceivedAt.Sub(s.LocalSentAt)
}

// Quality grades an offset by the round trip that produced it
type Quality int

const (
	QualityExcellent Quality = iota
	QualityGood
	QualityFair
	QualityPoor
)

func (q Quality) String() string {
	switch q {
	case QualityExcellent:
		return "excellent"
	case QualityGood:
		return "good"
	case QualityFair:
		return "fair"
	case QualityPoor:
		return "poor"
	}
	return fmt.Sprintf("Quality(%d)", int(q))
}

// ClassifyQuality maps a round trip time onto a quality grade
func ClassifyQuality(rtt time.Duration) Quality {
	switch {
	case rtt < 50*time.Millisecond:
		return QualityExcellent
	case rtt < 150*time.Millisecond:
		return QualityGood
	case rtt < 400*time.Millisecond:
		return QualityFair
	default:
		return QualityPoor
	}
}

// Offset is the estimated difference remote - local. Offsets are values;
// a resync produces a new one instead of mutating the old.
type Offset struct {
	Value       time.Duration // add to local time to approximate remote time
	RoundTrip   time.Duration
	EstimatedAt time.Time // local instant
	Quality     Quality
	Source      string
}

// Millis returns the offset in whole milliseconds
func (o Offset) Millis() int64 {
	return o.Value.Milliseconds()
}

// RoundTripMillis returns the round trip in whole milliseconds
func (o Offset) RoundTripMillis() int64 {
	return o.RoundTrip.Milliseconds()
}

// NetworkDelay returns the assumed one-way delay (half the round trip)
func (o Offset) NetworkDelay() time.Duration {
	return o.RoundTrip / 2
}

// Poor reports whether the caller should consider retrying right away
func (o Offset) Poor() bool {
	return o.Quality == QualityPoor
}

// Estimate computes the clock offset for a single sample.
//
// One-way delay is assumed symmetric: the remote timestamp is taken to be
// half a round trip old when the response arrives. A maxRoundTrip <= 0
// disables the round trip ceiling.
func Estimate(s Sample, maxRoundTrip time.Duration) (Offset, error) {
	if !s.HasRemoteTime() {
		return Offset{}, ErrNoTimeInfo
	}

	rtt := s.RoundTrip()
	if rtt < 0 {
		return Offset{}, fmt.Errorf("%w: received before sent (rtt=%v)", ErrUnreliableSample, rtt)
	}
	if maxRoundTrip > 0 && rtt > maxRoundTrip {
		return Offset{}, fmt.Errorf("%w: rtt %v exceeds %v", ErrUnreliableSample, rtt, maxRoundTrip)
	}

	delay := rtt / 2
	remoteAtReceive := s.RemoteClaimedAt.Add(delay)

	return Offset{
		Value:       remoteAtReceive.Sub(s.LocalReceivedAt),
		RoundTrip:   rtt,
		EstimatedAt: s.LocalReceivedAt,
		Quality:     ClassifyQuality(rtt),
		Source:      s.Source,
	}, nil
}
