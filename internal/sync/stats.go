// ABOUTME: Round trip statistics over a sync session
// ABOUTME: Tracks average/min/max RTT and loss rate using an HDR histogram
package sync

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// NetworkStats summarizes the exchanges seen so far
type NetworkStats struct {
	Samples        int64
	Failures       int64
	Average        time.Duration
	Min            time.Duration
	Max            time.Duration
	P90            time.Duration
	PacketLossRate float64 // percent of attempts without a usable response
	Condition      Quality
}

// RTTStats records round trips in microseconds, 1µs to 60s at 3 significant figures
type RTTStats struct {
	mu       sync.Mutex
	histo    *hdrhistogram.Histogram
	failures int64
}

// NewRTTStats creates an empty recorder
func NewRTTStats() *RTTStats {
	return &RTTStats{
		histo: hdrhistogram.New(1, int64(60*time.Second/time.Microsecond), 3),
	}
}

// Record adds one successful round trip
func (s *RTTStats) Record(rtt time.Duration) {
	us := rtt.Microseconds()
	if us < 1 {
		us = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Values above the histogram range are clamped to the highest trackable value
	if err := s.histo.RecordValue(us); err != nil {
		_ = s.histo.RecordValue(s.histo.HighestTrackableValue())
	}
}

// RecordFailure counts an attempt that produced no usable sample
func (s *RTTStats) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
}

// Reset clears all recorded values
func (s *RTTStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histo.Reset()
	s.failures = 0
}

// Snapshot returns the current summary
func (s *RTTStats) Snapshot() NetworkStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.histo.TotalCount()
	stats := NetworkStats{
		Samples:   n,
		Failures:  s.failures,
		Condition: QualityPoor,
	}
	if attempts := n + s.failures; attempts > 0 {
		stats.PacketLossRate = float64(s.failures) * 100 / float64(attempts)
	}
	if n == 0 {
		return stats
	}

	stats.Average = time.Duration(s.histo.Mean() * float64(time.Microsecond))
	stats.Min = time.Duration(s.histo.Min()) * time.Microsecond
	stats.Max = time.Duration(s.histo.Max()) * time.Microsecond
	stats.P90 = time.Duration(s.histo.ValueAtQuantile(90)) * time.Microsecond
	stats.Condition = ClassifyQuality(stats.Average)
	return stats
}
