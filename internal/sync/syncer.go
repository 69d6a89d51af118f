// ABOUTME: Periodic resynchronization loop feeding the projector
// ABOUTME: Fetches a sample per interval, estimates, and keeps the last good offset on failure
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/checktime/checktime-go/internal/metrics"
)

// Fetcher obtains one remote time sample. Implementations must honor ctx.
type Fetcher interface {
	Fetch(ctx context.Context) (Sample, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context) (Sample, error)

func (f FetcherFunc) Fetch(ctx context.Context) (Sample, error) { return f(ctx) }

// Result describes the outcome of one resync cycle
type Result struct {
	Offset   Offset // zero unless Accepted
	Accepted bool
	Err      error
}

// SyncerConfig configures the resync cadence
type SyncerConfig struct {
	// Interval between resyncs (default: 1s)
	Interval time.Duration

	// Timeout bounds a single fetch (default: 2s)
	Timeout time.Duration

	// MaxRoundTrip is the estimator's sanity ceiling (default: DefaultMaxRoundTrip)
	MaxRoundTrip time.Duration

	// OnResult is called from the sync goroutine after every cycle
	OnResult func(Result)
}

// Syncer drives resynchronization of a Projector from a Fetcher
type Syncer struct {
	config    SyncerConfig
	fetcher   Fetcher
	projector *Projector
	stats     *RTTStats
	log       *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	done    chan struct{}
}

// NewSyncer creates a syncer; call Run to start the loop
func NewSyncer(config SyncerConfig, fetcher Fetcher, projector *Projector, log *zap.Logger) *Syncer {
	if config.Interval <= 0 {
		config.Interval = time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Second
	}
	if config.MaxRoundTrip == 0 {
		config.MaxRoundTrip = DefaultMaxRoundTrip
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Syncer{
		config:    config,
		fetcher:   fetcher,
		projector: projector,
		stats:     NewRTTStats(),
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Stats returns the round trip statistics gathered so far
func (s *Syncer) Stats() NetworkStats {
	return s.stats.Snapshot()
}

// SyncOnce performs a single fetch/estimate/accept cycle.
// On any failure the projector keeps its previous offset.
func (s *Syncer) SyncOnce(ctx context.Context) (Offset, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	sample, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.stats.RecordFailure()
		metrics.FetchFailures.Inc()
		return Offset{}, fmt.Errorf("fetch failed: %w", err)
	}

	offset, err := Estimate(sample, s.config.MaxRoundTrip)
	if err != nil {
		s.stats.RecordFailure()
		metrics.SamplesRejected.WithLabelValues(rejectReason(err)).Inc()
		return Offset{}, err
	}

	s.projector.Accept(offset)
	s.stats.Record(offset.RoundTrip)

	metrics.SamplesAccepted.Inc()
	metrics.SyncOffsetMillis.Set(float64(offset.Millis()))
	metrics.SyncRoundTripSeconds.Observe(offset.RoundTrip.Seconds())
	metrics.SyncQuality.Set(float64(offset.Quality))

	return offset, nil
}

// Run syncs immediately and then once per interval until Stop is called
func (s *Syncer) Run() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	defer close(s.done)

	if s.ctx.Err() != nil {
		return
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	count := 0
	for {
		offset, err := s.SyncOnce(s.ctx)
		if s.ctx.Err() != nil {
			return
		}
		s.report(count, offset, err)
		count++

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Syncer) report(count int, offset Offset, err error) {
	switch {
	case err == nil:
		// Log the first few syncs and every poor one
		if count < 3 || offset.Poor() {
			s.log.Info("clock synced",
				zap.Int64("offset_ms", offset.Millis()),
				zap.Int64("rtt_ms", offset.RoundTripMillis()),
				zap.Stringer("quality", offset.Quality),
				zap.String("source", offset.Source))
		}
	case errors.Is(err, ErrRejected):
		s.log.Warn("discarding time sample", zap.Error(err))
	default:
		s.log.Warn("time sync failed, keeping previous offset", zap.Error(err))
	}

	if s.config.OnResult != nil {
		s.config.OnResult(Result{Offset: offset, Accepted: err == nil, Err: err})
	}
}

// Stop ends the loop and waits for it to exit. Safe to call more than once.
func (s *Syncer) Stop() {
	s.cancel()
	// Claim the loop so a Run scheduled after Stop returns at once
	if s.started.CompareAndSwap(false, true) {
		close(s.done)
		return
	}
	<-s.done
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNoTimeInfo):
		return "no_time_info"
	case errors.Is(err, ErrUnreliableSample):
		return "unreliable"
	}
	return "other"
}
