// ABOUTME: Compares a target server's clock against this process's clock
// ABOUTME: Estimates the offset from one Date header sample and caches it per target
package compare

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/checktime/checktime-go/internal/metrics"
	"github.com/checktime/checktime-go/internal/protocol"
	internalsync "github.com/checktime/checktime-go/internal/sync"
	"github.com/checktime/checktime-go/internal/timesource"
)

// ErrMissingTarget is returned when no target URL was supplied
var ErrMissingTarget = errors.New("targetUrl is required")

// Config configures a comparison service
type Config struct {
	// CacheSize bounds the number of remembered targets (default: 128)
	CacheSize int

	// CacheTTL is how long a measured offset is reused (default: 5s; negative disables caching)
	CacheTTL time.Duration

	// MaxRoundTrip is the estimator's sanity ceiling (default: sync.DefaultMaxRoundTrip)
	MaxRoundTrip time.Duration

	// Timeout bounds a single target request (default: 5s)
	Timeout time.Duration

	// Method used against the target: HEAD or GET (default: HEAD)
	Method string

	// Client for target requests (default: http.DefaultClient)
	Client *http.Client

	// Clock is "our" time (default: system clock)
	Clock internalsync.LocalClock
}

type measurement struct {
	offset  internalsync.Offset
	claimed time.Time
}

// Service produces protocol.Comparison results
type Service struct {
	config Config
	clock  internalsync.LocalClock
	cache  *expirable.LRU[string, measurement]
	log    *zap.Logger
}

// NewService creates a comparison service
func NewService(config Config, log *zap.Logger) *Service {
	if config.CacheSize <= 0 {
		config.CacheSize = 128
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = 5 * time.Second
	}
	if config.MaxRoundTrip == 0 {
		config.MaxRoundTrip = internalsync.DefaultMaxRoundTrip
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Service{
		config: config,
		clock:  config.Clock,
		log:    log,
	}
	if s.clock == nil {
		s.clock = internalsync.SystemClock()
	}
	if config.CacheTTL > 0 {
		s.cache = expirable.NewLRU[string, measurement](config.CacheSize, nil, config.CacheTTL)
	}
	return s
}

// Compare measures targetURL (or reuses a recent measurement) and builds the result
func (s *Service) Compare(ctx context.Context, targetURL string) (*protocol.Comparison, error) {
	target := timesource.NormalizeURL(targetURL)
	if target == "" {
		metrics.CompareRequests.WithLabelValues("invalid").Inc()
		return nil, ErrMissingTarget
	}

	if s.cache != nil {
		if m, ok := s.cache.Get(target); ok {
			metrics.CompareCacheHits.Inc()
			metrics.CompareRequests.WithLabelValues("cached").Inc()
			return Build(target, m.offset, m.claimed, s.clock.Now(), true), nil
		}
	}

	m, err := s.measure(ctx, target)
	if err != nil {
		metrics.CompareRequests.WithLabelValues(outcome(err)).Inc()
		s.log.Warn("comparison failed", zap.String("target", target), zap.Error(err))
		return nil, err
	}

	if s.cache != nil {
		s.cache.Add(target, m)
	}
	metrics.CompareRequests.WithLabelValues("measured").Inc()

	s.log.Debug("compared target",
		zap.String("target", target),
		zap.Int64("offset_ms", m.offset.Millis()),
		zap.Int64("rtt_ms", m.offset.RoundTripMillis()))

	return Build(target, m.offset, m.claimed, s.clock.Now(), false), nil
}

// Purge forgets all cached measurements
func (s *Service) Purge() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

func (s *Service) measure(ctx context.Context, target string) (measurement, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	fetcher := &timesource.DateFetcher{
		URL:    target,
		Method: s.config.Method,
		Client: s.config.Client,
		Clock:  s.clock,
	}

	sample, err := fetcher.Fetch(ctx)
	if err != nil {
		return measurement{}, fmt.Errorf("failed to reach %s: %w", target, err)
	}

	offset, err := internalsync.Estimate(sample, s.config.MaxRoundTrip)
	if err != nil {
		return measurement{}, err
	}

	return measurement{offset: offset, claimed: sample.RemoteClaimedAt}, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, internalsync.ErrNoTimeInfo):
		return "no_time_info"
	case errors.Is(err, internalsync.ErrUnreliableSample):
		return "unreliable"
	}
	return "unreachable"
}

// Build assembles a comparison from an offset measured against our clock.
// The corrected target time is projected from now so cached offsets stay current.
func Build(target string, offset internalsync.Offset, claimed, now time.Time, cached bool) *protocol.Comparison {
	diff := float64(offset.Value) / float64(time.Millisecond)
	rtt := float64(offset.RoundTrip) / float64(time.Millisecond)

	direction := "behind"
	if diff > 0 {
		direction = "ahead"
	}

	return &protocol.Comparison{
		TimeComparison: protocol.TimeComparison{
			OurServerTime:           formatTime(now),
			TargetServerTime:        formatTime(claimed),
			CorrectedTargetTime:     formatTime(now.Add(offset.Value)),
			TimeDifference:          round2(diff),
			TimeDifferenceFormatted: FormatDifference(diff),
			Direction:               direction,
		},
		NetworkInfo: protocol.NetworkInfo{
			RTT:          round2(rtt),
			NetworkDelay: round2(rtt / 2),
			Reliability:  offset.Quality.String(),
		},
		Analysis: Analyze(offset),
		Metadata: protocol.Metadata{
			MeasuredAt: formatTime(offset.EstimatedAt),
			Source:     target,
			Cached:     cached,
		},
	}
}

// FormatDifference renders a millisecond difference: below one second as
// "N.NNms", otherwise as seconds with two decimals.
func FormatDifference(ms float64) string {
	if math.Abs(ms) < 1000 {
		return fmt.Sprintf("%.2fms", ms)
	}
	return fmt.Sprintf("%.2fs", ms/1000)
}

// Describe renders a difference for people: "nearly identical" below 100ms,
// otherwise the magnitude and which side is fast.
func Describe(ms float64) string {
	abs := math.Abs(ms)
	side := "local clock is fast"
	if ms > 0 {
		side = "server is fast"
	}

	switch {
	case abs < 100:
		return fmt.Sprintf("nearly identical (%.0fms, %s)", abs, side)
	case abs < 1000:
		return fmt.Sprintf("%.0fms, %s", abs, side)
	}
	return fmt.Sprintf("%.2fs, %s", abs/1000, side)
}

// Analyze grades a measured offset
func Analyze(offset internalsync.Offset) protocol.Analysis {
	var a protocol.Analysis
	switch offset.Quality {
	case internalsync.QualityExcellent:
		a.Accuracy, a.TrustLevel = "high", 95
	case internalsync.QualityGood:
		a.Accuracy, a.TrustLevel = "good", 85
	case internalsync.QualityFair:
		a.Accuracy, a.TrustLevel = "moderate", 65
	default:
		a.Accuracy, a.TrustLevel = "low", 40
	}

	var notes []string
	if abs(offset.Value) > time.Second {
		notes = append(notes, "Server and client clocks differ by more than one second; take care with timing-critical actions.")
	}
	if offset.NetworkDelay() > 500*time.Millisecond {
		notes = append(notes, "Network delay is high; a more stable connection is recommended.")
	}
	if offset.Quality == internalsync.QualityExcellent {
		notes = append(notes, "Network conditions are excellent; precisely timed access is possible.")
	}
	if len(notes) == 0 {
		notes = append(notes, "Measurement is within the normal range.")
	}
	a.Recommendation = strings.Join(notes, " ")
	return a
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
