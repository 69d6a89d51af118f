// ABOUTME: Prometheus collectors for clock sync, alarms and time comparison
// ABOUTME: Exposed by the time authority server and updated by the client loops
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Clock sync
	SyncOffsetMillis = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checktime_sync_offset_milliseconds",
		Help: "Active clock offset (remote - local) in milliseconds",
	})

	SyncRoundTripSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checktime_sync_round_trip_seconds",
		Help:    "Round trip time of accepted time samples",
		Buckets: []float64{.005, .01, .025, .05, .1, .15, .25, .4, .75, 1.5, 3},
	})

	SyncQuality = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checktime_sync_quality",
		Help: "Quality of the active offset (0=excellent, 1=good, 2=fair, 3=poor)",
	})

	SamplesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checktime_sync_samples_accepted_total",
		Help: "Time samples accepted as the active offset",
	})

	SamplesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checktime_sync_samples_rejected_total",
		Help: "Time samples rejected by the estimator",
	}, []string{"reason"})

	FetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checktime_sync_fetch_failures_total",
		Help: "Time fetches that failed at the transport level",
	})

	// Alarms
	AlarmEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checktime_alarm_events_total",
		Help: "Alarm events emitted by countdowns",
	}, []string{"kind"})

	AlarmsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checktime_alarms_scheduled_total",
		Help: "Alarms accepted for countdown",
	})

	// Time authority
	CompareRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checktime_compare_requests_total",
		Help: "Time comparison requests by outcome",
	}, []string{"outcome"})

	CompareCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checktime_compare_cache_hits_total",
		Help: "Comparisons served from the offset cache",
	})

	TimeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checktime_time_requests_total",
		Help: "Time requests served by transport",
	}, []string{"transport"})
)

// Handler returns the HTTP handler serving the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
