// Package metrics exposes Prometheus instrumentation for the resource cache,
// the backends and the realtime listener.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache metrics, labelled by resource table.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_cache_hits_total",
			Help: "Reads answered from a fresh cache entry",
		},
		[]string{"resource"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_cache_misses_total",
			Help: "Reads that went to the backend because the entry was absent or stale",
		},
		[]string{"resource"},
	)

	CacheRejectedWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_cache_rejected_writes_total",
			Help: "Read results discarded because a newer write happened or the caller went away",
		},
		[]string{"resource", "reason"}, // "superseded", "cancelled"
	)

	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_reconciliations_total",
			Help: "Successful mutations reconciled into cached entries",
		},
		[]string{"resource", "op"},
	)

	Invalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_invalidations_total",
			Help: "Cache entries dropped by invalidation",
		},
		[]string{"resource"},
	)

	// Backend metrics
	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "larder_backend_duration_seconds",
			Help:    "Duration of backend calls in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"resource", "op"},
	)

	BackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_backend_errors_total",
			Help: "Backend calls that returned an error",
		},
		[]string{"resource", "op"},
	)

	// Realtime metrics
	RealtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_realtime_events_total",
			Help: "Change events received from the realtime feed",
		},
		[]string{"table", "op"},
	)

	RealtimeConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "larder_realtime_connected",
			Help: "1 while the realtime socket is connected",
		},
	)
)

// Rejection reasons for CacheRejectedWrites.
const (
	RejectSuperseded = "superseded"
	RejectCancelled  = "cancelled"
)

// RecordCacheRead records a hit or a miss for resource.
func RecordCacheRead(resource string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(resource).Inc()
		return
	}
	CacheMisses.WithLabelValues(resource).Inc()
}

// RecordRejectedWrite records a discarded read result.
func RecordRejectedWrite(resource, reason string) {
	CacheRejectedWrites.WithLabelValues(resource, reason).Inc()
}

// RecordReconciliation records a reconciled mutation.
func RecordReconciliation(resource, op string) {
	Reconciliations.WithLabelValues(resource, op).Inc()
}

// RecordInvalidation records n entries dropped for resource.
func RecordInvalidation(resource string, n int) {
	if n <= 0 {
		return
	}
	Invalidations.WithLabelValues(resource).Add(float64(n))
}

// RecordBackendCall records a backend call's duration and outcome.
func RecordBackendCall(resource, op string, duration time.Duration, err error) {
	BackendDuration.WithLabelValues(resource, op).Observe(duration.Seconds())
	if err != nil {
		BackendErrors.WithLabelValues(resource, op).Inc()
	}
}

// RecordRealtimeEvent records one change event.
func RecordRealtimeEvent(table, op string) {
	RealtimeEvents.WithLabelValues(table, op).Inc()
}

// SetRealtimeConnected flips the connection gauge.
func SetRealtimeConnected(connected bool) {
	if connected {
		RealtimeConnected.Set(1)
		return
	}
	RealtimeConnected.Set(0)
}
