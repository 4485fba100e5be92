// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Stream metrics
	StreamMessagesReceived  prometheus.Counter
	StreamDuplicatesSkipped prometheus.Counter
	StreamReconnects        prometheus.Counter
	StreamPingFailures      prometheus.Counter
	LastMessageReceived     prometheus.Gauge

	// Decode metrics
	EventsDecoded *prometheus.CounterVec
	DecodeErrors  prometheus.Counter

	// Tracker metrics
	PoolsTracked    prometheus.Gauge
	PoolsEvicted    prometheus.Counter
	ReconcileRuns   prometheus.Counter
	ReconcileErrors prometheus.Counter

	// External call metrics
	HolderFetchErrors prometheus.Counter
	PersistErrors     prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pumpswap_radar"
	}

	return &Metrics{
		StreamMessagesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_received_total",
			Help:      "Total number of transaction messages received from the stream",
		}),
		StreamDuplicatesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "duplicates_skipped_total",
			Help:      "Total number of duplicate transactions dropped by signature dedup",
		}),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of stream reconnect attempts",
		}),
		StreamPingFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "ping_failures_total",
			Help:      "Total number of keep-alive ping write failures",
		}),
		LastMessageReceived: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "last_message_received_timestamp",
			Help:      "Unix timestamp of the last transaction received from the stream",
		}),
		EventsDecoded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decode",
			Name:      "events_total",
			Help:      "Total number of decoded events by kind",
		}, []string{"kind"}),
		DecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decode",
			Name:      "errors_total",
			Help:      "Total number of transactions the decoder could not process",
		}),
		PoolsTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "pools_tracked",
			Help:      "Number of pools currently tracked",
		}),
		PoolsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "pools_evicted_total",
			Help:      "Total number of pools evicted for falling below the mcap floor",
		}),
		ReconcileRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "reconcile_runs_total",
			Help:      "Total number of reconciliation sweeps",
		}),
		ReconcileErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "reconcile_errors_total",
			Help:      "Total number of per-pool reconciliation failures",
		}),
		HolderFetchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "holders",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed holder snapshot fetches",
		}),
		PersistErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "persist_errors_total",
			Help:      "Total number of failed metrics history writes",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordStreamMessage increments the received counter and refreshes the
// last-received gauge.
func RecordStreamMessage(unixSeconds int64) {
	DefaultMetrics.StreamMessagesReceived.Inc()
	DefaultMetrics.LastMessageReceived.Set(float64(unixSeconds))
}

// RecordDuplicateSkipped increments the dedup counter.
func RecordDuplicateSkipped() {
	DefaultMetrics.StreamDuplicatesSkipped.Inc()
}

// RecordReconnect increments the reconnect counter.
func RecordReconnect() {
	DefaultMetrics.StreamReconnects.Inc()
}

// RecordPingFailure increments the ping failure counter.
func RecordPingFailure() {
	DefaultMetrics.StreamPingFailures.Inc()
}

// RecordEventDecoded increments the decoded events counter for kind.
func RecordEventDecoded(kind string) {
	DefaultMetrics.EventsDecoded.WithLabelValues(kind).Inc()
}

// RecordDecodeError increments the decode error counter.
func RecordDecodeError() {
	DefaultMetrics.DecodeErrors.Inc()
}

// UpdatePoolsTracked updates the tracked pool gauge.
func UpdatePoolsTracked(n int) {
	DefaultMetrics.PoolsTracked.Set(float64(n))
}

// RecordPoolEvicted increments the eviction counter.
func RecordPoolEvicted() {
	DefaultMetrics.PoolsEvicted.Inc()
}

// RecordReconcileRun records one reconciliation sweep and its failures.
func RecordReconcileRun(errors int) {
	DefaultMetrics.ReconcileRuns.Inc()
	if errors > 0 {
		DefaultMetrics.ReconcileErrors.Add(float64(errors))
	}
}

// RecordHolderFetchError increments the holder fetch error counter.
func RecordHolderFetchError() {
	DefaultMetrics.HolderFetchErrors.Inc()
}

// RecordPersistError increments the persistence error counter.
func RecordPersistError() {
	DefaultMetrics.PersistErrors.Inc()
}
