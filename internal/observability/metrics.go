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
	// Valuation metrics
	ValuesComputed      *prometheus.CounterVec
	ValueCacheHits      prometheus.Counter
	ValueCacheMisses    prometheus.Counter
	ValueComputeLatency prometheus.Histogram

	// Rebuild metrics
	RebuildRunsTotal *prometheus.CounterVec
	RebuildDuration  prometheus.Histogram
	ActiveEpochSize  prometheus.Gauge

	// Overlay metrics
	AdjustmentsCreated *prometheus.CounterVec
	DetectionRunsTotal *prometheus.CounterVec
	DetectionErrors    prometheus.Counter

	// Trade metrics
	TradesEvaluated  *prometheus.CounterVec
	TradeEvalLatency prometheus.Histogram

	// Consistency metrics
	ConsistencyChecksTotal *prometheus.CounterVec
	ValueMismatches        prometheus.Counter
	CacheEntriesPurged     prometheus.Counter

	// Feed metrics
	FeedFetchesTotal *prometheus.CounterVec
	FeedFallbacks    prometheus.Counter

	// Config metrics
	ConfigUpdatesTotal *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRebuild   prometheus.Gauge
	LastSuccessfulDetection prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trade_analyzer"
	}

	return &Metrics{
		// Valuation metrics
		ValuesComputed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "valuation",
			Name:      "values_computed_total",
			Help:      "Total number of asset values computed by format",
		}, []string{"format"}),
		ValueCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "valuation",
			Name:      "cache_hits_total",
			Help:      "Total number of value reads served from the cache",
		}),
		ValueCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "valuation",
			Name:      "cache_misses_total",
			Help:      "Total number of value reads that required a compute",
		}),
		ValueComputeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "valuation",
			Name:      "compute_latency_seconds",
			Help:      "Single-asset value computation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Rebuild metrics
		RebuildRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rebuild",
			Name:      "runs_total",
			Help:      "Total number of full rebuilds by outcome",
		}, []string{"status"}),
		RebuildDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rebuild",
			Name:      "duration_seconds",
			Help:      "Full rebuild duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		ActiveEpochSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rebuild",
			Name:      "active_epoch_assets",
			Help:      "Number of assets pre-warmed into the active epoch",
		}),

		// Overlay metrics
		AdjustmentsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "adjustments_created_total",
			Help:      "Total number of adjustment events created by type",
		}, []string{"event_type"}),
		DetectionRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "detection_runs_total",
			Help:      "Total number of detection runs by status",
		}, []string{"status"}),
		DetectionErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "detection_errors_total",
			Help:      "Total number of per-candidate detection errors",
		}),

		// Trade metrics
		TradesEvaluated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "evaluations_total",
			Help:      "Total number of trades evaluated by verdict",
		}, []string{"winner"}),
		TradeEvalLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "evaluation_latency_seconds",
			Help:      "Trade evaluation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Consistency metrics
		ConsistencyChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consistency",
			Name:      "checks_total",
			Help:      "Total number of consistency checks by outcome",
		}, []string{"outcome"}),
		ValueMismatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consistency",
			Name:      "value_mismatches_total",
			Help:      "Total number of served values that diverged from canonical",
		}),
		CacheEntriesPurged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consistency",
			Name:      "cache_entries_purged_total",
			Help:      "Total number of cache entries purged after a mismatch",
		}),

		// Feed metrics
		FeedFetchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "fetches_total",
			Help:      "Total number of feed fetches by source and status",
		}, []string{"source", "status"}),
		FeedFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "fallbacks_total",
			Help:      "Total number of fetches served past the primary source",
		}),

		// Config metrics
		ConfigUpdatesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "updates_total",
			Help:      "Total number of parameter updates by outcome",
		}, []string{"status"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulRebuild: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_rebuild_timestamp",
			Help:      "Unix timestamp of the last activated rebuild",
		}),
		LastSuccessfulDetection: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_detection_timestamp",
			Help:      "Unix timestamp of the last clean detection run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordValueComputed increments the computed-values counter.
func RecordValueComputed(format string, seconds float64) {
	DefaultMetrics.ValuesComputed.WithLabelValues(format).Inc()
	DefaultMetrics.ValueComputeLatency.Observe(seconds)
}

// RecordCacheRead records one cache lookup outcome.
func RecordCacheRead(hit bool) {
	if hit {
		DefaultMetrics.ValueCacheHits.Inc()
	} else {
		DefaultMetrics.ValueCacheMisses.Inc()
	}
}

// RecordRebuild records a full rebuild outcome.
func RecordRebuild(status string, durationSeconds float64, assets int) {
	DefaultMetrics.RebuildRunsTotal.WithLabelValues(status).Inc()
	if status == "activated" {
		DefaultMetrics.RebuildDuration.Observe(durationSeconds)
		DefaultMetrics.ActiveEpochSize.Set(float64(assets))
	}
}

// RecordAdjustmentCreated increments the adjustment counter for one type.
func RecordAdjustmentCreated(eventType string) {
	DefaultMetrics.AdjustmentsCreated.WithLabelValues(eventType).Inc()
}

// RecordDetectionRun records one detection run outcome.
func RecordDetectionRun(status string) {
	DefaultMetrics.DetectionRunsTotal.WithLabelValues(status).Inc()
}

// RecordTradeEvaluated records a trade evaluation and its verdict.
func RecordTradeEvaluated(winner string, seconds float64) {
	DefaultMetrics.TradesEvaluated.WithLabelValues(winner).Inc()
	DefaultMetrics.TradeEvalLatency.Observe(seconds)
}

// RecordConsistencyCheck records one check outcome and any purge volume.
func RecordConsistencyCheck(mismatches, purged int) {
	outcome := "clean"
	if mismatches > 0 {
		outcome = "dirty"
		DefaultMetrics.ValueMismatches.Add(float64(mismatches))
		DefaultMetrics.CacheEntriesPurged.Add(float64(purged))
	}
	DefaultMetrics.ConsistencyChecksTotal.WithLabelValues(outcome).Inc()
}

// RecordFeedFetch records one feed fetch attempt.
func RecordFeedFetch(source, status string) {
	DefaultMetrics.FeedFetchesTotal.WithLabelValues(source, status).Inc()
}

// RecordFeedFallback counts a fetch that the primary source could not serve.
func RecordFeedFallback() {
	DefaultMetrics.FeedFallbacks.Inc()
}

// RecordConfigUpdate records one parameter update attempt.
func RecordConfigUpdate(status string) {
	DefaultMetrics.ConfigUpdatesTotal.WithLabelValues(status).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
