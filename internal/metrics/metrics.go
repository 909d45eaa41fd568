package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Canonicalization metrics
	ObservationsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linecanon_observations_read_total",
			Help: "Total number of raw observations read within canonicalization windows",
		},
		[]string{"market"}, // spreads, totals, h2h
	)

	CanonicalRowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linecanon_canonical_rows_written_total",
			Help: "Total number of canonical market rows written (conflict no-ops excluded)",
		},
		[]string{"market"},
	)

	PartitionsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linecanon_partitions_skipped_total",
			Help: "Total number of quote partitions skipped during canonicalization",
		},
		[]string{"market", "reason"}, // missing_leg, line_mismatch, bad_price, unknown_event
	)

	CanonicalizeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "linecanon_canonicalize_duration_seconds",
			Help:    "Duration of a full canonicalization pass",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// Event resolution metrics
	EventsMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linecanon_events_merged_total",
			Help: "Total number of duplicate event rows merged into a canonical event",
		},
	)

	MergeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linecanon_merge_failures_total",
			Help: "Total number of per-member merge transactions that failed and were left for retry",
		},
	)

	ScoresDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linecanon_scores_dropped_total",
			Help: "Total number of duplicate score rows dropped during event migration",
		},
	)

	TeamsUnresolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linecanon_teams_unresolved_total",
			Help: "Total number of team names that could not be canonicalized",
		},
	)

	ResolveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "linecanon_resolve_duration_seconds",
			Help:    "Duration of a full event resolution pass",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// Freshness metrics
	FreshnessChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linecanon_freshness_checks_total",
			Help: "Total number of freshness evaluations",
		},
		[]string{"status"}, // ok, stale
	)

	CategoryAge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "linecanon_category_age_seconds",
			Help: "Age of the newest in-window observation per data category",
		},
		[]string{"category"}, // odds, scores
	)

	// Alert metrics
	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linecanon_alerts_sent_total",
			Help: "Total number of data-quality alerts sent",
		},
		[]string{"status", "type"}, // success/error, discord/log
	)

	// System health
	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linecanon_health_checks_total",
			Help: "Total number of health check requests",
		},
		[]string{"status"}, // healthy/unhealthy
	)
)

// RecordCanonicalize records a canonicalization pass
func RecordCanonicalize(duration time.Duration) {
	CanonicalizeDuration.Observe(duration.Seconds())
}

// RecordResolve records an event resolution pass
func RecordResolve(duration time.Duration, merged int) {
	EventsMerged.Add(float64(merged))
	ResolveDuration.Observe(duration.Seconds())
}

// RecordFreshness records the outcome of a freshness evaluation
func RecordFreshness(ok bool, ages map[string]time.Duration) {
	status := "ok"
	if !ok {
		status = "stale"
	}
	FreshnessChecks.WithLabelValues(status).Inc()
	for category, age := range ages {
		CategoryAge.WithLabelValues(category).Set(age.Seconds())
	}
}

// RecordAlert records an alert send attempt
func RecordAlert(alertType string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	AlertsSent.WithLabelValues(status, alertType).Inc()
}

// RecordHealthCheck records health check status
func RecordHealthCheck(healthy bool) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	HealthChecks.WithLabelValues(status).Inc()
}
