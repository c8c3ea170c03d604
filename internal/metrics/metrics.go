// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline Metrics
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartpulse_pipeline_runs_total",
			Help: "Total number of pipeline runs by final status",
		},
		[]string{"status"},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chartpulse_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"stage"},
	)

	PipelineLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chartpulse_pipeline_last_success_timestamp",
			Help: "Unix timestamp of the last successful pipeline run",
		},
	)

	// History Metrics
	HistoryRowsMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartpulse_history_rows_merged_total",
			Help: "Total number of rows written by merges",
		},
		[]string{"kind"}, // "new", "replaced", "unenriched"
	)

	HistoryRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chartpulse_history_rows",
			Help: "Rows in the historical dataset after the last merge",
		},
	)

	IdentityUnresolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chartpulse_identity_unresolved_total",
			Help: "Chart rows dropped because no track id could be resolved",
		},
	)

	// Enrichment Metrics
	EnrichBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartpulse_enrich_batches_total",
			Help: "Total number of enrichment lookup batches",
		},
		[]string{"outcome"}, // "ok", "retried", "failed"
	)

	EnrichSentinelFills = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chartpulse_enrich_sentinel_fills_total",
			Help: "Enrichment records filled with sentinel values",
		},
	)

	// Catalog Metrics
	CatalogRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartpulse_catalog_requests_total",
			Help: "Total number of catalog API requests",
		},
		[]string{"endpoint", "status"},
	)

	CatalogRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chartpulse_catalog_retries_total",
			Help: "Catalog requests retried after HTTP 429",
		},
	)

	CatalogCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartpulse_catalog_cache_total",
			Help: "Catalog cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total requests through circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current consecutive failures count",
		},
		[]string{"name"},
	)

	// Snapshot Metrics
	Snapshots = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartpulse_snapshots_total",
			Help: "Snapshot operations on the historical dataset",
		},
		[]string{"operation"}, // "created", "replaced", "purged", "restored"
	)

	// Prediction Metrics
	Predictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartpulse_predictions_total",
			Help: "Rows scored by the prediction adapter",
		},
		[]string{"horizon"}, // "current", "future"
	)

	RisingTracks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chartpulse_rising_tracks",
			Help: "Rows flagged as rising in the last run",
		},
		[]string{"horizon"},
	)

	// Event Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartpulse_events_published_total",
			Help: "Pipeline notifications published by type and result",
		},
		[]string{"type", "result"},
	)

	// HTTP Metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartpulse_http_requests_total",
			Help: "Total HTTP requests handled",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chartpulse_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "route"},
	)
)

// RecordStage records how long a pipeline stage took.
func RecordStage(stage string, duration time.Duration) {
	PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordRun records a finished pipeline run.
func RecordRun(err error) {
	if err != nil {
		PipelineRuns.WithLabelValues("failed").Inc()
		return
	}
	PipelineRuns.WithLabelValues("success").Inc()
	PipelineLastSuccess.Set(float64(time.Now().Unix()))
}

// RecordMerge records the row counts of one merge.
func RecordMerge(added, replaced, unenriched, total int) {
	HistoryRowsMerged.WithLabelValues("new").Add(float64(added))
	HistoryRowsMerged.WithLabelValues("replaced").Add(float64(replaced))
	HistoryRowsMerged.WithLabelValues("unenriched").Add(float64(unenriched))
	HistoryRows.Set(float64(total))
}

// RecordPredictions records scored and rising rows for one horizon.
func RecordPredictions(horizon string, scored, rising int) {
	Predictions.WithLabelValues(horizon).Add(float64(scored))
	RisingTracks.WithLabelValues(horizon).Set(float64(rising))
}

// RecordHTTPRequest records an API request metric.
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
