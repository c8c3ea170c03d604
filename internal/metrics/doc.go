// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

/*
Package metrics provides Prometheus metrics for the chart pipeline.

All collectors are registered with the default registry through promauto and
are exposed on /metrics in service mode:

	curl http://localhost:8470/metrics

# Available Metrics

Pipeline Metrics:
  - chartpulse_pipeline_runs_total: Completed runs (counter)
    Labels: status (success, failed)
  - chartpulse_pipeline_stage_duration_seconds: Stage latency (histogram)
    Labels: stage (ingest, resolve, enrich, merge, features, predict, report, analytics)
  - chartpulse_pipeline_last_success_timestamp: Unix time of the last good run (gauge)

History Metrics:
  - chartpulse_history_rows_merged_total: Rows written by merges (counter)
    Labels: kind (new, replaced, unenriched)
  - chartpulse_history_rows: Rows in the live store after the last merge (gauge)
  - chartpulse_identity_unresolved_total: Chart rows dropped without a track id (counter)

Enrichment and Catalog Metrics:
  - chartpulse_enrich_batches_total: Lookup batches (counter)
    Labels: outcome (ok, retried, failed)
  - chartpulse_enrich_sentinel_fills_total: Records filled with sentinels (counter)
  - chartpulse_catalog_requests_total: Catalog requests (counter)
    Labels: endpoint, status
  - chartpulse_catalog_retries_total: 429 retries (counter)
  - chartpulse_catalog_cache_total: Cache lookups (counter)
    Labels: result (hit, miss)

Circuit Breaker Metrics:
  - circuit_breaker_state: 0=closed, 1=half-open, 2=open (gauge)
  - circuit_breaker_requests_total: Requests by result (counter)
  - circuit_breaker_transitions_total: State transitions (counter)

Snapshot and Prediction Metrics:
  - chartpulse_snapshots_total: Snapshot operations (counter)
    Labels: operation (created, replaced, purged, restored)
  - chartpulse_predictions_total: Scored rows (counter)
    Labels: horizon (current, future)
  - chartpulse_rising_tracks: Rising rows in the last run (gauge)
    Labels: horizon

HTTP Metrics:
  - chartpulse_http_requests_total and chartpulse_http_request_duration_seconds
    Labels: method, route, status
*/
package metrics
