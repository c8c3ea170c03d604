// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

/*
Package api provides the HTTP layer of service mode.

Endpoints:

	POST /api/v1/uploads                  multipart chart upload, runs the pipeline
	GET  /api/v1/runs/latest              the last run context
	GET  /api/v1/rising?scope=            rising list, scope current (default) or future
	GET  /api/v1/snapshots                store snapshots, newest first
	POST /api/v1/snapshots/{id}/restore   roll the store back to a snapshot
	GET  /health                          liveness and last run status
	GET  /metrics                         Prometheus metrics

Every JSON response uses the same envelope:

	{"status":"success","data":{...},"metadata":{"timestamp":"...","request_id":"..."}}
	{"status":"error","error":{"code":"INVALID_INPUT","message":"..."},"metadata":{...}}

Uploads are rate limited per client IP with go-chi/httprate. All runs go
through one pipeline.Runner, so an upload waits for a run already in progress.
*/
package api
