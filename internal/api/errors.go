// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/chartpulse/internal/backup"
	"github.com/tomtom215/chartpulse/internal/chartfile"
	"github.com/tomtom215/chartpulse/internal/history"
	"github.com/tomtom215/chartpulse/internal/pipeline"
)

// Error codes of the response envelope.
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeStoreLocked      = "STORE_LOCKED"
	CodeUnavailable      = "UNAVAILABLE"
	CodeRunFailed        = "RUN_FAILED"
	CodeInternal         = "INTERNAL_ERROR"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeRateLimited      = "RATE_LIMITED"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// ErrNoFile is returned when an upload has no file part.
var ErrNoFile = errors.New("multipart field \"file\" is required")

// classify maps a domain error to an HTTP status and error code.
func classify(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, CodePayloadTooLarge
	case errors.Is(err, chartfile.ErrNoDateInFilename), errors.Is(err, chartfile.ErrMissingColumn):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, history.ErrStoreLocked):
		return http.StatusConflict, CodeStoreLocked
	case errors.Is(err, pipeline.ErrNoRun), errors.Is(err, backup.ErrSnapshotNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, pipeline.ErrNoBackups):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
