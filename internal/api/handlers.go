// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/tomtom215/chartpulse/internal/backup"
	"github.com/tomtom215/chartpulse/internal/chartfile"
	"github.com/tomtom215/chartpulse/internal/config"
	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/pipeline"
	"github.com/tomtom215/chartpulse/internal/report"
)

// Pipeline is the part of pipeline.Runner the handlers use.
type Pipeline interface {
	Run(ctx context.Context, rawPath string) (*pipeline.RunContext, error)
	Latest() (*pipeline.RunContext, error)
	Rising(scope report.Scope) ([]pipeline.RisingEntry, error)
	Snapshots() ([]*backup.Snapshot, error)
	Restore(ctx context.Context, snapshotID string) (*backup.RestoreResult, error)
}

// Handler serves the API endpoints.
type Handler struct {
	runner    Pipeline
	cfg       *config.Config
	startTime time.Time
}

// NewHandler creates a handler.
func NewHandler(runner Pipeline, cfg *config.Config) *Handler {
	return &Handler{runner: runner, cfg: cfg, startTime: time.Now()}
}

// UploadRequest is the validated part of an upload.
type UploadRequest struct {
	FileName string `validate:"required,max=255,endswith=.csv"`
	Size     int64  `validate:"gt=0"`
}

// RisingResponse is the body of GET /api/v1/rising.
type RisingResponse struct {
	Scope  report.Scope           `json:"scope"`
	RunID  string                 `json:"run_id"`
	Tracks []pipeline.RisingEntry `json:"tracks"`
}

// Upload stores a chart CSV in the raw directory and runs the pipeline on it.
// The run outlives a client disconnect.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	limit := h.cfg.Server.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		status, code := classify(err)
		if code == CodeInternal {
			status, code = http.StatusBadRequest, CodeInvalidInput
		}
		respondError(w, r, status, code, "Failed to parse upload: "+err.Error(), err)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidInput, ErrNoFile.Error(), err)
		return
	}
	defer func() { _ = file.Close() }()

	req := UploadRequest{FileName: filepath.Base(header.Filename), Size: header.Size}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondJSON(w, r, http.StatusBadRequest, &Response{Status: "error", Error: apiErr})
		return
	}
	if _, err := chartfile.WeekFromFilename(req.FileName); err != nil {
		respondDomainError(w, r, err)
		return
	}

	dest := filepath.Join(h.cfg.Paths.RawDir, req.FileName)
	if err := chartfile.WriteFileAtomic(dest, func(w io.Writer) error {
		_, err := io.Copy(w, file)
		return err
	}); err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to store upload", err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("file", req.FileName).Int64("bytes", req.Size).Msg("Chart uploaded")

	rc, err := h.runner.Run(context.WithoutCancel(r.Context()), dest)
	if err != nil {
		status, code := classify(err)
		if code == CodeInternal {
			code = CodeRunFailed
		}
		respondError(w, r, status, code, err.Error(), err)
		return
	}
	respondSuccess(w, r, http.StatusCreated, rc)
}

// LatestRun returns the last run context.
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	rc, err := h.runner.Latest()
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, rc)
}

// Rising returns the rising list of the latest run.
func (h *Handler) Rising(w http.ResponseWriter, r *http.Request) {
	scope, err := report.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidInput, err.Error(), nil)
		return
	}
	rc, err := h.runner.Latest()
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	tracks, err := h.runner.Rising(scope)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if tracks == nil {
		tracks = []pipeline.RisingEntry{}
	}
	respondSuccess(w, r, http.StatusOK, RisingResponse{Scope: scope, RunID: rc.RunID, Tracks: tracks})
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status  string     `json:"status"`
	Uptime  float64    `json:"uptime_seconds"`
	LastRun *RunStatus `json:"last_run,omitempty"`
}

// RunStatus summarizes one run.
type RunStatus struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	ChartWeek  string    `json:"chart_week,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Health reports liveness. The status is degraded when the last run failed.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "healthy", Uptime: time.Since(h.startTime).Seconds()}

	rc, err := h.runner.Latest()
	switch {
	case err == nil:
		health.LastRun = &RunStatus{RunID: rc.RunID, Status: rc.Status, FinishedAt: rc.FinishedAt}
		if !rc.ChartWeek.IsZero() {
			health.LastRun.ChartWeek = rc.ChartWeek.Format("2006-01-02")
		}
		if rc.Status == pipeline.StatusFailed {
			health.Status = "degraded"
		}
	case !errors.Is(err, pipeline.ErrNoRun):
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Health check could not read last run")
	}

	respondSuccess(w, r, http.StatusOK, health)
}
