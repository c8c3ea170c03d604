// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/chartpulse/internal/logging"
)

// RestoreRequest identifies the snapshot to roll back to.
type RestoreRequest struct {
	ID string `validate:"required,uuid"`
}

// ListSnapshots returns the store snapshots, newest first.
// GET /api/v1/snapshots
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.runner.Snapshots()
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, snaps)
}

// RestoreSnapshot rolls the historical store back to a snapshot.
// POST /api/v1/snapshots/{id}/restore
func (h *Handler) RestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	req := RestoreRequest{ID: chi.URLParam(r, "id")}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondJSON(w, r, http.StatusBadRequest, &Response{Status: "error", Error: apiErr})
		return
	}

	res, err := h.runner.Restore(r.Context(), req.ID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("snapshot_id", req.ID).Msg("Snapshot restored through API")
	respondSuccess(w, r, http.StatusOK, res)
}
