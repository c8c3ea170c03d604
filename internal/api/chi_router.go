// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/chartpulse/internal/config"
)

// Router wires handlers to routes.
type Router struct {
	handler *Handler
	cfg     *config.ServerConfig
}

// NewRouter creates a router for handler.
func NewRouter(handler *Handler, cfg *config.ServerConfig) *Router {
	return &Router{handler: handler, cfg: cfg}
}

// SetupChi builds the route tree.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogging())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusNotFound, CodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed", nil)
	})

	r.Get("/health", router.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(PrometheusMetrics())
		r.Use(chimiddleware.Compress(5, "application/json"))

		r.With(RateLimit(router.cfg.RateLimitReqs, router.cfg.RateLimitWindow)).
			Post("/uploads", router.handler.Upload)

		r.Get("/runs/latest", router.handler.LatestRun)
		r.Get("/rising", router.handler.Rising)

		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", router.handler.ListSnapshots)
			r.Post("/{id}/restore", router.handler.RestoreSnapshot)
		})
	})

	return r
}
