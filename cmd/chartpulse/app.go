// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package main

import (
	"fmt"

	"github.com/tomtom215/chartpulse/internal/backup"
	"github.com/tomtom215/chartpulse/internal/cache"
	"github.com/tomtom215/chartpulse/internal/catalog"
	"github.com/tomtom215/chartpulse/internal/config"
	"github.com/tomtom215/chartpulse/internal/database"
	"github.com/tomtom215/chartpulse/internal/enrich"
	"github.com/tomtom215/chartpulse/internal/events"
	"github.com/tomtom215/chartpulse/internal/features"
	"github.com/tomtom215/chartpulse/internal/history"
	"github.com/tomtom215/chartpulse/internal/identity"
	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/pipeline"
	"github.com/tomtom215/chartpulse/internal/predict"
	"github.com/tomtom215/chartpulse/internal/report"
)

// app holds the wired components and what has to be closed on exit.
type app struct {
	cfg       *config.Config
	runner    *pipeline.Runner
	ledger    *pipeline.Ledger
	analytics *database.DB
	closers   []func() error
}

// newApp wires every collaborator from cfg. Optional parts (catalog,
// prediction, report, analytics, events) are left out when disabled.
func newApp(cfg *config.Config, serving bool) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, err := cache.Open(&cfg.Cache)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	a.ledger = pipeline.NewLedger(store)

	var client catalog.Client
	if cfg.Catalog.Enabled {
		client = catalog.NewCircuitBreakerClient(catalog.NewSpotifyClient(&cfg.Catalog), &cfg.Catalog)
		if cfg.Cache.Enabled {
			client = catalog.NewCachedClient(client, store)
		}
	} else {
		logging.Warn().Msg("Catalog disabled, tracks resolve from chart URIs only")
	}

	backups, err := backup.NewManager(&cfg.Backup)
	if err != nil {
		return nil, err
	}
	histStore, err := history.NewStore(&cfg.History)
	if err != nil {
		return nil, err
	}
	engine := history.NewEngine(histStore, backups, history.Options{
		SeedPath: cfg.History.SeedPath,
		WeekDir:  cfg.Paths.ProcessedDir,
	})

	deps := pipeline.Deps{
		Resolver: identity.NewResolver(client, cfg.Catalog.BatchSize),
		Enricher: enrich.New(client, cfg.Catalog.BatchSize, cfg.Catalog.Cooldown),
		History:  engine,
		Features: features.NewEngine(&cfg.Features),
		Backups:  backups,
		Ledger:   a.ledger,
	}

	if cfg.Predict.Enabled {
		deps.Predictor = predict.NewAdapter(predict.NewHandle(&cfg.Predict, nil))

		var gen report.Generator
		if cfg.Report.Enabled {
			gen = report.NewBreakerGenerator(report.NewGeminiGenerator(&cfg.Report), cfg.Report.Timeout)
		}
		deps.Reporter = report.NewCollaborator(gen, cfg.Predict.ReportThreshold)
	}

	if cfg.Analytics.Enabled {
		db, err := database.New(&cfg.Analytics)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.analytics = db
		deps.Analytics = db
	}

	// Only serve mode runs the embedded server; one-shot commands publish to
	// whatever server the URL names.
	if cfg.Events.Enabled && (serving || !cfg.Events.Embedded) {
		pub, err := events.NewNATSPublisher(cfg.Events.URL, &cfg.Events)
		if err != nil {
			return nil, fmt.Errorf("events: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		deps.Events = pub
	}

	a.runner = pipeline.NewRunner(cfg, deps)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.Warn().Err(err).Msg("Close failed")
		}
	}
	a.closers = nil
}
