// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

// Package pipeline runs one weekly chart upload through every stage:
// ingest, identity resolution, enrichment, merge, features, prediction,
// report and analytics.
//
// Runs are serialized by a Runner. Input errors, store failures, lock
// contention and prediction failures abort a run; report, analytics and
// event failures are logged and the run still succeeds.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/tomtom215/chartpulse/internal/backup"
	"github.com/tomtom215/chartpulse/internal/chartfile"
	"github.com/tomtom215/chartpulse/internal/config"
	"github.com/tomtom215/chartpulse/internal/database"
	"github.com/tomtom215/chartpulse/internal/enrich"
	"github.com/tomtom215/chartpulse/internal/events"
	"github.com/tomtom215/chartpulse/internal/features"
	"github.com/tomtom215/chartpulse/internal/history"
	"github.com/tomtom215/chartpulse/internal/identity"
	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/metrics"
	"github.com/tomtom215/chartpulse/internal/models"
	"github.com/tomtom215/chartpulse/internal/predict"
	"github.com/tomtom215/chartpulse/internal/report"
)

var (
	// ErrNoRun is returned when no run has completed yet.
	ErrNoRun = errors.New("no pipeline run available")

	// ErrPredictionDisabled is the report cause when no predictor is wired.
	ErrPredictionDisabled = errors.New("prediction is disabled")

	// ErrNoBackups is returned by snapshot operations without a backup manager.
	ErrNoBackups = errors.New("backups are not configured")
)

// Resolver maps chart rows to catalog ids.
type Resolver interface {
	Resolve(ctx context.Context, entries []models.ChartEntry) (*identity.Resolution, error)
}

// Enricher looks up metadata for resolved tracks.
type Enricher interface {
	Enrich(ctx context.Context, tracks []identity.ResolvedTrack) (map[string]models.Enrichment, enrich.Stats, error)
}

// History is the historical dataset.
type History interface {
	Load(ctx context.Context) ([]models.HistoricalRow, error)
	Merge(ctx context.Context, week time.Time, tracks []identity.ResolvedTrack, enr map[string]models.Enrichment) (*history.MergeResult, error)
	Rollback(ctx context.Context, snapshotID string) (*backup.RestoreResult, error)
}

// Predictor scores a feature frame.
type Predictor interface {
	Predict(ctx context.Context, frame models.FeatureFrame) (*predict.Result, error)
}

// Reporter turns a scored frame into report text.
type Reporter interface {
	Report(ctx context.Context, frame, top models.FeatureFrame) string
}

// Analytics exports the frame and computes market analytics.
type Analytics interface {
	ExportFrame(ctx context.Context, frame models.FeatureFrame) (int, error)
	ExportParquet(ctx context.Context, dir string, week time.Time) (string, error)
	Analyze(ctx context.Context) (*database.Report, error)
}

// SnapshotLister lists dated store snapshots.
type SnapshotLister interface {
	List() []*backup.Snapshot
}

// Deps are the stage collaborators of a Runner. Predictor, Reporter,
// Analytics, Events, Backups and Ledger may be nil.
type Deps struct {
	Resolver  Resolver
	Enricher  Enricher
	History   History
	Features  *features.Engine
	Predictor Predictor
	Reporter  Reporter
	Analytics Analytics
	Events    events.Publisher
	Backups   SnapshotLister
	Ledger    *Ledger
}

// Runner executes pipeline runs one at a time.
type Runner struct {
	cfg  *config.Config
	deps Deps

	mu      sync.Mutex
	last    *RunContext
	sources map[string]struct{}
}

// NewRunner creates a runner. Source files recorded in the ledger count as
// processed.
func NewRunner(cfg *config.Config, deps Deps) *Runner {
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}
	r := &Runner{cfg: cfg, deps: deps, sources: make(map[string]struct{})}
	if deps.Ledger != nil {
		runs, err := deps.Ledger.List(0)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to read run ledger")
		}
		for _, rc := range runs {
			if rc.Status == StatusSucceeded {
				r.sources[sourceKey(rc.SourceFile)] = struct{}{}
			}
		}
	}
	return r
}

func sourceKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Processed reports whether path already went through a successful run.
func (r *Runner) Processed(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sources[sourceKey(path)]
	return ok
}

// Run executes every stage for one raw chart file. The returned context is
// non-nil even when the run fails.
func (r *Runner) Run(ctx context.Context, rawPath string) (*RunContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run(ctx, rawPath)
}

// RunIfNew runs rawPath unless it already went through a successful run.
// started is false when the file was skipped.
func (r *Runner) RunIfNew(ctx context.Context, rawPath string) (rc *RunContext, started bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[sourceKey(rawPath)]; ok {
		return nil, false, nil
	}
	rc, err = r.run(ctx, rawPath)
	return rc, true, err
}

func (r *Runner) run(ctx context.Context, rawPath string) (*RunContext, error) {
	rc := &RunContext{
		RunID:      logging.NewRunID(),
		SourceFile: rawPath,
		Status:     StatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	ctx = logging.ContextWithRunID(ctx, rc.RunID)
	logging.Ctx(ctx).Info().Str("file", filepath.Base(rawPath)).Msg("Pipeline run started")

	err := r.execute(ctx, rc)
	rc.FinishedAt = time.Now().UTC()
	metrics.RecordRun(err)

	log := logging.Ctx(ctx)
	if err != nil {
		rc.Status = StatusFailed
		rc.Error = err.Error()
		log.Error().Err(err).Str("stage", rc.FailedAt).Msg("Pipeline run failed")
		r.publish(ctx, rc, events.TypeRunFailed, map[string]string{"stage": rc.FailedAt, "error": rc.Error})
	} else {
		rc.Status = StatusSucceeded
		r.sources[sourceKey(rawPath)] = struct{}{}
		log.Info().
			Str("chart_week", models.FormatDate(rc.ChartWeek)).
			Int("rows", len(rc.Frame)).
			Int("rising", rc.Predict.Rising).
			Dur("duration", rc.FinishedAt.Sub(rc.StartedAt)).
			Msg("Pipeline run completed")
		r.publish(ctx, rc, events.TypeRunCompleted, runSummary(rc))
	}

	if err == nil || r.last == nil {
		r.last = rc
	}
	if r.deps.Ledger != nil {
		if lerr := r.deps.Ledger.Save(rc); lerr != nil {
			log.Warn().Err(lerr).Msg("Failed to record run")
		}
	}
	return rc, err
}

func (r *Runner) execute(ctx context.Context, rc *RunContext) error {
	var (
		prep *chartfile.Prepared
		res  *identity.Resolution
		enr  map[string]models.Enrichment
	)

	if err := r.stage(ctx, rc, StageIngest, func(context.Context) error {
		var err error
		prep, err = chartfile.Prepare(rc.SourceFile, r.cfg.Paths.ProcessedDir, r.cfg.Paths.InterimDir)
		if err != nil {
			return err
		}
		rc.ChartWeek = prep.Week
		rc.Ingest = prep.Stats
		return nil
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, rc, StageResolve, func(ctx context.Context) error {
		var err error
		res, err = r.deps.Resolver.Resolve(ctx, prep.Entries)
		if err != nil {
			return err
		}
		rc.Resolve = ResolveStats{
			Resolved:       len(res.Tracks),
			FromURI:        res.FromURI,
			Searched:       res.Searched,
			SearchFailures: res.SearchFailures,
			Unresolved:     res.Unresolved,
			Backfilled:     res.Backfilled,
			MissingArtist:  res.MissingArtist,
		}
		return nil
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, rc, StageEnrich, func(ctx context.Context) error {
		var err error
		enr, rc.Enrich, err = r.deps.Enricher.Enrich(ctx, res.Tracks)
		if err != nil {
			return err
		}
		path := filepath.Join(r.cfg.Paths.InterimDir, chartfile.EnrichedName(prep.Week))
		return chartfile.WriteFileAtomic(path, func(w io.Writer) error {
			return chartfile.WriteEnrichment(w, enr)
		})
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, rc, StageMerge, func(ctx context.Context) error {
		mr, err := r.deps.History.Merge(ctx, prep.Week, res.Tracks, enr)
		if err != nil {
			return err
		}
		rc.Merge = mr
		return nil
	}); err != nil {
		return err
	}
	r.publish(ctx, rc, events.TypeMergeCompleted, rc.Merge)

	if err := r.stage(ctx, rc, StageFeatures, func(ctx context.Context) error {
		rows, err := r.deps.History.Load(ctx)
		if err != nil {
			return err
		}
		frame := r.deps.Features.Build(rows)
		future := r.deps.Features.Extrapolate(frame, r.deps.Features.Horizon())
		rc.HasFuture = len(future) > 0
		rc.Frame = append(frame, future...)
		return nil
	}); err != nil {
		return err
	}

	if r.deps.Predictor != nil {
		if err := r.stage(ctx, rc, StagePredict, func(ctx context.Context) error {
			return r.predict(ctx, rc)
		}); err != nil {
			return err
		}
	}

	if err := r.stage(ctx, rc, StageReport, func(ctx context.Context) error {
		rc.Report = r.report(ctx, rc)
		return nil
	}); err != nil {
		return err
	}

	if r.deps.Analytics != nil {
		if err := r.stage(ctx, rc, StageAnalytics, func(ctx context.Context) error {
			if err := r.analytics(ctx, rc); err != nil {
				logging.Ctx(ctx).Warn().Err(err).Msg("Analytics failed")
			}
			return ctx.Err()
		}); err != nil {
			return err
		}
	}
	return nil
}

// stage times fn and wraps its error with the stage name.
func (r *Runner) stage(ctx context.Context, rc *RunContext, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		rc.FailedAt = name
		return fmt.Errorf("%s stage: %w", name, err)
	}
	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)
	metrics.RecordStage(name, d)
	if err != nil {
		rc.FailedAt = name
		return fmt.Errorf("%s stage: %w", name, err)
	}
	rc.addStage(name, d)
	logging.Ctx(ctx).Debug().Str("stage", name).Dur("duration", d).Msg("Stage completed")
	return nil
}

func (r *Runner) predict(ctx context.Context, rc *RunContext) error {
	res, err := r.deps.Predictor.Predict(ctx, rc.Frame)
	if err != nil {
		return err
	}
	rc.Frame = res.Frame

	hist, future := rc.Frame.Split()
	current := countRising(hist)
	ahead := countRising(future)
	rc.Predict = PredictStats{
		Enabled:        true,
		Scored:         len(rc.Frame),
		FutureRows:     len(future),
		Rising:         current,
		RisingFuture:   ahead,
		MissingColumns: res.MissingColumns,
	}
	metrics.RecordPredictions("current", len(hist), current)
	metrics.RecordPredictions("future", len(future), ahead)

	top := r.cfg.Predict.TopN
	rc.RisingCurrent = toRising(report.TopRising(rc.Frame, report.ScopeCurrent, top))
	rc.RisingFuture = toRising(report.TopRising(rc.Frame, report.ScopeFuture, top))
	return nil
}

func countRising(frame models.FeatureFrame) int {
	n := 0
	for i := range frame {
		if frame[i].IsRising {
			n++
		}
	}
	return n
}

func (r *Runner) report(ctx context.Context, rc *RunContext) string {
	if r.deps.Predictor == nil {
		return report.Unavailable(ErrPredictionDisabled)
	}
	if r.deps.Reporter == nil {
		return report.Unavailable(report.ErrNoGenerator)
	}
	top := report.TopRising(rc.Frame, report.ScopeCurrent, r.cfg.Predict.TopN)
	return r.deps.Reporter.Report(ctx, rc.Frame, top)
}

func (r *Runner) analytics(ctx context.Context, rc *RunContext) error {
	if _, err := r.deps.Analytics.ExportFrame(ctx, rc.Frame); err != nil {
		return err
	}
	if dir := r.cfg.Analytics.ParquetDir; dir != "" {
		path, err := r.deps.Analytics.ExportParquet(ctx, dir, rc.ChartWeek)
		if err != nil {
			return err
		}
		rc.ParquetPath = path
	}
	rep, err := r.deps.Analytics.Analyze(ctx)
	if err != nil {
		return err
	}
	rc.Analytics = rep
	return nil
}

func (r *Runner) publish(ctx context.Context, rc *RunContext, eventType string, data interface{}) {
	week := ""
	if !rc.ChartWeek.IsZero() {
		week = models.FormatDate(rc.ChartWeek)
	}
	ev := events.NewEvent(eventType, rc.RunID, week, data)
	if err := r.deps.Events.Publish(ctx, ev); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event", eventType).Msg("Event publish failed")
	}
}

type summary struct {
	SourceFile    string        `json:"source_file"`
	Rows          int           `json:"rows"`
	Rising        int           `json:"rising"`
	RisingFuture  int           `json:"rising_future"`
	RisingCurrent []RisingEntry `json:"top_rising"`
	DurationMS    int64         `json:"duration_ms"`
}

func runSummary(rc *RunContext) summary {
	return summary{
		SourceFile:    filepath.Base(rc.SourceFile),
		Rows:          len(rc.Frame),
		Rising:        rc.Predict.Rising,
		RisingFuture:  rc.Predict.RisingFuture,
		RisingCurrent: rc.RisingCurrent,
		DurationMS:    rc.FinishedAt.Sub(rc.StartedAt).Milliseconds(),
	}
}

// Latest returns the last successful run of this process, else the latest
// run in the ledger.
func (r *Runner) Latest() (*RunContext, error) {
	r.mu.Lock()
	last := r.last
	r.mu.Unlock()
	if last != nil {
		return last, nil
	}
	if r.deps.Ledger == nil {
		return nil, ErrNoRun
	}
	rc, err := r.deps.Ledger.Latest()
	if errors.Is(err, ErrRunNotFound) {
		return nil, ErrNoRun
	}
	return rc, err
}

// Rising returns the rising list of the latest run for scope.
func (r *Runner) Rising(scope report.Scope) ([]RisingEntry, error) {
	rc, err := r.Latest()
	if err != nil {
		return nil, err
	}
	if scope == report.ScopeFuture {
		return rc.RisingFuture, nil
	}
	return rc.RisingCurrent, nil
}

// Snapshots lists the store snapshots, newest first.
func (r *Runner) Snapshots() ([]*backup.Snapshot, error) {
	if r.deps.Backups == nil {
		return nil, ErrNoBackups
	}
	return r.deps.Backups.List(), nil
}

// Restore rolls the store back to a snapshot. It waits for a running
// pipeline run to finish.
func (r *Runner) Restore(ctx context.Context, snapshotID string) (*backup.RestoreResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deps.History.Rollback(ctx, snapshotID)
}
