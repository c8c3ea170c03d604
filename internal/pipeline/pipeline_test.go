// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/chartpulse/internal/backup"
	"github.com/tomtom215/chartpulse/internal/cache"
	"github.com/tomtom215/chartpulse/internal/chartfile"
	"github.com/tomtom215/chartpulse/internal/config"
	"github.com/tomtom215/chartpulse/internal/database"
	"github.com/tomtom215/chartpulse/internal/enrich"
	"github.com/tomtom215/chartpulse/internal/events"
	"github.com/tomtom215/chartpulse/internal/features"
	"github.com/tomtom215/chartpulse/internal/history"
	"github.com/tomtom215/chartpulse/internal/identity"
	"github.com/tomtom215/chartpulse/internal/models"
	"github.com/tomtom215/chartpulse/internal/predict"
	"github.com/tomtom215/chartpulse/internal/report"
)

const (
	idOne = "0V3wPSX9ygBnCm8psDIegu"
	idTwo = "4Dvkj6JhhA12EX05fT7y2e"
)

var (
	week1 = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	week2 = time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	week3 = time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)
)

// scorePredictor marks idOne as rising and everything else as not.
type scorePredictor struct {
	calls int
	err   error
}

func (p *scorePredictor) Predict(_ context.Context, frame models.FeatureFrame) (*predict.Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	out := append(models.FeatureFrame(nil), frame...)
	res := &predict.Result{Frame: out}
	for i := range out {
		out[i].Probability = 0.3
		if out[i].TrackID == idOne {
			out[i].Probability = 0.95
		}
		out[i].IsRising = out[i].Probability > 0.5
		if out[i].IsRising {
			res.Rising++
		}
	}
	return res, nil
}

type stubGenerator struct {
	stats report.Stats
}

func (g *stubGenerator) Generate(_ context.Context, s report.Stats) (string, error) {
	g.stats = s
	return "weekly summary", nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type failingAnalytics struct{}

func (failingAnalytics) ExportFrame(context.Context, models.FeatureFrame) (int, error) {
	return 0, errors.New("disk full")
}

func (failingAnalytics) ExportParquet(context.Context, string, time.Time) (string, error) {
	return "", nil
}

func (failingAnalytics) Analyze(context.Context) (*database.Report, error) { return nil, nil }

type testEnv struct {
	root      string
	cfg       *config.Config
	engine    *history.Engine
	backups   *backup.Manager
	predictor *scorePredictor
	generator *stubGenerator
	publisher *recordingPublisher
	ledger    *Ledger
	deps      Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	cfg.Paths = config.PathsConfig{
		RawDir:       filepath.Join(root, "raw"),
		ProcessedDir: filepath.Join(root, "processed"),
		InterimDir:   filepath.Join(root, "interim"),
	}
	cfg.History.StorePath = filepath.Join(root, "processed", "hist_data_updated.csv")
	cfg.History.SeedPath = filepath.Join(root, "processed", "hist_data_24-25.csv")
	cfg.Backup.Dir = filepath.Join(root, "backups")
	cfg.Features.HorizonWeeks = 2
	cfg.Predict.TopN = 10
	cfg.Analytics.ParquetDir = ""

	backups, err := backup.NewManager(&cfg.Backup)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	engine := history.NewEngine(history.NewCSVStore(cfg.History.StorePath), backups, history.Options{
		SeedPath: cfg.History.SeedPath,
		WeekDir:  cfg.Paths.ProcessedDir,
	})

	store, err := cache.OpenInMemory(0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	env := &testEnv{
		root:      root,
		cfg:       cfg,
		engine:    engine,
		backups:   backups,
		predictor: &scorePredictor{},
		generator: &stubGenerator{},
		publisher: &recordingPublisher{},
		ledger:    NewLedger(store),
	}
	env.deps = Deps{
		Resolver:  identity.NewResolver(nil, 50),
		Enricher:  enrich.New(nil, 50, 0),
		History:   engine,
		Features:  features.NewEngine(&cfg.Features),
		Predictor: env.predictor,
		Reporter:  report.NewCollaborator(env.generator, 0.9),
		Events:    env.publisher,
		Backups:   backups,
		Ledger:    env.ledger,
	}
	return env
}

func seedRow(id, name, artist string, week time.Time, streams int64) models.HistoricalRow {
	return models.HistoricalRow{
		ChartEntry: models.ChartEntry{ChartWeek: week, TrackName: name, ArtistNames: artist, Streams: streams, URI: "spotify:track:" + id},
		TrackID:    id,
		ArtistID:   "artist-" + id,
		Genres:     models.NewGenreSet("pop"),
	}
}

func (e *testEnv) writeSeed(t *testing.T) {
	t.Helper()
	rows := []models.HistoricalRow{
		seedRow(idOne, "Anti-Hero", "Taylor Swift", week1, 100),
		seedRow(idTwo, "As It Was", "Harry Styles", week1, 90),
		seedRow(idOne, "Anti-Hero", "Taylor Swift", week2, 110),
		seedRow(idTwo, "As It Was", "Harry Styles", week2, 80),
	}
	if err := chartfile.WriteFileAtomic(e.cfg.History.SeedPath, func(w io.Writer) error {
		return chartfile.WriteHistory(w, rows)
	}); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) writeRaw(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.cfg.Paths.RawDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const weekThreeChart = "rank,uri,artist_names,track_name,streams\n" +
	"1,spotify:track:" + idOne + ",Taylor Swift,Anti-Hero,999\n"

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.writeSeed(t)

	analytics, err := database.New(&config.AnalyticsConfig{ShareTopN: 10, RollingWeeks: 4})
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { _ = analytics.Close() })
	env.deps.Analytics = analytics

	runner := NewRunner(env.cfg, env.deps)
	raw := env.writeRaw(t, "regional-global-weekly-2025-01-16.csv", weekThreeChart)

	rc, err := runner.Run(context.Background(), raw)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rc.Status != StatusSucceeded || rc.RunID == "" {
		t.Fatalf("status = %s, run id = %q", rc.Status, rc.RunID)
	}
	if !rc.ChartWeek.Equal(week3) {
		t.Errorf("chart week = %v", rc.ChartWeek)
	}

	// Merge: 2 tracks x 2 weeks plus the new week's row.
	if rc.Merge == nil || rc.Merge.RowsAfter != 5 || rc.Merge.Weeks != 3 || rc.Merge.Source != history.SourceSeed {
		t.Fatalf("merge = %+v", rc.Merge)
	}
	rows, err := env.engine.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var corrected bool
	for _, r := range rows {
		if r.TrackID == idOne && r.ChartWeek.Equal(week3) {
			corrected = r.Streams == 999
		}
	}
	if !corrected {
		t.Error("week 3 row must carry the uploaded streams")
	}

	wantStages := []string{StageIngest, StageResolve, StageEnrich, StageMerge, StageFeatures, StagePredict, StageReport, StageAnalytics}
	if len(rc.Stages) != len(wantStages) {
		t.Fatalf("stages = %+v", rc.Stages)
	}
	for i, s := range rc.Stages {
		if s.Name != wantStages[i] {
			t.Errorf("stage %d = %s, want %s", i, s.Name, wantStages[i])
		}
	}

	for _, path := range []string{
		filepath.Join(env.cfg.Paths.ProcessedDir, chartfile.ProcessedName(week3)),
		filepath.Join(env.cfg.Paths.ProcessedDir, chartfile.WeekName(week3)),
		filepath.Join(env.cfg.Paths.InterimDir, chartfile.UniqueName(week3)),
		filepath.Join(env.cfg.Paths.InterimDir, chartfile.EnrichedName(week3)),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s: %v", filepath.Base(path), err)
		}
	}

	// Two tracks extrapolated over two weeks.
	if !rc.HasFuture || len(rc.Frame) != 9 || rc.Predict.FutureRows != 4 {
		t.Errorf("frame rows = %d, future rows = %d", len(rc.Frame), rc.Predict.FutureRows)
	}
	if rc.Predict.Rising != 3 || rc.Predict.RisingFuture != 2 {
		t.Errorf("rising = %d, rising future = %d", rc.Predict.Rising, rc.Predict.RisingFuture)
	}

	if len(rc.RisingCurrent) != 1 || rc.RisingCurrent[0].TrackID != idOne {
		t.Errorf("current rising = %+v", rc.RisingCurrent)
	}
	if len(rc.RisingFuture) != 2 || rc.RisingFuture[0].TrackID != idOne || !rc.RisingFuture[0].ChartWeek.Equal(week3.AddDate(0, 0, 7)) {
		t.Errorf("future rising = %+v", rc.RisingFuture)
	}

	if rc.Report != "weekly summary" {
		t.Errorf("report = %q", rc.Report)
	}
	if env.generator.stats.TopTrack != "Anti-Hero" || env.generator.stats.Rows != 9 {
		t.Errorf("report stats = %+v", env.generator.stats)
	}

	if rc.Analytics == nil || len(rc.Analytics.WeeklyStreams) != 3 {
		t.Errorf("analytics = %+v", rc.Analytics)
	}

	types := env.publisher.types()
	if len(types) != 2 || types[0] != events.TypeMergeCompleted || types[1] != events.TypeRunCompleted {
		t.Errorf("events = %v", types)
	}

	latest, err := env.ledger.Latest()
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.RunID != rc.RunID || latest.Status != StatusSucceeded || len(latest.RisingCurrent) != 1 {
		t.Errorf("ledger latest = %+v", latest)
	}
	if !runner.Processed(raw) {
		t.Error("source file must count as processed")
	}

	future, err := runner.Rising(report.ScopeFuture)
	if err != nil || len(future) != 2 {
		t.Errorf("Rising(future) = %v, %v", future, err)
	}
}

func TestRunInputErrorAborts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr error
	}{
		{"no date in filename", "weekly.csv", weekThreeChart, chartfile.ErrNoDateInFilename},
		{"missing column", "regional-global-weekly-2025-01-16.csv", "rank,uri,streams\n1,x,5\n", chartfile.ErrMissingColumn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			runner := NewRunner(env.cfg, env.deps)
			raw := env.writeRaw(t, tt.file, tt.content)

			rc, err := runner.Run(context.Background(), raw)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if !strings.HasPrefix(err.Error(), "ingest stage: ") {
				t.Errorf("error not wrapped with stage: %v", err)
			}
			if rc.Status != StatusFailed || rc.FailedAt != StageIngest {
				t.Errorf("status = %s, failed at %s", rc.Status, rc.FailedAt)
			}
			if _, err := os.Stat(env.cfg.History.StorePath); !os.IsNotExist(err) {
				t.Error("store must not be written by a failed run")
			}
			if types := env.publisher.types(); len(types) != 1 || types[0] != events.TypeRunFailed {
				t.Errorf("events = %v", types)
			}
			if runner.Processed(raw) {
				t.Error("failed source must not count as processed")
			}
			if env.predictor.calls != 0 {
				t.Error("predictor must not run after an input error")
			}
		})
	}
}

func TestRunPredictionFailureAborts(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.predictor.err = predict.ErrMissingTimestamp
	runner := NewRunner(env.cfg, env.deps)

	rc, err := runner.Run(context.Background(), env.writeRaw(t, "chart-2025-01-16.csv", weekThreeChart))
	if !errors.Is(err, predict.ErrMissingTimestamp) {
		t.Fatalf("Run() error = %v", err)
	}
	if rc.FailedAt != StagePredict {
		t.Errorf("failed at %s", rc.FailedAt)
	}
	// The merge before the failing stage is committed.
	if _, err := os.Stat(env.cfg.History.StorePath); err != nil {
		t.Errorf("store missing after merge: %v", err)
	}
}

func TestRunUnresolvedFirstChart(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.deps.Predictor = predict.NewAdapter(predict.NewHandle(&env.cfg.Predict, nil))
	runner := NewRunner(env.cfg, env.deps)

	// No uri and no catalog: nothing resolves, and there is no history yet.
	raw := env.writeRaw(t, "regional-global-weekly-2025-01-16.csv",
		"rank,uri,artist_names,track_name,streams\n1,,Taylor Swift,Anti-Hero,999\n")

	rc, err := runner.Run(context.Background(), raw)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rc.Status != StatusSucceeded || rc.FailedAt != "" {
		t.Fatalf("status = %s, failed at %q", rc.Status, rc.FailedAt)
	}
	if rc.Resolve.Unresolved != 1 || rc.Resolve.Resolved != 0 {
		t.Errorf("resolve stats = %+v", rc.Resolve)
	}
	if len(rc.Frame) != 0 || rc.Predict.Scored != 0 || len(rc.RisingCurrent) != 0 {
		t.Errorf("frame = %d rows, predict = %+v", len(rc.Frame), rc.Predict)
	}
	if !strings.HasPrefix(rc.Report, report.UnavailablePrefix) {
		t.Errorf("report = %q", rc.Report)
	}
	if !runner.Processed(raw) {
		t.Error("succeeded source must count as processed")
	}
}

func TestRunWithoutPredictor(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.deps.Predictor = nil
	env.deps.Analytics = failingAnalytics{}
	runner := NewRunner(env.cfg, env.deps)

	rc, err := runner.Run(context.Background(), env.writeRaw(t, "chart-2025-01-16.csv", weekThreeChart))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.HasPrefix(rc.Report, report.UnavailablePrefix) || !strings.Contains(rc.Report, "prediction is disabled") {
		t.Errorf("report = %q", rc.Report)
	}
	if rc.Predict.Enabled || len(rc.RisingCurrent) != 0 {
		t.Errorf("predict stats = %+v", rc.Predict)
	}
	if rc.Analytics != nil {
		t.Error("failed analytics must leave no report")
	}
	for _, s := range rc.Stages {
		if s.Name == StagePredict {
			t.Error("predict stage must be skipped")
		}
	}
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	runner := NewRunner(env.cfg, env.deps)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rc, err := runner.Run(ctx, env.writeRaw(t, "chart-2025-01-16.csv", weekThreeChart))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v", err)
	}
	if rc.FailedAt != StageIngest || len(rc.Stages) != 0 {
		t.Errorf("failed at %s after %d stages", rc.FailedAt, len(rc.Stages))
	}
}

func TestRunnerSnapshotsAndRestore(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	runner := NewRunner(env.cfg, env.deps)
	ctx := context.Background()

	if _, err := runner.Latest(); !errors.Is(err, ErrNoRun) {
		t.Errorf("Latest() before any run = %v", err)
	}

	if _, err := runner.Run(ctx, env.writeRaw(t, "chart-2025-01-16.csv", weekThreeChart)); err != nil {
		t.Fatal(err)
	}
	snaps, err := runner.Snapshots()
	if err != nil || len(snaps) != 1 {
		t.Fatalf("Snapshots() = %v, %v", snaps, err)
	}

	if err := os.WriteFile(env.cfg.History.StorePath, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := runner.Restore(ctx, snaps[0].ID); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	rows, err := env.engine.Load(ctx)
	if err != nil || len(rows) != 1 {
		t.Errorf("restored rows = %d, %v", len(rows), err)
	}

	noBackups := NewRunner(env.cfg, Deps{History: env.engine})
	if _, err := noBackups.Snapshots(); !errors.Is(err, ErrNoBackups) {
		t.Errorf("Snapshots() without backups = %v", err)
	}
}

func TestLedger(t *testing.T) {
	t.Parallel()

	store, err := cache.OpenInMemory(0)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()
	ledger := NewLedger(store)

	if _, err := ledger.Latest(); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Latest() on empty ledger = %v", err)
	}

	start := time.Date(2025, 1, 16, 9, 0, 0, 0, time.UTC)
	first := &RunContext{RunID: "run-a", SourceFile: "/data/raw/a-2025-01-09.csv", Status: StatusSucceeded, StartedAt: start}
	second := &RunContext{RunID: "run-b", SourceFile: "/data/raw/b-2025-01-16.csv", Status: StatusFailed, StartedAt: start.Add(time.Hour)}
	for _, rc := range []*RunContext{first, second} {
		if err := ledger.Save(rc); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	latest, err := ledger.Latest()
	if err != nil || latest.RunID != "run-b" {
		t.Errorf("Latest() = %+v, %v", latest, err)
	}
	got, err := ledger.Get("run-a")
	if err != nil || got.SourceFile != first.SourceFile {
		t.Errorf("Get() = %+v, %v", got, err)
	}
	if _, err := ledger.Get("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Get(missing) = %v", err)
	}

	runs, err := ledger.List(1)
	if err != nil || len(runs) != 1 || runs[0].RunID != "run-b" {
		t.Errorf("List(1) = %v, %v", runs, err)
	}
	all, err := ledger.List(0)
	if err != nil || len(all) != 2 {
		t.Errorf("List(0) = %d runs, %v", len(all), err)
	}

	runner := NewRunner(config.Default(), Deps{Ledger: ledger})
	if !runner.Processed(first.SourceFile) {
		t.Error("succeeded ledger run must count as processed")
	}
	if runner.Processed(second.SourceFile) {
		t.Error("failed ledger run must not count as processed")
	}
	rc, err := runner.Latest()
	if err != nil || rc.RunID != "run-b" {
		t.Errorf("runner Latest() = %+v, %v", rc, err)
	}
}

func TestRunIfNew(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	runner := NewRunner(env.cfg, env.deps)
	ctx := context.Background()
	raw := env.writeRaw(t, "chart-2025-01-16.csv", weekThreeChart)

	rc, started, err := runner.RunIfNew(ctx, raw)
	if err != nil || !started || rc == nil {
		t.Fatalf("first RunIfNew() = %v, %v, %v", rc, started, err)
	}
	rc, started, err = runner.RunIfNew(ctx, raw)
	if err != nil || started || rc != nil {
		t.Errorf("second RunIfNew() = %v, %v, %v", rc, started, err)
	}
	if env.predictor.calls != 1 {
		t.Errorf("predictor calls = %d, want 1", env.predictor.calls)
	}
}
