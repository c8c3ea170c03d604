// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

// Package history owns the historical dataset: one row per (track_id,
// chart_week), grown one chart week at a time.
//
// The merge engine is the only writer. A merge joins the week's resolved
// chart rows to their enrichment, concatenates them onto the stored history,
// keeps the last row per key, sorts by (chart_week, track_id), persists
// atomically and writes the day's backup snapshot. The store is copied aside
// before it is replaced and put back if any later step fails.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/chartpulse/internal/backup"
	"github.com/tomtom215/chartpulse/internal/chartfile"
	"github.com/tomtom215/chartpulse/internal/identity"
	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/metrics"
	"github.com/tomtom215/chartpulse/internal/models"
)

// ErrStoreLocked is returned when another process holds the store lock.
var ErrStoreLocked = errors.New("historical store is locked by another writer")

// Source names where the pre-merge history came from.
const (
	SourceStore = "store"
	SourceSeed  = "seed"
	SourceEmpty = "empty"
)

// Options configures an Engine.
type Options struct {
	// SeedPath is a read-only CSV used when the store does not exist yet.
	SeedPath string

	// WeekDir receives the joined data_week_<date>.csv of every merge.
	// Empty disables the week file.
	WeekDir string

	// LockTTL overrides DefaultLockTTL.
	LockTTL time.Duration
}

// MergeResult summarizes one merge.
type MergeResult struct {
	Week       time.Time `json:"chart_week"`
	Source     string    `json:"source"`
	RowsBefore int       `json:"rows_before"`
	RowsAfter  int       `json:"rows_after"`
	Incoming   int       `json:"incoming"`
	New        int       `json:"new"`
	Replaced   int       `json:"replaced"`
	Unenriched int       `json:"unenriched"`
	Weeks      int       `json:"weeks"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	WeekFile   string    `json:"week_file,omitempty"`
}

// Engine merges chart weeks into a Store.
type Engine struct {
	store   Store
	backups *backup.Manager
	opts    Options

	mu     sync.RWMutex
	logger zerolog.Logger
}

// NewEngine creates a merge engine. backups may be nil, in which case no
// snapshot is written.
func NewEngine(store Store, backups *backup.Manager, opts Options) *Engine {
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	return &Engine{
		store:   store,
		backups: backups,
		opts:    opts,
		logger:  logging.WithComponent("history"),
	}
}

// Store returns the engine's store.
func (e *Engine) Store() Store { return e.store }

func (e *Engine) lockPath() string     { return e.store.Path() + ".lock" }
func (e *Engine) preMergePath() string { return e.store.Path() + ".premerge" }

// Load returns the current dataset: the store, else the seed, else nothing.
func (e *Engine) Load(ctx context.Context) ([]models.HistoricalRow, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rows, _, err := e.loadLocked(ctx)
	return rows, err
}

func (e *Engine) loadLocked(ctx context.Context) ([]models.HistoricalRow, string, error) {
	exists, err := e.store.Exists()
	if err != nil {
		return nil, "", fmt.Errorf("failed to check store: %w", err)
	}
	if exists {
		rows, err := e.store.Load(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load store: %w", err)
		}
		return rows, SourceStore, nil
	}

	if e.opts.SeedPath != "" {
		seeded, err := fileExists(e.opts.SeedPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to check seed: %w", err)
		}
		if seeded {
			rows, err := readCSVFile(e.opts.SeedPath)
			if err != nil {
				return nil, "", fmt.Errorf("failed to load seed: %w", err)
			}
			return rows, SourceSeed, nil
		}
	}
	return nil, SourceEmpty, nil
}

// Merge fuses one chart week into the dataset. Tracks without an enrichment
// record are kept with unknown metadata.
func (e *Engine) Merge(ctx context.Context, week time.Time, tracks []identity.ResolvedTrack, enr map[string]models.Enrichment) (*MergeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	release, err := acquireLock(e.lockPath(), e.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	week = models.NormalizeDate(week)
	result := &MergeResult{Week: week}

	incoming := make([]models.HistoricalRow, 0, len(tracks))
	for i := range tracks {
		t := &tracks[i]
		row := models.HistoricalRow{ChartEntry: t.ChartEntry, TrackID: t.TrackID, ArtistID: t.ArtistID}
		row.ChartWeek = week
		if en, ok := enr[t.TrackID]; ok {
			row.Apply(en)
		} else {
			row.Genres = models.UnknownGenres()
			result.Unenriched++
		}
		incoming = append(incoming, row)
	}
	incoming = dedupeLast(incoming)
	result.Incoming = len(incoming)

	existing, source, err := e.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	result.Source = source
	result.RowsBefore = len(existing)

	known := make(map[models.RowKey]struct{}, len(existing))
	for i := range existing {
		known[existing[i].Key()] = struct{}{}
	}
	for i := range incoming {
		if _, ok := known[incoming[i].Key()]; ok {
			result.Replaced++
		} else {
			result.New++
		}
	}

	merged := dedupeLast(append(existing, incoming...))
	sortRows(merged)
	result.RowsAfter = len(merged)
	result.Weeks = distinctWeeks(merged)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if e.opts.WeekDir != "" {
		result.WeekFile = filepath.Join(e.opts.WeekDir, chartfile.WeekName(week))
		sortRows(incoming)
		if err := chartfile.WriteFileAtomic(result.WeekFile, func(w io.Writer) error {
			return chartfile.WriteHistory(w, incoming)
		}); err != nil {
			return nil, fmt.Errorf("failed to write week file: %w", err)
		}
	}

	restore, err := e.preserve(source == SourceStore)
	if err != nil {
		return nil, err
	}

	if err := e.store.Save(ctx, merged); err != nil {
		restore()
		return nil, fmt.Errorf("failed to persist store: %w", err)
	}

	if e.backups != nil {
		snap, err := e.backups.Snapshot(ctx, e.store.Path(), "merge "+models.FormatDate(week))
		if err != nil {
			restore()
			return nil, fmt.Errorf("failed to snapshot store: %w", err)
		}
		result.SnapshotID = snap.ID
	}
	e.discardPreserved()

	metrics.RecordMerge(result.New, result.Replaced, result.Unenriched, result.RowsAfter)
	logging.Ctx(ctx).Info().
		Str("component", "history").
		Str("chart_week", models.FormatDate(week)).
		Str("source", source).
		Int("rows_before", result.RowsBefore).
		Int("rows_after", result.RowsAfter).
		Int("new", result.New).
		Int("replaced", result.Replaced).
		Int("unenriched", result.Unenriched).
		Str("snapshot_id", result.SnapshotID).
		Msg("Chart week merged")
	return result, nil
}

// Rollback restores a snapshot over the live store under the merge lock.
func (e *Engine) Rollback(ctx context.Context, snapshotID string) (*backup.RestoreResult, error) {
	if e.backups == nil {
		return nil, errors.New("rollback requires a backup manager")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	release, err := acquireLock(e.lockPath(), e.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := e.backups.Restore(ctx, snapshotID, e.store.Path())
	if err != nil {
		return nil, err
	}
	e.logger.Info().
		Str("snapshot_id", snapshotID).
		Str("day", res.Day).
		Int64("bytes", res.BytesRestored).
		Msg("Store rolled back")
	return res, nil
}

// preserve copies the live store aside. The returned func puts it back, or
// removes a store that did not exist before the merge.
func (e *Engine) preserve(exists bool) (restore func(), err error) {
	path := e.store.Path()
	if !exists {
		return func() {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				e.logger.Error().Err(err).Msg("Failed to remove partially created store")
			}
		}, nil
	}

	aside := e.preMergePath()
	if err := copyFile(path, aside); err != nil {
		return nil, fmt.Errorf("failed to preserve store before merge: %w", err)
	}
	return func() {
		if err := os.Rename(aside, path); err != nil {
			e.logger.Error().Err(err).Str("preserved", aside).Msg("Failed to restore store after failed merge")
			return
		}
		e.logger.Warn().Msg("Store restored to its pre-merge state")
	}, nil
}

func (e *Engine) discardPreserved() {
	if err := os.Remove(e.preMergePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.logger.Warn().Err(err).Msg("Failed to remove pre-merge copy")
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // store path from configuration
	if err != nil {
		return err
	}
	defer closeQuietly(in)

	return chartfile.WriteFileAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// dedupeLast keeps the last row per key. The position of the first
// occurrence is kept; callers sort afterwards.
func dedupeLast(rows []models.HistoricalRow) []models.HistoricalRow {
	index := make(map[models.RowKey]int, len(rows))
	out := rows[:0:0]
	for i := range rows {
		k := rows[i].Key()
		if at, ok := index[k]; ok {
			out[at] = rows[i]
			continue
		}
		index[k] = len(out)
		out = append(out, rows[i])
	}
	return out
}

func sortRows(rows []models.HistoricalRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].ChartWeek.Equal(rows[j].ChartWeek) {
			return rows[i].ChartWeek.Before(rows[j].ChartWeek)
		}
		return rows[i].TrackID < rows[j].TrackID
	})
}

func distinctWeeks(rows []models.HistoricalRow) int {
	seen := make(map[int64]struct{})
	for i := range rows {
		seen[rows[i].ChartWeek.Unix()] = struct{}{}
	}
	return len(seen)
}
