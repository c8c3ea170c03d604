// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package chartfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tomtom215/chartpulse/internal/models"
)

// chartColumns is the column order of processed chart files.
var chartColumns = []string{
	"chart_week", "rank", "uri", "artist_names", "track_name", "source",
	"peak_rank", "previous_rank", "weeks_on_chart", "streams",
}

// ReadStats describes what a read skipped or zero-filled.
type ReadStats struct {
	Rows     int `json:"rows"`      // rows returned
	BadCells int `json:"bad_cells"` // numeric or date cells that failed to parse and became zero
	Skipped  int `json:"skipped"`   // rows dropped entirely
}

// ReadChart parses a weekly chart export. track_name and artist_names are
// required; every other column is optional and zero-filled when absent.
func ReadChart(r io.Reader, week time.Time) ([]models.ChartEntry, ReadStats, error) {
	var (
		entries []models.ChartEntry
		stats   ReadStats
	)
	week = models.NormalizeDate(week)

	_, err := readAll(r, []string{"track_name", "artist_names"}, func(rec *record) {
		e := models.ChartEntry{
			ChartWeek:    week,
			Rank:         rec.intCol("rank"),
			URI:          rec.str("uri"),
			ArtistNames:  rec.str("artist_names"),
			TrackName:    rec.str("track_name"),
			Source:       rec.str("source"),
			PeakRank:     rec.intCol("peak_rank"),
			PreviousRank: rec.intCol("previous_rank"),
			WeeksOnChart: rec.intCol("weeks_on_chart"),
			Streams:      rec.int64Col("streams"),
		}
		stats.BadCells += rec.bad
		if e.TrackName == "" && e.ArtistNames == "" && e.URI == "" {
			stats.Skipped++
			return
		}
		if e.Streams < 0 {
			e.Streams = 0
			stats.BadCells++
		}
		entries = append(entries, e)
	})
	if err != nil {
		return nil, stats, err
	}
	stats.Rows = len(entries)
	return entries, stats, nil
}

// ReadChartFile opens path and derives the chart week from its name.
func ReadChartFile(path string) ([]models.ChartEntry, time.Time, ReadStats, error) {
	week, err := WeekFromFilename(path)
	if err != nil {
		return nil, time.Time{}, ReadStats{}, err
	}

	f, err := os.Open(path) //nolint:gosec // path comes from the configured raw directory
	if err != nil {
		return nil, time.Time{}, ReadStats{}, fmt.Errorf("failed to open chart file: %w", err)
	}
	defer closeQuietly(f)

	entries, stats, err := ReadChart(f, week)
	if err != nil {
		return nil, time.Time{}, stats, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return entries, week, stats, nil
}

// WriteChart writes entries with chart_week as the leading column.
func WriteChart(w io.Writer, entries []models.ChartEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(chartColumns); err != nil {
		return err
	}
	for i := range entries {
		e := &entries[i]
		if err := cw.Write([]string{
			models.FormatDate(e.ChartWeek), itoa(e.Rank), e.URI, e.ArtistNames, e.TrackName, e.Source,
			itoa(e.PeakRank), itoa(e.PreviousRank), itoa(e.WeeksOnChart), i64toa(e.Streams),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// UniqueTracks keeps the first entry of every (track_name, artist_names) pair.
func UniqueTracks(entries []models.ChartEntry) []models.ChartEntry {
	type pair struct{ track, artists string }
	seen := make(map[pair]struct{}, len(entries))
	out := make([]models.ChartEntry, 0, len(entries))
	for _, e := range entries {
		k := pair{e.TrackName, e.ArtistNames}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Prepared is a chart upload after the ingest step.
type Prepared struct {
	Week          time.Time
	Entries       []models.ChartEntry
	Unique        []models.ChartEntry
	ProcessedPath string
	UniquePath    string
	Stats         ReadStats
}

// DateString returns the chart week in file-name form.
func (p *Prepared) DateString() string {
	return models.FormatDate(p.Week)
}

// ProcessedName is the processed chart file name for a week.
func ProcessedName(week time.Time) string {
	return "regional_global_weekly_" + models.FormatDate(week) + ".csv"
}

// UniqueName is the interim unique-track file name for a week.
func UniqueName(week time.Time) string {
	return "unique_tracks_to_enrich_" + models.FormatDate(week) + ".csv"
}

// EnrichedName is the interim enrichment file name for a week.
func EnrichedName(week time.Time) string {
	return "enriched_data_" + models.FormatDate(week) + ".csv"
}

// WeekName is the joined week file name written by the merge step.
func WeekName(week time.Time) string {
	return "data_week_" + models.FormatDate(week) + ".csv"
}

// Prepare reads a raw chart upload, writes the processed copy with its
// chart_week column and the unique-track list to enrich.
func Prepare(rawPath, processedDir, interimDir string) (*Prepared, error) {
	entries, week, stats, err := ReadChartFile(rawPath)
	if err != nil {
		return nil, err
	}

	p := &Prepared{
		Week:          week,
		Entries:       entries,
		Unique:        UniqueTracks(entries),
		ProcessedPath: filepath.Join(processedDir, ProcessedName(week)),
		UniquePath:    filepath.Join(interimDir, UniqueName(week)),
		Stats:         stats,
	}

	if err := WriteFileAtomic(p.ProcessedPath, func(w io.Writer) error {
		return WriteChart(w, p.Entries)
	}); err != nil {
		return nil, fmt.Errorf("failed to write processed chart: %w", err)
	}
	if err := WriteFileAtomic(p.UniquePath, func(w io.Writer) error {
		return WriteChart(w, p.Unique)
	}); err != nil {
		return nil, fmt.Errorf("failed to write unique tracks: %w", err)
	}
	return p, nil
}
