// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package pipeline

import (
	"time"

	"github.com/tomtom215/chartpulse/internal/chartfile"
	"github.com/tomtom215/chartpulse/internal/database"
	"github.com/tomtom215/chartpulse/internal/enrich"
	"github.com/tomtom215/chartpulse/internal/history"
	"github.com/tomtom215/chartpulse/internal/models"
)

// Stage names, in execution order.
const (
	StageIngest    = "ingest"
	StageResolve   = "resolve"
	StageEnrich    = "enrich"
	StageMerge     = "merge"
	StageFeatures  = "features"
	StagePredict   = "predict"
	StageReport    = "report"
	StageAnalytics = "analytics"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// StageStat is the timing of one completed stage.
type StageStat struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ns"`
}

// ResolveStats mirrors the counters of an identity resolution.
type ResolveStats struct {
	Resolved       int `json:"resolved"`
	FromURI        int `json:"from_uri"`
	Searched       int `json:"searched"`
	SearchFailures int `json:"search_failures"`
	Unresolved     int `json:"unresolved"`
	Backfilled     int `json:"backfilled"`
	MissingArtist  int `json:"missing_artist"`
}

// PredictStats summarizes scoring.
type PredictStats struct {
	Enabled        bool     `json:"enabled"`
	Scored         int      `json:"scored"`
	FutureRows     int      `json:"future_rows"`
	Rising         int      `json:"rising"`
	RisingFuture   int      `json:"rising_future"`
	MissingColumns []string `json:"missing_columns,omitempty"`
}

// RisingEntry is one row of a rising list.
type RisingEntry struct {
	TrackID     string    `json:"track_id"`
	TrackName   string    `json:"track_name"`
	ArtistNames string    `json:"artist_names"`
	ChartWeek   time.Time `json:"chart_week"`
	Probability float64   `json:"probability"`
	IsRising    bool      `json:"is_rising"`
}

// RunContext carries the state of one pipeline run through its stages. The
// feature frame stays in memory; everything else is persisted in the run
// ledger.
type RunContext struct {
	RunID      string    `json:"run_id"`
	SourceFile string    `json:"source_file"`
	ChartWeek  time.Time `json:"chart_week"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	FailedAt   string    `json:"failed_stage,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Stages    []StageStat          `json:"stages"`
	Ingest    chartfile.ReadStats  `json:"ingest"`
	Resolve   ResolveStats         `json:"resolve"`
	Enrich    enrich.Stats         `json:"enrich"`
	Merge     *history.MergeResult `json:"merge,omitempty"`
	Predict   PredictStats         `json:"predict"`
	Analytics *database.Report     `json:"analytics,omitempty"`

	ParquetPath string `json:"parquet_path,omitempty"`

	RisingCurrent []RisingEntry `json:"rising_current"`
	RisingFuture  []RisingEntry `json:"rising_future"`
	Report        string        `json:"report"`

	// Frame holds historical rows followed by forecast rows when HasFuture.
	Frame     models.FeatureFrame `json:"-"`
	HasFuture bool                `json:"has_future"`
}

func (rc *RunContext) addStage(name string, d time.Duration) {
	rc.Stages = append(rc.Stages, StageStat{Name: name, Duration: d})
}

func toRising(frame models.FeatureFrame) []RisingEntry {
	out := make([]RisingEntry, 0, len(frame))
	for i := range frame {
		r := &frame[i]
		out = append(out, RisingEntry{
			TrackID:     r.TrackID,
			TrackName:   r.TrackName,
			ArtistNames: r.ArtistNames,
			ChartWeek:   r.ChartWeek,
			Probability: r.Probability,
			IsRising:    r.IsRising,
		})
	}
	return out
}
