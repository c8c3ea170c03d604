// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package models

import (
	"sort"
	"time"
)

// FeatureRow is a historical (or synthetic future) row plus derived columns.
type FeatureRow struct {
	HistoricalRow

	DS               time.Time `json:"ds"` // forecast timestamp, equal to chart_week
	GenrePopIdx      float64   `json:"genre_pop_idx"`
	ArtistGrowthRate float64   `json:"artist_growth_rate"` // fraction, 0.25 is +25%
	SeasonalityScore float64   `json:"seasonality_score"`
	GenreIdxLagged   float64   `json:"genre_idx_lagged"`
	ProphetTrend     float64   `json:"prophet_trend"`
	Probability      float64   `json:"probability"`
	IsRising         bool      `json:"is_rising"`
	IsFuture         bool      `json:"is_future"`
}

// FeatureFrame is the per-run feature table. It is rebuilt on every run and
// never used as the system of record.
type FeatureFrame []FeatureRow

// Column returns the named numeric column of r. Names follow the stored
// file headers. ok is false for unknown names.
func (r *FeatureRow) Column(name string) (value float64, ok bool) {
	switch name {
	case "rank":
		return float64(r.Rank), true
	case "peak_rank":
		return float64(r.PeakRank), true
	case "previous_rank":
		return float64(r.PreviousRank), true
	case "weeks_on_chart":
		return float64(r.WeeksOnChart), true
	case "streams":
		return float64(r.Streams), true
	case "explicit":
		if r.Explicit {
			return 1, true
		}
		return 0, true
	case "track_popularity":
		return float64(r.TrackPopularity), true
	case "artist_followers":
		return float64(r.ArtistFollowers), true
	case "artist_popularity":
		return float64(r.ArtistPopularity), true
	case "genre_pop_idx":
		return r.GenrePopIdx, true
	case "artist_growth_rate":
		return r.ArtistGrowthRate, true
	case "seasonality_score":
		return r.SeasonalityScore, true
	case "genre_idx_lagged":
		return r.GenreIdxLagged, true
	case "prophet_trend":
		return r.ProphetTrend, true
	case "month":
		return float64(r.ChartWeek.Month()), true
	case "week_of_year":
		_, w := r.ChartWeek.ISOWeek()
		return float64(w), true
	case "release_year":
		if r.ReleaseDate.IsZero() {
			return 0, true
		}
		return float64(r.ReleaseDate.Year()), true
	case "days_since_release":
		if r.ReleaseDate.IsZero() || r.ReleaseDate.Equal(EpochSentinel) || r.ChartWeek.Before(r.ReleaseDate) {
			return 0, true
		}
		return r.ChartWeek.Sub(r.ReleaseDate).Hours() / 24, true
	default:
		return 0, false
	}
}

// Weeks returns the distinct chart weeks of the frame in ascending order.
func (f FeatureFrame) Weeks() []time.Time {
	seen := make(map[int64]struct{})
	var weeks []time.Time
	for i := range f {
		k := f[i].ChartWeek.Unix()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		weeks = append(weeks, f[i].ChartWeek)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].Before(weeks[j]) })
	return weeks
}

// Split separates observed rows from synthetic future rows.
func (f FeatureFrame) Split() (history, future FeatureFrame) {
	for i := range f {
		if f[i].IsFuture {
			future = append(future, f[i])
		} else {
			history = append(history, f[i])
		}
	}
	return history, future
}

// InWeek returns the rows whose chart_week equals week.
func (f FeatureFrame) InWeek(week time.Time) FeatureFrame {
	var out FeatureFrame
	for i := range f {
		if f[i].ChartWeek.Equal(week) {
			out = append(out, f[i])
		}
	}
	return out
}
