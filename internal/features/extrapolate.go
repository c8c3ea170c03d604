// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package features

import (
	"sort"
	"time"

	"github.com/tomtom215/chartpulse/internal/models"
)

// Extrapolate synthesizes horizon future weeks for every track of frame.
// Only observed rows of frame are used as the source. The result is sorted
// by (ds, track_id) and every row has is_future set.
func (e *Engine) Extrapolate(frame models.FeatureFrame, horizon int) models.FeatureFrame {
	hist, _ := frame.Split()
	if len(hist) == 0 || horizon <= 0 {
		return nil
	}

	weeks := hist.Weeks()
	last := weeks[len(weeks)-1]

	latest := latestPerTrack(hist)
	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	future := make([]time.Time, horizon)
	for i := range future {
		future[i] = last.AddDate(0, 0, 7*(i+1))
	}

	lagged := fillTimeline(weeks, future, weeklyMean(hist, func(r *models.FeatureRow) float64 { return r.GenreIdxLagged }))
	season := fillTimeline(weeks, future, weeklyMean(hist, func(r *models.FeatureRow) float64 { return r.SeasonalityScore }))

	var ratios map[int]float64
	if e.seasonality == SeasonalityCalendarMonth {
		ratios, _ = monthRatios(hist)
	}

	out := make(models.FeatureFrame, 0, horizon*len(ids))
	for i, week := range future {
		lag := lagged[len(weeks)+i]
		seas := season[len(weeks)+i]
		if r, ok := ratios[int(week.Month())]; ok {
			seas = r
		}

		for _, id := range ids {
			row := latest[id]
			row.ChartWeek = week
			row.DS = week
			row.IsFuture = true
			row.ProphetTrend = 0
			row.Probability = 0
			row.IsRising = false
			row.GenreIdxLagged = lag
			row.SeasonalityScore = seas
			if e.genreSource == GenreNone {
				row.GenrePopIdx = 0
				row.GenreIdxLagged = 0
			}
			out = append(out, row)
		}
	}

	e.logger.Debug().
		Int("tracks", len(ids)).
		Int("horizon", horizon).
		Str("last_week", models.FormatDate(last)).
		Str("genre_source", e.genreSource).
		Str("seasonality", e.seasonality).
		Msg("Future horizon extrapolated")
	return out
}

// latestPerTrack returns each track's row with the greatest chart_week.
func latestPerTrack(frame models.FeatureFrame) map[string]models.FeatureRow {
	out := make(map[string]models.FeatureRow)
	for i := range frame {
		cur, ok := out[frame[i].TrackID]
		if !ok || !frame[i].ChartWeek.Before(cur.ChartWeek) {
			out[frame[i].TrackID] = frame[i]
		}
	}
	return out
}

// fillTimeline lays the observed weekly values and the future weeks out on
// one timeline and fills the gaps backward, then forward, then with 0.
func fillTimeline(observed, future []time.Time, values map[int64]float64) []float64 {
	n := len(observed) + len(future)
	series := make([]float64, n)
	present := make([]bool, n)
	for i, w := range observed {
		series[i], present[i] = values[w.Unix()]
	}
	for i, w := range future {
		series[len(observed)+i], present[len(observed)+i] = values[w.Unix()]
	}
	return fillSeries(series, present)
}

func fillSeries(series []float64, present []bool) []float64 {
	out := append([]float64(nil), series...)
	have := append([]bool(nil), present...)

	for i := len(out) - 2; i >= 0; i-- {
		if !have[i] && have[i+1] {
			out[i], have[i] = out[i+1], true
		}
	}
	for i := 1; i < len(out); i++ {
		if !have[i] && have[i-1] {
			out[i], have[i] = out[i-1], true
		}
	}
	for i := range out {
		if !have[i] {
			out[i] = 0
		}
	}
	return out
}
