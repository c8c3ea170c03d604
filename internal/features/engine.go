// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package features

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/tomtom215/chartpulse/internal/config"
	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/models"
)

// DefaultHorizonWeeks is the forecast horizon when none is configured.
const DefaultHorizonWeeks = 12

// Future genre sources.
const (
	GenreCarryForward = "carry_forward"
	GenreNone         = "none"
)

// Future seasonality sources.
const (
	SeasonalityCarryForward  = "carry_forward"
	SeasonalityCalendarMonth = "calendar_month"
)

// Engine computes feature frames. It holds configuration only.
type Engine struct {
	horizon     int
	genreSource string
	seasonality string
	logger      zerolog.Logger
}

// NewEngine creates a feature engine. A nil cfg uses the defaults.
func NewEngine(cfg *config.FeaturesConfig) *Engine {
	e := &Engine{
		horizon:     DefaultHorizonWeeks,
		genreSource: GenreCarryForward,
		seasonality: SeasonalityCarryForward,
		logger:      logging.WithComponent("features"),
	}
	if cfg != nil {
		e.horizon = cfg.HorizonWeeks
		if cfg.FutureGenreSource != "" {
			e.genreSource = cfg.FutureGenreSource
		}
		if cfg.FutureSeasonality != "" {
			e.seasonality = cfg.FutureSeasonality
		}
	}
	return e
}

// Horizon returns the configured number of future weeks.
func (e *Engine) Horizon() int { return e.horizon }

// Build computes the feature columns of rows. The result is sorted by
// (chart_week, track_id) and ds equals chart_week.
func (e *Engine) Build(rows []models.HistoricalRow) models.FeatureFrame {
	if len(rows) == 0 {
		return nil
	}

	frame := make(models.FeatureFrame, len(rows))
	for i := range rows {
		frame[i] = models.FeatureRow{HistoricalRow: rows[i], DS: rows[i].ChartWeek}
	}
	sortFrame(frame)

	genrePopIndex(frame)
	artistGrowthRate(frame)
	seasonalityScore(frame)
	laggedGenreIndex(frame)

	e.logger.Debug().
		Int("rows", len(frame)).
		Int("weeks", len(frame.Weeks())).
		Msg("Feature frame built")
	return frame
}

// BuildWithHorizon returns the historical frame followed by the configured
// future horizon.
func (e *Engine) BuildWithHorizon(rows []models.HistoricalRow) models.FeatureFrame {
	hist := e.Build(rows)
	return append(hist, e.Extrapolate(hist, e.horizon)...)
}

func sortFrame(frame models.FeatureFrame) {
	sort.SliceStable(frame, func(i, j int) bool {
		if !frame[i].ChartWeek.Equal(frame[j].ChartWeek) {
			return frame[i].ChartWeek.Before(frame[j].ChartWeek)
		}
		return frame[i].TrackID < frame[j].TrackID
	})
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) { m.sum += v; m.n++ }

func (m *mean) value() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

type weekGenre struct {
	week  int64
	genre string
}

func genrePopIndex(frame models.FeatureFrame) {
	means := make(map[weekGenre]*mean)
	for i := range frame {
		week := frame[i].ChartWeek.Unix()
		for _, g := range frame[i].Genres {
			k := weekGenre{week, g}
			m := means[k]
			if m == nil {
				m = &mean{}
				means[k] = m
			}
			m.add(float64(frame[i].Streams))
		}
	}

	for i := range frame {
		var track mean
		week := frame[i].ChartWeek.Unix()
		for _, g := range frame[i].Genres {
			track.add(means[weekGenre{week, g}].value())
		}
		frame[i].GenrePopIdx = track.value()
	}
}

type artistWeek struct {
	artist string
	week   int64
}

// artistGrowthRate compares an artist's total streams in a week with the
// total of the artist's previous chart week. The rate is a fraction (0.25
// means +25%), not a percentage. It relies on frame being sorted by
// chart_week.
func artistGrowthRate(frame models.FeatureFrame) {
	totals := make(map[artistWeek]float64)
	weeks := make(map[string][]int64)
	for i := range frame {
		k := artistWeek{frame[i].ArtistNames, frame[i].ChartWeek.Unix()}
		if _, ok := totals[k]; !ok {
			weeks[k.artist] = append(weeks[k.artist], k.week)
		}
		totals[k] += float64(frame[i].Streams)
	}

	rates := make(map[artistWeek]float64, len(totals))
	for artist, ws := range weeks {
		for j := 1; j < len(ws); j++ {
			prev := totals[artistWeek{artist, ws[j-1]}]
			cur := totals[artistWeek{artist, ws[j]}]
			rates[artistWeek{artist, ws[j]}] = pctChange(prev, cur)
		}
	}
	for i := range frame {
		frame[i].ArtistGrowthRate = rates[artistWeek{frame[i].ArtistNames, frame[i].ChartWeek.Unix()}]
	}
}

func pctChange(prev, cur float64) float64 {
	r := (cur - prev) / prev
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return 0
	}
	return r
}

// monthRatios returns mean streams per calendar month over the global mean.
func monthRatios(frame models.FeatureFrame) (ratios map[int]float64, ok bool) {
	var global mean
	months := make(map[int]*mean)
	for i := range frame {
		s := float64(frame[i].Streams)
		global.add(s)
		m := int(frame[i].ChartWeek.Month())
		if months[m] == nil {
			months[m] = &mean{}
		}
		months[m].add(s)
	}
	if global.value() == 0 {
		return nil, false
	}
	ratios = make(map[int]float64, len(months))
	for m, v := range months {
		ratios[m] = v.value() / global.value()
	}
	return ratios, true
}

func seasonalityScore(frame models.FeatureFrame) {
	ratios, ok := monthRatios(frame)
	for i := range frame {
		if !ok {
			frame[i].SeasonalityScore = 1.0
			continue
		}
		frame[i].SeasonalityScore = ratios[int(frame[i].ChartWeek.Month())]
	}
}

// laggedGenreIndex sets each row to the weekly mean genre_pop_idx of the
// previous distinct week. Only earlier weeks are read.
func laggedGenreIndex(frame models.FeatureFrame) {
	weeks := frame.Weeks()
	agg := weeklyMean(frame, func(r *models.FeatureRow) float64 { return r.GenrePopIdx })

	lagged := make(map[int64]float64, len(weeks))
	for k, w := range weeks {
		src := w
		if k > 0 {
			src = weeks[k-1]
		}
		lagged[w.Unix()] = agg[src.Unix()]
	}
	for i := range frame {
		frame[i].GenreIdxLagged = lagged[frame[i].ChartWeek.Unix()]
	}
}

func weeklyMean(frame models.FeatureFrame, col func(r *models.FeatureRow) float64) map[int64]float64 {
	means := make(map[int64]*mean)
	for i := range frame {
		k := frame[i].ChartWeek.Unix()
		if means[k] == nil {
			means[k] = &mean{}
		}
		means[k].add(col(&frame[i]))
	}
	out := make(map[int64]float64, len(means))
	for k, m := range means {
		out[k] = m.value()
	}
	return out
}
