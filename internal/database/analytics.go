// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"
)

// WeeklyStreams is the total stream count of one chart week.
type WeeklyStreams struct {
	Week    time.Time `json:"week"`
	Streams int64     `json:"streams"`
}

// ArtistStreams is an artist's total stream count over all weeks.
type ArtistStreams struct {
	Artist  string `json:"artist_names"`
	Streams int64  `json:"streams"`
}

// ArtistShare is an artist's share of a week's top-10 streams.
type ArtistShare struct {
	Week         time.Time `json:"week"`
	Artist       string    `json:"artist_names"`
	Streams      int64     `json:"streams"`
	Share        float64   `json:"stream_share"`
	RollingShare float64   `json:"rolling_avg"`
	GrowthRate   float64   `json:"growth_rate"`
}

// Report bundles the market analytics of one export.
type Report struct {
	WeeklyStreams []WeeklyStreams `json:"weekly_streams"`
	TopArtists    []ArtistStreams `json:"top_artists"`
	Share         []ArtistShare   `json:"artist_share"`
}

// WeeklyStreamTotals sums streams per observed chart week.
func (db *DB) WeeklyStreamTotals(ctx context.Context) ([]WeeklyStreams, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `
	SELECT chart_week, CAST(COALESCE(SUM(streams), 0) AS BIGINT) AS streams
	FROM feature_frame
	WHERE NOT is_future
	GROUP BY chart_week
	ORDER BY chart_week ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query weekly streams: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []WeeklyStreams
	for rows.Next() {
		var w WeeklyStreams
		if err := rows.Scan(&w.Week, &w.Streams); err != nil {
			return nil, fmt.Errorf("failed to scan weekly streams: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating weekly streams: %w", err)
	}
	return out, nil
}

// TopArtists returns the n artists with the most streams over all observed
// weeks. Ties are ordered by name.
func (db *DB) TopArtists(ctx context.Context, n int) ([]ArtistStreams, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(`
	SELECT artist_names, CAST(COALESCE(SUM(streams), 0) AS BIGINT) AS streams
	FROM feature_frame
	WHERE NOT is_future
	GROUP BY artist_names
	ORDER BY streams DESC, artist_names ASC
	LIMIT %d`, n))
	if err != nil {
		return nil, fmt.Errorf("failed to query top artists: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []ArtistStreams
	for rows.Next() {
		var a ArtistStreams
		if err := rows.Scan(&a.Artist, &a.Streams); err != nil {
			return nil, fmt.Errorf("failed to scan top artist: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top artists: %w", err)
	}
	return out, nil
}

// ArtistShareTrend computes the top-10 stream share of the topN artists with
// the highest mean weekly top-10 streams, with a rolling mean over window
// weeks and the week-over-week growth rate in percent.
func (db *DB) ArtistShareTrend(ctx context.Context, topN, window int) ([]ArtistShare, error) {
	if window < 1 {
		window = 1
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	db.mu.RLock()
	defer db.mu.RUnlock()

	// LIMIT and window frame bounds are rendered, not bound
	query := fmt.Sprintf(`
	WITH top10 AS (
		SELECT chart_week, artist_names, COALESCE(streams, 0) AS streams
		FROM feature_frame
		WHERE NOT is_future AND "rank" BETWEEN 1 AND 10
	),
	totals AS (
		SELECT chart_week, SUM(streams) AS total FROM top10 GROUP BY chart_week
	),
	dominance AS (
		SELECT chart_week, artist_names, SUM(streams) AS streams
		FROM top10
		GROUP BY chart_week, artist_names
	),
	picked AS (
		SELECT artist_names
		FROM dominance
		GROUP BY artist_names
		ORDER BY AVG(streams) DESC, artist_names ASC
		LIMIT %d
	),
	shares AS (
		SELECT d.chart_week, d.artist_names, d.streams,
			CASE WHEN t.total = 0 THEN 0.0
				ELSE CAST(d.streams AS DOUBLE) * 100.0 / CAST(t.total AS DOUBLE) END AS share
		FROM dominance d
		JOIN totals t ON t.chart_week = d.chart_week
		WHERE d.artist_names IN (SELECT artist_names FROM picked)
	)
	SELECT chart_week, artist_names, CAST(streams AS BIGINT), share,
		AVG(share) OVER (PARTITION BY artist_names ORDER BY chart_week
			ROWS BETWEEN %d PRECEDING AND CURRENT ROW) AS rolling_avg,
		LAG(share) OVER (PARTITION BY artist_names ORDER BY chart_week) AS prev_share
	FROM shares
	ORDER BY chart_week ASC, artist_names ASC`, topN, window-1)

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query artist share: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []ArtistShare
	for rows.Next() {
		var (
			s    ArtistShare
			prev sql.NullFloat64
		)
		if err := rows.Scan(&s.Week, &s.Artist, &s.Streams, &s.Share, &s.RollingShare, &prev); err != nil {
			return nil, fmt.Errorf("failed to scan artist share: %w", err)
		}
		if prev.Valid {
			s.GrowthRate = growthRate(prev.Float64, s.Share)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artist share: %w", err)
	}
	return out, nil
}

// Analyze runs all market analytics over the current feature_frame table.
func (db *DB) Analyze(ctx context.Context) (*Report, error) {
	weekly, err := db.WeeklyStreamTotals(ctx)
	if err != nil {
		return nil, err
	}
	top, err := db.TopArtists(ctx, 5)
	if err != nil {
		return nil, err
	}
	share, err := db.ArtistShareTrend(ctx, db.cfg.ShareTopN, db.cfg.RollingWeeks)
	if err != nil {
		return nil, err
	}
	return &Report{WeeklyStreams: weekly, TopArtists: top, Share: share}, nil
}

// growthRate is the percentage change from prev to cur; infinite and
// undefined changes are 0.
func growthRate(prev, cur float64) float64 {
	g := (cur - prev) / prev * 100
	if math.IsInf(g, 0) || math.IsNaN(g) {
		return 0
	}
	return g
}
