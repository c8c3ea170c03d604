// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/models"
)

const insertFeatureRow = `
INSERT INTO feature_frame (
	track_id, chart_week, "rank", artist_names, track_name, artist_id, streams,
	peak_rank, previous_rank, weeks_on_chart, explicit, release_date,
	track_popularity, artist_genres, artist_followers, artist_popularity,
	genre_pop_idx, artist_growth_rate, seasonality_score, genre_idx_lagged,
	prophet_trend, probability, is_rising, is_future
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// ExportFrame replaces the feature_frame table with frame and returns the
// number of rows written.
func (db *DB) ExportFrame(ctx context.Context, frame models.FeatureFrame) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin export: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM feature_frame"); err != nil {
		return 0, fmt.Errorf("failed to clear feature_frame: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertFeatureRow)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer closeWithLog(stmt, "statement")

	for i := range frame {
		r := &frame[i]
		if _, err = stmt.ExecContext(ctx,
			r.TrackID, r.ChartWeek, r.Rank, r.ArtistNames, r.TrackName, r.ArtistID, r.Streams,
			r.PeakRank, r.PreviousRank, r.WeeksOnChart, r.Explicit, nullTime(r.ReleaseDate),
			r.TrackPopularity, r.Genres.String(), r.ArtistFollowers, r.ArtistPopularity,
			r.GenrePopIdx, r.ArtistGrowthRate, r.SeasonalityScore, r.GenreIdxLagged,
			r.ProphetTrend, r.Probability, r.IsRising, r.IsFuture,
		); err != nil {
			return 0, fmt.Errorf("failed to insert row %d (%s): %w", i, r.TrackID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit export: %w", err)
	}
	return len(frame), nil
}

// ExportParquet copies the feature_frame table to
// <dir>/feature_frame_<week>.parquet and returns the file path.
func (db *DB) ExportParquet(ctx context.Context, dir string, week time.Time) (string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create parquet directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("feature_frame_%s.parquet", models.FormatDate(week)))

	db.mu.RLock()
	defer db.mu.RUnlock()

	// COPY does not take the target as a bound parameter
	query := fmt.Sprintf(`COPY (SELECT * FROM feature_frame ORDER BY chart_week, track_id) TO %s (
		FORMAT PARQUET,
		COMPRESSION 'ZSTD'
	)`, quoteLiteral(path))
	if _, err := db.conn.ExecContext(ctx, query); err != nil {
		return "", fmt.Errorf("failed to export parquet: %w", err)
	}

	logging.Info().Str("path", path).Msg("Feature frame exported to Parquet")
	return path, nil
}

// CountParquet returns the number of rows in a Parquet file.
func (db *DB) CountParquet(ctx context.Context, path string) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM read_parquet(%s)", quoteLiteral(path))
	if err := db.conn.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to read parquet %s: %w", path, err)
	}
	return n, nil
}

// FrameRows returns the number of rows currently in feature_frame.
func (db *DB) FrameRows(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	db.mu.RLock()
	defer db.mu.RUnlock()

	var n int64
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM feature_frame").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count feature_frame: %w", err)
	}
	return n, nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
