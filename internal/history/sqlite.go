// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/tomtom215/chartpulse/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chart_history (
	track_id          TEXT NOT NULL,
	chart_week        TEXT NOT NULL,
	rank              INTEGER NOT NULL DEFAULT 0,
	uri               TEXT NOT NULL DEFAULT '',
	artist_names      TEXT NOT NULL DEFAULT '',
	track_name        TEXT NOT NULL DEFAULT '',
	source            TEXT NOT NULL DEFAULT '',
	peak_rank         INTEGER NOT NULL DEFAULT 0,
	previous_rank     INTEGER NOT NULL DEFAULT 0,
	weeks_on_chart    INTEGER NOT NULL DEFAULT 0,
	streams           INTEGER NOT NULL DEFAULT 0,
	artist_id         TEXT NOT NULL DEFAULT '',
	release_date      TEXT NOT NULL DEFAULT '',
	explicit          INTEGER NOT NULL DEFAULT 0,
	track_popularity  INTEGER NOT NULL DEFAULT 0,
	artist_genres     TEXT NOT NULL DEFAULT '',
	artist_followers  INTEGER NOT NULL DEFAULT 0,
	artist_popularity INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (track_id, chart_week)
);
CREATE INDEX IF NOT EXISTS idx_chart_history_week ON chart_history(chart_week);
`

const sqliteColumns = `track_id, chart_week, rank, uri, artist_names, track_name, source,
	peak_rank, previous_rank, weeks_on_chart, streams, artist_id, release_date, explicit,
	track_popularity, artist_genres, artist_followers, artist_popularity`

// SQLiteStore keeps the dataset in a single SQLite file. The connection is
// opened per operation and the default rollback journal is used, so the file
// is self-contained between operations and can be snapshotted as a copy.
type SQLiteStore struct {
	path string
}

// NewSQLiteStore creates a SQLite store at path.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Path returns the database file.
func (s *SQLiteStore) Path() string { return s.path }

// Exists reports whether the database file is present.
func (s *SQLiteStore) Exists() (bool, error) {
	return fileExists(s.path)
}

func (s *SQLiteStore) open(ctx context.Context) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := sql.Open("sqlite", s.path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return db, nil
}

// Load reads every row ordered by (chart_week, track_id).
func (s *SQLiteStore) Load(ctx context.Context) ([]models.HistoricalRow, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(db)

	rs, err := db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM chart_history ORDER BY chart_week, track_id`)
	if err != nil {
		return nil, fmt.Errorf("query chart_history: %w", err)
	}
	defer closeQuietly(rs)

	var rows []models.HistoricalRow
	for rs.Next() {
		var (
			r                   models.HistoricalRow
			week, release, tags string
			explicit            int
		)
		if err := rs.Scan(
			&r.TrackID, &week, &r.Rank, &r.URI, &r.ArtistNames, &r.TrackName, &r.Source,
			&r.PeakRank, &r.PreviousRank, &r.WeeksOnChart, &r.Streams, &r.ArtistID, &release, &explicit,
			&r.TrackPopularity, &tags, &r.ArtistFollowers, &r.ArtistPopularity,
		); err != nil {
			return nil, fmt.Errorf("scan chart_history: %w", err)
		}
		r.ChartWeek, _ = models.ParseDate(week)     //nolint:errcheck // written by Save in DateLayout
		r.ReleaseDate, _ = models.ParseDate(release) //nolint:errcheck // empty means unknown
		r.Explicit = explicit != 0
		r.Genres = models.ParseGenres(tags)
		rows = append(rows, r)
	}
	return rows, rs.Err()
}

// Save replaces the table contents in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, rows []models.HistoricalRow) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer closeQuietly(db)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback() //nolint:errcheck // best effort after a failed write
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chart_history`); err != nil {
		return fmt.Errorf("clear chart_history: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO chart_history (`+sqliteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer closeQuietly(stmt)

	for i := range rows {
		r := &rows[i]
		explicit := 0
		if r.Explicit {
			explicit = 1
		}
		if _, err := stmt.ExecContext(ctx,
			r.TrackID, models.FormatDate(r.ChartWeek), r.Rank, r.URI, r.ArtistNames, r.TrackName, r.Source,
			r.PeakRank, r.PreviousRank, r.WeeksOnChart, r.Streams, r.ArtistID, models.FormatDate(r.ReleaseDate), explicit,
			r.TrackPopularity, r.Genres.String(), r.ArtistFollowers, r.ArtistPopularity,
		); err != nil {
			return fmt.Errorf("insert row %s/%s: %w", r.TrackID, models.FormatDate(r.ChartWeek), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chart_history: %w", err)
	}
	committed = true
	return nil
}
