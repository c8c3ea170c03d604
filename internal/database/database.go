// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/chartpulse/internal/config"
	"github.com/tomtom215/chartpulse/internal/logging"
)

// defaultQueryTimeout bounds queries whose context has no deadline.
const defaultQueryTimeout = 30 * time.Second

const featureFrameSchema = `
CREATE TABLE IF NOT EXISTS feature_frame (
	track_id           VARCHAR NOT NULL,
	chart_week         TIMESTAMP NOT NULL,
	"rank"             INTEGER,
	artist_names       VARCHAR,
	track_name         VARCHAR,
	artist_id          VARCHAR,
	streams            BIGINT,
	peak_rank          INTEGER,
	previous_rank      INTEGER,
	weeks_on_chart     INTEGER,
	explicit           BOOLEAN,
	release_date       TIMESTAMP,
	track_popularity   INTEGER,
	artist_genres      VARCHAR,
	artist_followers   BIGINT,
	artist_popularity  INTEGER,
	genre_pop_idx      DOUBLE,
	artist_growth_rate DOUBLE,
	seasonality_score  DOUBLE,
	genre_idx_lagged   DOUBLE,
	prophet_trend      DOUBLE,
	probability        DOUBLE,
	is_rising          BOOLEAN,
	is_future          BOOLEAN
)`

// DB wraps the DuckDB connection.
type DB struct {
	conn *sql.DB
	cfg  *config.AnalyticsConfig

	// serializes frame exports so queries never see a half-written table
	mu sync.RWMutex
}

// New opens the analytics database and creates the schema. An empty path
// opens an in-memory database.
func New(cfg *config.AnalyticsConfig) (*DB, error) {
	if dir := filepath.Dir(cfg.Path); cfg.Path != "" && dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	conn, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}
	if err := db.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().Str("path", displayPath(cfg.Path)).Msg("Analytics database ready")
	return db, nil
}

func (db *DB) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
	defer cancel()
	if _, err := db.conn.ExecContext(ctx, featureFrameSchema); err != nil {
		return fmt.Errorf("failed to create feature_frame table: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, defaultQueryTimeout)
	}
	return ctx, func() {}
}

func displayPath(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}

// closeQuietly closes a resource in error paths where the close error is not
// actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// closeWithLog closes a resource and logs a failure.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}
