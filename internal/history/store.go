// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tomtom215/chartpulse/internal/chartfile"
	"github.com/tomtom215/chartpulse/internal/config"
	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/models"
)

// Store persists the full historical dataset. Save replaces the previous
// contents as a whole; a reader never observes a partially written dataset.
type Store interface {
	Load(ctx context.Context) ([]models.HistoricalRow, error)
	Save(ctx context.Context, rows []models.HistoricalRow) error
	Exists() (bool, error)
	Path() string
}

// NewStore returns the store selected by cfg.Format.
func NewStore(cfg *config.HistoryConfig) (Store, error) {
	switch cfg.Format {
	case "", "csv":
		return NewCSVStore(cfg.StorePath), nil
	case "sqlite":
		return NewSQLiteStore(cfg.StorePath), nil
	default:
		return nil, fmt.Errorf("unknown history store format %q", cfg.Format)
	}
}

// CSVStore keeps the dataset in one CSV file in chartfile.HistoryColumns order.
type CSVStore struct {
	path string
}

// NewCSVStore creates a CSV store at path.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the store file.
func (s *CSVStore) Path() string { return s.path }

// Exists reports whether the store file is present.
func (s *CSVStore) Exists() (bool, error) {
	return fileExists(s.path)
}

// Load reads every row of the store.
func (s *CSVStore) Load(ctx context.Context) ([]models.HistoricalRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readCSVFile(s.path)
}

// Save writes rows through a temp file and renames it over the store.
func (s *CSVStore) Save(ctx context.Context, rows []models.HistoricalRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chartfile.WriteFileAtomic(s.path, func(w io.Writer) error {
		return chartfile.WriteHistory(w, rows)
	})
}

func readCSVFile(path string) ([]models.HistoricalRow, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer closeQuietly(f)

	rows, stats, err := chartfile.ReadHistory(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if stats.Skipped > 0 || stats.BadCells > 0 {
		logging.Warn().
			Str("path", path).
			Int("skipped_rows", stats.Skipped).
			Int("bad_cells", stats.BadCells).
			Msg("Historical rows degraded on load")
	}
	return rows, nil
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		return !info.IsDir(), nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		logging.Debug().Err(err).Msg("close failed")
	}
}
