// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

// Package chartfile reads and writes the CSV files of the pipeline: uploaded
// weekly charts, the per-week processed and interim files, and the
// historical dataset itself.
//
// Every date and genre column is parsed here, once. Downstream packages only
// see time.Time and models.GenreSet values.
package chartfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/chartpulse/internal/models"
)

var (
	// ErrNoDateInFilename is returned when a chart file name has no YYYY-MM-DD date.
	ErrNoDateInFilename = errors.New("no date found in file name")

	// ErrMissingColumn is returned when a required column is absent.
	ErrMissingColumn = errors.New("required column missing")
)

var filenameDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// WeekFromFilename derives the chart week from a name such as
// regional-global-weekly-2025-01-09.csv.
func WeekFromFilename(name string) (time.Time, error) {
	match := filenameDate.FindString(filepath.Base(name))
	if match == "" {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoDateInFilename, filepath.Base(name))
	}
	week, err := time.Parse(models.DateLayout, match)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %w", ErrNoDateInFilename, filepath.Base(name), err)
	}
	return week, nil
}

// header maps lowercased column names to their index.
type header map[string]int

func newHeader(cols []string) header {
	h := make(header, len(cols))
	for i, c := range cols {
		c = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")))
		if _, dup := h[c]; !dup {
			h[c] = i
		}
	}
	return h
}

func (h header) require(cols ...string) error {
	var missing []string
	for _, c := range cols {
		if _, ok := h[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

func (h header) has(col string) bool {
	_, ok := h[col]
	return ok
}

// record wraps one CSV line and counts cells that failed to parse.
type record struct {
	h      header
	fields []string
	bad    int
}

func (r *record) str(col string) string {
	i, ok := r.h[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r *record) intCol(col string) int {
	return int(r.int64Col(col))
}

// int64Col accepts "1234" and "1234.0". Blank and malformed cells become 0.
func (r *record) int64Col(col string) int64 {
	s := r.str(col)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	r.bad++
	return 0
}

func (r *record) boolCol(col string) bool {
	switch strings.ToLower(r.str(col)) {
	case "true", "1", "yes", "t":
		return true
	default:
		return false
	}
}

func (r *record) dateCol(col string) time.Time {
	s := r.str(col)
	if s == "" {
		return time.Time{}
	}
	t, err := models.ParseDate(s)
	if err != nil {
		r.bad++
		return time.Time{}
	}
	return t
}

// readAll reads a CSV with a header line and calls fn for every record.
func readAll(r io.Reader, required []string, fn func(rec *record)) (header, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	cols, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: file is empty", ErrMissingColumn)
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	h := newHeader(cols)
	if err := h.require(required...); err != nil {
		return nil, err
	}

	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return h, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		fn(&record{h: h, fields: fields})
	}
}

func itoa(n int) string { return strconv.Itoa(n) }

func i64toa(n int64) string { return strconv.FormatInt(n, 10) }

func btoa(b bool) string { return strconv.FormatBool(b) }
