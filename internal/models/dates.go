// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical text form of every date column.
const DateLayout = "2006-01-02"

// EpochSentinel stands in for an unknown release date.
var EpochSentinel = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// dateLayouts are tried in order. Partial dates come from the catalog's
// release_date_precision of "year" or "month".
var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01",
	"2006",
}

// NormalizeDate truncates t to midnight UTC of its calendar day.
func NormalizeDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses s with the accepted layouts and normalizes the result.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NormalizeDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseReleaseDate is ParseDate with the epoch sentinel for anything unparsable.
func ParseReleaseDate(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		return EpochSentinel
	}
	return t
}

// FormatDate renders t in DateLayout, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}
