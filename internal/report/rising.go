// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package report

import (
	"fmt"
	"sort"

	"github.com/tomtom215/chartpulse/internal/models"
)

// Scope selects which week a rising list is drawn from.
type Scope string

const (
	// ScopeCurrent is the last observed chart week.
	ScopeCurrent Scope = "current"
	// ScopeFuture is the first forecast week.
	ScopeFuture Scope = "future"
)

// ParseScope validates a scope name. An empty name is ScopeCurrent.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeCurrent:
		return ScopeCurrent, nil
	case ScopeFuture:
		return ScopeFuture, nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

// TopRising returns up to n rows of the scope's week ordered by probability,
// highest first. A (artist_names, track_name) pair appears once, with its
// highest probability.
func TopRising(frame models.FeatureFrame, scope Scope, n int) models.FeatureFrame {
	hist, future := frame.Split()
	pool := hist
	if scope == ScopeFuture {
		pool = future
	}
	weeks := pool.Weeks()
	if len(weeks) == 0 || n <= 0 {
		return nil
	}
	week := weeks[len(weeks)-1]
	if scope == ScopeFuture {
		week = weeks[0]
	}

	rows := pool.InWeek(week)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Probability != rows[j].Probability {
			return rows[i].Probability > rows[j].Probability
		}
		return rows[i].TrackID < rows[j].TrackID
	})

	type pair struct{ artists, track string }
	seen := make(map[pair]struct{}, len(rows))
	out := make(models.FeatureFrame, 0, n)
	for i := range rows {
		k := pair{rows[i].ArtistNames, rows[i].TrackName}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, rows[i])
		if len(out) == n {
			break
		}
	}
	return out
}
