// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

// Package report turns a scored feature frame into rising-track lists and a
// short trend report written by an external text generator.
package report

import (
	"errors"
	"sort"
	"time"

	"github.com/tomtom215/chartpulse/internal/models"
)

// DefaultTopGenres is the number of genres passed to the generator.
const DefaultTopGenres = 5

var (
	// ErrNoData is returned for an empty frame.
	ErrNoData = errors.New("no data available")

	// ErrNoTopTracks is returned when the rising list is empty.
	ErrNoTopTracks = errors.New("top tracks list is empty")
)

// Stats are the aggregates a report is written from.
type Stats struct {
	Week        time.Time `json:"week"`
	TopGenres   []string  `json:"top_genres"`
	TopArtist   string    `json:"top_artist"`
	TopTrack    string    `json:"top_track"`
	RisingCount int       `json:"rising_count"`
	Threshold   float64   `json:"threshold"`
	Rows        int       `json:"rows"`
}

// BuildStats aggregates frame. top is the ordered rising list; its first
// entry names the top artist and track. A row counts as rising when its
// probability is at least threshold.
func BuildStats(frame models.FeatureFrame, top models.FeatureFrame, threshold float64) (Stats, error) {
	if len(frame) == 0 {
		return Stats{}, ErrNoData
	}
	if len(top) == 0 {
		return Stats{}, ErrNoTopTracks
	}

	s := Stats{
		Week:      top[0].ChartWeek,
		TopGenres: topGenres(frame, DefaultTopGenres),
		TopArtist: top[0].ArtistNames,
		TopTrack:  top[0].TrackName,
		Threshold: threshold,
		Rows:      len(frame),
	}
	for i := range frame {
		if frame[i].Probability >= threshold {
			s.RisingCount++
		}
	}
	return s, nil
}

// topGenres counts every genre tag once per row and returns the n most
// frequent. Ties are broken alphabetically.
func topGenres(frame models.FeatureFrame, n int) []string {
	counts := make(map[string]int)
	for i := range frame {
		genres := frame[i].Genres
		if len(genres) == 0 {
			genres = models.UnknownGenres()
		}
		for _, g := range genres {
			counts[g]++
		}
	}

	tags := make([]string, 0, len(counts))
	for g := range counts {
		tags = append(tags, g)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if len(tags) > n {
		tags = tags[:n]
	}
	return tags
}
