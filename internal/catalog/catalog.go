// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

// Package catalog talks to the external track and artist catalog.
//
// Client is the contract the identity resolver and the enricher depend on.
// SpotifyClient implements it against the Spotify Web API;
// CircuitBreakerClient and CachedClient wrap any Client.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/chartpulse/internal/models"
)

// MaxBatchSize is the catalog's ceiling on ids per Tracks/Artists call.
const MaxBatchSize = 50

var (
	// ErrRateLimited is returned when HTTP 429 persists past the retry budget.
	ErrRateLimited = errors.New("catalog rate limit exceeded")

	// ErrNotFound is returned when the catalog has no match.
	ErrNotFound = errors.New("catalog entry not found")

	// ErrBatchTooLarge is returned for Tracks/Artists calls above MaxBatchSize.
	ErrBatchTooLarge = errors.New("catalog batch exceeds 50 ids")
)

// SearchResult is the best match for a (track, artist) search.
type SearchResult struct {
	TrackID  string `json:"track_id"`
	ArtistID string `json:"artist_id"` // primary artist of the matched track
}

// Client is the catalog collaborator.
//
// Tracks and Artists return records only for ids the catalog knows; unknown
// ids are omitted, not errors.
type Client interface {
	SearchTrack(ctx context.Context, trackName, artistNames string) (SearchResult, error)
	Tracks(ctx context.Context, ids []string) ([]models.TrackRecord, error)
	Artists(ctx context.Context, ids []string) ([]models.ArtistRecord, error)
}

// Chunk splits ids into batches of at most size.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
