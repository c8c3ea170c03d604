// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

// Package identity maps weekly chart rows to catalog track and artist ids.
//
// Resolution order per row:
//  1. the track id embedded in the row's uri
//  2. a catalog search on (track_name, primary artist)
//
// Rows that stay without a track id are dropped and counted. Rows with a
// track id but no artist id are backfilled in batches from the catalog's
// track endpoint, taking the primary artist.
package identity

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/tomtom215/chartpulse/internal/catalog"
	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/metrics"
	"github.com/tomtom215/chartpulse/internal/models"
)

// ResolvedTrack is a chart row with its catalog identity.
type ResolvedTrack struct {
	models.ChartEntry
	TrackID  string
	ArtistID string // empty when the catalog could not name the primary artist
	Searched bool   // track id came from a catalog search
}

// Resolution is the outcome of resolving one chart.
type Resolution struct {
	Tracks         []ResolvedTrack
	FromURI        int
	Searched       int // rows resolved by search
	SearchFailures int // searches that errored for reasons other than no match
	Unresolved     int // rows dropped without a track id
	Backfilled     int // rows whose artist id came from the track endpoint
	MissingArtist  int // rows kept with an empty artist id
}

// Resolver resolves chart rows against a catalog client. A nil client
// resolves from uris only.
type Resolver struct {
	client    catalog.Client
	batchSize int
	logger    zerolog.Logger
}

// NewResolver creates a resolver. batchSize is clamped to the catalog limit.
func NewResolver(client catalog.Client, batchSize int) *Resolver {
	if batchSize <= 0 || batchSize > catalog.MaxBatchSize {
		batchSize = catalog.MaxBatchSize
	}
	return &Resolver{
		client:    client,
		batchSize: batchSize,
		logger:    logging.WithComponent("identity"),
	}
}

type nameKey struct{ track, artists string }

// Resolve assigns track and artist ids to entries. Catalog failures are
// isolated per row or per batch; only context cancellation returns an error.
func (r *Resolver) Resolve(ctx context.Context, entries []models.ChartEntry) (*Resolution, error) {
	res := &Resolution{Tracks: make([]ResolvedTrack, 0, len(entries))}
	searches := make(map[nameKey]catalog.SearchResult)
	failed := make(map[nameKey]bool)

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rt := ResolvedTrack{ChartEntry: e}
		if id, ok := models.TrackIDFromURI(e.URI); ok {
			rt.TrackID = id
			res.FromURI++
		} else if r.client != nil {
			key := nameKey{e.TrackName, e.ArtistNames}
			hit, seen := searches[key]
			if !seen && !failed[key] {
				var err error
				hit, err = r.client.SearchTrack(ctx, e.TrackName, e.ArtistNames)
				switch {
				case err == nil:
					searches[key] = hit
				case ctx.Err() != nil:
					return nil, ctx.Err()
				default:
					failed[key] = true
					if !errors.Is(err, catalog.ErrNotFound) {
						res.SearchFailures++
						r.logger.Warn().Err(err).Str("track", e.TrackName).Str("artists", e.ArtistNames).Msg("Track search failed")
					}
				}
			}
			if hit.TrackID != "" {
				rt.TrackID = hit.TrackID
				rt.ArtistID = hit.ArtistID
				rt.Searched = true
				res.Searched++
			}
		}

		if rt.TrackID == "" {
			res.Unresolved++
			continue
		}
		res.Tracks = append(res.Tracks, rt)
	}

	if err := r.backfillArtists(ctx, res); err != nil {
		return nil, err
	}

	metrics.IdentityUnresolved.Add(float64(res.Unresolved))
	r.logger.Info().
		Int("rows", len(entries)).
		Int("from_uri", res.FromURI).
		Int("searched", res.Searched).
		Int("unresolved", res.Unresolved).
		Int("backfilled", res.Backfilled).
		Int("missing_artist", res.MissingArtist).
		Msg("Resolved chart identities")
	return res, nil
}

// backfillArtists looks up the primary artist of every track without one.
func (r *Resolver) backfillArtists(ctx context.Context, res *Resolution) error {
	var ids []string
	seen := make(map[string]struct{})
	for _, rt := range res.Tracks {
		if rt.ArtistID != "" {
			continue
		}
		if _, ok := seen[rt.TrackID]; ok {
			continue
		}
		seen[rt.TrackID] = struct{}{}
		ids = append(ids, rt.TrackID)
	}

	artistOf := make(map[string]string, len(ids))
	if r.client != nil {
		for _, batch := range catalog.Chunk(ids, r.batchSize) {
			tracks, err := r.client.Tracks(ctx, batch)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Warn().Err(err).Int("batch", len(batch)).Msg("Artist id backfill batch failed")
				continue
			}
			for _, t := range tracks {
				if t.ArtistID != "" {
					artistOf[t.TrackID] = t.ArtistID
				}
			}
		}
	}

	for i := range res.Tracks {
		rt := &res.Tracks[i]
		if rt.ArtistID != "" {
			continue
		}
		if id, ok := artistOf[rt.TrackID]; ok {
			rt.ArtistID = id
			res.Backfilled++
			continue
		}
		res.MissingArtist++
	}
	return nil
}
