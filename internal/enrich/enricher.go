// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

// Package enrich fetches track and artist metadata for resolved chart rows.
//
// Lookups run sequentially in batches of at most 50 ids with a fixed
// cooldown between batches. Enrichment degrades instead of failing: a batch
// that errors is retried id by id, and anything the catalog cannot supply is
// filled with sentinels (genres {"unknown"}, zero counts, release date
// 1970-01-01). Every input track id gets exactly one record.
package enrich

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/chartpulse/internal/catalog"
	"github.com/tomtom215/chartpulse/internal/identity"
	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/metrics"
	"github.com/tomtom215/chartpulse/internal/models"
)

// Stats summarizes one enrichment pass.
type Stats struct {
	Tracks          int `json:"tracks"` // distinct track ids
	Batches         int `json:"batches"`
	RetriedBatches  int `json:"retried_batches"`  // batches that fell back to per-id lookups
	FailedIDs       int `json:"failed_ids"`       // ids whose per-id retry also failed
	SentinelTracks  int `json:"sentinel_tracks"`  // tracks without catalog metadata
	SentinelArtists int `json:"sentinel_artists"` // artists without catalog metadata
}

// Enricher looks up metadata through a catalog client. A nil client fills
// every record with sentinels.
type Enricher struct {
	client    catalog.Client
	batchSize int
	cooldown  time.Duration
	logger    zerolog.Logger
}

// New creates an enricher. batchSize is clamped to the catalog limit.
func New(client catalog.Client, batchSize int, cooldown time.Duration) *Enricher {
	if batchSize <= 0 || batchSize > catalog.MaxBatchSize {
		batchSize = catalog.MaxBatchSize
	}
	return &Enricher{
		client:    client,
		batchSize: batchSize,
		cooldown:  cooldown,
		logger:    logging.WithComponent("enrich"),
	}
}

// Enrich returns one record per distinct track id. The only error it
// returns is the context's.
func (e *Enricher) Enrich(ctx context.Context, tracks []identity.ResolvedTrack) (map[string]models.Enrichment, Stats, error) {
	ids, hints := dedupe(tracks)
	stats := Stats{Tracks: len(ids)}
	out := make(map[string]models.Enrichment, len(ids))

	if e.client == nil {
		for _, id := range ids {
			out[id] = models.SentinelEnrichment(id, hints[id])
		}
		stats.SentinelTracks = len(ids)
		stats.SentinelArtists = len(ids)
		metrics.EnrichSentinelFills.Add(float64(len(ids)))
		return out, stats, nil
	}

	limit := rate.Inf
	if e.cooldown > 0 {
		limit = rate.Every(e.cooldown)
	}
	limiter := rate.NewLimiter(limit, 1)

	for _, batch := range catalog.Chunk(ids, e.batchSize) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, stats, err
		}
		stats.Batches++

		trackRecs, retried, failed, err := e.fetchTracks(ctx, batch)
		if err != nil {
			return nil, stats, err
		}

		artistIDs := make([]string, 0, len(batch))
		seenArtist := make(map[string]struct{}, len(batch))
		for _, id := range batch {
			aid := hints[id]
			if rec, ok := trackRecs[id]; ok && rec.ArtistID != "" {
				aid = rec.ArtistID
			}
			if aid == "" {
				continue
			}
			if _, ok := seenArtist[aid]; ok {
				continue
			}
			seenArtist[aid] = struct{}{}
			artistIDs = append(artistIDs, aid)
		}

		artistRecs, artistRetried, artistFailed, err := e.fetchArtists(ctx, artistIDs)
		if err != nil {
			return nil, stats, err
		}
		retried = retried || artistRetried
		failed += artistFailed

		for _, id := range batch {
			rec := e.compose(id, hints[id], trackRecs, artistRecs, &stats)
			out[id] = rec
		}

		stats.FailedIDs += failed
		switch {
		case retried && failed > 0:
			metrics.EnrichBatches.WithLabelValues("failed").Inc()
			stats.RetriedBatches++
		case retried:
			metrics.EnrichBatches.WithLabelValues("retried").Inc()
			stats.RetriedBatches++
		default:
			metrics.EnrichBatches.WithLabelValues("ok").Inc()
		}
	}

	metrics.EnrichSentinelFills.Add(float64(stats.SentinelTracks + stats.SentinelArtists))
	e.logger.Info().
		Int("tracks", stats.Tracks).
		Int("batches", stats.Batches).
		Int("retried_batches", stats.RetriedBatches).
		Int("failed_ids", stats.FailedIDs).
		Int("sentinel_tracks", stats.SentinelTracks).
		Int("sentinel_artists", stats.SentinelArtists).
		Msg("Enrichment complete")
	return out, stats, nil
}

// compose builds the record for one track id, filling sentinels for
// whatever the catalog did not return.
func (e *Enricher) compose(id, hint string, tracks map[string]models.TrackRecord, artists map[string]models.ArtistRecord, stats *Stats) models.Enrichment {
	rec := models.SentinelEnrichment(id, hint)

	if t, ok := tracks[id]; ok {
		rec.Track = t
		if rec.Track.ArtistID == "" {
			rec.Track.ArtistID = hint
		}
		if rec.Track.ReleaseDate.IsZero() {
			rec.Track.ReleaseDate = models.EpochSentinel
		}
	} else {
		stats.SentinelTracks++
	}

	aid := rec.Track.ArtistID
	if a, ok := artists[aid]; ok && aid != "" {
		rec.Artist = a
		if len(rec.Artist.Genres) == 0 {
			rec.Artist.Genres = models.UnknownGenres()
		}
	} else {
		rec.Artist = models.ArtistRecord{ArtistID: aid, Genres: models.UnknownGenres()}
		stats.SentinelArtists++
	}
	return rec
}

// fetchTracks looks up a batch, falling back to one call per id when the
// batch call fails.
func (e *Enricher) fetchTracks(ctx context.Context, ids []string) (map[string]models.TrackRecord, bool, int, error) {
	out := make(map[string]models.TrackRecord, len(ids))
	recs, err := e.client.Tracks(ctx, ids)
	if err == nil {
		for _, r := range recs {
			out[r.TrackID] = r
		}
		return out, false, 0, nil
	}
	if ctx.Err() != nil {
		return nil, false, 0, ctx.Err()
	}

	e.logger.Warn().Err(err).Int("batch", len(ids)).Msg("Track batch failed, retrying per id")
	failed := 0
	for _, id := range ids {
		recs, err := e.client.Tracks(ctx, []string{id})
		if err != nil {
			if ctx.Err() != nil {
				return nil, true, failed, ctx.Err()
			}
			failed++
			e.logger.Debug().Err(err).Str("track_id", id).Msg("Track lookup failed")
			continue
		}
		for _, r := range recs {
			out[r.TrackID] = r
		}
	}
	return out, true, failed, nil
}

// fetchArtists mirrors fetchTracks for artist ids.
func (e *Enricher) fetchArtists(ctx context.Context, ids []string) (map[string]models.ArtistRecord, bool, int, error) {
	out := make(map[string]models.ArtistRecord, len(ids))
	if len(ids) == 0 {
		return out, false, 0, nil
	}

	retried, failed := false, 0
	for _, batch := range catalog.Chunk(ids, catalog.MaxBatchSize) {
		recs, err := e.client.Artists(ctx, batch)
		if err == nil {
			for _, r := range recs {
				out[r.ArtistID] = r
			}
			continue
		}
		if ctx.Err() != nil {
			return nil, retried, failed, ctx.Err()
		}

		retried = true
		e.logger.Warn().Err(err).Int("batch", len(batch)).Msg("Artist batch failed, retrying per id")
		for _, id := range batch {
			recs, err := e.client.Artists(ctx, []string{id})
			if err != nil {
				if ctx.Err() != nil {
					return nil, retried, failed, ctx.Err()
				}
				failed++
				continue
			}
			for _, r := range recs {
				out[r.ArtistID] = r
			}
		}
	}
	return out, retried, failed, nil
}

// dedupe returns distinct track ids in first-seen order with the first
// non-empty artist id hint for each.
func dedupe(tracks []identity.ResolvedTrack) ([]string, map[string]string) {
	ids := make([]string, 0, len(tracks))
	hints := make(map[string]string, len(tracks))
	for _, t := range tracks {
		if t.TrackID == "" {
			continue
		}
		hint, seen := hints[t.TrackID]
		if !seen {
			ids = append(ids, t.TrackID)
		}
		if hint == "" {
			hints[t.TrackID] = t.ArtistID
		}
	}
	return ids, hints
}
