// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package catalog

import (
	"context"
	"errors"

	"github.com/tomtom215/chartpulse/internal/cache"
	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/metrics"
	"github.com/tomtom215/chartpulse/internal/models"
)

// CachedClient serves catalog lookups from a persistent cache and only asks
// the wrapped client for misses. Negative search results are cached too, so
// a track the catalog cannot find is not searched again until its entry
// expires.
type CachedClient struct {
	client Client
	store  *cache.Store
}

// NewCachedClient wraps client with store.
func NewCachedClient(client Client, store *cache.Store) *CachedClient {
	return &CachedClient{client: client, store: store}
}

type cachedSearch struct {
	SearchResult
	Missing bool `json:"missing,omitempty"`
}

// SearchTrack returns a cached search result or asks the wrapped client.
func (c *CachedClient) SearchTrack(ctx context.Context, trackName, artistNames string) (SearchResult, error) {
	key := cache.GenerateKey("search", trackName, artistNames)

	var hit cachedSearch
	if found := c.lookup(key, &hit); found {
		if hit.Missing {
			return SearchResult{}, ErrNotFound
		}
		return hit.SearchResult, nil
	}

	res, err := c.client.SearchTrack(ctx, trackName, artistNames)
	switch {
	case errors.Is(err, ErrNotFound):
		c.remember(key, cachedSearch{Missing: true})
		return SearchResult{}, err
	case err != nil:
		return SearchResult{}, err
	}
	c.remember(key, cachedSearch{SearchResult: res})
	return res, nil
}

// Tracks returns cached tracks and fetches the rest in one call.
func (c *CachedClient) Tracks(ctx context.Context, ids []string) ([]models.TrackRecord, error) {
	out := make([]models.TrackRecord, 0, len(ids))
	var missing []string
	for _, id := range ids {
		var rec models.TrackRecord
		if c.lookup("track:"+id, &rec) {
			out = append(out, rec)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.client.Tracks(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, rec := range fetched {
		c.remember("track:"+rec.TrackID, rec)
	}
	return append(out, fetched...), nil
}

// Artists returns cached artists and fetches the rest in one call.
func (c *CachedClient) Artists(ctx context.Context, ids []string) ([]models.ArtistRecord, error) {
	out := make([]models.ArtistRecord, 0, len(ids))
	var missing []string
	for _, id := range ids {
		var rec models.ArtistRecord
		if c.lookup("artist:"+id, &rec) {
			out = append(out, rec)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.client.Artists(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, rec := range fetched {
		c.remember("artist:"+rec.ArtistID, rec)
	}
	return append(out, fetched...), nil
}

// lookup treats cache read errors as misses.
func (c *CachedClient) lookup(key string, v interface{}) bool {
	found, err := c.store.Get(key, v)
	if err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("Catalog cache read failed")
		found = false
	}
	if found {
		metrics.CatalogCache.WithLabelValues("hit").Inc()
	} else {
		metrics.CatalogCache.WithLabelValues("miss").Inc()
	}
	return found
}

func (c *CachedClient) remember(key string, v interface{}) {
	if err := c.store.Set(key, v); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("Catalog cache write failed")
	}
}
