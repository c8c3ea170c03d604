// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

/*
Package cache provides a persistent key-value cache with TTL support, backed
by BadgerDB.

# Overview

The cache provides:
  - JSON-encoded values of any type
  - Per-entry time-to-live using Badger's native expiry
  - Hit/miss statistics for monitoring
  - An in-memory mode for tests

# Use Cases

  - Catalog lookups (tracks, artists, searches), so re-running a week does
    not hit the catalog again for known ids
  - The run ledger, which keeps the summary of recent pipeline runs across
    restarts

# Usage

	store, err := cache.Open(&cfg.Cache)
	if err != nil {
	    return err
	}
	defer store.Close()

	store.Set("artist:123", record)
	var rec models.ArtistRecord
	found, err := store.Get("artist:123", &rec)

Keys are namespaced by the caller with a "kind:" prefix. GenerateKey builds
stable keys from structured parameters.
*/
package cache
