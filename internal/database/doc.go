// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

// Package database provides the DuckDB analytics layer of the pipeline.
//
// # Overview
//
// Every run exports its feature frame into the feature_frame table, replacing
// the previous contents. The market analytics read from that table:
//
//   - database.go: connection lifecycle and schema
//   - export.go: feature frame export and optional Parquet copy
//   - analytics.go: weekly stream totals, top artists, and top-10 stream share
//
// The table is a per-run artifact. The historical dataset stays the system of
// record; see package history.
//
// # Stream share
//
// ArtistShare restricts each week to ranks 1 to 10. An artist's share is its
// streams in those ranks over the week's top-10 total, in percent. The rolling
// mean covers the current and the preceding weeks of that artist's series,
// and the growth rate is the percentage change from the artist's previous
// observed share, with undefined changes reported as 0.
package database
