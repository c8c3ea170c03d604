// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

// Package models defines the records that flow through the chart pipeline:
// weekly chart observations, catalog metadata, historical rows and the
// derived feature rows.
package models

import (
	"strings"
	"time"
)

// ChartEntry is one track's observation in one weekly chart.
type ChartEntry struct {
	ChartWeek    time.Time `json:"chart_week"`
	Rank         int       `json:"rank"`
	URI          string    `json:"uri,omitempty"`
	ArtistNames  string    `json:"artist_names"` // as published, primary artist first
	TrackName    string    `json:"track_name"`
	Source       string    `json:"source,omitempty"`
	PeakRank     int       `json:"peak_rank"`
	PreviousRank int       `json:"previous_rank"`
	WeeksOnChart int       `json:"weeks_on_chart"`
	Streams      int64     `json:"streams"`
}

// TrackRecord is the catalog's view of a track. The latest fetch wins.
type TrackRecord struct {
	TrackID     string    `json:"track_id"`
	TrackName   string    `json:"track_name"`
	ArtistNames []string  `json:"artist_names"`
	ArtistID    string    `json:"artist_id"` // primary artist
	Explicit    bool      `json:"explicit"`
	ReleaseDate time.Time `json:"release_date"`
	Popularity  int       `json:"track_popularity"`
}

// ArtistRecord is the catalog's view of an artist.
type ArtistRecord struct {
	ArtistID   string   `json:"artist_id"`
	Genres     GenreSet `json:"genres"`
	Followers  int64    `json:"followers"`
	Popularity int      `json:"artist_popularity"`
}

// Enrichment is the metadata joined onto chart rows for one track_id.
type Enrichment struct {
	Track  TrackRecord  `json:"track"`
	Artist ArtistRecord `json:"artist"`
}

// SentinelEnrichment returns the record used when the catalog has nothing
// usable for a track.
func SentinelEnrichment(trackID, artistID string) Enrichment {
	return Enrichment{
		Track: TrackRecord{
			TrackID:     trackID,
			ArtistID:    artistID,
			ReleaseDate: EpochSentinel,
		},
		Artist: ArtistRecord{
			ArtistID: artistID,
			Genres:   UnknownGenres(),
		},
	}
}

// RowKey identifies a historical row.
type RowKey struct {
	TrackID   string
	ChartWeek int64 // unix seconds of the normalized week
}

// HistoricalRow is a chart observation joined with the metadata known at
// merge time. It is the unit of the historical dataset.
type HistoricalRow struct {
	ChartEntry

	TrackID          string    `json:"track_id"`
	ArtistID         string    `json:"artist_id"`
	Explicit         bool      `json:"explicit"`
	ReleaseDate      time.Time `json:"release_date"`
	TrackPopularity  int       `json:"track_popularity"`
	Genres           GenreSet  `json:"artist_genres"`
	ArtistFollowers  int64     `json:"artist_followers"`
	ArtistPopularity int       `json:"artist_popularity"`
}

// Key returns the dataset key of r.
func (r *HistoricalRow) Key() RowKey {
	return RowKey{TrackID: r.TrackID, ChartWeek: r.ChartWeek.Unix()}
}

// Apply copies enrichment fields onto r. The chart's own track and artist
// names are kept.
func (r *HistoricalRow) Apply(e Enrichment) {
	if r.ArtistID == "" {
		r.ArtistID = e.Track.ArtistID
	}
	if r.ArtistID == "" {
		r.ArtistID = e.Artist.ArtistID
	}
	r.Explicit = e.Track.Explicit
	r.ReleaseDate = NormalizeDate(e.Track.ReleaseDate)
	r.TrackPopularity = e.Track.Popularity
	r.Genres = e.Artist.Genres
	if len(r.Genres) == 0 {
		r.Genres = UnknownGenres()
	}
	r.ArtistFollowers = e.Artist.Followers
	r.ArtistPopularity = e.Artist.Popularity
}

// SplitArtists splits a published "A, B & C" credit on commas.
func SplitArtists(names string) []string {
	parts := strings.Split(names, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PrimaryArtist returns the first credited artist.
func PrimaryArtist(names string) string {
	if artists := SplitArtists(names); len(artists) > 0 {
		return artists[0]
	}
	return ""
}
