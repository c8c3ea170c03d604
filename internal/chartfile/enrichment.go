// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package chartfile

import (
	"encoding/csv"
	"io"
	"sort"
	"strings"

	"github.com/tomtom215/chartpulse/internal/models"
)

var enrichmentColumns = []string{
	"track_id", "artist_id", "track_name", "artist_names", "release_date", "explicit",
	"track_popularity", "artist_genres", "artist_followers", "artist_popularity",
}

// WriteEnrichment writes one line per track_id, sorted by id.
func WriteEnrichment(w io.Writer, enr map[string]models.Enrichment) error {
	ids := make([]string, 0, len(enr))
	for id := range enr {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	cw := csv.NewWriter(w)
	if err := cw.Write(enrichmentColumns); err != nil {
		return err
	}
	for _, id := range ids {
		e := enr[id]
		if err := cw.Write([]string{
			id, e.Track.ArtistID, e.Track.TrackName, strings.Join(e.Track.ArtistNames, ", "),
			models.FormatDate(e.Track.ReleaseDate), btoa(e.Track.Explicit), itoa(e.Track.Popularity),
			e.Artist.Genres.String(), i64toa(e.Artist.Followers), itoa(e.Artist.Popularity),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadEnrichment parses an enrichment file keyed by track_id. Later lines
// for the same id replace earlier ones.
func ReadEnrichment(r io.Reader) (map[string]models.Enrichment, ReadStats, error) {
	out := make(map[string]models.Enrichment)
	var stats ReadStats

	_, err := readAll(r, []string{"track_id"}, func(rec *record) {
		id := rec.str("track_id")
		if id == "" {
			stats.Skipped++
			return
		}
		release := rec.dateCol("release_date")
		if release.IsZero() {
			release = models.EpochSentinel
		}
		artistID := rec.str("artist_id")
		out[id] = models.Enrichment{
			Track: models.TrackRecord{
				TrackID:     id,
				TrackName:   rec.str("track_name"),
				ArtistNames: models.SplitArtists(rec.str("artist_names")),
				ArtistID:    artistID,
				Explicit:    rec.boolCol("explicit"),
				ReleaseDate: release,
				Popularity:  rec.intCol("track_popularity"),
			},
			Artist: models.ArtistRecord{
				ArtistID:   artistID,
				Genres:     models.ParseGenres(rec.str("artist_genres")),
				Followers:  rec.int64Col("artist_followers"),
				Popularity: rec.intCol("artist_popularity"),
			},
		}
		stats.BadCells += rec.bad
	})
	if err != nil {
		return nil, stats, err
	}
	stats.Rows = len(out)
	return out, stats, nil
}
