// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package chartfile

import (
	"encoding/csv"
	"io"

	"github.com/tomtom215/chartpulse/internal/models"
)

// HistoryColumns is the column order of the historical dataset file.
var HistoryColumns = []string{
	"chart_week", "rank", "uri", "artist_names", "track_name", "source",
	"peak_rank", "previous_rank", "weeks_on_chart", "streams",
	"track_id", "artist_id", "release_date", "explicit", "track_popularity",
	"artist_genres", "artist_followers", "artist_popularity",
}

// ReadHistory parses a historical dataset (live store, seed, snapshot or a
// joined week file). Only chart_week is a required column. A row needs a
// parsable week and a track id to be keyed, otherwise it is skipped. Seed
// files that carry the id only inside uri have it recovered from there.
func ReadHistory(r io.Reader) ([]models.HistoricalRow, ReadStats, error) {
	var (
		rows  []models.HistoricalRow
		stats ReadStats
	)

	_, err := readAll(r, []string{"chart_week"}, func(rec *record) {
		row := models.HistoricalRow{
			ChartEntry: models.ChartEntry{
				ChartWeek:    rec.dateCol("chart_week"),
				Rank:         rec.intCol("rank"),
				URI:          rec.str("uri"),
				ArtistNames:  rec.str("artist_names"),
				TrackName:    rec.str("track_name"),
				Source:       rec.str("source"),
				PeakRank:     rec.intCol("peak_rank"),
				PreviousRank: rec.intCol("previous_rank"),
				WeeksOnChart: rec.intCol("weeks_on_chart"),
				Streams:      rec.int64Col("streams"),
			},
			TrackID:          rec.str("track_id"),
			ArtistID:         rec.str("artist_id"),
			ReleaseDate:      rec.dateCol("release_date"),
			Explicit:         rec.boolCol("explicit"),
			TrackPopularity:  rec.intCol("track_popularity"),
			Genres:           models.ParseGenres(rec.str("artist_genres")),
			ArtistFollowers:  rec.int64Col("artist_followers"),
			ArtistPopularity: rec.intCol("artist_popularity"),
		}
		stats.BadCells += rec.bad

		if row.TrackID == "" {
			if id, ok := models.TrackIDFromURI(row.URI); ok {
				row.TrackID = id
			}
		}
		if row.ChartWeek.IsZero() || row.TrackID == "" {
			stats.Skipped++
			return
		}
		rows = append(rows, row)
	})
	if err != nil {
		return nil, stats, err
	}
	stats.Rows = len(rows)
	return rows, stats, nil
}

// WriteHistory writes rows in HistoryColumns order with canonical date and
// genre encodings.
func WriteHistory(w io.Writer, rows []models.HistoricalRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(HistoryColumns); err != nil {
		return err
	}
	for i := range rows {
		r := &rows[i]
		if err := cw.Write([]string{
			models.FormatDate(r.ChartWeek), itoa(r.Rank), r.URI, r.ArtistNames, r.TrackName, r.Source,
			itoa(r.PeakRank), itoa(r.PreviousRank), itoa(r.WeeksOnChart), i64toa(r.Streams),
			r.TrackID, r.ArtistID, models.FormatDate(r.ReleaseDate), btoa(r.Explicit), itoa(r.TrackPopularity),
			r.Genres.String(), i64toa(r.ArtistFollowers), itoa(r.ArtistPopularity),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
