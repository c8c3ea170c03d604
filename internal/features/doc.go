// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

// Package features derives the model features of the historical dataset and
// synthesizes future-horizon rows for forecasting.
//
// # Columns
//
//	genre_pop_idx       mean streams per (chart_week, genre); a track takes
//	                    the mean over its genres, 0 without genres
//	artist_growth_rate  fractional change of an artist's weekly stream total
//	                    since the artist's previous chart week, 0 where
//	                    undefined
//	seasonality_score   mean streams of the chart_week's calendar month over
//	                    the global mean, 1.0 when the global mean is 0
//	genre_idx_lagged    weekly mean genre_pop_idx of the previous distinct
//	                    week; the first week takes its own value
//
// # Determinism
//
// Build depends only on its input. Rows are processed and returned in
// (chart_week, track_id) order, so a shuffled input yields the same frame.
//
// # Future Horizon
//
// Extrapolate replicates each track's latest row at W+7d, W+14d, ... where W
// is the last observed week. The time-varying regressors of the synthetic
// rows come from the weekly aggregate of the combined timeline, filled
// backward, then forward, then with 0. Two modeling assumptions are
// configurable:
//
//	future_genre_source  carry_forward | none
//	future_seasonality   carry_forward | calendar_month
package features
