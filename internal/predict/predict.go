// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

// Package predict scores feature frames with two trained models: a trend
// predictor that yields the macro trend per row, and a binary classifier
// whose probability is compared against a persisted decision threshold.
//
// The models are opaque. They are loaded once through an explicitly
// constructed Handle and consumed through the TrendPredictor and Classifier
// interfaces. Reference evaluators for serialized Prophet and LightGBM text
// models are provided by ProphetTrend and LGBMClassifier.
package predict

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMissingTimestamp is returned when a frame has rows without ds.
	ErrMissingTimestamp = errors.New("forecast timestamp column ds is missing")

	// ErrNotLoaded is returned when a Handle is used before Load.
	ErrNotLoaded = errors.New("prediction artifacts not loaded")

	// ErrUnsupportedModel is returned for model files the evaluators cannot run.
	ErrUnsupportedModel = errors.New("unsupported model")
)

// TrendInput is one row of trend predictor input.
type TrendInput struct {
	DS               time.Time
	GenreIdxLagged   float64
	SeasonalityScore float64
}

// TrendPredictor returns the trend value per input row.
type TrendPredictor interface {
	Trend(ctx context.Context, in []TrendInput) ([]float64, error)
}

// Classifier returns the positive-class probability per feature vector.
// Vectors are ordered like FeatureNames.
type Classifier interface {
	Probabilities(ctx context.Context, x [][]float64) ([]float64, error)
	FeatureNames() []string
}
