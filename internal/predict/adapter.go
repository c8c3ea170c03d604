// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package predict

import (
	"context"
	"fmt"

	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/models"
)

// Result is a scored frame.
type Result struct {
	Frame          models.FeatureFrame
	Rising         int
	MissingColumns []string
}

// Adapter drives the predictors of a Handle over feature frames.
type Adapter struct {
	handle *Handle
}

// NewAdapter creates an adapter. The handle is loaded on first use.
func NewAdapter(handle *Handle) *Adapter {
	return &Adapter{handle: handle}
}

// Predict sets prophet_trend, probability and is_rising on a copy of frame.
// Feature columns the frame does not carry are filled with 0 and reported
// once per call. An empty frame yields an empty result without loading the
// artifacts.
func (a *Adapter) Predict(ctx context.Context, frame models.FeatureFrame) (*Result, error) {
	if len(frame) == 0 {
		return &Result{}, nil
	}
	for i := range frame {
		if frame[i].DS.IsZero() {
			return nil, fmt.Errorf("%w: row %d (%s)", ErrMissingTimestamp, i, frame[i].TrackID)
		}
	}

	if err := a.handle.Load(ctx); err != nil {
		return nil, err
	}
	trend, classifier, threshold, columns, err := a.handle.models()
	if err != nil {
		return nil, err
	}

	out := append(models.FeatureFrame(nil), frame...)

	inputs := make([]TrendInput, len(out))
	for i := range out {
		inputs[i] = TrendInput{
			DS:               out[i].DS,
			GenreIdxLagged:   out[i].GenreIdxLagged,
			SeasonalityScore: out[i].SeasonalityScore,
		}
	}
	trends, err := trend.Trend(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("trend prediction failed: %w", err)
	}
	if len(trends) != len(out) {
		return nil, fmt.Errorf("trend predictor returned %d values for %d rows", len(trends), len(out))
	}
	for i := range out {
		out[i].ProphetTrend = trends[i]
	}

	x, missing := assemble(out, columns)
	for _, col := range missing {
		logging.Ctx(ctx).Warn().Str("column", col).Msg("Feature column missing, filled with 0")
	}

	probs, err := classifier.Probabilities(ctx, x)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}
	if len(probs) != len(out) {
		return nil, fmt.Errorf("classifier returned %d values for %d rows", len(probs), len(out))
	}

	res := &Result{Frame: out, MissingColumns: missing}
	for i := range out {
		out[i].Probability = probs[i]
		out[i].IsRising = probs[i] > threshold
		if out[i].IsRising {
			res.Rising++
		}
	}
	return res, nil
}

// assemble builds the classifier matrix in columns order.
func assemble(frame models.FeatureFrame, columns []string) (x [][]float64, missing []string) {
	known := make([]bool, len(columns))
	for j, col := range columns {
		if len(frame) > 0 {
			_, known[j] = frame[0].Column(col)
		}
		if !known[j] {
			missing = append(missing, col)
		}
	}

	x = make([][]float64, len(frame))
	for i := range frame {
		row := make([]float64, len(columns))
		for j, col := range columns {
			if known[j] {
				row[j], _ = frame[i].Column(col)
			}
		}
		x[i] = row
	}
	return x, missing
}
