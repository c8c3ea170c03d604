// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package predict

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
)

// prophetModel holds the fields of a serialized Prophet model that define
// its trend component.
type prophetModel struct {
	Growth        string                     `json:"growth"`
	Start         float64                    `json:"start"`   // unix seconds
	TScale        float64                    `json:"t_scale"` // seconds
	YScale        float64                    `json:"y_scale"`
	LogisticFloor bool                       `json:"logistic_floor"`
	ChangepointsT []float64                  `json:"changepoints_t"`
	Params        map[string]json.RawMessage `json:"params"`
}

// param decodes a parameter stored as a scalar, a vector or a 1xN matrix
// and returns its first row.
func (pm *prophetModel) param(name string) ([]float64, error) {
	raw, ok := pm.Params[name]
	if !ok {
		return nil, fmt.Errorf("prophet parameter %s missing", name)
	}
	var matrix [][]float64
	if err := json.Unmarshal(raw, &matrix); err == nil {
		if len(matrix) == 0 {
			return nil, nil
		}
		return matrix[0], nil
	}
	var vector []float64
	if err := json.Unmarshal(raw, &vector); err == nil {
		return vector, nil
	}
	var scalar float64
	if err := json.Unmarshal(raw, &scalar); err != nil {
		return nil, fmt.Errorf("prophet parameter %s: %w", name, err)
	}
	return []float64{scalar}, nil
}

// ProphetTrend evaluates the piecewise linear (or flat) trend of a
// serialized Prophet model:
//
//	t     = (ds - start) / t_scale
//	trend = (k + Σ δj·[t ≥ cj])·t + (m + Σ -cj·δj·[t ≥ cj])
//
// scaled back by y_scale. Regressors do not enter the trend component.
type ProphetTrend struct {
	growth       string
	start        time.Time
	tScale       float64
	yScale       float64
	k, m         float64
	deltas       []float64
	changepoints []float64
}

// ParseProphetTrend decodes a Prophet model JSON document.
func ParseProphetTrend(data []byte) (*ProphetTrend, error) {
	var pm prophetModel
	if err := json.Unmarshal(data, &pm); err != nil {
		return nil, fmt.Errorf("decode prophet model: %w", err)
	}
	if pm.Growth != "linear" && pm.Growth != "flat" {
		return nil, fmt.Errorf("%w: prophet growth %q", ErrUnsupportedModel, pm.Growth)
	}
	if pm.LogisticFloor {
		return nil, fmt.Errorf("%w: prophet logistic floor", ErrUnsupportedModel)
	}
	if pm.TScale <= 0 {
		return nil, fmt.Errorf("%w: prophet t_scale %v", ErrUnsupportedModel, pm.TScale)
	}

	first := func(name string) (float64, error) {
		v, err := pm.param(name)
		if err != nil {
			return 0, err
		}
		if len(v) == 0 {
			return 0, fmt.Errorf("prophet parameter %s is empty", name)
		}
		return v[0], nil
	}

	p := &ProphetTrend{
		growth:       pm.Growth,
		start:        time.Unix(0, int64(pm.Start*float64(time.Second))).UTC(),
		tScale:       pm.TScale,
		yScale:       pm.YScale,
		changepoints: pm.ChangepointsT,
	}
	var err error
	if p.m, err = first("m"); err != nil {
		return nil, err
	}
	if pm.Growth == "linear" {
		if p.k, err = first("k"); err != nil {
			return nil, err
		}
		if _, ok := pm.Params["delta"]; ok {
			if p.deltas, err = pm.param("delta"); err != nil {
				return nil, err
			}
		}
		if len(p.deltas) != len(p.changepoints) {
			return nil, fmt.Errorf("prophet has %d deltas for %d changepoints", len(p.deltas), len(p.changepoints))
		}
	}
	if p.yScale == 0 {
		p.yScale = 1
	}
	return p, nil
}

// Trend implements TrendPredictor.
func (p *ProphetTrend) Trend(ctx context.Context, in []TrendInput) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, len(in))
	for i := range in {
		if in[i].DS.IsZero() {
			return nil, ErrMissingTimestamp
		}
		out[i] = p.at(in[i].DS)
	}
	return out, nil
}

func (p *ProphetTrend) at(ds time.Time) float64 {
	if p.growth == "flat" {
		return p.m * p.yScale
	}

	t := ds.Sub(p.start).Seconds() / p.tScale
	k, m := p.k, p.m
	for j, c := range p.changepoints {
		if t >= c {
			k += p.deltas[j]
			m -= c * p.deltas[j]
		}
	}
	v := (k*t + m) * p.yScale
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
