// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package report

import (
	"context"
	"errors"

	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/models"
)

// UnavailablePrefix starts every placeholder text.
const UnavailablePrefix = "Report unavailable: "

// ErrNoGenerator is the cause reported when no generator is configured.
var ErrNoGenerator = errors.New("no report generator configured")

// Collaborator produces report text and never fails.
type Collaborator struct {
	gen       Generator
	threshold float64
}

// NewCollaborator wraps gen. A nil gen always yields the placeholder.
func NewCollaborator(gen Generator, threshold float64) *Collaborator {
	return &Collaborator{gen: gen, threshold: threshold}
}

// Report returns the generated text, or a placeholder naming the cause.
func (c *Collaborator) Report(ctx context.Context, frame, top models.FeatureFrame) string {
	stats, err := BuildStats(frame, top, c.threshold)
	if err != nil {
		return Unavailable(err)
	}
	if c.gen == nil {
		return Unavailable(ErrNoGenerator)
	}

	text, err := c.gen.Generate(ctx, stats)
	if err == nil && text == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Report generation failed")
		return Unavailable(err)
	}
	return text
}

// Unavailable renders the placeholder for err.
func Unavailable(err error) string {
	return UnavailablePrefix + err.Error()
}
