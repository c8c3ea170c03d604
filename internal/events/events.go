// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

// Package events publishes pipeline notifications over NATS.
//
// Subjects are <prefix>.merge.completed, <prefix>.run.completed and
// <prefix>.run.failed. Payloads are JSON. Publishing is fire-and-forget:
// a notification failure is logged by the caller and never fails a run.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeMergeCompleted = "merge.completed"
	TypeRunCompleted   = "run.completed"
	TypeRunFailed      = "run.failed"
)

// Event is the envelope of every notification.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	RunID     string      `json:"run_id,omitempty"`
	ChartWeek string      `json:"chart_week,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewEvent creates an event with a fresh id.
func NewEvent(eventType, runID, chartWeek string, data interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     runID,
		ChartWeek: chartWeek,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
