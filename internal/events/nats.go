// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/chartpulse/internal/config"
	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/metrics"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// NATSPublisher publishes events as core NATS messages.
type NATSPublisher struct {
	nc      *natsgo.Conn
	prefix  string
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewNATSPublisher connects to url. The connection retries in the
// background when the server is not reachable yet.
func NewNATSPublisher(url string, cfg *config.EventsConfig) (*NATSPublisher, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	nc, err := natsgo.Connect(url,
		natsgo.Name("chartpulse"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	return &NATSPublisher{nc: nc, prefix: cfg.SubjectPrefix, timeout: timeout}, nil
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// Publish implements Publisher. It returns once the server has the message
// or the timeout elapses.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	data, err := json.Marshal(ev)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := natsgo.NewMsg(p.Subject(ev.Type))
	msg.Data = data
	msg.Header.Set(natsgo.MsgIdHdr, ev.ID)

	if err := p.nc.PublishMsg(msg); err != nil {
		metrics.EventsPublished.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.nc.FlushWithContext(ctx); err != nil {
		metrics.EventsPublished.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("flush %s: %w", msg.Subject, err)
	}

	metrics.EventsPublished.WithLabelValues(ev.Type, "ok").Inc()
	logging.Ctx(ctx).Debug().Str("subject", msg.Subject).Str("event_id", ev.ID).Msg("Event published")
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.nc.Drain()
}
