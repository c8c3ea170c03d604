// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/chartpulse/internal/logging"
)

// NATSServer is the lifecycle part of events.EmbeddedServer.
type NATSServer interface {
	ClientURL() string
	IsRunning() bool
	Shutdown(ctx context.Context) error
}

// NATSServerService keeps an embedded NATS server alive. start is called on
// every (re)start; the service fails when the server stops running so the
// supervisor brings up a fresh one. Publishers reconnect on their own.
type NATSServerService struct {
	start           func() (NATSServer, error)
	healthInterval  time.Duration
	shutdownTimeout time.Duration
}

// NewNATSServerService wraps a server factory.
func NewNATSServerService(start func() (NATSServer, error), healthInterval, shutdownTimeout time.Duration) *NATSServerService {
	if healthInterval <= 0 {
		healthInterval = 5 * time.Second
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &NATSServerService{start: start, healthInterval: healthInterval, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (n *NATSServerService) Serve(ctx context.Context) error {
	srv, err := n.start()
	if err != nil {
		return fmt.Errorf("start embedded NATS: %w", err)
	}
	logging.Info().Str("url", srv.ClientURL()).Msg("Embedded NATS server running")

	ticker := time.NewTicker(n.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), n.shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("embedded NATS shutdown failed: %w", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if !srv.IsRunning() {
				return errors.New("embedded NATS server stopped")
			}
		}
	}
}

// String names the service in supervisor logs.
func (n *NATSServerService) String() string {
	return "nats-server"
}
