// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/chartpulse/internal/api"
	"github.com/tomtom215/chartpulse/internal/events"
	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/supervisor"
	"github.com/tomtom215/chartpulse/internal/supervisor/services"
)

const shutdownTimeout = 10 * time.Second

// serve runs the supervisor tree until SIGINT or SIGTERM.
func serve(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return err
	}

	if a.cfg.Events.Enabled && a.cfg.Events.Embedded {
		host, port, err := natsListenAddr(a.cfg.Events.URL)
		if err != nil {
			return err
		}
		tree.AddMessagingService(services.NewNATSServerService(func() (services.NATSServer, error) {
			srv, err := events.NewEmbeddedServer(host, port)
			if err != nil {
				return nil, err
			}
			return srv, nil
		}, 5*time.Second, shutdownTimeout))
	}

	if a.cfg.Server.InboxEnabled {
		tree.AddDataService(services.NewInboxService(a.cfg.Paths.RawDir, a.cfg.Server.InboxPollInterval, a.runner))
	}

	handler := api.NewHandler(a.runner, a.cfg)
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           api.NewRouter(handler, &a.cfg.Server).SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       a.cfg.Server.Timeout,
		IdleTimeout:       2 * time.Minute,
		// no WriteTimeout: an upload responds only after its run finishes
	}
	tree.AddAPIService(services.NewHTTPServerService(srv, shutdownTimeout))

	logging.Info().
		Str("addr", srv.Addr).
		Bool("inbox", a.cfg.Server.InboxEnabled).
		Bool("embedded_nats", a.cfg.Events.Enabled && a.cfg.Events.Embedded).
		Msg("Starting chartpulse service")

	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		logging.Warn().Int("services", len(report)).Msg("Some services did not stop in time")
	}
	if errors.Is(err, context.Canceled) {
		logging.Info().Msg("Shutdown complete")
		return nil
	}
	return err
}

// natsListenAddr turns a client URL such as nats://127.0.0.1:4222 into the
// listen address of the embedded server.
func natsListenAddr(raw string) (string, int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, fmt.Errorf("invalid events url %q: %w", raw, err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return "", 0, fmt.Errorf("events url %q needs host:port: %w", raw, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("events url %q has invalid port %q", raw, portStr)
	}
	return host, port, nil
}
