// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

/*
Package supervisor runs service mode under a suture v4 supervisor tree.

	RootSupervisor ("chartpulse")
	├── DataSupervisor ("data-layer")
	│   └── InboxService (if INBOX_ENABLED)
	├── MessagingSupervisor ("messaging-layer")
	│   └── NATSServerService (if NATS_EMBEDDED)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Each layer counts failures on its own, so a watcher that keeps failing backs
off without restarting the HTTP server. Supervisor events (service start,
failure, backoff) go through sutureslog into the zerolog stream via
logging.NewSlogLogger.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDataService(services.NewInboxService(cfg.Paths.RawDir, cfg.Server.InboxPollInterval, runner))
	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = tree.Serve(ctx)
*/
package supervisor
