// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

/*
Package services adapts Chartpulse components to suture.Service.

  - HTTPServerService: *http.Server with graceful shutdown
  - InboxService: polls the raw directory and runs the pipeline on new files
  - NATSServerService: keeps the embedded NATS server running

Every wrapper returns when its context is canceled and implements
fmt.Stringer so supervisor logs name it.
*/
package services
