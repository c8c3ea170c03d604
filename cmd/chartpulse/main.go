// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

// Package main is the chartpulse command.
//
// Chartpulse turns weekly streaming-chart CSV exports into a historical
// dataset, derives trend features, scores every track for "rising" and
// writes a short market report.
//
// # Subcommands
//
//	chartpulse run -file data/raw/regional-global-weekly-2025-01-16.csv
//	chartpulse serve
//	chartpulse runs [-limit 10]
//	chartpulse snapshots
//	chartpulse restore -id <snapshot-id>
//	chartpulse analytics
//
// run processes one file and prints the run context as JSON. serve starts
// the HTTP API and the inbox watcher under a supervisor tree and stops on
// SIGINT or SIGTERM.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 (defaults, config.yaml, .env, then
// environment variables). Commonly set:
//
//	SPOTIFY_CLIENT_ID, SPOTIFY_CLIENT_SECRET   catalog credentials
//	GOOGLE_API_KEY                             report generator key
//	FORECAST_HORIZON_WEEKS                     forecast horizon (default 12)
//	NATS_ENABLED, NATS_EMBEDDED                run and merge events
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/tomtom215/chartpulse/internal/config"
	"github.com/tomtom215/chartpulse/internal/logging"
)

var errUsage = errors.New("usage")

const usage = `Usage: chartpulse <command> [flags]

Commands:
  run -file <csv>       process one weekly chart file
  serve                 run the HTTP API and inbox watcher
  runs [-limit n]       list recorded runs, newest first
  snapshots             list history snapshots
  restore -id <id>      roll the history store back to a snapshot
  analytics             print market analytics from the analytics database
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		logging.Error().Err(err).Msg("chartpulse failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	var (
		file  = fs.String("file", "", "chart CSV to process")
		id    = fs.String("id", "", "snapshot id")
		limit = fs.Int("limit", 20, "maximum number of runs to list")
	)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	switch cmd {
	case "run":
		if *file == "" {
			return fmt.Errorf("%w: run needs -file", errUsage)
		}
	case "restore":
		if *id == "" {
			return fmt.Errorf("%w: restore needs -id", errUsage)
		}
	case "serve", "runs", "snapshots", "analytics":
	default:
		return errUsage
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	a, err := newApp(cfg, cmd == "serve")
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "run":
		rc, err := a.runner.Run(ctx, *file)
		if rc != nil {
			if perr := printJSON(out, rc); perr != nil {
				return perr
			}
		}
		return err
	case "serve":
		return serve(ctx, a)
	case "runs":
		runs, err := a.ledger.List(*limit)
		if err != nil {
			return err
		}
		return printJSON(out, runs)
	case "snapshots":
		snaps, err := a.runner.Snapshots()
		if err != nil {
			return err
		}
		return printJSON(out, snaps)
	case "restore":
		res, err := a.runner.Restore(ctx, *id)
		if err != nil {
			return err
		}
		return printJSON(out, res)
	default: // analytics
		if a.analytics == nil {
			return errors.New("analytics database is disabled")
		}
		report, err := a.analytics.Analyze(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, report)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
