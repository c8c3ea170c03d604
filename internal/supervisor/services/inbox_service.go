// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package services

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/pipeline"
)

// InboxRunner is the part of pipeline.Runner the watcher needs.
type InboxRunner interface {
	RunIfNew(ctx context.Context, rawPath string) (*pipeline.RunContext, bool, error)
}

// InboxService polls the raw directory and runs the pipeline once for each
// chart file it has not seen. Files are visited in name order, which is
// chronological for dated chart names. A file whose run fails is not retried
// until the process restarts.
type InboxService struct {
	dir      string
	interval time.Duration
	runner   InboxRunner

	mu        sync.Mutex
	attempted map[string]struct{}
}

// NewInboxService creates a watcher for dir. A non-positive interval becomes 30s.
func NewInboxService(dir string, interval time.Duration, runner InboxRunner) *InboxService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &InboxService{
		dir:       dir,
		interval:  interval,
		runner:    runner,
		attempted: make(map[string]struct{}),
	}
}

// Serve implements suture.Service.
func (s *InboxService) Serve(ctx context.Context) error {
	logging.Info().Str("dir", s.dir).Dur("interval", s.interval).Msg("Inbox watcher started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Scan(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Scan processes every pending file once. It returns an error only when the
// directory cannot be read for a reason other than not existing yet, or when
// ctx is canceled.
func (s *InboxService) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") ||
			!strings.EqualFold(filepath.Ext(name), ".csv") {
			continue
		}

		path := filepath.Join(s.dir, name)
		if !s.markAttempted(path) {
			continue
		}

		rc, started, err := s.runner.RunIfNew(ctx, path)
		switch {
		case errors.Is(err, context.Canceled):
			return err
		case err != nil:
			logging.Error().Err(err).Str("file", name).Msg("Inbox run failed")
		case started:
			logging.Info().Str("file", name).Str("run_id", rc.RunID).Msg("Inbox run completed")
		default:
			logging.Debug().Str("file", name).Msg("Inbox file already processed")
		}
	}
	return nil
}

// markAttempted records path and reports whether it was new.
func (s *InboxService) markAttempted(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.attempted[path]; seen {
		return false
	}
	s.attempted[path] = struct{}{}
	return true
}

// Attempted reports how many files have been picked up so far.
func (s *InboxService) Attempted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempted)
}

// String names the service in supervisor logs.
func (s *InboxService) String() string {
	return "inbox-watcher"
}
