// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/chartpulse/internal/logging"
)

// DefaultLockTTL is the age after which a leftover lock file is considered
// abandoned by a crashed writer.
const DefaultLockTTL = time.Hour

type lockOwner struct {
	PID      int       `json:"pid"`
	Acquired time.Time `json:"acquired"`
}

// acquireLock creates path exclusively. A lock older than ttl is removed and
// the acquisition retried once.
func acquireLock(path string, ttl time.Duration) (release func(), err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // path derived from store path
		if err == nil {
			owner, _ := json.Marshal(lockOwner{PID: os.Getpid(), Acquired: time.Now().UTC()}) //nolint:errcheck // plain struct
			_, _ = f.Write(owner)                                                              //nolint:errcheck // content is informational
			closeQuietly(f)
			return func() {
				if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
					logging.Warn().Err(err).Str("lock", path).Msg("Failed to remove store lock")
				}
			}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create lock %s: %w", path, err)
		}

		info, statErr := os.Stat(path)
		if statErr != nil {
			// Released between the open and the stat.
			continue
		}
		if age := time.Since(info.ModTime()); ttl > 0 && age >= ttl {
			logging.Warn().Str("lock", path).Dur("age", age).Msg("Removing stale store lock")
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to remove stale lock: %w", err)
			}
			continue
		}
		break
	}
	return nil, fmt.Errorf("%w: %s", ErrStoreLocked, path)
}
