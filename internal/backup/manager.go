// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

/*
manager.go - Snapshot Manager

Manager Responsibilities:
  - Writing dated snapshots, one per UTC day
  - Metadata storage and retrieval (metadata.json)
  - Retention purge after every snapshot
  - Checksum-verified restore

Thread Safety:
All metadata operations are protected by sync.RWMutex. Writers of the
dataset itself (the merge engine) serialize Snapshot and Restore calls under
their own lock.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/chartpulse/internal/chartfile"
	"github.com/tomtom215/chartpulse/internal/config"
	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/metrics"
)

const dayLayout = "2006-01-02"

// Manager writes, lists, purges and restores snapshots.
type Manager struct {
	dir           string
	retentionDays int
	compress      bool

	metadataFile string
	metadata     *MetadataStore
	metadataMu   sync.RWMutex

	now func() time.Time
}

// NewManager creates the snapshot directory and loads existing metadata.
func NewManager(cfg *config.BackupConfig) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backup configuration is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory %s: %w", cfg.Dir, err)
	}

	m := &Manager{
		dir:           cfg.Dir,
		retentionDays: cfg.RetentionDays,
		compress:      cfg.Compress,
		metadataFile:  filepath.Join(cfg.Dir, "metadata.json"),
		now:           time.Now,
	}

	if err := m.loadMetadata(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Warn().Err(err).Str("file", m.metadataFile).Msg("Snapshot metadata unreadable, starting empty")
		}
		m.metadata = &MetadataStore{Snapshots: make([]*Snapshot, 0)}
	}
	return m, nil
}

// SetClock replaces the time source used to date snapshots.
func (m *Manager) SetClock(now func() time.Time) {
	m.metadataMu.Lock()
	m.now = now
	m.metadataMu.Unlock()
}

// Dir returns the snapshot directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Snapshot copies sourcePath into a new dated snapshot. An existing snapshot
// of the same UTC day is replaced, then snapshots past retention are purged.
func (m *Manager) Snapshot(ctx context.Context, sourcePath, notes string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(sourcePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceMissing, sourcePath)
		}
		return nil, fmt.Errorf("stat snapshot source: %w", err)
	}

	m.metadataMu.Lock()
	defer m.metadataMu.Unlock()

	now := m.now().UTC()
	snap := &Snapshot{
		ID:         uuid.New().String(),
		Day:        now.Format(dayLayout),
		CreatedAt:  now,
		SourcePath: sourcePath,
		Compressed: m.compress,
		Notes:      notes,
	}
	snap.FileName = snapshotFileName(sourcePath, now, snap.ID, m.compress)

	size, checksum, err := m.copyIn(sourcePath, filepath.Join(m.dir, snap.FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	snap.FileSize = size
	snap.Checksum = checksum

	replaced := m.removeDayLocked(snap.Day)
	m.metadata.Snapshots = append(m.metadata.Snapshots, snap)
	purged := m.purgeLocked(now)

	if err := m.saveMetadataLocked(); err != nil {
		return nil, fmt.Errorf("failed to save snapshot metadata: %w", err)
	}

	metrics.Snapshots.WithLabelValues("created").Inc()
	metrics.Snapshots.WithLabelValues("replaced").Add(float64(replaced))
	metrics.Snapshots.WithLabelValues("purged").Add(float64(purged))
	logging.Info().
		Str("snapshot_id", snap.ID).
		Str("day", snap.Day).
		Int64("bytes", snap.FileSize).
		Int("replaced", replaced).
		Int("purged", purged).
		Msg("Snapshot written")
	return snap, nil
}

// List returns snapshots newest first.
func (m *Manager) List() []*Snapshot {
	m.metadataMu.RLock()
	defer m.metadataMu.RUnlock()

	out := make([]*Snapshot, 0, len(m.metadata.Snapshots))
	for _, s := range m.metadata.Snapshots {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Get returns one snapshot by id.
func (m *Manager) Get(id string) (*Snapshot, error) {
	m.metadataMu.RLock()
	defer m.metadataMu.RUnlock()

	s, _ := m.findLocked(id)
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	cp := *s
	return &cp, nil
}

// Purge deletes snapshots past retention and returns how many were removed.
func (m *Manager) Purge() (int, error) {
	m.metadataMu.Lock()
	defer m.metadataMu.Unlock()

	purged := m.purgeLocked(m.now().UTC())
	if purged == 0 {
		return 0, nil
	}
	metrics.Snapshots.WithLabelValues("purged").Add(float64(purged))
	return purged, m.saveMetadataLocked()
}

// Restore verifies a snapshot's checksum and atomically writes its content
// over targetPath.
func (m *Manager) Restore(ctx context.Context, id, targetPath string) (*RestoreResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	snap, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(m.dir, snap.FileName)

	sum, err := fileChecksum(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", id, err)
	}
	if sum != snap.Checksum {
		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, id)
	}

	var written int64
	err = chartfile.WriteFileAtomic(targetPath, func(w io.Writer) error {
		f, err := os.Open(path) //nolint:gosec // path is inside the snapshot directory
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck // read-only

		var r io.Reader = f
		if snap.Compressed {
			gz, err := gzip.NewReader(f)
			if err != nil {
				return fmt.Errorf("open gzip snapshot: %w", err)
			}
			defer gz.Close() //nolint:errcheck // read-only
			r = gz
		}
		written, err = io.Copy(w, r)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to restore snapshot %s: %w", id, err)
	}

	metrics.Snapshots.WithLabelValues("restored").Inc()
	logging.Info().Str("snapshot_id", id).Str("target", targetPath).Int64("bytes", written).Msg("Snapshot restored")
	return &RestoreResult{
		SnapshotID:    id,
		Day:           snap.Day,
		TargetPath:    targetPath,
		BytesRestored: written,
		Duration:      time.Since(start),
	}, nil
}

// copyIn writes sourcePath to dest, gzip-compressed when configured, and
// returns the stored size and checksum.
func (m *Manager) copyIn(sourcePath, dest string) (int64, string, error) {
	src, err := os.Open(sourcePath) //nolint:gosec // configured store path
	if err != nil {
		return 0, "", err
	}
	defer src.Close() //nolint:errcheck // read-only

	hasher := sha256.New()
	counter := &countingWriter{}
	err = chartfile.WriteFileAtomic(dest, func(w io.Writer) error {
		out := io.MultiWriter(w, hasher, counter)
		if !m.compress {
			_, err := io.Copy(out, src)
			return err
		}
		gz := gzip.NewWriter(out)
		if _, err := io.Copy(gz, src); err != nil {
			return err
		}
		return gz.Close()
	})
	if err != nil {
		return 0, "", err
	}
	return counter.n, hex.EncodeToString(hasher.Sum(nil)), nil
}

// removeDayLocked deletes every snapshot of day and returns how many.
func (m *Manager) removeDayLocked(day string) int {
	return m.removeWhereLocked(func(s *Snapshot) bool { return s.Day == day })
}

// purgeLocked deletes snapshots created before now minus the retention
// horizon.
func (m *Manager) purgeLocked(now time.Time) int {
	if m.retentionDays <= 0 {
		return 0
	}
	cutoff := now.AddDate(0, 0, -m.retentionDays)
	n := m.removeWhereLocked(func(s *Snapshot) bool { return s.CreatedAt.Before(cutoff) })
	m.metadata.LastPurge = &now
	return n
}

func (m *Manager) removeWhereLocked(match func(*Snapshot) bool) int {
	kept := m.metadata.Snapshots[:0]
	removed := 0
	for _, s := range m.metadata.Snapshots {
		if !match(s) {
			kept = append(kept, s)
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, s.FileName)); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn().Err(err).Str("snapshot_id", s.ID).Msg("Failed to delete snapshot file")
		}
		removed++
	}
	m.metadata.Snapshots = kept
	return removed
}

func (m *Manager) findLocked(id string) (*Snapshot, int) {
	for i, s := range m.metadata.Snapshots {
		if s.ID == id {
			return s, i
		}
	}
	return nil, -1
}

// loadMetadata loads snapshot metadata from disk
func (m *Manager) loadMetadata() error {
	m.metadataMu.Lock()
	defer m.metadataMu.Unlock()

	data, err := os.ReadFile(m.metadataFile)
	if err != nil {
		return err
	}

	var metadata MetadataStore
	if err := json.Unmarshal(data, &metadata); err != nil {
		return err
	}
	if metadata.Snapshots == nil {
		metadata.Snapshots = make([]*Snapshot, 0)
	}
	m.metadata = &metadata
	return nil
}

// saveMetadataLocked saves snapshot metadata to disk (must be called with lock held)
func (m *Manager) saveMetadataLocked() error {
	data, err := json.MarshalIndent(m.metadata, "", "  ")
	if err != nil {
		return err
	}
	return chartfile.WriteFileAtomic(m.metadataFile, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// snapshotFileName is <base>_<day>_<hhmmss>_<id8><ext>[.gz].
func snapshotFileName(sourcePath string, at time.Time, id string, compress bool) string {
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	name := fmt.Sprintf("%s_%s_%s%s", strings.TrimSuffix(base, ext), at.Format("2006-01-02_150405"), id[:8], ext)
	if compress {
		name += ".gz"
	}
	return name
}

// fileChecksum calculates the SHA-256 checksum of a file
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path is inside the snapshot directory
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck // read-only

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
