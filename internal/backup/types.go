// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

// Package backup keeps dated snapshots of the historical dataset.
//
// Snapshot policy:
//
//	One per day:  a second snapshot on the same UTC day replaces the first
//	Retention:    snapshots older than RetentionDays are purged after every write
//	Integrity:    each file carries a SHA-256 checksum verified on restore
//	Compression:  optional gzip
//
// Usage:
//
//	manager, err := backup.NewManager(&cfg.Backup)
//	snap, err := manager.Snapshot(ctx, storePath)
//
//	// Roll the store back
//	result, err := manager.Restore(ctx, snap.ID, storePath)
//
// Snapshot metadata is kept in metadata.json next to the snapshot files.
package backup

import (
	"errors"
	"time"
)

var (
	// ErrSnapshotNotFound is returned for unknown snapshot ids.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrChecksumMismatch is returned when a snapshot file no longer matches
	// the checksum recorded when it was written.
	ErrChecksumMismatch = errors.New("snapshot checksum mismatch")

	// ErrSourceMissing is returned when the file to snapshot does not exist.
	ErrSourceMissing = errors.New("snapshot source does not exist")
)

// Snapshot describes one immutable copy of the historical dataset.
type Snapshot struct {
	ID         string    `json:"id"`
	Day        string    `json:"day"` // UTC calendar day, YYYY-MM-DD
	CreatedAt  time.Time `json:"created_at"`
	FileName   string    `json:"file_name"`
	SourcePath string    `json:"source_path"`
	FileSize   int64     `json:"file_size"`
	Checksum   string    `json:"checksum"` // SHA-256 of the stored file
	Compressed bool      `json:"compressed"`
	Notes      string    `json:"notes,omitempty"`
}

// MetadataStore is the content of metadata.json.
type MetadataStore struct {
	Snapshots []*Snapshot `json:"snapshots"`
	LastPurge *time.Time  `json:"last_purge,omitempty"`
}

// RestoreResult describes a completed restore.
type RestoreResult struct {
	SnapshotID    string        `json:"snapshot_id"`
	Day           string        `json:"day"`
	TargetPath    string        `json:"target_path"`
	BytesRestored int64         `json:"bytes_restored"`
	Duration      time.Duration `json:"duration_ms"`
}
