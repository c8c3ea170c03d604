// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/chartpulse/internal/config"
)

// testEnv holds a store file and a manager with a controllable clock.
type testEnv struct {
	storePath string
	manager   *Manager
	now       time.Time
}

func newTestEnv(t *testing.T, retentionDays int, compress bool) *testEnv {
	t.Helper()
	dir := t.TempDir()

	env := &testEnv{
		storePath: filepath.Join(dir, "hist_data_updated.csv"),
		now:       time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	m, err := NewManager(&config.BackupConfig{
		Dir:           filepath.Join(dir, "backups"),
		RetentionDays: retentionDays,
		Compress:      compress,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	m.SetClock(func() time.Time { return env.now })
	env.manager = m
	return env
}

func (e *testEnv) writeStore(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(e.storePath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestSnapshotOnePerDay(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 30, false)
	ctx := context.Background()

	env.writeStore(t, "v1")
	first, err := env.manager.Snapshot(ctx, env.storePath, "")
	if err != nil {
		t.Fatal(err)
	}

	env.now = env.now.Add(3 * time.Hour)
	env.writeStore(t, "v2")
	second, err := env.manager.Snapshot(ctx, env.storePath, "")
	if err != nil {
		t.Fatal(err)
	}

	snaps := env.manager.List()
	if len(snaps) != 1 || snaps[0].ID != second.ID {
		t.Fatalf("same-day snapshot must replace the first, got %d snapshots", len(snaps))
	}
	if _, err := os.Stat(filepath.Join(env.manager.Dir(), first.FileName)); !errors.Is(err, os.ErrNotExist) {
		t.Error("replaced snapshot file still on disk")
	}
}

func TestSnapshotRetention(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		retention int
		days      int
		want      int
	}{
		{"five days within horizon", 30, 5, 5},
		{"one day", 30, 1, 1},
		{"horizon shorter than run", 3, 8, 4}, // today plus the three previous days
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, tt.retention, false)
			ctx := context.Background()

			for day := 0; day < tt.days; day++ {
				env.writeStore(t, "day")
				// two runs per day, only one snapshot may survive
				for run := 0; run < 2; run++ {
					if _, err := env.manager.Snapshot(ctx, env.storePath, ""); err != nil {
						t.Fatal(err)
					}
					env.now = env.now.Add(time.Hour)
				}
				env.now = env.now.Add(22 * time.Hour)
			}

			snaps := env.manager.List()
			if len(snaps) != tt.want {
				t.Fatalf("got %d snapshots, want %d", len(snaps), tt.want)
			}
			days := make(map[string]bool)
			cutoff := env.now.AddDate(0, 0, -tt.retention-1)
			for _, s := range snaps {
				if days[s.Day] {
					t.Errorf("two snapshots for %s", s.Day)
				}
				days[s.Day] = true
				if s.CreatedAt.Before(cutoff) {
					t.Errorf("snapshot %s is older than the horizon", s.Day)
				}
			}

			entries, err := os.ReadDir(env.manager.Dir())
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != tt.want+1 { // plus metadata.json
				t.Errorf("backup dir holds %d files, want %d", len(entries), tt.want+1)
			}
		})
	}
}

func TestRestore(t *testing.T) {
	t.Parallel()

	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "gzip"
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, 30, compress)
			ctx := context.Background()

			env.writeStore(t, "chart_week,track_id\n2025-01-02,a\n")
			snap, err := env.manager.Snapshot(ctx, env.storePath, "before")
			if err != nil {
				t.Fatal(err)
			}
			env.writeStore(t, "corrupted")

			res, err := env.manager.Restore(ctx, snap.ID, env.storePath)
			if err != nil {
				t.Fatalf("Restore() error = %v", err)
			}
			data, _ := os.ReadFile(env.storePath)
			if string(data) != "chart_week,track_id\n2025-01-02,a\n" {
				t.Errorf("restored content = %q", data)
			}
			if res.BytesRestored != int64(len(data)) {
				t.Errorf("BytesRestored = %d", res.BytesRestored)
			}
		})
	}
}

func TestRestoreErrors(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 30, false)
	ctx := context.Background()

	if _, err := env.manager.Restore(ctx, "nope", env.storePath); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}

	env.writeStore(t, "original")
	snap, err := env.manager.Snapshot(ctx, env.storePath, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(env.manager.Dir(), snap.FileName), []byte("tampered"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := env.manager.Restore(ctx, snap.ID, env.storePath); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestSnapshotMissingSource(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 30, false)

	_, err := env.manager.Snapshot(context.Background(), env.storePath, "")
	if !errors.Is(err, ErrSourceMissing) {
		t.Errorf("expected ErrSourceMissing, got %v", err)
	}
}

func TestMetadataPersists(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 30, false)

	env.writeStore(t, "x")
	snap, err := env.manager.Snapshot(context.Background(), env.storePath, "note")
	if err != nil {
		t.Fatal(err)
	}

	reopened, err := NewManager(&config.BackupConfig{Dir: env.manager.Dir(), RetentionDays: 30})
	if err != nil {
		t.Fatal(err)
	}
	got, err := reopened.Get(snap.ID)
	if err != nil {
		t.Fatalf("snapshot lost after reopen: %v", err)
	}
	if got.Notes != "note" || got.Checksum != snap.Checksum {
		t.Errorf("metadata = %+v", got)
	}
}
