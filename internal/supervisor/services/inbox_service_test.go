// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/chartpulse/internal/pipeline"
)

// fakeInboxRunner records calls. Paths in done report started=false.
type fakeInboxRunner struct {
	mu    sync.Mutex
	calls []string
	done  map[string]bool
	fail  map[string]error
}

func (f *fakeInboxRunner) RunIfNew(_ context.Context, path string) (*pipeline.RunContext, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, filepath.Base(path))
	if err := f.fail[filepath.Base(path)]; err != nil {
		return nil, true, err
	}
	if f.done[filepath.Base(path)] {
		return nil, false, nil
	}
	return &pipeline.RunContext{RunID: "run-" + filepath.Base(path)}, true, nil
}

func (f *fakeInboxRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func writeInboxFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("rank\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestInboxScan(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeInboxFiles(t, dir,
		"regional-global-weekly-2025-01-09.csv",
		"regional-global-weekly-2025-01-02.CSV",
		".partial.csv",
		"notes.txt",
	)
	if err := os.Mkdir(filepath.Join(dir, "nested.csv"), 0o755); err != nil {
		t.Fatal(err)
	}

	runner := &fakeInboxRunner{
		done: map[string]bool{"regional-global-weekly-2025-01-09.csv": true},
	}
	svc := NewInboxService(dir, time.Minute, runner)

	if err := svc.Scan(context.Background()); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	want := []string{
		"regional-global-weekly-2025-01-02.CSV",
		"regional-global-weekly-2025-01-09.csv",
	}
	if got := runner.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}

	// Second scan only picks up the new file.
	writeInboxFiles(t, dir, "regional-global-weekly-2025-01-16.csv")
	if err := svc.Scan(context.Background()); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	want = append(want, "regional-global-weekly-2025-01-16.csv")
	if got := runner.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if svc.Attempted() != 3 {
		t.Errorf("Attempted() = %d, want 3", svc.Attempted())
	}
}

func TestInboxScanFailedFileNotRetried(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeInboxFiles(t, dir, "bad.csv")
	runner := &fakeInboxRunner{fail: map[string]error{"bad.csv": errors.New("ingest stage: no date")}}
	svc := NewInboxService(dir, time.Minute, runner)

	for i := 0; i < 2; i++ {
		if err := svc.Scan(context.Background()); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
	}
	if got := runner.Calls(); len(got) != 1 {
		t.Errorf("calls = %v, want one attempt", got)
	}
}

func TestInboxScanMissingDir(t *testing.T) {
	t.Parallel()

	svc := NewInboxService(filepath.Join(t.TempDir(), "absent"), time.Minute, &fakeInboxRunner{})
	if err := svc.Scan(context.Background()); err != nil {
		t.Errorf("Scan() error = %v, want nil", err)
	}
}

func TestInboxScanCanceled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeInboxFiles(t, dir, "a.csv")
	runner := &fakeInboxRunner{}
	svc := NewInboxService(dir, time.Minute, runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Scan(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Scan() = %v, want context.Canceled", err)
	}
	if len(runner.Calls()) != 0 {
		t.Errorf("runner called after cancel: %v", runner.Calls())
	}
}

func TestInboxServe(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	runner := &fakeInboxRunner{}
	svc := NewInboxService(dir, 10*time.Millisecond, runner)
	if svc.String() != "inbox-watcher" {
		t.Errorf("String() = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	writeInboxFiles(t, dir, "late.csv")
	deadline := time.Now().Add(2 * time.Second)
	for len(runner.Calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if got := runner.Calls(); len(got) != 1 || got[0] != "late.csv" {
		t.Errorf("calls = %v, want [late.csv]", got)
	}
}

func TestNewInboxServiceDefaultInterval(t *testing.T) {
	t.Parallel()
	if svc := NewInboxService("x", 0, &fakeInboxRunner{}); svc.interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s", svc.interval)
	}
}
