// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/chartpulse/internal/events"
)

type fakeNATSServer struct {
	running  atomic.Bool
	shutdown atomic.Int32
}

func (f *fakeNATSServer) ClientURL() string { return "nats://127.0.0.1:4222" }
func (f *fakeNATSServer) IsRunning() bool   { return f.running.Load() }
func (f *fakeNATSServer) Shutdown(context.Context) error {
	f.shutdown.Add(1)
	f.running.Store(false)
	return nil
}

func TestNATSServerServiceShutdown(t *testing.T) {
	t.Parallel()

	srv := &fakeNATSServer{}
	srv.running.Store(true)
	svc := NewNATSServerService(func() (NATSServer, error) { return srv, nil }, 10*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if srv.shutdown.Load() != 1 {
		t.Errorf("Shutdown calls = %d, want 1", srv.shutdown.Load())
	}
}

func TestNATSServerServiceDetectsStop(t *testing.T) {
	t.Parallel()

	srv := &fakeNATSServer{}
	svc := NewNATSServerService(func() (NATSServer, error) { return srv, nil }, 10*time.Millisecond, time.Second)

	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("Serve() = nil, want error for stopped server")
	}
}

func TestNATSServerServiceStartError(t *testing.T) {
	t.Parallel()

	startErr := errors.New("port in use")
	svc := NewNATSServerService(func() (NATSServer, error) { return nil, startErr }, 0, 0)
	if err := svc.Serve(context.Background()); !errors.Is(err, startErr) {
		t.Errorf("Serve() = %v, want %v", err, startErr)
	}
	if svc.String() != "nats-server" {
		t.Errorf("String() = %q", svc.String())
	}
}

func TestNATSServerServiceEmbedded(t *testing.T) {
	t.Parallel()

	svc := NewNATSServerService(func() (NATSServer, error) {
		srv, err := events.NewEmbeddedServer("127.0.0.1", -1)
		if err != nil {
			return nil, err
		}
		return srv, nil
	}, 20*time.Millisecond, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() = %v, want context.DeadlineExceeded", err)
	}
}
