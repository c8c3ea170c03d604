// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/chartpulse/internal/cache"
	"github.com/tomtom215/chartpulse/internal/config"
)

func breakerConfig() *config.CatalogConfig {
	return &config.CatalogConfig{
		BreakerMaxRequests:  1,
		BreakerInterval:     time.Minute,
		BreakerTimeout:      time.Minute,
		BreakerFailureRatio: 0.5,
		BreakerMinRequests:  2,
	}
}

func TestCircuitBreakerOpensOnFailures(t *testing.T) {
	m := &mockClient{tracksErr: errors.New("connection refused")}
	cbc := NewCircuitBreakerClient(m, breakerConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cbc.Tracks(ctx, []string{"x"}); err == nil {
			t.Fatal("expected failure")
		}
	}
	if cbc.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", cbc.State())
	}

	_, err := cbc.Tracks(ctx, []string{"x"})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if n := m.trackCalls.Load(); n != 2 {
		t.Errorf("open breaker still called the client: %d calls", n)
	}
}

func TestCircuitBreakerIgnoresNotFound(t *testing.T) {
	m := &mockClient{searchErr: fmt.Errorf("%w: no match", ErrNotFound)}
	cbc := NewCircuitBreakerClient(m, breakerConfig())

	for i := 0; i < 5; i++ {
		_, err := cbc.SearchTrack(context.Background(), "t", "a")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if cbc.State() != gobreaker.StateClosed {
		t.Errorf("not-found answers tripped the breaker: %v", cbc.State())
	}
}

func TestCircuitBreakerPassesResults(t *testing.T) {
	cbc := NewCircuitBreakerClient(&mockClient{}, breakerConfig())

	artists, err := cbc.Artists(context.Background(), []string{"a1", "a2"})
	if err != nil || len(artists) != 2 {
		t.Fatalf("Artists() = %v, %v", artists, err)
	}
	res, err := cbc.SearchTrack(context.Background(), "t", "a")
	if err != nil || res.TrackID != "trk1" {
		t.Fatalf("SearchTrack() = %+v, %v", res, err)
	}
}

func TestCachedClient(t *testing.T) {
	t.Parallel()

	store, err := cache.OpenInMemory(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	m := &mockClient{}
	c := NewCachedClient(m, store)
	ctx := context.Background()

	if _, err := c.Tracks(ctx, []string{"t1", "t2"}); err != nil {
		t.Fatal(err)
	}
	got, err := c.Tracks(ctx, []string{"t2", "t3"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d tracks, want 2", len(got))
	}
	if last := m.askedTracks[len(m.askedTracks)-1]; len(last) != 1 || last[0] != "t3" {
		t.Errorf("second call should only fetch the miss, asked %v", last)
	}

	if _, err := c.Artists(ctx, []string{"a1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Artists(ctx, []string{"a1"}); err != nil {
		t.Fatal(err)
	}
	if n := m.artistCalls.Load(); n != 1 {
		t.Errorf("artist lookups = %d, want 1", n)
	}

	for i := 0; i < 2; i++ {
		if _, err := c.SearchTrack(ctx, "Anti-Hero", "Taylor Swift"); err != nil {
			t.Fatal(err)
		}
	}
	if n := m.searchCalls.Load(); n != 1 {
		t.Errorf("search calls = %d, want 1", n)
	}
}

func TestCachedClientRemembersMisses(t *testing.T) {
	t.Parallel()

	store, err := cache.OpenInMemory(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	m := &mockClient{searchErr: ErrNotFound}
	c := NewCachedClient(m, store)

	for i := 0; i < 3; i++ {
		if _, err := c.SearchTrack(context.Background(), "Ghost", "Nobody"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if n := m.searchCalls.Load(); n != 1 {
		t.Errorf("negative result not cached: %d calls", n)
	}
}
