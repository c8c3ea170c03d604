// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/chartpulse/internal/config"
	"github.com/tomtom215/chartpulse/internal/models"
)

// fakeSpotify serves the subset of the Web API the client uses.
type fakeSpotify struct {
	tokenCalls  atomic.Int32
	apiCalls    atomic.Int32
	rateLimited atomic.Int32 // respond 429 this many times first
	expireOnce  atomic.Bool  // respond 401 once
	lastQuery   atomic.Value
}

func (f *fakeSpotify) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		if r.Form.Get("grant_type") == "" {
			t.Error("token request without grant_type")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})

	api := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.apiCalls.Add(1)
			f.lastQuery.Store(r.URL.RawQuery)
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if f.expireOnce.CompareAndSwap(true, false) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if f.rateLimited.Load() > 0 {
				f.rateLimited.Add(-1)
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}
	}

	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("q"), "Nothing") {
			api(`{"tracks":{"items":[]}}`)(w, r)
			return
		}
		api(`{"tracks":{"items":[{"id":"trk1","name":"Anti-Hero","artists":[{"id":"art1","name":"Taylor Swift"}]}]}}`)(w, r)
	})
	mux.HandleFunc("/v1/tracks", api(`{"tracks":[
		{"id":"trk1","name":"Anti-Hero","explicit":false,"popularity":88,
		 "artists":[{"id":"art1","name":"Taylor Swift"},{"id":"art2","name":"Guest"}],
		 "album":{"release_date":"2022-10"}},
		null]}`))
	mux.HandleFunc("/v1/artists", api(`{"artists":[
		{"id":"art1","genres":[],"followers":{"total":123},"popularity":99},
		null]}`))
	mux.HandleFunc("/v1/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return mux
}

func newTestSpotify(t *testing.T, f *fakeSpotify, maxRetries int) *SpotifyClient {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	c := NewSpotifyClient(&config.CatalogConfig{
		BaseURL:      srv.URL,
		AuthURL:      srv.URL + "/api/token",
		ClientID:     "id",
		ClientSecret: "secret",
		Timeout:      5 * time.Second,
		MaxRetries:   maxRetries,
	})
	c.baseDelay = time.Millisecond
	return c
}

func TestSpotifySearchTrack(t *testing.T) {
	t.Parallel()
	f := &fakeSpotify{}
	c := newTestSpotify(t, f, 2)

	res, err := c.SearchTrack(context.Background(), "Anti-Hero", "Taylor Swift, Guest")
	if err != nil {
		t.Fatalf("SearchTrack() error = %v", err)
	}
	if res.TrackID != "trk1" || res.ArtistID != "art1" {
		t.Errorf("SearchTrack() = %+v", res)
	}
	if q, _ := f.lastQuery.Load().(string); !strings.Contains(q, "type=track") {
		t.Errorf("search query = %q", q)
	}

	_, err = c.SearchTrack(context.Background(), "Nothing", "Nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("empty search: expected ErrNotFound, got %v", err)
	}

	if n := f.tokenCalls.Load(); n != 1 {
		t.Errorf("token fetched %d times, want 1 (cached)", n)
	}
}

func TestSpotifyTracksAndArtists(t *testing.T) {
	t.Parallel()
	c := newTestSpotify(t, &fakeSpotify{}, 2)
	ctx := context.Background()

	tracks, err := c.Tracks(ctx, []string{"trk1", "unknown"})
	if err != nil {
		t.Fatalf("Tracks() error = %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("null entries must be skipped, got %d tracks", len(tracks))
	}
	tr := tracks[0]
	if tr.ArtistID != "art1" || len(tr.ArtistNames) != 2 || tr.Popularity != 88 {
		t.Errorf("track = %+v", tr)
	}
	if want := time.Date(2022, 10, 1, 0, 0, 0, 0, time.UTC); !tr.ReleaseDate.Equal(want) {
		t.Errorf("month precision release date = %v, want %v", tr.ReleaseDate, want)
	}

	artists, err := c.Artists(ctx, []string{"art1", "unknown"})
	if err != nil {
		t.Fatalf("Artists() error = %v", err)
	}
	if len(artists) != 1 || !artists[0].Genres.IsUnknown() || artists[0].Followers != 123 {
		t.Errorf("artists = %+v", artists)
	}

	if _, err := c.Tracks(ctx, make([]string, MaxBatchSize+1)); !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("expected ErrBatchTooLarge, got %v", err)
	}
	if got, err := c.Artists(ctx, nil); err != nil || got != nil {
		t.Errorf("empty batch = %v, %v", got, err)
	}
}

func TestSpotifyRateLimitRetry(t *testing.T) {
	t.Parallel()

	t.Run("recovers within budget", func(t *testing.T) {
		t.Parallel()
		f := &fakeSpotify{}
		f.rateLimited.Store(2)
		c := newTestSpotify(t, f, 3)

		if _, err := c.Artists(context.Background(), []string{"art1"}); err != nil {
			t.Fatalf("expected recovery, got %v", err)
		}
		if n := f.apiCalls.Load(); n != 3 {
			t.Errorf("api calls = %d, want 3", n)
		}
	})

	t.Run("gives up after budget", func(t *testing.T) {
		t.Parallel()
		f := &fakeSpotify{}
		f.rateLimited.Store(10)
		c := newTestSpotify(t, f, 1)

		_, err := c.Artists(context.Background(), []string{"art1"})
		if !errors.Is(err, ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
		if n := f.apiCalls.Load(); n != 2 {
			t.Errorf("api calls = %d, want 2", n)
		}
	})
}

func TestSpotifyReauthenticatesOnce(t *testing.T) {
	t.Parallel()
	f := &fakeSpotify{}
	f.expireOnce.Store(true)
	c := newTestSpotify(t, f, 0)

	if _, err := c.Tracks(context.Background(), []string{"trk1"}); err != nil {
		t.Fatalf("Tracks() error = %v", err)
	}
	if n := f.tokenCalls.Load(); n != 2 {
		t.Errorf("token calls = %d, want 2", n)
	}
}

func TestSpotifyNotFound(t *testing.T) {
	t.Parallel()
	c := newTestSpotify(t, &fakeSpotify{}, 0)

	var out struct{}
	err := c.get(context.Background(), "gone", "/v1/gone", nil, &out)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", time.Second},
		{"3", 3 * time.Second},
		{"soon", time.Second},
		{"-1", time.Second},
	}
	for _, tt := range tests {
		if got := retryAfter(tt.header, time.Second); got != tt.want {
			t.Errorf("retryAfter(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestChunk(t *testing.T) {
	t.Parallel()

	ids := make([]string, 120)
	for i := range ids {
		ids[i] = "id"
	}
	batches := Chunk(ids, 50)
	if len(batches) != 3 || len(batches[2]) != 20 {
		t.Errorf("Chunk(120, 50) sizes = %d batches, last %d", len(batches), len(batches[len(batches)-1]))
	}
	if got := Chunk(ids, 500); len(got[0]) != MaxBatchSize {
		t.Errorf("oversized batch not clamped: %d", len(got[0]))
	}
	if Chunk(nil, 50) != nil {
		t.Error("Chunk(nil) should be nil")
	}
}

// mockClient is a scripted Client for the wrapper tests.
type mockClient struct {
	searchErr   error
	tracksErr   error
	searchCalls atomic.Int32
	trackCalls  atomic.Int32
	artistCalls atomic.Int32
	askedTracks [][]string
}

func (m *mockClient) SearchTrack(_ context.Context, _, _ string) (SearchResult, error) {
	m.searchCalls.Add(1)
	if m.searchErr != nil {
		return SearchResult{}, m.searchErr
	}
	return SearchResult{TrackID: "trk1", ArtistID: "art1"}, nil
}

func (m *mockClient) Tracks(_ context.Context, ids []string) ([]models.TrackRecord, error) {
	m.trackCalls.Add(1)
	m.askedTracks = append(m.askedTracks, append([]string(nil), ids...))
	if m.tracksErr != nil {
		return nil, m.tracksErr
	}
	out := make([]models.TrackRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.TrackRecord{TrackID: id, ArtistID: "a-" + id})
	}
	return out, nil
}

func (m *mockClient) Artists(_ context.Context, ids []string) ([]models.ArtistRecord, error) {
	m.artistCalls.Add(1)
	out := make([]models.ArtistRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.ArtistRecord{ArtistID: id, Genres: models.NewGenreSet("pop")})
	}
	return out, nil
}
