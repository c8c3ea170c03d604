// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package report

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/chartpulse/internal/config"
	"github.com/tomtom215/chartpulse/internal/models"
)

var (
	week1 = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	week2 = time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	week3 = time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)
)

func row(id, artist, track string, week time.Time, prob float64, future bool, genres ...string) models.FeatureRow {
	r := models.FeatureRow{DS: week, Probability: prob, IsFuture: future}
	r.TrackID = id
	r.ArtistNames = artist
	r.TrackName = track
	r.ChartWeek = week
	r.Genres = models.NewGenreSet(genres...)
	return r
}

func testFrame() models.FeatureFrame {
	return models.FeatureFrame{
		row("a", "Ann", "One", week1, 0.99, false, "pop"),
		row("a", "Ann", "One", week2, 0.40, false, "pop"),
		row("b", "Bob", "Two", week2, 0.95, false, "pop", "rock"),
		row("c", "Bob", "Two", week2, 0.70, false, "rock"),
		row("d", "Cat", "Three", week2, 0.91, false),
		row("a", "Ann", "One", week3, 0.20, true, "pop"),
		row("b", "Bob", "Two", week3, 0.80, true, "pop", "rock"),
	}
}

func TestTopRising(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		scope Scope
		n     int
		want  []string
	}{
		{"current week deduped", ScopeCurrent, 10, []string{"b", "d", "a"}},
		{"limited", ScopeCurrent, 2, []string{"b", "d"}},
		{"first future week", ScopeFuture, 10, []string{"b", "a"}},
		{"zero", ScopeCurrent, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := TopRising(testFrame(), tt.scope, tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d rows, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].TrackID != tt.want[i] {
					t.Errorf("row %d = %s, want %s", i, got[i].TrackID, tt.want[i])
				}
			}
		})
	}

	hist, _ := testFrame().Split()
	if got := TopRising(hist, ScopeFuture, 10); got != nil {
		t.Errorf("frame without future rows: got %d rows", len(got))
	}
}

func TestParseScope(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Scope{"": ScopeCurrent, "current": ScopeCurrent, "future": ScopeFuture} {
		got, err := ParseScope(in)
		if err != nil || got != want {
			t.Errorf("ParseScope(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseScope("past"); err == nil {
		t.Error("expected an error for an unknown scope")
	}
}

func TestBuildStats(t *testing.T) {
	t.Parallel()

	frame := testFrame()
	top := TopRising(frame, ScopeCurrent, 10)
	s, err := BuildStats(frame, top, 0.9)
	if err != nil {
		t.Fatal(err)
	}

	if s.Rows != 7 || s.RisingCount != 3 {
		t.Errorf("rows=%d rising=%d, want 7 and 3", s.Rows, s.RisingCount)
	}
	if s.TopArtist != "Bob" || s.TopTrack != "Two" || !s.Week.Equal(week2) {
		t.Errorf("top = %s / %s / %s", s.TopArtist, s.TopTrack, s.Week)
	}
	want := []string{"pop", "rock", "unknown"}
	if strings.Join(s.TopGenres, ",") != strings.Join(want, ",") {
		t.Errorf("top genres = %v, want %v", s.TopGenres, want)
	}

	if _, err := BuildStats(nil, top, 0.9); !errors.Is(err, ErrNoData) {
		t.Errorf("empty frame: %v", err)
	}
	if _, err := BuildStats(frame, nil, 0.9); !errors.Is(err, ErrNoTopTracks) {
		t.Errorf("empty top list: %v", err)
	}
}

func TestTopGenresLimit(t *testing.T) {
	t.Parallel()

	var frame models.FeatureFrame
	for i, g := range []string{"a", "b", "c", "d", "e", "f", "f"} {
		frame = append(frame, row(string(rune('a'+i)), "x", "y", week1, 0, false, g))
	}
	got := topGenres(frame, DefaultTopGenres)
	if strings.Join(got, ",") != "f,a,b,c,d" {
		t.Errorf("top genres = %v", got)
	}
}

type stubGenerator struct {
	text  string
	err   error
	calls atomic.Int32
}

func (g *stubGenerator) Generate(context.Context, Stats) (string, error) {
	g.calls.Add(1)
	return g.text, g.err
}

func TestCollaborator(t *testing.T) {
	t.Parallel()

	frame := testFrame()
	top := TopRising(frame, ScopeCurrent, 10)

	tests := []struct {
		name      string
		gen       *stubGenerator
		frame     models.FeatureFrame
		top       models.FeatureFrame
		want      string
		wantCalls int32
	}{
		{"text", &stubGenerator{text: "all good"}, frame, top, "all good", 1},
		{"error", &stubGenerator{err: errors.New("quota exceeded")}, frame, top, UnavailablePrefix + "quota exceeded", 1},
		{"empty text", &stubGenerator{}, frame, top, UnavailablePrefix + ErrEmptyResponse.Error(), 1},
		{"empty frame", &stubGenerator{text: "x"}, nil, top, UnavailablePrefix + ErrNoData.Error(), 0},
		{"empty top list", &stubGenerator{text: "x"}, frame, nil, UnavailablePrefix + ErrNoTopTracks.Error(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NewCollaborator(tt.gen, 0.9).Report(context.Background(), tt.frame, tt.top)
			if got != tt.want {
				t.Errorf("Report() = %q, want %q", got, tt.want)
			}
			if tt.gen.calls.Load() != tt.wantCalls {
				t.Errorf("generator called %d times, want %d", tt.gen.calls.Load(), tt.wantCalls)
			}
		})
	}

	if got := NewCollaborator(nil, 0.9).Report(context.Background(), frame, top); got != Unavailable(ErrNoGenerator) {
		t.Errorf("nil generator: %q", got)
	}
}

func TestGeminiGenerator(t *testing.T) {
	t.Parallel()

	var gotPath, gotKey, gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		body, _ := io.ReadAll(r.Body)
		var req geminiRequest
		if err := json.Unmarshal(body, &req); err == nil && len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
			gotPrompt = req.Contents[0].Parts[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  Pop leads "},{"text":"this week."}]}}]}`))
	}))
	defer srv.Close()

	gen := NewGeminiGenerator(&config.ReportConfig{BaseURL: srv.URL, APIKey: "k123", Model: "gemini-1.5-flash", Timeout: 5 * time.Second})
	stats := Stats{Week: week2, TopGenres: []string{"pop", "rock"}, TopArtist: "Bob", TopTrack: "Two", RisingCount: 3, Threshold: 0.9, Rows: 7}

	text, err := gen.Generate(context.Background(), stats)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "Pop leads this week." {
		t.Errorf("text = %q", text)
	}
	if gotPath != "/v1beta/models/gemini-1.5-flash:generateContent" {
		t.Errorf("path = %s", gotPath)
	}
	if gotKey != "k123" {
		t.Errorf("api key header = %q", gotKey)
	}
	for _, want := range []string{"pop, rock", "Bob", "'Two'", ">= 90%): 3", "7 tracks", "2025-01-09"} {
		if !strings.Contains(gotPrompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, gotPrompt)
		}
	}
}

func TestGeminiGeneratorErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"api error", http.StatusForbidden, `{"error":{"code":403,"message":"API key not valid"}}`, "API key not valid"},
		{"bad gateway", http.StatusBadGateway, `<html>`, "unexpected status 502"},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, ErrEmptyResponse.Error()},
		{"garbage", http.StatusOK, `not json`, "decode report response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			gen := NewGeminiGenerator(&config.ReportConfig{BaseURL: srv.URL, Model: "m", Timeout: 5 * time.Second})
			_, err := gen.Generate(context.Background(), Stats{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestBreakerGeneratorOpens(t *testing.T) {
	t.Parallel()

	stub := &stubGenerator{err: errors.New("unavailable")}
	gen := NewBreakerGenerator(stub, time.Hour)

	for i := 0; i < 3; i++ {
		if _, err := gen.Generate(context.Background(), Stats{}); err == nil {
			t.Fatal("expected the stub error")
		}
	}
	if gen.State() != gobreaker.StateOpen {
		t.Fatalf("state = %s, want open", gen.State())
	}
	if _, err := gen.Generate(context.Background(), Stats{}); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("open breaker: %v", err)
	}
	if stub.calls.Load() != 3 {
		t.Errorf("generator called %d times, want 3", stub.calls.Load())
	}
}
