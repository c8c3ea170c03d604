// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/chartpulse/internal/config"
	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/metrics"
)

// Generator writes report text from aggregate statistics.
type Generator interface {
	Generate(ctx context.Context, stats Stats) (string, error)
}

// ErrEmptyResponse is returned when the generator answers without text.
var ErrEmptyResponse = errors.New("empty response from generator")

// GeminiGenerator implements Generator with the Gemini generateContent API.
type GeminiGenerator struct {
	http  *resty.Client
	model string
}

// NewGeminiGenerator creates a generator. The API key travels in the
// x-goog-api-key header.
func NewGeminiGenerator(cfg *config.ReportConfig) *GeminiGenerator {
	return &GeminiGenerator{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("x-goog-api-key", cfg.APIKey),
		model: cfg.Model,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, stats Stats) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: Prompt(stats)}}}},
	})
	if err != nil {
		return "", err
	}

	resp, err := g.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(fmt.Sprintf("/v1beta/models/%s:generateContent", g.model))
	if err != nil {
		return "", fmt.Errorf("report request: %w", err)
	}

	var gr geminiResponse
	if err := json.Unmarshal(resp.Body(), &gr); err != nil && resp.StatusCode() == http.StatusOK {
		return "", fmt.Errorf("decode report response: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		if gr.Error != nil && gr.Error.Message != "" {
			return "", fmt.Errorf("report service: %d %s", resp.StatusCode(), gr.Error.Message)
		}
		return "", fmt.Errorf("report service: unexpected status %d", resp.StatusCode())
	}

	var b strings.Builder
	for _, c := range gr.Candidates {
		for _, p := range c.Content.Parts {
			b.WriteString(p.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Prompt renders the instruction sent to the generator.
func Prompt(s Stats) string {
	genres := "unknown"
	if len(s.TopGenres) > 0 {
		genres = strings.Join(s.TopGenres, ", ")
	}
	return fmt.Sprintf(`You are a professional music data analyst covering streaming chart trends.
Analyse the chart week of %s based on the following data:

Top genres: %s
Top artist: %s, song: '%s'
Rising artists (probability >= %.0f%%): %d
Data basis: %d tracks

Write a short, concise report with clear bullet points, phrased like a music industry analyst.`,
		s.Week.Format("2006-01-02"), genres, s.TopArtist, s.TopTrack, s.Threshold*100, s.RisingCount, s.Rows)
}

// BreakerGenerator wraps a Generator with a circuit breaker so a failing
// service is skipped for a while instead of being called on every run.
type BreakerGenerator struct {
	gen  Generator
	cb   *gobreaker.CircuitBreaker[string]
	name string
}

// NewBreakerGenerator opens the breaker after three consecutive failures
// and probes again after timeout.
func NewBreakerGenerator(gen Generator, timeout time.Duration) *BreakerGenerator {
	name := "report-api"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("[CIRCUIT BREAKER] State transition")
			var v float64
			switch to {
			case gobreaker.StateHalfOpen:
				v = 1
			case gobreaker.StateOpen:
				v = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(v)
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &BreakerGenerator{gen: gen, cb: cb, name: name}
}

// Generate implements Generator.
func (b *BreakerGenerator) Generate(ctx context.Context, stats Stats) (string, error) {
	text, err := b.cb.Execute(func() (string, error) {
		return b.gen.Generate(ctx, stats)
	})
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}
	return text, err
}

// State returns the breaker state.
func (b *BreakerGenerator) State() gobreaker.State {
	return b.cb.State()
}
