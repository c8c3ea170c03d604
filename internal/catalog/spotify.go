// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/tomtom215/chartpulse/internal/config"
	"github.com/tomtom215/chartpulse/internal/logging"
	"github.com/tomtom215/chartpulse/internal/metrics"
	"github.com/tomtom215/chartpulse/internal/models"
)

// tokenSkew renews the access token this long before it expires.
const tokenSkew = 30 * time.Second

// SpotifyClient implements Client against the Spotify Web API.
//
// Authentication uses the refresh-token grant when a refresh token is
// configured and the client-credentials grant otherwise. Tokens are cached
// until shortly before expiry.
type SpotifyClient struct {
	http         *resty.Client
	authURL      string
	clientID     string
	clientSecret string
	refreshToken string
	market       string
	maxRetries   int
	baseDelay    time.Duration

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewSpotifyClient creates a catalog client from configuration.
func NewSpotifyClient(cfg *config.CatalogConfig) *SpotifyClient {
	return &SpotifyClient{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json"),
		authURL:      cfg.AuthURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		refreshToken: cfg.RefreshToken,
		market:       cfg.Market,
		maxRetries:   cfg.MaxRetries,
		baseDelay:    time.Second,
	}
}

// Spotify API response structures

type spotifyArtistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyTrack struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Explicit   bool               `json:"explicit"`
	Popularity int                `json:"popularity"`
	Artists    []spotifyArtistRef `json:"artists"`
	Album      struct {
		ReleaseDate string `json:"release_date"`
	} `json:"album"`
}

type spotifyArtist struct {
	ID        string   `json:"id"`
	Genres    []string `json:"genres"`
	Followers struct {
		Total int64 `json:"total"`
	} `json:"followers"`
	Popularity int `json:"popularity"`
}

type searchResponse struct {
	Tracks struct {
		Items []spotifyTrack `json:"items"`
	} `json:"tracks"`
}

type tracksResponse struct {
	Tracks []*spotifyTrack `json:"tracks"`
}

type artistsResponse struct {
	Artists []*spotifyArtist `json:"artists"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// SearchTrack finds the best match for a track name and its credited artists.
// The query uses the primary artist only, which is how chart credits and
// catalog credits most often agree.
func (c *SpotifyClient) SearchTrack(ctx context.Context, trackName, artistNames string) (SearchResult, error) {
	q := fmt.Sprintf("track:%s artist:%s", trackName, models.PrimaryArtist(artistNames))
	params := map[string]string{"q": q, "type": "track", "limit": "1"}
	if c.market != "" {
		params["market"] = c.market
	}

	var resp searchResponse
	if err := c.get(ctx, "search", "/v1/search", params, &resp); err != nil {
		return SearchResult{}, err
	}
	if len(resp.Tracks.Items) == 0 || resp.Tracks.Items[0].ID == "" {
		return SearchResult{}, fmt.Errorf("%w: %q by %q", ErrNotFound, trackName, artistNames)
	}

	hit := resp.Tracks.Items[0]
	result := SearchResult{TrackID: hit.ID}
	if len(hit.Artists) > 0 {
		result.ArtistID = hit.Artists[0].ID
	}
	return result, nil
}

// Tracks fetches up to MaxBatchSize tracks.
func (c *SpotifyClient) Tracks(ctx context.Context, ids []string) ([]models.TrackRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}
	params := map[string]string{"ids": strings.Join(ids, ",")}
	if c.market != "" {
		params["market"] = c.market
	}

	var resp tracksResponse
	if err := c.get(ctx, "tracks", "/v1/tracks", params, &resp); err != nil {
		return nil, err
	}

	out := make([]models.TrackRecord, 0, len(resp.Tracks))
	for _, t := range resp.Tracks {
		if t == nil || t.ID == "" {
			continue
		}
		rec := models.TrackRecord{
			TrackID:     t.ID,
			TrackName:   t.Name,
			Explicit:    t.Explicit,
			Popularity:  t.Popularity,
			ReleaseDate: models.ParseReleaseDate(t.Album.ReleaseDate),
		}
		for i, a := range t.Artists {
			if i == 0 {
				rec.ArtistID = a.ID
			}
			rec.ArtistNames = append(rec.ArtistNames, a.Name)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Artists fetches up to MaxBatchSize artists.
func (c *SpotifyClient) Artists(ctx context.Context, ids []string) ([]models.ArtistRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	var resp artistsResponse
	if err := c.get(ctx, "artists", "/v1/artists", map[string]string{"ids": strings.Join(ids, ",")}, &resp); err != nil {
		return nil, err
	}

	out := make([]models.ArtistRecord, 0, len(resp.Artists))
	for _, a := range resp.Artists {
		if a == nil || a.ID == "" {
			continue
		}
		out = append(out, models.ArtistRecord{
			ArtistID:   a.ID,
			Genres:     models.GenresFromList(a.Genres),
			Followers:  a.Followers.Total,
			Popularity: a.Popularity,
		})
	}
	return out, nil
}

// get executes an authenticated GET with automatic retry on HTTP 429.
//
// Backoff is baseDelay·2^attempt unless the response carries Retry-After.
// A 401 drops the cached token and is retried once.
func (c *SpotifyClient) get(ctx context.Context, endpoint, path string, params map[string]string, result interface{}) error {
	reauthed := false

	for attempt := 0; ; attempt++ {
		token, err := c.token(ctx)
		if err != nil {
			return err
		}

		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetQueryParams(params).
			Get(path)
		if err != nil {
			metrics.CatalogRequests.WithLabelValues(endpoint, "error").Inc()
			return fmt.Errorf("catalog %s request: %w", endpoint, err)
		}
		metrics.CatalogRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode())).Inc()

		switch resp.StatusCode() {
		case http.StatusOK:
			if err := json.Unmarshal(resp.Body(), result); err != nil {
				return fmt.Errorf("decode %s response: %w", endpoint, err)
			}
			return nil

		case http.StatusTooManyRequests:
			if attempt >= c.maxRetries {
				return fmt.Errorf("%w: %s after %d retries", ErrRateLimited, endpoint, attempt)
			}
			delay := retryAfter(resp.Header().Get("Retry-After"), c.baseDelay*time.Duration(1<<attempt))
			metrics.CatalogRetries.Inc()
			logging.Warn().
				Str("endpoint", endpoint).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Msg("Catalog rate limited, retrying")
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}

		case http.StatusUnauthorized:
			if reauthed {
				return fmt.Errorf("catalog %s: unauthorized", endpoint)
			}
			reauthed = true
			c.invalidateToken()

		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, endpoint)

		default:
			return fmt.Errorf("catalog %s: unexpected status %d", endpoint, resp.StatusCode())
		}
	}
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(header string, fallback time.Duration) time.Duration {
	if header == "" {
		return fallback
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

func (c *SpotifyClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	form := map[string]string{"grant_type": "client_credentials"}
	if c.refreshToken != "" {
		form = map[string]string{"grant_type": "refresh_token", "refresh_token": c.refreshToken}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.clientID, c.clientSecret).
		SetFormData(form).
		Post(c.authURL)
	if err != nil {
		return "", fmt.Errorf("catalog token request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("catalog token request: unexpected status %d", resp.StatusCode())
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body(), &tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("catalog token response has no access_token")
	}

	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= tokenSkew {
		ttl = time.Hour
	}
	c.accessToken = tr.AccessToken
	c.expiresAt = time.Now().Add(ttl - tokenSkew)
	return c.accessToken, nil
}

func (c *SpotifyClient) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}
