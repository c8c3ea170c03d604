// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

// Package config loads Chartpulse configuration with Koanf v2.
//
// Sources are layered, highest priority last:
//  1. Defaults: built-in values from defaultConfig()
//  2. Config file: optional YAML (CONFIG_PATH or DefaultConfigPaths)
//  3. Dotenv: optional .env file (DOTENV_PATH, default ".env"), loaded into
//     the process environment without overriding variables already set
//  4. Environment variables, mapped explicitly in envTransformFunc
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Paths     PathsConfig     `koanf:"paths"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Cache     CacheConfig     `koanf:"cache"`
	History   HistoryConfig   `koanf:"history"`
	Backup    BackupConfig    `koanf:"backup"`
	Features  FeaturesConfig  `koanf:"features"`
	Predict   PredictConfig   `koanf:"predict"`
	Report    ReportConfig    `koanf:"report"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Events    EventsConfig    `koanf:"events"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// PathsConfig is the on-disk layout for weekly files.
type PathsConfig struct {
	RawDir       string `koanf:"raw_dir" validate:"required"`       // uploaded chart CSVs, untouched
	ProcessedDir string `koanf:"processed_dir" validate:"required"` // chart files with chart_week, joined weeks
	InterimDir   string `koanf:"interim_dir" validate:"required"`   // unique-track and enrichment files
}

// CatalogConfig configures the external track/artist catalog (Spotify Web API).
type CatalogConfig struct {
	Enabled      bool          `koanf:"enabled"`
	BaseURL      string        `koanf:"base_url" validate:"required,url"`
	AuthURL      string        `koanf:"auth_url" validate:"required,url"`
	ClientID     string        `koanf:"client_id"`
	ClientSecret string        `koanf:"client_secret"`
	RefreshToken string        `koanf:"refresh_token"` // optional; client credentials are used when empty
	Market       string        `koanf:"market"`
	BatchSize    int           `koanf:"batch_size" validate:"gte=1,lte=50"` // service ceiling is 50 ids
	Cooldown     time.Duration `koanf:"cooldown" validate:"gte=0"`          // delay between enrichment batches
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxRetries   int           `koanf:"max_retries" validate:"gte=0,lte=10"` // 429 retries per request

	// Circuit breaker
	BreakerMaxRequests  uint32        `koanf:"breaker_max_requests" validate:"gte=1"`
	BreakerInterval     time.Duration `koanf:"breaker_interval"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio" validate:"gt=0,lte=1"`
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests" validate:"gte=1"`
}

// CacheConfig configures the Badger cache for catalog responses.
type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	Path    string        `koanf:"path"`
	TTL     time.Duration `koanf:"ttl" validate:"gte=0"` // 0 keeps entries forever
}

// HistoryConfig selects the historical dataset store.
//
// StorePath is the only path ever written. SeedPath is read once, on the
// first merge, when StorePath does not exist yet.
type HistoryConfig struct {
	StorePath string `koanf:"store_path" validate:"required"`
	SeedPath  string `koanf:"seed_path"`
	Format    string `koanf:"format" validate:"oneof=csv sqlite"`
}

// BackupConfig configures dated snapshots of the historical dataset.
type BackupConfig struct {
	Dir           string `koanf:"dir" validate:"required"`
	RetentionDays int    `koanf:"retention_days" validate:"gte=1"`
	Compress      bool   `koanf:"compress"`
}

// FeaturesConfig configures the feature engine and forecast horizon.
type FeaturesConfig struct {
	HorizonWeeks int `koanf:"horizon_weeks" validate:"gte=0,lte=104"`

	// FutureGenreSource decides what future rows use as genre signal:
	// "carry_forward" borrows the last historical weekly aggregate,
	// "none" zeroes it.
	FutureGenreSource string `koanf:"future_genre_source" validate:"oneof=carry_forward none"`

	// FutureSeasonality decides the seasonality_score of future rows:
	// "carry_forward" uses the last historical weekly aggregate,
	// "calendar_month" uses the historical ratio of the future week's month.
	FutureSeasonality string `koanf:"future_seasonality" validate:"oneof=carry_forward calendar_month"`
}

// PredictConfig points at the trained artifacts consumed by the prediction adapter.
type PredictConfig struct {
	Enabled         bool    `koanf:"enabled"`
	ModelDir        string  `koanf:"model_dir"`
	TrendModelFile  string  `koanf:"trend_model_file"`
	ClassifierFile  string  `koanf:"classifier_file"`
	ThresholdFile   string  `koanf:"threshold_file"`
	FeaturesFile    string  `koanf:"features_file"`
	ReportThreshold float64 `koanf:"report_threshold" validate:"gte=0,lte=1"` // probability counted as rising in reports
	TopN            int     `koanf:"top_n" validate:"gte=1"`
}

// ReportConfig configures the generative report collaborator (Gemini API).
type ReportConfig struct {
	Enabled bool          `koanf:"enabled"`
	APIKey  string        `koanf:"api_key"`
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Model   string        `koanf:"model" validate:"required"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// AnalyticsConfig configures the DuckDB analytics database.
type AnalyticsConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Path         string `koanf:"path"`        // empty means in-memory
	ParquetDir   string `koanf:"parquet_dir"` // feature frame exported here when set
	ShareTopN    int    `koanf:"share_top_n" validate:"gte=1"`
	RollingWeeks int    `koanf:"rolling_weeks" validate:"gte=1"`
}

// EventsConfig configures NATS notifications for completed runs.
type EventsConfig struct {
	Enabled       bool          `koanf:"enabled"`
	URL           string        `koanf:"url"`
	SubjectPrefix string        `koanf:"subject_prefix"`
	Timeout       time.Duration `koanf:"timeout"`
	Embedded      bool          `koanf:"embedded"` // serve mode starts an in-process NATS server
}

// ServerConfig configures service mode.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxUploadBytes    int64         `koanf:"max_upload_bytes" validate:"gte=1024"`
	InboxEnabled      bool          `koanf:"inbox_enabled"`
	InboxPollInterval time.Duration `koanf:"inbox_poll_interval" validate:"gt=0"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"gte=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}
