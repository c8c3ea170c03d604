// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/chartpulse/config.yaml",
	"/etc/chartpulse/config.yml",
}

const (
	// ConfigPathEnvVar overrides the config file path.
	ConfigPathEnvVar = "CONFIG_PATH"

	// DotEnvPathEnvVar overrides the dotenv file path.
	DotEnvPathEnvVar = "DOTENV_PATH"
)

func defaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			RawDir:       "data/raw",
			ProcessedDir: "data/processed",
			InterimDir:   "data/interim",
		},
		Catalog: CatalogConfig{
			Enabled:             true,
			BaseURL:             "https://api.spotify.com",
			AuthURL:             "https://accounts.spotify.com/api/token",
			BatchSize:           50,
			Cooldown:            300 * time.Millisecond,
			Timeout:             15 * time.Second,
			MaxRetries:          3,
			BreakerMaxRequests:  3,
			BreakerInterval:     time.Minute,
			BreakerTimeout:      2 * time.Minute,
			BreakerFailureRatio: 0.6,
			BreakerMinRequests:  3,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    "data/cache",
			TTL:     7 * 24 * time.Hour,
		},
		History: HistoryConfig{
			StorePath: "data/processed/hist_data_updated.csv",
			SeedPath:  "data/processed/hist_data_24-25.csv",
			Format:    "csv",
		},
		Backup: BackupConfig{
			Dir:           "data/backups",
			RetentionDays: 30,
		},
		Features: FeaturesConfig{
			HorizonWeeks:      12,
			FutureGenreSource: "carry_forward",
			FutureSeasonality: "carry_forward",
		},
		Predict: PredictConfig{
			Enabled:         true,
			ModelDir:        "models",
			TrendModelFile:  "market_trend_prophet_v1.json",
			ClassifierFile:  "rising_artist_lgbm_v1.txt",
			ThresholdFile:   "rising_artist_threshold.json",
			FeaturesFile:    "rising_artist_features.json",
			ReportThreshold: 0.9,
			TopN:            10,
		},
		Report: ReportConfig{
			Enabled: true,
			BaseURL: "https://generativelanguage.googleapis.com",
			Model:   "gemini-1.5-flash",
			Timeout: 30 * time.Second,
		},
		Analytics: AnalyticsConfig{
			Enabled:      true,
			Path:         "data/analytics.duckdb",
			ShareTopN:    10,
			RollingWeeks: 4,
		},
		Events: EventsConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "chartpulse",
			Timeout:       5 * time.Second,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8470,
			Timeout:           30 * time.Second,
			MaxUploadBytes:    32 << 20,
			InboxEnabled:      true,
			InboxPollInterval: 30 * time.Second,
			RateLimitReqs:     10,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from defaults, config file, dotenv and environment.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration. Tests and tools use it as a
// starting point.
func Default() *Config {
	return defaultConfig()
}

// loadDotEnv copies a .env file into the process environment. Variables that
// are already set win, and a missing file is not an error.
func loadDotEnv() error {
	path := os.Getenv(DotEnvPathEnvVar)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load dotenv file %s: %w", path, err)
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unmapped variables are ignored so unrelated environment does not leak in.
var envMappings = map[string]string{
	"raw_dir":       "paths.raw_dir",
	"processed_dir": "paths.processed_dir",
	"interim_dir":   "paths.interim_dir",

	// Catalog credentials keep the names the Spotify tooling uses
	"spotify_enabled":       "catalog.enabled",
	"spotify_client_id":     "catalog.client_id",
	"spotify_client_secret": "catalog.client_secret",
	"spotify_refresh_token": "catalog.refresh_token",
	"spotify_base_url":      "catalog.base_url",
	"spotify_auth_url":      "catalog.auth_url",
	"spotify_market":        "catalog.market",
	"catalog_batch_size":    "catalog.batch_size",
	"catalog_cooldown":      "catalog.cooldown",
	"catalog_timeout":       "catalog.timeout",
	"catalog_max_retries":   "catalog.max_retries",

	"cache_enabled": "cache.enabled",
	"cache_path":    "cache.path",
	"cache_ttl":     "cache.ttl",

	"history_store_path": "history.store_path",
	"history_seed_path":  "history.seed_path",
	"history_format":     "history.format",

	"backup_dir":            "backup.dir",
	"backup_retention_days": "backup.retention_days",
	"backup_compress":       "backup.compress",

	"forecast_horizon_weeks": "features.horizon_weeks",
	"future_genre_source":    "features.future_genre_source",
	"future_seasonality":     "features.future_seasonality",

	"predict_enabled":          "predict.enabled",
	"model_dir":                "predict.model_dir",
	"trend_model_file":         "predict.trend_model_file",
	"classifier_file":          "predict.classifier_file",
	"threshold_file":           "predict.threshold_file",
	"features_file":            "predict.features_file",
	"report_rising_threshold":  "predict.report_threshold",
	"rising_top_n":             "predict.top_n",

	"report_enabled":  "report.enabled",
	"google_api_key":  "report.api_key",
	"report_base_url": "report.base_url",
	"report_model":    "report.model",
	"report_timeout":  "report.timeout",

	"analytics_enabled":       "analytics.enabled",
	"duckdb_path":             "analytics.path",
	"parquet_dir":             "analytics.parquet_dir",
	"analytics_share_top_n":   "analytics.share_top_n",
	"analytics_rolling_weeks": "analytics.rolling_weeks",

	"nats_enabled":        "events.enabled",
	"nats_url":            "events.url",
	"nats_subject_prefix": "events.subject_prefix",
	"nats_timeout":        "events.timeout",
	"nats_embedded":       "events.embedded",

	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_timeout":        "server.timeout",
	"max_upload_bytes":    "server.max_upload_bytes",
	"inbox_enabled":       "server.inbox_enabled",
	"inbox_poll_interval": "server.inbox_poll_interval",
	"rate_limit_requests": "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc turns SPOTIFY_CLIENT_ID into catalog.client_id.
// It returns "" for variables without a mapping.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
