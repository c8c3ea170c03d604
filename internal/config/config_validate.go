// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package config

import (
	"fmt"
	"path/filepath"

	"github.com/tomtom215/chartpulse/internal/validation"
)

// Validate checks field constraints and the cross-field rules struct tags
// cannot express.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	if err := c.validatePredict(); err != nil {
		return err
	}
	return c.validateEvents()
}

func (c *Config) validateCatalog() error {
	if !c.Catalog.Enabled {
		return nil
	}
	if c.Catalog.ClientID == "" || c.Catalog.ClientSecret == "" {
		return fmt.Errorf("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET are required when the catalog is enabled")
	}
	if c.Cache.Enabled && c.Cache.Path == "" {
		return fmt.Errorf("CACHE_PATH is required when the catalog cache is enabled")
	}
	return nil
}

func (c *Config) validateHistory() error {
	if c.History.SeedPath == "" {
		return nil
	}
	if filepath.Clean(c.History.SeedPath) == filepath.Clean(c.History.StorePath) {
		return fmt.Errorf("HISTORY_SEED_PATH must differ from HISTORY_STORE_PATH; the seed is never written")
	}
	return nil
}

func (c *Config) validatePredict() error {
	if !c.Predict.Enabled {
		return nil
	}
	p := c.Predict
	if p.ModelDir == "" || p.TrendModelFile == "" || p.ClassifierFile == "" || p.ThresholdFile == "" || p.FeaturesFile == "" {
		return fmt.Errorf("model_dir and all predict artifact file names are required when prediction is enabled")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if !c.Events.Enabled {
		return nil
	}
	if c.Events.SubjectPrefix == "" {
		return fmt.Errorf("NATS_SUBJECT_PREFIX is required when events are enabled")
	}
	if !c.Events.Embedded && c.Events.URL == "" {
		return fmt.Errorf("NATS_URL is required when events are enabled without the embedded server")
	}
	return nil
}

// ArtifactPath joins the model directory with an artifact file name.
func (p *PredictConfig) ArtifactPath(name string) string {
	return filepath.Join(p.ModelDir, name)
}

// Addr returns host:port for the HTTP listener.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
