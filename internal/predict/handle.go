// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package predict

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/chartpulse/internal/config"
	"github.com/tomtom215/chartpulse/internal/logging"
)

// Loader opens the two model files.
type Loader interface {
	LoadTrend(ctx context.Context, path string) (TrendPredictor, error)
	LoadClassifier(ctx context.Context, path string) (Classifier, error)
}

// FileLoader reads Prophet JSON and LightGBM text models from disk.
type FileLoader struct{}

// LoadTrend implements Loader.
func (FileLoader) LoadTrend(_ context.Context, path string) (TrendPredictor, error) {
	data, err := os.ReadFile(path) //nolint:gosec // model path from configuration
	if err != nil {
		return nil, err
	}
	return ParseProphetTrend(data)
}

// LoadClassifier implements Loader.
func (FileLoader) LoadClassifier(_ context.Context, path string) (Classifier, error) {
	f, err := os.Open(path) //nolint:gosec // model path from configuration
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only
	return ParseLGBM(f)
}

type thresholdFile struct {
	BestThreshold *float64 `json:"best_threshold"`
}

// Handle owns the loaded prediction artifacts. It is constructed explicitly
// and passed to whoever needs it; Load reads the artifacts once.
type Handle struct {
	cfg    *config.PredictConfig
	loader Loader

	mu         sync.RWMutex
	loaded     bool
	trend      TrendPredictor
	classifier Classifier
	threshold  float64
	columns    []string
}

// NewHandle creates an unloaded handle. A nil loader reads from disk.
func NewHandle(cfg *config.PredictConfig, loader Loader) *Handle {
	if loader == nil {
		loader = FileLoader{}
	}
	return &Handle{cfg: cfg, loader: loader}
}

// IsLoaded reports whether Load has succeeded.
func (h *Handle) IsLoaded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loaded
}

// Load reads the trend model, the classifier, the threshold and the feature
// list. It is a no-op once it has succeeded.
func (h *Handle) Load(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loaded {
		return nil
	}

	path := func(name string) string { return filepath.Join(h.cfg.ModelDir, name) }

	trend, err := h.loader.LoadTrend(ctx, path(h.cfg.TrendModelFile))
	if err != nil {
		return fmt.Errorf("failed to load trend model: %w", err)
	}
	classifier, err := h.loader.LoadClassifier(ctx, path(h.cfg.ClassifierFile))
	if err != nil {
		return fmt.Errorf("failed to load classifier: %w", err)
	}

	var th thresholdFile
	if err := readJSON(path(h.cfg.ThresholdFile), &th); err != nil {
		return fmt.Errorf("failed to load threshold: %w", err)
	}
	if th.BestThreshold == nil || *th.BestThreshold < 0 || *th.BestThreshold > 1 {
		return fmt.Errorf("threshold file %s has no best_threshold in [0,1]", h.cfg.ThresholdFile)
	}

	var columns []string
	if err := readJSON(path(h.cfg.FeaturesFile), &columns); err != nil {
		return fmt.Errorf("failed to load feature list: %w", err)
	}
	if len(columns) == 0 {
		return fmt.Errorf("feature list %s is empty", h.cfg.FeaturesFile)
	}
	if names := classifier.FeatureNames(); len(names) != len(columns) {
		return fmt.Errorf("feature list has %d columns, classifier expects %d", len(columns), len(names))
	}

	h.trend = trend
	h.classifier = classifier
	h.threshold = *th.BestThreshold
	h.columns = columns
	h.loaded = true

	logging.Info().
		Str("model_dir", h.cfg.ModelDir).
		Float64("threshold", h.threshold).
		Int("features", len(columns)).
		Msg("Prediction artifacts loaded")
	return nil
}

// Threshold returns the decision threshold.
func (h *Handle) Threshold() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.threshold
}

// FeatureColumns returns the classifier input columns in order.
func (h *Handle) FeatureColumns() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.columns...)
}

func (h *Handle) models() (TrendPredictor, Classifier, float64, []string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.loaded {
		return nil, nil, 0, nil, ErrNotLoaded
	}
	return h.trend, h.classifier, h.threshold, h.columns, nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path) //nolint:gosec // artifact path from configuration
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
