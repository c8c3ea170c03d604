// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package predict

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Decision type bits of a LightGBM split.
const (
	lgbmCategoricalMask = 1
	lgbmDefaultLeftMask = 2

	lgbmMissingNone = 0
	lgbmMissingZero = 1
	lgbmMissingNaN  = 2

	lgbmZeroThreshold = 1e-35
)

type lgbmTree struct {
	splitFeature []int
	threshold    []float64
	decisionType []int
	leftChild    []int
	rightChild   []int
	leafValue    []float64
}

// LGBMClassifier evaluates a LightGBM text model with numerical splits and a
// binary objective. The raw score is the sum of all tree outputs, mapped to a
// probability with the objective's sigmoid.
type LGBMClassifier struct {
	features []string
	sigmoid  float64
	trees    []lgbmTree
}

// ParseLGBM reads a model saved with Booster.save_model.
func ParseLGBM(r io.Reader) (*LGBMClassifier, error) {
	m := &LGBMClassifier{sigmoid: 1}
	var (
		cur    *lgbmTree
		sawObj bool
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == "end of trees":
			return m.finish(cur, sawObj)
		case strings.HasPrefix(line, "Tree="):
			if cur != nil {
				if err := cur.validate(); err != nil {
					return nil, fmt.Errorf("tree %d: %w", len(m.trees), err)
				}
				m.trees = append(m.trees, *cur)
			}
			cur = &lgbmTree{}
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if cur == nil {
			if err := m.header(key, value, &sawObj); err != nil {
				return nil, err
			}
			continue
		}
		if err := cur.set(key, value); err != nil {
			return nil, fmt.Errorf("tree %d: %w", len(m.trees), err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read lightgbm model: %w", err)
	}
	return m.finish(cur, sawObj)
}

func (m *LGBMClassifier) header(key, value string, sawObj *bool) error {
	switch key {
	case "feature_names":
		m.features = strings.Fields(value)
	case "num_class":
		if value != "1" {
			return fmt.Errorf("%w: lightgbm num_class=%s", ErrUnsupportedModel, value)
		}
	case "objective":
		fields := strings.Fields(value)
		if len(fields) == 0 || fields[0] != "binary" {
			return fmt.Errorf("%w: lightgbm objective %q", ErrUnsupportedModel, value)
		}
		for _, f := range fields[1:] {
			if s, ok := strings.CutPrefix(f, "sigmoid:"); ok {
				v, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return fmt.Errorf("lightgbm sigmoid %q: %w", s, err)
				}
				m.sigmoid = v
			}
		}
		*sawObj = true
	}
	return nil
}

func (m *LGBMClassifier) finish(cur *lgbmTree, sawObj bool) (*LGBMClassifier, error) {
	if cur != nil {
		if err := cur.validate(); err != nil {
			return nil, fmt.Errorf("tree %d: %w", len(m.trees), err)
		}
		m.trees = append(m.trees, *cur)
	}
	if !sawObj {
		return nil, fmt.Errorf("%w: lightgbm model has no objective", ErrUnsupportedModel)
	}
	if len(m.trees) == 0 {
		return nil, fmt.Errorf("%w: lightgbm model has no trees", ErrUnsupportedModel)
	}
	for i := range m.trees {
		for _, f := range m.trees[i].splitFeature {
			if f >= len(m.features) {
				return nil, fmt.Errorf("tree %d splits on feature %d of %d", i, f, len(m.features))
			}
		}
	}
	return m, nil
}

func (t *lgbmTree) set(key, value string) error {
	var err error
	switch key {
	case "num_cat":
		if strings.TrimSpace(value) != "0" {
			return fmt.Errorf("%w: categorical splits", ErrUnsupportedModel)
		}
	case "split_feature":
		t.splitFeature, err = parseInts(value)
	case "threshold":
		t.threshold, err = parseFloats(value)
	case "decision_type":
		t.decisionType, err = parseInts(value)
	case "left_child":
		t.leftChild, err = parseInts(value)
	case "right_child":
		t.rightChild, err = parseInts(value)
	case "leaf_value":
		t.leafValue, err = parseFloats(value)
	case "is_linear":
		if strings.TrimSpace(value) != "0" {
			return fmt.Errorf("%w: linear trees", ErrUnsupportedModel)
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func (t *lgbmTree) validate() error {
	if len(t.leafValue) == 0 {
		return fmt.Errorf("no leaf values")
	}
	n := len(t.splitFeature)
	if len(t.threshold) != n || len(t.decisionType) != n || len(t.leftChild) != n || len(t.rightChild) != n {
		return fmt.Errorf("inconsistent split arrays")
	}
	if n != len(t.leafValue)-1 {
		return fmt.Errorf("%d splits for %d leaves", n, len(t.leafValue))
	}
	for _, d := range t.decisionType {
		if d&lgbmCategoricalMask != 0 {
			return fmt.Errorf("%w: categorical splits", ErrUnsupportedModel)
		}
	}
	return nil
}

// predict walks the tree. Negative child indices address leaves as ^child.
func (t *lgbmTree) predict(x []float64) float64 {
	if len(t.splitFeature) == 0 {
		return t.leafValue[0]
	}
	node := 0
	for {
		var next int
		if t.goLeft(node, x[t.splitFeature[node]]) {
			next = t.leftChild[node]
		} else {
			next = t.rightChild[node]
		}
		if next < 0 {
			return t.leafValue[^next]
		}
		node = next
	}
}

func (t *lgbmTree) goLeft(node int, v float64) bool {
	dt := t.decisionType[node]
	missing := (dt >> 2) & 3
	if math.IsNaN(v) && missing != lgbmMissingNaN {
		v = 0
	}
	if (missing == lgbmMissingZero && math.Abs(v) <= lgbmZeroThreshold) || (missing == lgbmMissingNaN && math.IsNaN(v)) {
		return dt&lgbmDefaultLeftMask != 0
	}
	return v <= t.threshold[node]
}

// FeatureNames implements Classifier.
func (m *LGBMClassifier) FeatureNames() []string {
	return append([]string(nil), m.features...)
}

// Probabilities implements Classifier.
func (m *LGBMClassifier) Probabilities(ctx context.Context, x [][]float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != len(m.features) {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), len(m.features))
		}
		var raw float64
		for j := range m.trees {
			raw += m.trees[j].predict(row)
		}
		out[i] = 1 / (1 + math.Exp(-m.sigmoid*raw))
	}
	return out, nil
}

func parseInts(s string) ([]int, error) {
	fields := strings.Fields(s)
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
