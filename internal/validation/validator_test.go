// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package validation

import (
	"errors"
	"strings"
	"testing"
)

type sample struct {
	Name      string  `validate:"required,min=3"`
	BatchSize int     `validate:"gte=1,lte=50"`
	Mode      string  `validate:"oneof=csv sqlite"`
	Threshold float64 `validate:"gte=0,lte=1"`
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     sample
		wantErr   bool
		wantField string
		wantMsg   string
	}{
		{
			name:  "valid",
			input: sample{Name: "chart", BatchSize: 50, Mode: "csv", Threshold: 0.5},
		},
		{
			name:      "missing name",
			input:     sample{BatchSize: 10, Mode: "csv"},
			wantErr:   true,
			wantField: "Name",
			wantMsg:   "Name is required",
		},
		{
			name:      "batch above ceiling",
			input:     sample{Name: "chart", BatchSize: 51, Mode: "csv"},
			wantErr:   true,
			wantField: "BatchSize",
			wantMsg:   "BatchSize must be less than or equal to 50",
		},
		{
			name:      "unknown mode",
			input:     sample{Name: "chart", BatchSize: 1, Mode: "parquet"},
			wantErr:   true,
			wantField: "Mode",
			wantMsg:   "Mode must be one of: csv sqlite",
		},
		{
			name:      "short name",
			input:     sample{Name: "ab", BatchSize: 1, Mode: "csv"},
			wantErr:   true,
			wantField: "Name",
			wantMsg:   "Name must be at least 3 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateStruct(&tt.input)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *Error, got %T (%v)", err, err)
			}
			if verr.Fields[0].Field != tt.wantField {
				t.Errorf("field = %q, want %q", verr.Fields[0].Field, tt.wantField)
			}
			if !strings.Contains(verr.Error(), tt.wantMsg) {
				t.Errorf("message = %q, want it to contain %q", verr.Error(), tt.wantMsg)
			}
		})
	}
}

func TestValidateStructNested(t *testing.T) {
	t.Parallel()

	type inner struct {
		Days int `validate:"gte=1"`
	}
	type outer struct {
		Backup inner
	}

	err := ValidateStruct(&outer{})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if verr.Fields[0].Field != "Backup.Days" {
		t.Errorf("field = %q, want Backup.Days", verr.Fields[0].Field)
	}
}
