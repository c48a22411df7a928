// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package validation

import (
	"strings"
	"testing"
)

type inner struct {
	ID string `validate:"required"`
}

type sample struct {
	Name   string `validate:"required,max=10"`
	Level  string `validate:"omitempty,oneof=low high"`
	Email  string `validate:"omitempty,email"`
	Owner  inner
	Weight int `validate:"gte=0"`
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name       string
		input      sample
		wantFields []string
	}{
		{
			name:  "valid",
			input: sample{Name: "ok", Level: "low", Owner: inner{ID: "x"}},
		},
		{
			name:       "missing required nested",
			input:      sample{Name: "ok"},
			wantFields: []string{"Owner.ID"},
		},
		{
			name:       "multiple failures",
			input:      sample{Level: "medium", Email: "nope", Owner: inner{ID: "x"}, Weight: -1},
			wantFields: []string{"Name", "Level", "Email", "Weight"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("ValidateStruct() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateStruct() expected error")
			}
			got := err.Fields()
			if strings.Join(got, ",") != strings.Join(tt.wantFields, ",") {
				t.Errorf("Fields() = %v, want %v", got, tt.wantFields)
			}
		})
	}
}

func TestTranslateError_Messages(t *testing.T) {
	err := ValidateStruct(&sample{Name: "ok", Level: "mid", Owner: inner{ID: "x"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if msg := err.Error(); msg != "Level must be one of: low high" {
		t.Errorf("Error() = %q", msg)
	}
}
