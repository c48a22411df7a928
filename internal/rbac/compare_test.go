// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package rbac

import (
	"testing"
	"time"
)

type tier string

func TestCompareValues(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		op       Operator
		actual   interface{}
		expected interface{}
		want     bool
	}{
		{"equals strings", OpEquals, "u1", "u1", true},
		{"equals named string type", OpEquals, tier("gold"), "gold", true},
		{"equals numeric coercion", OpEquals, int32(5), 5.0, true},
		{"equals type mismatch", OpEquals, "5", 5, false},
		{"not_equals", OpNotEquals, "a", "b", true},
		{"not_equals type mismatch fails closed", OpNotEquals, "a", 1, false},
		{"not_equals nil fails closed", OpNotEquals, nil, "a", false},
		{"in string slice", OpIn, "US", []string{"CA", "US"}, true},
		{"in interface slice", OpIn, 3, []interface{}{1, 2, 3}, true},
		{"in missing", OpIn, "MX", []string{"CA", "US"}, false},
		{"in non-slice", OpIn, "US", "US", false},
		{"not_in", OpNotIn, "MX", []string{"CA", "US"}, true},
		{"not_in present", OpNotIn, "US", []string{"CA", "US"}, false},
		{"not_in mixed types fails closed", OpNotIn, "MX", []interface{}{"CA", 1}, false},
		{"gt ints", OpGreaterThan, 10, 5, true},
		{"gt uint vs float", OpGreaterThan, uint8(3), 2.5, true},
		{"lt strings lexical", OpLessThan, "apple", "banana", true},
		{"gte equal", OpGreaterOrEqual, 5, 5, true},
		{"lte durations", OpLessOrEqual, time.Minute, time.Hour, true},
		{"gt times", OpGreaterThan, t0.Add(time.Hour), t0, true},
		{"lt time vs string mismatch", OpLessThan, t0, "2026-01-01", false},
		{"gt bool unsupported", OpGreaterThan, true, false, false},
		{"contains substring", OpContains, "10.0.0.1", "10.0.", true},
		{"contains slice member", OpContains, []string{"a", "b"}, "b", true},
		{"contains slice missing", OpContains, []int{1, 2}, 3, false},
		{"contains on number", OpContains, 12, 1, false},
		{"equals bools", OpEquals, true, true, true},
		{"equals times", OpEquals, t0, t0.In(time.FixedZone("x", 3600)), true},
		{"unknown operator", Operator("matches"), "a", "a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compareValues(tt.op, tt.actual, tt.expected); got != tt.want {
				t.Errorf("compareValues(%s, %v, %v) = %v, want %v", tt.op, tt.actual, tt.expected, got, tt.want)
			}
		})
	}
}
