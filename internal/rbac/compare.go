// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package rbac

import (
	"reflect"
	"strings"
	"time"
)

// compareValues applies op to actual and expected. Values of incompatible
// kinds never compare, so every operator, including not_equals and not_in,
// returns false on a type mismatch.
func compareValues(op Operator, actual, expected interface{}) bool {
	switch op {
	case OpEquals:
		eq, ok := equalValues(actual, expected)
		return ok && eq
	case OpNotEquals:
		eq, ok := equalValues(actual, expected)
		return ok && !eq
	case OpIn:
		items, ok := sliceItems(expected)
		if !ok {
			return false
		}
		for _, item := range items {
			if eq, ok := equalValues(actual, item); ok && eq {
				return true
			}
		}
		return false
	case OpNotIn:
		items, ok := sliceItems(expected)
		if !ok {
			return false
		}
		for _, item := range items {
			if eq, ok := equalValues(actual, item); !ok || eq {
				return false
			}
		}
		return true
	case OpGreaterThan:
		c, ok := orderValues(actual, expected)
		return ok && c > 0
	case OpLessThan:
		c, ok := orderValues(actual, expected)
		return ok && c < 0
	case OpGreaterOrEqual:
		c, ok := orderValues(actual, expected)
		return ok && c >= 0
	case OpLessOrEqual:
		c, ok := orderValues(actual, expected)
		return ok && c <= 0
	case OpContains:
		return containsValue(actual, expected)
	default:
		return false
	}
}

// equalValues reports equality, and whether the two values were comparable at all.
func equalValues(a, b interface{}) (bool, bool) {
	if a == nil || b == nil {
		return false, false
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return false, false
		}
		return ta.Equal(tb), true
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return false, false
		}
		return fa == fb, true
	}
	if sa, ok := toString(a); ok {
		sb, ok := toString(b)
		if !ok {
			return false, false
		}
		return sa == sb, true
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return false, false
		}
		return ba == bb, true
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false, false
	}
	return a == b, true
}

// orderValues returns -1, 0 or 1 for ordered kinds: times chronologically,
// numbers numerically (any Go numeric kind, durations included) and
// strings lexically.
func orderValues(a, b interface{}) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	if sa, ok := toString(a); ok {
		sb, ok := toString(b)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

// containsValue is substring match for strings and membership for slices.
func containsValue(actual, expected interface{}) bool {
	if sa, ok := toString(actual); ok {
		sb, ok := toString(expected)
		return ok && strings.Contains(sa, sb)
	}
	items, ok := sliceItems(actual)
	if !ok {
		return false
	}
	for _, item := range items {
		if eq, ok := equalValues(item, expected); ok && eq {
			return true
		}
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

func toString(v interface{}) (string, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.String {
		return "", false
	}
	return rv.String(), true
}

func sliceItems(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]interface{}, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
