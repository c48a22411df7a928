// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package rbac

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"reflect"
	"strconv"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// decisionFingerprint digests the values conds read from env, each tagged
// with its Go type, so two contexts share a fingerprint only when every
// condition sees the same typed inputs. ok is false when an input has no
// canonical encoding (maps, pointers, structs other than time.Time); such
// decisions are not cached.
func decisionFingerprint(conds []compiledCondition, env *evalEnv) (fp string, ok bool) {
	h := sha256.New()
	for i := range conds {
		cc := &conds[i]
		if cc.get == nil {
			return "", false
		}
		fmt.Fprintf(h, "%d:", i)
		if !writeInput(h, cc.get, env) {
			return "", false
		}
		if cc.ref != nil {
			_, _ = io.WriteString(h, "ref:")
			if !writeInput(h, cc.ref, env) {
				return "", false
			}
		}
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16]), true
}

func writeInput(h hash.Hash, get accessor, env *evalEnv) bool {
	v, found := get(env)
	if !found {
		_, _ = io.WriteString(h, "absent;")
		return true
	}
	if !writeCanonical(h, reflect.ValueOf(v)) {
		return false
	}
	_, _ = io.WriteString(h, ";")
	return true
}

// writeCanonical encodes rv as "type(value)".
func writeCanonical(w io.Writer, rv reflect.Value) bool {
	if !rv.IsValid() {
		_, _ = io.WriteString(w, "nil")
		return true
	}
	t := rv.Type()
	name := typeName(t)

	if t == timeType {
		ts := rv.Interface().(time.Time)
		fmt.Fprintf(w, "%s(%s)", name, ts.UTC().Format(time.RFC3339Nano))
		return true
	}

	switch rv.Kind() {
	case reflect.String:
		fmt.Fprintf(w, "%s(%q)", name, rv.String())
	case reflect.Bool:
		fmt.Fprintf(w, "%s(%t)", name, rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		fmt.Fprintf(w, "%s(%d)", name, rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		fmt.Fprintf(w, "%s(%d)", name, rv.Uint())
	case reflect.Float32, reflect.Float64:
		fmt.Fprintf(w, "%s(%s)", name, strconv.FormatFloat(rv.Float(), 'g', -1, 64))
	case reflect.Interface:
		if rv.IsNil() {
			_, _ = io.WriteString(w, "nil")
			return true
		}
		return writeCanonical(w, rv.Elem())
	case reflect.Slice, reflect.Array:
		fmt.Fprintf(w, "%s[%d]{", name, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			if !writeCanonical(w, rv.Index(i)) {
				return false
			}
			_, _ = io.WriteString(w, ",")
		}
		_, _ = io.WriteString(w, "}")
	default:
		return false
	}
	return true
}

func typeName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}
