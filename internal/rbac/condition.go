// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package rbac

import (
	"fmt"
	"strings"
	"time"
)

// Typed context fields. Extension fields are addressed with AttributePrefix,
// e.g. "attr.clearance" reads UserContext.Attributes["clearance"].
const (
	UserFieldID         = "id"
	UserFieldRole       = "role"
	UserFieldEmail      = "email"
	UserFieldName       = "name"
	UserFieldDepartment = "department"

	ResourceFieldID             = "id"
	ResourceFieldType           = "type"
	ResourceFieldOwner          = "owner"
	ResourceFieldClassification = "classification"
	ResourceFieldStatus         = "status"

	LocationFieldCountry = "country"
	LocationFieldRegion  = "region"
	LocationFieldIP      = "ip"
	LocationFieldNetwork = "network"

	TimeFieldTimestamp = "timestamp"
	TimeFieldHour      = "hour"
	TimeFieldWeekday   = "weekday"

	AttributePrefix = "attr."
)

// evalEnv is what accessors read from during one decision.
type evalEnv struct {
	subject string
	ec      *EvalContext
	now     time.Time
}

type accessor func(env *evalEnv) (interface{}, bool)

// compiledCondition binds a condition to its field accessor once, at
// registration, so evaluation never looks fields up by name.
type compiledCondition struct {
	Condition
	get accessor
	ref accessor
}

func compileCondition(c Condition) (compiledCondition, error) {
	cc := compiledCondition{Condition: c}

	if c.Type != ConditionCustom && c.Operator == "" {
		return cc, fmt.Errorf("%w: %s condition on %q has no operator", ErrInvalidCondition, c.Type, c.Field)
	}
	if c.Operator == OpIn || c.Operator == OpNotIn {
		if _, ok := sliceItems(c.Value); !ok {
			return cc, fmt.Errorf("%w: operator %s on %q needs a list value", ErrInvalidCondition, c.Operator, c.Field)
		}
	}

	var err error
	switch c.Type {
	case ConditionUserProperty:
		cc.get, err = userAccessor(c.Field)
	case ConditionResourceProperty:
		cc.get, err = resourceAccessor(c.Field)
	case ConditionLocation:
		cc.get, err = locationAccessor(c.Field)
	case ConditionTime:
		cc.get, err = timeAccessor(c.Field)
	case ConditionCustom:
		return cc, nil
	default:
		err = fmt.Errorf("%w: unknown condition type %q", ErrInvalidCondition, c.Type)
	}
	if err != nil {
		return cc, err
	}

	if ref, ok := c.Value.(Ref); ok {
		cc.ref, err = userAccessor(string(ref))
		if err != nil {
			return cc, fmt.Errorf("%w: reference %q", ErrInvalidCondition, ref)
		}
	}
	return cc, nil
}

// evaluate reports whether the condition holds. Missing fields, unresolved
// references and type mismatches all yield false.
func (cc *compiledCondition) evaluate(env *evalEnv) bool {
	actual, ok := cc.get(env)
	if !ok {
		return false
	}
	expected := cc.Value
	if cc.ref != nil {
		expected, ok = cc.ref(env)
		if !ok {
			return false
		}
	}
	return compareValues(cc.Operator, actual, expected)
}

func present(s string) (interface{}, bool) {
	return s, s != ""
}

func attribute(attrs map[string]interface{}, key string) (interface{}, bool) {
	v, ok := attrs[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func unknownField(kind ConditionType, field string) error {
	return fmt.Errorf("%w: unknown %s field %q", ErrInvalidCondition, kind, field)
}

func userAccessor(field string) (accessor, error) {
	if key, ok := strings.CutPrefix(field, AttributePrefix); ok && key != "" {
		return func(env *evalEnv) (interface{}, bool) {
			if env.ec == nil || env.ec.User == nil {
				return nil, false
			}
			return attribute(env.ec.User.Attributes, key)
		}, nil
	}

	var pick func(*UserContext) string
	switch field {
	case UserFieldID:
		// The id falls back to the subject being checked.
		return func(env *evalEnv) (interface{}, bool) {
			if env.ec != nil && env.ec.User != nil && env.ec.User.ID != "" {
				return env.ec.User.ID, true
			}
			return present(env.subject)
		}, nil
	case UserFieldRole:
		pick = func(u *UserContext) string { return u.Role }
	case UserFieldEmail:
		pick = func(u *UserContext) string { return u.Email }
	case UserFieldName:
		pick = func(u *UserContext) string { return u.Name }
	case UserFieldDepartment:
		pick = func(u *UserContext) string { return u.Department }
	default:
		return nil, unknownField(ConditionUserProperty, field)
	}
	return func(env *evalEnv) (interface{}, bool) {
		if env.ec == nil || env.ec.User == nil {
			return nil, false
		}
		return present(pick(env.ec.User))
	}, nil
}

func resourceAccessor(field string) (accessor, error) {
	if key, ok := strings.CutPrefix(field, AttributePrefix); ok && key != "" {
		return func(env *evalEnv) (interface{}, bool) {
			if env.ec == nil || env.ec.Resource == nil {
				return nil, false
			}
			return attribute(env.ec.Resource.Attributes, key)
		}, nil
	}

	var pick func(*ResourceContext) string
	switch field {
	case ResourceFieldID:
		pick = func(r *ResourceContext) string { return r.ID }
	case ResourceFieldType:
		pick = func(r *ResourceContext) string { return r.Type }
	case ResourceFieldOwner:
		pick = func(r *ResourceContext) string { return r.Owner }
	case ResourceFieldClassification:
		pick = func(r *ResourceContext) string { return r.Classification }
	case ResourceFieldStatus:
		pick = func(r *ResourceContext) string { return r.Status }
	default:
		return nil, unknownField(ConditionResourceProperty, field)
	}
	return func(env *evalEnv) (interface{}, bool) {
		if env.ec == nil || env.ec.Resource == nil {
			return nil, false
		}
		return present(pick(env.ec.Resource))
	}, nil
}

func locationAccessor(field string) (accessor, error) {
	if key, ok := strings.CutPrefix(field, AttributePrefix); ok && key != "" {
		return func(env *evalEnv) (interface{}, bool) {
			if env.ec == nil || env.ec.Location == nil {
				return nil, false
			}
			return attribute(env.ec.Location.Attributes, key)
		}, nil
	}

	var pick func(*LocationContext) string
	switch field {
	case LocationFieldCountry:
		pick = func(l *LocationContext) string { return l.Country }
	case LocationFieldRegion:
		pick = func(l *LocationContext) string { return l.Region }
	case LocationFieldIP:
		pick = func(l *LocationContext) string { return l.IP }
	case LocationFieldNetwork:
		pick = func(l *LocationContext) string { return l.Network }
	default:
		return nil, unknownField(ConditionLocation, field)
	}
	return func(env *evalEnv) (interface{}, bool) {
		if env.ec == nil || env.ec.Location == nil {
			return nil, false
		}
		return present(pick(env.ec.Location))
	}, nil
}

func timeAccessor(field string) (accessor, error) {
	var pick func(time.Time) interface{}
	switch field {
	case TimeFieldTimestamp:
		pick = func(t time.Time) interface{} { return t }
	case TimeFieldHour:
		pick = func(t time.Time) interface{} { return t.Hour() }
	case TimeFieldWeekday:
		pick = func(t time.Time) interface{} { return t.Weekday() }
	default:
		return nil, unknownField(ConditionTime, field)
	}
	return func(env *evalEnv) (interface{}, bool) {
		now := env.now
		if env.ec != nil && !env.ec.Time.IsZero() {
			now = env.ec.Time
		}
		if now.IsZero() {
			return nil, false
		}
		return pick(now), true
	}, nil
}

// hasDynamicInputs reports whether a decision under these conditions can
// change without the evaluation context changing.
func hasDynamicInputs(conds []compiledCondition) bool {
	for i := range conds {
		if conds[i].Type == ConditionTime || conds[i].Type == ConditionCustom {
			return true
		}
	}
	return false
}
