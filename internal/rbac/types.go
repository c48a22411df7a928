// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

// Package rbac implements role-based access control with role inheritance
// and contextual conditions.
//
// Permissions and roles are registered once in a Registry. The Engine
// resolves a user's effective roles (direct roles from an AssignmentProvider
// plus the transitive InheritsFrom closure) and answers permission questions
// against an EvalContext. Every unresolved lookup evaluates to false:
//
//	engine := rbac.NewEngine(registry, assignments, rbac.WithDecisionCache(authCache))
//	ok := engine.HasPermission(ctx, "u1", "policy.view.own", &rbac.EvalContext{
//	    Resource: &rbac.ResourceContext{Type: "policy", Owner: "u1"},
//	})
package rbac

import "errors"

var (
	// ErrInvalidDefinition is returned for permissions or roles with missing required fields.
	ErrInvalidDefinition = errors.New("invalid definition")

	// ErrInvalidCondition is returned when a condition names an unknown type,
	// operator or field.
	ErrInvalidCondition = errors.New("invalid condition")

	// ErrPermissionExists is returned when registering a duplicate permission id.
	ErrPermissionExists = errors.New("permission already exists")

	// ErrRoleExists is returned when registering a duplicate role id.
	ErrRoleExists = errors.New("role already exists")

	// ErrRoleNotFound is returned when a role id is not registered.
	ErrRoleNotFound = errors.New("role not found")

	// ErrSystemRole is returned when deleting a system role.
	ErrSystemRole = errors.New("system roles cannot be deleted")

	// ErrAssignmentsReadOnly is returned by AssignRole/RevokeRole when the
	// assignment provider does not accept writes.
	ErrAssignmentsReadOnly = errors.New("assignment provider is read-only")
)

// ConditionType selects which part of the evaluation context a condition reads.
type ConditionType string

const (
	ConditionUserProperty     ConditionType = "user_property"
	ConditionResourceProperty ConditionType = "resource_property"
	ConditionTime             ConditionType = "time"
	ConditionLocation         ConditionType = "location"
	ConditionCustom           ConditionType = "custom"
)

// Operator is a comparison operator.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
	OpGreaterThan    Operator = "gt"
	OpLessThan       Operator = "lt"
	OpGreaterOrEqual Operator = "gte"
	OpLessOrEqual    Operator = "lte"
	OpContains       Operator = "contains"
)

// Ref is a condition value resolved against the caller's user context at
// evaluation time. It names a user_property field.
type Ref string

// CurrentUser resolves to the id of the user being checked.
const CurrentUser Ref = Ref(UserFieldID)

// Condition is a single predicate over the evaluation context.
//
// For ConditionCustom, Field names a strategy registered with
// Engine.RegisterStrategy; Operator and Value are passed to the strategy.
type Condition struct {
	Type     ConditionType `json:"type" validate:"required,oneof=user_property resource_property time location custom"`
	Field    string        `json:"field" validate:"required"`
	Operator Operator      `json:"operator,omitempty" validate:"omitempty,oneof=equals not_equals in not_in gt lt gte lte contains"`
	Value    interface{}   `json:"value,omitempty"`
}

// Permission is an atomic (resource, action) capability. Conditions are ANDed.
type Permission struct {
	ID          string      `json:"id" validate:"required"`
	Name        string      `json:"name"`
	Resource    string      `json:"resource" validate:"required"`
	Action      string      `json:"action" validate:"required"`
	Conditions  []Condition `json:"conditions,omitempty" validate:"dive"`
	Description string      `json:"description,omitempty"`
}

// Role groups permissions and inherits the permissions of other roles.
// Inheritance graphs may contain cycles.
type Role struct {
	ID           string   `json:"id" validate:"required"`
	Name         string   `json:"name"`
	Permissions  []string `json:"permissions,omitempty"`
	InheritsFrom []string `json:"inherits_from,omitempty"`
	IsSystem     bool     `json:"is_system"`
	Description  string   `json:"description,omitempty"`
}

func (p Permission) clone() Permission {
	p.Conditions = append([]Condition(nil), p.Conditions...)
	return p
}

func (r Role) clone() Role {
	r.Permissions = append([]string(nil), r.Permissions...)
	r.InheritsFrom = append([]string(nil), r.InheritsFrom...)
	return r
}

// dedupe returns ids in first-seen order without blanks or repeats.
func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
