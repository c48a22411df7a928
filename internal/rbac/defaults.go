// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package rbac

import "fmt"

// Built-in role ids. Each role inherits the one before it.
const (
	RoleConsumer = "consumer"
	RoleAgent    = "agent"
	RoleManager  = "manager"
	RoleAdmin    = "admin"
)

func ownResource() Condition {
	return Condition{Type: ConditionResourceProperty, Field: ResourceFieldOwner, Operator: OpEquals, Value: CurrentUser}
}

// DefaultPermissions is the insurance platform permission catalogue.
func DefaultPermissions() []Permission {
	return []Permission{
		{ID: "policy.view.own", Name: "View own policies", Resource: "policy", Action: "view",
			Conditions: []Condition{ownResource()}, Description: "View policies owned by the caller"},
		{ID: "policy.view.all", Name: "View all policies", Resource: "policy", Action: "view"},
		{ID: "policy.create", Name: "Create policies", Resource: "policy", Action: "create"},
		{ID: "policy.update", Name: "Update policies", Resource: "policy", Action: "update"},
		{ID: "policy.approve", Name: "Approve policies", Resource: "policy", Action: "approve",
			Conditions: []Condition{
				{Type: ConditionResourceProperty, Field: AttributePrefix + "coverage_amount", Operator: OpLessOrEqual, Value: 1_000_000},
			},
			Description: "Approve policies up to the manager coverage limit"},
		{ID: "claim.submit", Name: "Submit claims", Resource: "claim", Action: "create",
			Conditions: []Condition{ownResource()}},
		{ID: "claim.view.own", Name: "View own claims", Resource: "claim", Action: "view",
			Conditions: []Condition{ownResource()}},
		{ID: "claim.view.all", Name: "View all claims", Resource: "claim", Action: "view"},
		{ID: "claim.approve", Name: "Approve claims", Resource: "claim", Action: "approve",
			Conditions: []Condition{
				{Type: ConditionResourceProperty, Field: ResourceFieldStatus, Operator: OpIn, Value: []string{"submitted", "under_review"}},
			}},
		{ID: "report.view", Name: "View reports", Resource: "report", Action: "view"},
		{ID: "audit.view", Name: "View audit log", Resource: "audit", Action: "view"},
		{ID: "user.manage", Name: "Manage users", Resource: "user", Action: "manage"},
		{ID: "system.configure", Name: "Configure system", Resource: "system", Action: "configure",
			Conditions: []Condition{
				{Type: ConditionLocation, Field: LocationFieldNetwork, Operator: OpEquals, Value: "internal"},
			},
			Description: "Only from the internal network"},
	}
}

// DefaultRoles is the consumer <- agent <- manager <- admin chain.
func DefaultRoles() []Role {
	return []Role{
		{ID: RoleConsumer, Name: "Consumer", IsSystem: true,
			Permissions: []string{"policy.view.own", "claim.submit", "claim.view.own"}},
		{ID: RoleAgent, Name: "Agent", IsSystem: true, InheritsFrom: []string{RoleConsumer},
			Permissions: []string{"policy.view.all", "policy.create", "claim.view.all"}},
		{ID: RoleManager, Name: "Manager", IsSystem: true, InheritsFrom: []string{RoleAgent},
			Permissions: []string{"policy.update", "policy.approve", "claim.approve", "report.view", "audit.view"}},
		{ID: RoleAdmin, Name: "Administrator", IsSystem: true, InheritsFrom: []string{RoleManager},
			Permissions: []string{"user.manage", "system.configure"}},
	}
}

// CommonPermissions lists, per role, the decisions worth precomputing at login.
func CommonPermissions() map[string][]string {
	return map[string][]string{
		RoleConsumer: {"policy.view.own", "claim.view.own"},
		RoleAgent:    {"policy.view.all", "claim.view.all", "policy.create"},
		RoleManager:  {"report.view", "audit.view", "policy.update"},
		RoleAdmin:    {"user.manage", "audit.view", "report.view"},
	}
}

// SeedDefaults registers DefaultPermissions and DefaultRoles.
func SeedDefaults(r *Registry) error {
	for _, p := range DefaultPermissions() {
		if err := r.CreatePermission(p); err != nil {
			return fmt.Errorf("seed permission: %w", err)
		}
	}
	for _, role := range DefaultRoles() {
		if err := r.CreateRole(role); err != nil {
			return fmt.Errorf("seed role: %w", err)
		}
	}
	return nil
}
