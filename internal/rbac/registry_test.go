// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package rbac

import (
	"errors"
	"reflect"
	"testing"
)

func TestRegistry_CreatePermission(t *testing.T) {
	r := NewRegistry()

	if err := r.CreatePermission(Permission{ID: "doc.read", Resource: "doc", Action: "read"}); err != nil {
		t.Fatalf("CreatePermission() error = %v", err)
	}

	tests := []struct {
		name    string
		perm    Permission
		wantErr error
	}{
		{"duplicate", Permission{ID: "doc.read", Resource: "doc", Action: "read"}, ErrPermissionExists},
		{"missing id", Permission{Resource: "doc", Action: "read"}, ErrInvalidDefinition},
		{"missing action", Permission{ID: "doc.x", Resource: "doc"}, ErrInvalidDefinition},
		{"bad condition type", Permission{ID: "doc.y", Resource: "doc", Action: "read",
			Conditions: []Condition{{Type: "geo", Field: "x", Operator: OpEquals}}}, ErrInvalidCondition},
		{"bad operator", Permission{ID: "doc.z", Resource: "doc", Action: "read",
			Conditions: []Condition{{Type: ConditionLocation, Field: LocationFieldIP, Operator: "matches"}}}, ErrInvalidCondition},
		{"typo in field", Permission{ID: "doc.w", Resource: "doc", Action: "read",
			Conditions: []Condition{{Type: ConditionResourceProperty, Field: "ownerr", Operator: OpEquals, Value: CurrentUser}}}, ErrInvalidCondition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.CreatePermission(tt.perm)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreatePermission() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if got := len(r.Permissions()); got != 1 {
		t.Errorf("rejected permissions must not be registered, have %d", got)
	}
}

func TestRegistry_Roles(t *testing.T) {
	r := NewRegistry()
	changes := 0
	r.OnTopologyChange(func() { changes++ })

	if err := r.CreateRole(Role{ID: "sys", IsSystem: true}); err != nil {
		t.Fatalf("CreateRole(sys) error = %v", err)
	}
	if err := r.CreateRole(Role{ID: "temp", Permissions: []string{"a", "a", "", "b"}}); err != nil {
		t.Fatalf("CreateRole(temp) error = %v", err)
	}
	if err := r.CreateRole(Role{ID: "temp"}); !errors.Is(err, ErrRoleExists) {
		t.Errorf("duplicate CreateRole() error = %v, want ErrRoleExists", err)
	}
	if err := r.CreateRole(Role{}); !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("CreateRole(empty) error = %v, want ErrInvalidDefinition", err)
	}

	role, ok := r.Role("temp")
	if !ok {
		t.Fatal("Role(temp) not found")
	}
	if !reflect.DeepEqual(role.Permissions, []string{"a", "b"}) {
		t.Errorf("Permissions = %v, want deduplicated [a b]", role.Permissions)
	}

	if err := r.DeleteRole("sys"); !errors.Is(err, ErrSystemRole) {
		t.Errorf("DeleteRole(sys) error = %v, want ErrSystemRole", err)
	}
	if err := r.DeleteRole("missing"); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("DeleteRole(missing) error = %v, want ErrRoleNotFound", err)
	}
	if err := r.DeleteRole("temp"); err != nil {
		t.Errorf("DeleteRole(temp) error = %v", err)
	}
	if _, ok := r.Role("temp"); ok {
		t.Error("temp should be gone")
	}

	if changes != 3 {
		t.Errorf("topology listeners ran %d times, want 3 (two creates, one delete)", changes)
	}
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	r := NewRegistry()
	if err := r.CreateRole(Role{ID: "a", Permissions: []string{"p1"}}); err != nil {
		t.Fatal(err)
	}
	role, _ := r.Role("a")
	role.Permissions[0] = "tampered"

	again, _ := r.Role("a")
	if again.Permissions[0] != "p1" {
		t.Errorf("registry state was mutated through a returned copy")
	}
}

func TestRegistry_PermissionsFor(t *testing.T) {
	r := NewRegistry()
	for _, p := range []Permission{
		{ID: "claim.view.own", Resource: "claim", Action: "view"},
		{ID: "claim.approve", Resource: "claim", Action: "approve"},
		{ID: "claim.view.all", Resource: "claim", Action: "view"},
	} {
		if err := r.CreatePermission(p); err != nil {
			t.Fatal(err)
		}
	}

	got := r.PermissionsFor("claim", "view")
	want := []string{"claim.view.own", "claim.view.all"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PermissionsFor() = %v, want %v", got, want)
	}
	if got := r.PermissionsFor("claim", "delete"); len(got) != 0 {
		t.Errorf("PermissionsFor(delete) = %v, want empty", got)
	}
}

func TestRegistry_Closure(t *testing.T) {
	r := NewRegistry()
	for _, role := range []Role{
		{ID: "A", InheritsFrom: []string{"B"}},
		{ID: "B", InheritsFrom: []string{"A", "C", "ghost"}},
		{ID: "C"},
	} {
		if err := r.CreateRole(role); err != nil {
			t.Fatal(err)
		}
	}

	got := r.closure([]string{"A", "A"})
	want := []string{"A", "B", "C"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("closure() = %v, want %v", got, want)
	}
	if got := r.closure([]string{"ghost"}); len(got) != 0 {
		t.Errorf("unknown roles should be omitted, got %v", got)
	}
}

func TestSeedDefaults(t *testing.T) {
	r := NewRegistry()
	if err := SeedDefaults(r); err != nil {
		t.Fatalf("SeedDefaults() error = %v", err)
	}
	if err := SeedDefaults(r); !errors.Is(err, ErrPermissionExists) {
		t.Errorf("second SeedDefaults() error = %v, want ErrPermissionExists", err)
	}

	got := r.closure([]string{RoleAdmin})
	want := []string{RoleAdmin, RoleManager, RoleAgent, RoleConsumer}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("admin closure = %v, want %v", got, want)
	}

	for role, perms := range CommonPermissions() {
		if _, ok := r.Role(role); !ok {
			t.Errorf("CommonPermissions names unknown role %q", role)
		}
		for _, p := range perms {
			if _, ok := r.Permission(p); !ok {
				t.Errorf("CommonPermissions[%s] names unknown permission %q", role, p)
			}
		}
	}
}
