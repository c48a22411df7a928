// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package rbac

import (
	"context"
	"sync"
)

// AssignmentProvider is the authoritative source of a user's directly
// assigned roles. Inherited roles are resolved by the Engine.
type AssignmentProvider interface {
	DirectRoles(ctx context.Context, userID string) ([]string, error)
}

// RoleAssigner is implemented by providers that accept writes.
type RoleAssigner interface {
	Assign(ctx context.Context, userID, roleID string) error
	Revoke(ctx context.Context, userID, roleID string) error
}

// MemoryAssignments keeps user to role assignments in process memory.
type MemoryAssignments struct {
	mu    sync.RWMutex
	roles map[string][]string
}

// NewMemoryAssignments creates an empty assignment table.
func NewMemoryAssignments() *MemoryAssignments {
	return &MemoryAssignments{roles: make(map[string][]string)}
}

// DirectRoles returns the roles assigned to userID in assignment order.
func (m *MemoryAssignments) DirectRoles(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.roles[userID]...), nil
}

// Assign adds roleID to userID. Assigning an existing role is a no-op.
func (m *MemoryAssignments) Assign(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles[userID] {
		if r == roleID {
			return nil
		}
	}
	m.roles[userID] = append(m.roles[userID], roleID)
	return nil
}

// Revoke removes roleID from userID.
func (m *MemoryAssignments) Revoke(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.roles[userID]
	kept := current[:0]
	for _, r := range current {
		if r != roleID {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(m.roles, userID)
		return nil
	}
	m.roles[userID] = kept
	return nil
}
