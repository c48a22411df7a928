// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package rbac

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tomtom215/bastion/internal/validation"
)

type permissionEntry struct {
	perm    Permission
	conds   []compiledCondition
	dynamic bool
}

type roleEntry struct {
	role     Role
	permSet  map[string]struct{}
	inherits []string
}

// Registry holds permission and role definitions.
type Registry struct {
	mu          sync.RWMutex
	permissions map[string]*permissionEntry
	roles       map[string]*roleEntry
	byAction    map[string][]string // "resource\x00action" -> permission ids in registration order

	listenersMu sync.RWMutex
	listeners   []func()
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		permissions: make(map[string]*permissionEntry),
		roles:       make(map[string]*roleEntry),
		byAction:    make(map[string][]string),
	}
}

// OnTopologyChange registers fn to run after a role is created or deleted.
func (r *Registry) OnTopologyChange(fn func()) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) notify() {
	r.listenersMu.RLock()
	listeners := append([]func(){}, r.listeners...)
	r.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

func actionKey(resource, action string) string {
	return resource + "\x00" + action
}

// CreatePermission registers p. Conditions are compiled here, so unknown
// condition types, operators and fields are rejected with ErrInvalidCondition.
func (r *Registry) CreatePermission(p Permission) error {
	if verr := validation.ValidateStruct(&p); verr != nil {
		for _, f := range verr.Fields() {
			if strings.HasPrefix(f, "Conditions") {
				return fmt.Errorf("%w: permission %q: %s", ErrInvalidCondition, p.ID, verr.Error())
			}
		}
		return fmt.Errorf("%w: permission %q: %s", ErrInvalidDefinition, p.ID, verr.Error())
	}

	conds := make([]compiledCondition, 0, len(p.Conditions))
	for _, c := range p.Conditions {
		cc, err := compileCondition(c)
		if err != nil {
			return fmt.Errorf("permission %q: %w", p.ID, err)
		}
		conds = append(conds, cc)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.permissions[p.ID]; exists {
		return fmt.Errorf("%w: %s", ErrPermissionExists, p.ID)
	}
	r.permissions[p.ID] = &permissionEntry{
		perm:    p.clone(),
		conds:   conds,
		dynamic: hasDynamicInputs(conds),
	}
	key := actionKey(p.Resource, p.Action)
	r.byAction[key] = append(r.byAction[key], p.ID)
	return nil
}

// CreateRole registers role. Permission and parent ids need not exist yet;
// dangling references are treated as absent during resolution.
func (r *Registry) CreateRole(role Role) error {
	if verr := validation.ValidateStruct(&role); verr != nil {
		return fmt.Errorf("%w: role %q: %s", ErrInvalidDefinition, role.ID, verr.Error())
	}
	role.Permissions = dedupe(role.Permissions)
	role.InheritsFrom = dedupe(role.InheritsFrom)

	entry := &roleEntry{
		role:     role.clone(),
		permSet:  make(map[string]struct{}, len(role.Permissions)),
		inherits: role.InheritsFrom,
	}
	for _, id := range role.Permissions {
		entry.permSet[id] = struct{}{}
	}

	r.mu.Lock()
	if _, exists := r.roles[role.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRoleExists, role.ID)
	}
	r.roles[role.ID] = entry
	r.mu.Unlock()

	r.notify()
	return nil
}

// DeleteRole removes a non-system role.
func (r *Registry) DeleteRole(id string) error {
	r.mu.Lock()
	entry, ok := r.roles[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRoleNotFound, id)
	}
	if entry.role.IsSystem {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSystemRole, id)
	}
	delete(r.roles, id)
	r.mu.Unlock()

	r.notify()
	return nil
}

// Permission returns a copy of the permission with the given id.
func (r *Registry) Permission(id string) (Permission, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.permissions[id]
	if !ok {
		return Permission{}, false
	}
	return entry.perm.clone(), true
}

// Role returns a copy of the role with the given id.
func (r *Registry) Role(id string) (Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.roles[id]
	if !ok {
		return Role{}, false
	}
	return entry.role.clone(), true
}

// Permissions returns all permissions sorted by id.
func (r *Registry) Permissions() []Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Permission, 0, len(r.permissions))
	for _, entry := range r.permissions {
		out = append(out, entry.perm.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Roles returns all roles sorted by id.
func (r *Registry) Roles() []Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Role, 0, len(r.roles))
	for _, entry := range r.roles {
		out = append(out, entry.role.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PermissionsFor returns the ids of permissions on (resource, action) in
// registration order.
func (r *Registry) PermissionsFor(resource, action string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.byAction[actionKey(resource, action)]...)
}

func (r *Registry) permissionEntry(id string) (*permissionEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.permissions[id]
	return entry, ok
}

// closure expands direct role ids over InheritsFrom edges with a worklist
// and a visited set. The result is in breadth-first order from the direct
// roles, contains each registered role once, and omits unknown ids.
func (r *Registry) closure(direct []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	visited := make(map[string]struct{}, len(direct))
	queue := append([]string(nil), direct...)
	out := make([]string, 0, len(direct))

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}

		entry, ok := r.roles[id]
		if !ok {
			continue
		}
		out = append(out, id)
		for _, parent := range entry.inherits {
			if _, seen := visited[parent]; !seen {
				queue = append(queue, parent)
			}
		}
	}
	return out
}

// anyRoleGrants reports whether one of roles lists permissionID.
func (r *Registry) anyRoleGrants(roles []string, permissionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range roles {
		entry, ok := r.roles[id]
		if !ok {
			continue
		}
		if _, ok := entry.permSet[permissionID]; ok {
			return true
		}
	}
	return false
}

// grantedPermissions returns the registered permission ids listed by roles, sorted.
func (r *Registry) grantedPermissions(roles []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, id := range roles {
		entry, ok := r.roles[id]
		if !ok {
			continue
		}
		for pid := range entry.permSet {
			if _, registered := r.permissions[pid]; registered {
				seen[pid] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for pid := range seen {
		out = append(out, pid)
	}
	sort.Strings(out)
	return out
}
