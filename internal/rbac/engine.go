// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package rbac

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/bastion/internal/logging"
	"github.com/tomtom215/bastion/internal/metrics"
)

// Strategy evaluates a custom condition. It must not block.
type Strategy func(ctx context.Context, userID string, ec *EvalContext, cond Condition) bool

// DecisionCache memoizes role resolution and permission decisions.
//
// Writers read Epoch before computing and store with the *IfCurrent
// methods; a store is dropped when the user's authority was invalidated in
// between, so a decision computed under stale authority is never cached.
type DecisionCache interface {
	Epoch(userID string) uint64
	GetCachedUserRoles(userID string) ([]string, bool)
	CacheUserRolesIfCurrent(userID string, roles []string, epoch uint64) bool
	CheckCachedPermission(userID, permissionID, fingerprint string) (allowed, found bool)
	CachePermissionResultIfCurrent(userID, permissionID, fingerprint string, allowed bool, epoch uint64) bool
	InvalidateUserAuthority(userID string)
	InvalidateRoleResolution()
}

// Engine answers authorization questions. It is safe for concurrent use.
type Engine struct {
	registry    *Registry
	assignments AssignmentProvider
	cache       DecisionCache
	clock       func() time.Time

	strategiesMu sync.RWMutex
	strategies   map[string]Strategy
}

// Option configures an Engine.
type Option func(*Engine)

// WithDecisionCache routes role and decision lookups through c.
func WithDecisionCache(c DecisionCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithClock sets the clock used when an EvalContext carries no time.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithStrategy registers a custom condition strategy.
func WithStrategy(name string, fn Strategy) Option {
	return func(e *Engine) { e.strategies[name] = fn }
}

// NewEngine creates an engine over registry and assignments. Nil arguments
// are replaced with empty in-memory implementations.
func NewEngine(registry *Registry, assignments AssignmentProvider, opts ...Option) *Engine {
	if registry == nil {
		registry = NewRegistry()
	}
	if assignments == nil {
		assignments = NewMemoryAssignments()
	}
	e := &Engine{
		registry:    registry,
		assignments: assignments,
		clock:       time.Now,
		strategies:  make(map[string]Strategy),
	}
	for _, opt := range opts {
		opt(e)
	}
	registry.OnTopologyChange(e.invalidateRoleResolution)
	return e
}

// Registry returns the underlying registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// CreatePermission registers a permission.
func (e *Engine) CreatePermission(p Permission) error {
	return e.registry.CreatePermission(p)
}

// CreateRole registers a role and invalidates every cached role resolution.
func (e *Engine) CreateRole(r Role) error {
	return e.registry.CreateRole(r)
}

// DeleteRole removes a non-system role and invalidates cached role resolution.
func (e *Engine) DeleteRole(id string) error {
	return e.registry.DeleteRole(id)
}

// RegisterStrategy makes fn available to custom conditions whose Field is name.
func (e *Engine) RegisterStrategy(name string, fn Strategy) {
	e.strategiesMu.Lock()
	defer e.strategiesMu.Unlock()
	e.strategies[name] = fn
}

func (e *Engine) invalidateRoleResolution() {
	if e.cache != nil {
		e.cache.InvalidateRoleResolution()
	}
}

// GetUserRoles returns the user's effective roles: the direct roles from the
// assignment provider followed by everything reachable over InheritsFrom,
// each once, in breadth-first order. Provider failures resolve to no roles.
func (e *Engine) GetUserRoles(ctx context.Context, userID string) []string {
	if userID == "" {
		return nil
	}

	var epoch uint64
	if e.cache != nil {
		if roles, ok := e.cache.GetCachedUserRoles(userID); ok {
			metrics.RecordAuthzCacheLookup("roles", true)
			return roles
		}
		metrics.RecordAuthzCacheLookup("roles", false)
		epoch = e.cache.Epoch(userID)
	}

	direct, err := e.assignments.DirectRoles(ctx, userID)
	if err != nil {
		metrics.AuthzAssignmentErrors.Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("Role assignment lookup failed, denying")
		return nil
	}

	roles := e.registry.closure(direct)
	metrics.AuthzRoleClosureSize.Observe(float64(len(roles)))

	if e.cache != nil {
		e.cache.CacheUserRolesIfCurrent(userID, roles, epoch)
	}
	return roles
}

// HasPermission reports whether userID holds permissionID under ec.
// Unknown permissions, users without a granting role and failing or
// unresolvable conditions all yield false.
func (e *Engine) HasPermission(ctx context.Context, userID, permissionID string, ec *EvalContext) bool {
	start := time.Now()
	allowed := e.check(ctx, userID, permissionID, ec)
	metrics.RecordAuthzDecision("permission", allowed, time.Since(start))
	return allowed
}

// HasResourcePermission reports whether any permission registered for
// (resource, action) is granted to userID under ec.
func (e *Engine) HasResourcePermission(ctx context.Context, userID, resource, action string, ec *EvalContext) bool {
	start := time.Now()
	allowed := false
	for _, id := range e.registry.PermissionsFor(resource, action) {
		if e.check(ctx, userID, id, ec) {
			allowed = true
			break
		}
	}
	metrics.RecordAuthzDecision("resource", allowed, time.Since(start))
	return allowed
}

// EffectivePermissions returns the permission ids reachable through the
// user's effective roles, ignoring conditions.
func (e *Engine) EffectivePermissions(ctx context.Context, userID string) []string {
	return e.registry.grantedPermissions(e.GetUserRoles(ctx, userID))
}

func (e *Engine) check(ctx context.Context, userID, permissionID string, ec *EvalContext) bool {
	if userID == "" {
		return false
	}
	entry, ok := e.registry.permissionEntry(permissionID)
	if !ok {
		return false
	}

	// Decisions that depend on the clock or on a strategy are never cached.
	cacheable := e.cache != nil && !entry.dynamic
	fingerprint := ""
	if cacheable && len(entry.conds) > 0 {
		fingerprint, cacheable = decisionFingerprint(entry.conds, &evalEnv{subject: userID, ec: ec})
	}

	var epoch uint64
	if cacheable {
		epoch = e.cache.Epoch(userID)
		if allowed, found := e.cache.CheckCachedPermission(userID, permissionID, fingerprint); found {
			metrics.RecordAuthzCacheLookup("permission", true)
			return allowed
		}
		metrics.RecordAuthzCacheLookup("permission", false)
	}

	allowed := e.registry.anyRoleGrants(e.GetUserRoles(ctx, userID), permissionID) &&
		e.evaluateConditions(ctx, userID, entry.conds, ec)

	if cacheable {
		e.cache.CachePermissionResultIfCurrent(userID, permissionID, fingerprint, allowed, epoch)
	}
	return allowed
}

func (e *Engine) evaluateConditions(ctx context.Context, userID string, conds []compiledCondition, ec *EvalContext) bool {
	if len(conds) == 0 {
		return true
	}
	env := &evalEnv{subject: userID, ec: ec, now: e.clock()}
	for i := range conds {
		cc := &conds[i]
		if cc.Type == ConditionCustom {
			if !e.evaluateCustom(ctx, userID, ec, cc.Condition) {
				return false
			}
			continue
		}
		if !cc.evaluate(env) {
			return false
		}
	}
	return true
}

func (e *Engine) evaluateCustom(ctx context.Context, userID string, ec *EvalContext, cond Condition) (ok bool) {
	e.strategiesMu.RLock()
	fn, found := e.strategies[cond.Field]
	e.strategiesMu.RUnlock()
	if !found || fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().Str("strategy", cond.Field).Interface("panic", r).Msg("Custom condition strategy panicked, denying")
			ok = false
		}
	}()
	return fn(ctx, userID, ec, cond)
}

// AssignRole gives userID the registered role roleID and drops the user's
// cached roles and decisions.
func (e *Engine) AssignRole(ctx context.Context, userID, roleID string) error {
	if _, ok := e.registry.Role(roleID); !ok {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	assigner, ok := e.assignments.(RoleAssigner)
	if !ok {
		return ErrAssignmentsReadOnly
	}
	if err := assigner.Assign(ctx, userID, roleID); err != nil {
		return fmt.Errorf("assign %s to %s: %w", roleID, userID, err)
	}
	e.invalidateUser(userID)
	return nil
}

// RevokeRole removes roleID from userID and drops the user's cached
// roles and decisions.
func (e *Engine) RevokeRole(ctx context.Context, userID, roleID string) error {
	assigner, ok := e.assignments.(RoleAssigner)
	if !ok {
		return ErrAssignmentsReadOnly
	}
	if err := assigner.Revoke(ctx, userID, roleID); err != nil {
		return fmt.Errorf("revoke %s from %s: %w", roleID, userID, err)
	}
	e.invalidateUser(userID)
	return nil
}

func (e *Engine) invalidateUser(userID string) {
	if e.cache != nil {
		e.cache.InvalidateUserAuthority(userID)
	}
}
