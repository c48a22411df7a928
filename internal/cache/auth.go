// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/bastion/internal/identity"
	"github.com/tomtom215/bastion/internal/logging"
	"github.com/tomtom215/bastion/internal/metrics"
	"github.com/tomtom215/bastion/internal/rbac"
	"github.com/tomtom215/bastion/internal/validation"
)

// Namespace names.
const (
	NamespaceSession    = "session"
	NamespacePermission = "permission"
	NamespaceRole       = "role"
)

// TagRBAC marks entries derived from the role topology.
const TagRBAC = "rbac"

// UserTag returns the tag carried by every entry derived from userID.
func UserTag(userID string) string {
	return "user:" + userID
}

// PermissionTag returns the tag carried by cached decisions for permissionID.
func PermissionTag(permissionID string) string {
	return "permission:" + permissionID
}

// SessionEntry is the cached session for one user.
type SessionEntry struct {
	User         identity.User `json:"user"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
}

// AuthCacheConfig configures NewAuthCache.
type AuthCacheConfig struct {
	SessionTTL    time.Duration
	PermissionTTL time.Duration
	RoleTTL       time.Duration

	// MaxEntries caps each namespace; <= 0 disables the cap.
	MaxEntries int

	// CommonPermissions lists, per role, the permission ids WarmCache
	// evaluates at login.
	CommonPermissions map[string][]string

	// Clock overrides time.Now.
	Clock func() time.Time
}

// DefaultAuthCacheConfig returns 15m sessions, 5m decisions and 30m role
// lists with the stock common-permission table.
func DefaultAuthCacheConfig() AuthCacheConfig {
	return AuthCacheConfig{
		SessionTTL:        15 * time.Minute,
		PermissionTTL:     5 * time.Minute,
		RoleTTL:           30 * time.Minute,
		MaxEntries:        DefaultMaxEntries,
		CommonPermissions: rbac.CommonPermissions(),
	}
}

// Authorizer is the subset of the engine WarmCache drives.
type Authorizer interface {
	GetUserRoles(ctx context.Context, userID string) []string
	HasPermission(ctx context.Context, userID, permissionID string, ec *rbac.EvalContext) bool
}

// AuthStats holds the per-namespace statistics.
type AuthStats struct {
	Session    Stats `json:"session"`
	Permission Stats `json:"permission"`
	Role       Stats `json:"role"`
}

// AuthCache memoizes sessions, role lists and permission decisions.
//
// Coherency: every user has an epoch, and there is one global epoch for the
// role topology. Invalidation bumps the relevant epoch and removes tagged
// entries while holding mu exclusively; the IfCurrent writers compare the
// epoch they read before computing against the current one while holding mu
// shared. A decision computed before an invalidation is therefore never
// stored after it.
//
// Per-user epochs are folded into the global epoch whenever it moves, and
// by Cleanup once more than maxUserEpochs users are tracked, so the map only
// holds users invalidated since the last fold.
type AuthCache struct {
	config AuthCacheConfig
	now    func() time.Time

	sessions    *Tagged[SessionEntry]
	permissions *Tagged[bool]
	roles       *Tagged[[]string]

	mu          sync.RWMutex
	globalEpoch uint64
	userEpochs  map[string]uint64
	epochLimit  int
}

// maxUserEpochs bounds the per-user epoch map between folds.
const maxUserEpochs = 10000

var _ rbac.DecisionCache = (*AuthCache)(nil)

// NewAuthCache creates the three namespaces. Zero TTLs fall back to the
// defaults.
func NewAuthCache(cfg AuthCacheConfig) *AuthCache {
	def := DefaultAuthCacheConfig()
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.PermissionTTL <= 0 {
		cfg.PermissionTTL = def.PermissionTTL
	}
	if cfg.RoleTTL <= 0 {
		cfg.RoleTTL = def.RoleTTL
	}
	if cfg.CommonPermissions == nil {
		cfg.CommonPermissions = def.CommonPermissions
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	opts := []Option{WithMaxEntries(cfg.MaxEntries), WithClock(now)}
	return &AuthCache{
		config:      cfg,
		now:         now,
		sessions:    NewTagged[SessionEntry](NamespaceSession, opts...),
		permissions: NewTagged[bool](NamespacePermission, opts...),
		roles:       NewTagged[[]string](NamespaceRole, opts...),
		userEpochs:  make(map[string]uint64),
		epochLimit:  maxUserEpochs,
	}
}

// CacheSession stores a fresh session for user.
func (a *AuthCache) CacheSession(user identity.User) {
	if !user.Valid() {
		return
	}
	now := a.now()
	a.sessions.Put(user.ID, SessionEntry{
		User:         user,
		CreatedAt:    now,
		LastActivity: now,
	}, a.config.SessionTTL, []string{UserTag(user.ID)})
}

// GetSessionFromCache returns the user's session and records activity. The
// session's expiry is not extended.
func (a *AuthCache) GetSessionFromCache(userID string) (SessionEntry, bool) {
	now := a.now()
	return a.sessions.Update(userID, func(s *SessionEntry) {
		s.LastActivity = now
	})
}

// InvalidateSession removes the session and every entry tagged with the user
// in all namespaces, and makes in-flight decisions for the user stale.
func (a *AuthCache) InvalidateSession(userID string) {
	a.mu.Lock()
	a.userEpochs[userID]++
	a.sessions.Invalidate(userID)
	tag := UserTag(userID)
	removed := a.sessions.InvalidateByTag(tag) +
		a.permissions.InvalidateByTag(tag) +
		a.roles.InvalidateByTag(tag)
	a.mu.Unlock()

	logging.Debug().Str("user_id", userID).Int("removed", removed).Msg("Session invalidated")
}

// InvalidateUserAuthority drops the user's cached roles and decisions but
// keeps the session. Called after role assignment changes.
func (a *AuthCache) InvalidateUserAuthority(userID string) {
	a.mu.Lock()
	a.userEpochs[userID]++
	tag := UserTag(userID)
	removed := a.permissions.InvalidateByTag(tag) + a.roles.InvalidateByTag(tag)
	a.mu.Unlock()

	logging.Debug().Str("user_id", userID).Int("removed", removed).Msg("User authority invalidated")
}

// InvalidateRoleResolution drops every role list and decision derived from
// the role topology.
func (a *AuthCache) InvalidateRoleResolution() {
	a.mu.Lock()
	a.foldEpochsLocked()
	removed := a.roles.InvalidateByTag(TagRBAC) + a.permissions.InvalidateByTag(TagRBAC)
	a.mu.Unlock()

	logging.Debug().Int("removed", removed).Msg("Role resolution invalidated")
}

// InvalidateByTag removes entries carrying tag from every namespace and
// returns how many were removed. Entries without the tag are kept. All
// in-flight IfCurrent writes become stale, since the tag may cover any user.
func (a *AuthCache) InvalidateByTag(tag string) int {
	a.mu.Lock()
	a.foldEpochsLocked()
	removed := a.sessions.InvalidateByTag(tag) +
		a.permissions.InvalidateByTag(tag) +
		a.roles.InvalidateByTag(tag)
	a.mu.Unlock()

	logging.Debug().Str("tag", tag).Int("removed", removed).Msg("Tag invalidated")
	return removed
}

// foldEpochsLocked advances the global epoch past every combined epoch
// handed out so far and forgets the per-user epochs. Every user's epoch
// strictly increases, so writes holding an older epoch are still rejected.
func (a *AuthCache) foldEpochsLocked() {
	var highest uint64
	for _, e := range a.userEpochs {
		if e > highest {
			highest = e
		}
	}
	a.globalEpoch += highest + 1
	clear(a.userEpochs)
}

// Epoch returns the combined global and per-user epoch. Callers read it
// before computing a value and pass it to an IfCurrent writer.
func (a *AuthCache) Epoch(userID string) uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.epochLocked(userID)
}

func (a *AuthCache) epochLocked(userID string) uint64 {
	return a.globalEpoch + a.userEpochs[userID]
}

// CacheUserRoles stores roles unconditionally.
func (a *AuthCache) CacheUserRoles(userID string, roles []string) {
	a.roles.Put(userID, append([]string(nil), roles...), a.config.RoleTTL, []string{UserTag(userID), TagRBAC})
}

// CacheUserRolesIfCurrent stores roles only if no invalidation affecting the
// user happened since epoch was read.
func (a *AuthCache) CacheUserRolesIfCurrent(userID string, roles []string, epoch uint64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.epochLocked(userID) != epoch {
		metrics.CacheStaleWritesDropped.WithLabelValues(NamespaceRole).Inc()
		return false
	}
	a.CacheUserRoles(userID, roles)
	return true
}

// GetCachedUserRoles returns a copy of the cached role list.
func (a *AuthCache) GetCachedUserRoles(userID string) ([]string, bool) {
	roles, ok := a.roles.Get(userID)
	if !ok {
		return nil, false
	}
	return append([]string(nil), roles...), true
}

type permissionKey struct {
	User        string `json:"u"`
	Permission  string `json:"p"`
	Fingerprint string `json:"f"`
}

func (a *AuthCache) permissionKey(userID, permissionID, fingerprint string) string {
	return GenerateKey("perm", permissionKey{User: userID, Permission: permissionID, Fingerprint: fingerprint})
}

// CachePermissionResult stores a decision unconditionally.
func (a *AuthCache) CachePermissionResult(userID, permissionID, fingerprint string, allowed bool) {
	a.permissions.Put(
		a.permissionKey(userID, permissionID, fingerprint),
		allowed,
		a.config.PermissionTTL,
		[]string{UserTag(userID), PermissionTag(permissionID), TagRBAC},
	)
}

// CachePermissionResultIfCurrent stores a decision only if no invalidation
// affecting the user happened since epoch was read.
func (a *AuthCache) CachePermissionResultIfCurrent(userID, permissionID, fingerprint string, allowed bool, epoch uint64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.epochLocked(userID) != epoch {
		metrics.CacheStaleWritesDropped.WithLabelValues(NamespacePermission).Inc()
		return false
	}
	a.CachePermissionResult(userID, permissionID, fingerprint, allowed)
	return true
}

// CheckCachedPermission returns a cached decision.
func (a *AuthCache) CheckCachedPermission(userID, permissionID, fingerprint string) (allowed, found bool) {
	return a.permissions.Get(a.permissionKey(userID, permissionID, fingerprint))
}

// WarmResult reports what WarmCache computed.
type WarmResult struct {
	Roles     []string
	Decisions map[string]bool
}

// WarmCache caches the user's session and role list and evaluates the
// common permissions configured for the user's role. Decisions are cached by
// the authorizer when it is wired to this cache.
func (a *AuthCache) WarmCache(ctx context.Context, user identity.User, authz Authorizer) (WarmResult, error) {
	if verr := validation.ValidateStruct(user); verr != nil {
		return WarmResult{}, fmt.Errorf("warm cache: %w", verr)
	}
	if err := ctx.Err(); err != nil {
		return WarmResult{}, fmt.Errorf("warm cache: %w", err)
	}

	a.CacheSession(user)

	epoch := a.Epoch(user.ID)
	roles := authz.GetUserRoles(ctx, user.ID)
	a.CacheUserRolesIfCurrent(user.ID, roles, epoch)

	ec := &rbac.EvalContext{User: &rbac.UserContext{
		ID:    user.ID,
		Role:  user.Role,
		Email: user.Email,
		Name:  user.Name,
	}}
	result := WarmResult{Roles: roles, Decisions: make(map[string]bool)}
	for _, permissionID := range a.config.CommonPermissions[user.Role] {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("warm cache: %w", err)
		}
		result.Decisions[permissionID] = authz.HasPermission(ctx, user.ID, permissionID, ec)
	}

	logging.Ctx(ctx).Debug().
		Str("user_id", user.ID).
		Int("roles", len(roles)).
		Int("decisions", len(result.Decisions)).
		Msg("Cache warmed")
	return result, nil
}

// Stats returns statistics for each namespace.
func (a *AuthCache) Stats() AuthStats {
	return AuthStats{
		Session:    a.sessions.Stats(),
		Permission: a.permissions.Stats(),
		Role:       a.roles.Stats(),
	}
}

// Cleanup removes expired entries from every namespace and folds the
// per-user epochs once too many users are tracked.
func (a *AuthCache) Cleanup(ctx context.Context) int {
	a.mu.Lock()
	if len(a.userEpochs) > a.epochLimit {
		a.foldEpochsLocked()
	}
	a.mu.Unlock()

	removed := a.sessions.Cleanup(ctx)
	removed += a.permissions.Cleanup(ctx)
	removed += a.roles.Cleanup(ctx)
	return removed
}

// MemoryUsage returns the estimated footprint of all namespaces. Encoding
// failures are logged and the partial estimate is returned.
func (a *AuthCache) MemoryUsage() int64 {
	var total int64
	for _, ns := range []interface {
		Name() string
		MemoryUsage() (int64, error)
	}{a.sessions, a.permissions, a.roles} {
		n, err := ns.MemoryUsage()
		if err != nil {
			logging.Warn().Err(err).Str("namespace", ns.Name()).Msg("Cache memory estimate incomplete")
		}
		total += n
	}
	return total
}
