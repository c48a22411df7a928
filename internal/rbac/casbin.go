// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package rbac

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/bastion/internal/logging"
)

// assignmentModel only uses casbin's grouping policy: "g, user, role".
// Permission checks are answered by the Engine, not by casbin matchers.
const assignmentModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// CasbinConfig configures CasbinAssignments.
type CasbinConfig struct {
	// PolicyPath is a CSV file of "g, user, role" lines. Empty keeps
	// assignments in memory only.
	PolicyPath string

	// Seed is loaded when no PolicyPath is set, one "g, user, role" per line.
	Seed string
}

// CasbinAssignments resolves direct roles from a casbin grouping policy.
type CasbinAssignments struct {
	config   CasbinConfig
	enforcer *casbin.SyncedEnforcer
}

// NewCasbinAssignments creates the provider and loads the policy.
func NewCasbinAssignments(config CasbinConfig) (*CasbinAssignments, error) {
	m, err := model.NewModelFromString(assignmentModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	if config.PolicyPath != "" && !fileExists(config.PolicyPath) {
		if err := os.WriteFile(config.PolicyPath, nil, 0o600); err != nil {
			return nil, fmt.Errorf("failed to create policy file %s: %w", config.PolicyPath, err)
		}
	}

	var enforcer *casbin.SyncedEnforcer
	if config.PolicyPath != "" {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(config.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadGroupingPolicy(enforcer, config.Seed)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	return &CasbinAssignments{config: config, enforcer: enforcer}, nil
}

func loadGroupingPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) < 3 || parts[0] != "g" {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
			return fmt.Errorf("failed to add grouping policy %v: %w", parts[1:], err)
		}
	}
	return nil
}

// DirectRoles returns the roles directly assigned to userID.
func (c *CasbinAssignments) DirectRoles(_ context.Context, userID string) ([]string, error) {
	roles, err := c.enforcer.GetRolesForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("casbin role lookup for %s: %w", userID, err)
	}
	return roles, nil
}

// Assign adds a grouping rule and persists it when a policy file is configured.
func (c *CasbinAssignments) Assign(_ context.Context, userID, roleID string) error {
	if _, err := c.enforcer.AddGroupingPolicy(userID, roleID); err != nil {
		return fmt.Errorf("failed to add role: %w", err)
	}
	return c.persist()
}

// Revoke removes a grouping rule and persists it when a policy file is configured.
func (c *CasbinAssignments) Revoke(_ context.Context, userID, roleID string) error {
	if _, err := c.enforcer.RemoveGroupingPolicy(userID, roleID); err != nil {
		return fmt.Errorf("failed to remove role: %w", err)
	}
	return c.persist()
}

func (c *CasbinAssignments) persist() error {
	if c.config.PolicyPath == "" {
		return nil
	}
	if err := c.enforcer.SavePolicy(); err != nil {
		logging.Warn().Err(err).Str("path", c.config.PolicyPath).Msg("Failed to persist role assignments")
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

// Reload re-reads the policy file. It is the only way file edits become
// visible, so callers must invalidate cached role resolution afterwards.
func (c *CasbinAssignments) Reload() error {
	if c.config.PolicyPath == "" {
		return nil
	}
	return c.enforcer.LoadPolicy()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
