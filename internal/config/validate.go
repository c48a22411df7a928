// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package config

import (
	"fmt"
	"time"
)

var validEnvironments = map[string]bool{
	"development": true,
	"staging":     true,
	"production":  true,
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// Validate checks that every section is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateRBAC(); err != nil {
		return err
	}
	if err := c.validateAudit(); err != nil {
		return err
	}
	return c.validateCache()
}

func (c *Config) validateServer() error {
	if !validEnvironments[c.Server.Environment] {
		return fmt.Errorf("BASTION_ENVIRONMENT must be one of: development, staging, production (got %q)", c.Server.Environment)
	}
	if c.Server.ServiceName == "" {
		return fmt.Errorf("BASTION_SERVICE_NAME is required")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

func (c *Config) validateRBAC() error {
	switch c.RBAC.AssignmentProvider {
	case "memory":
	case "casbin":
		if c.RBAC.AutoReloadInterval > 0 && c.RBAC.AssignmentsPath == "" {
			return fmt.Errorf("RBAC_AUTO_RELOAD_INTERVAL requires RBAC_ASSIGNMENTS_PATH")
		}
	default:
		return fmt.Errorf("RBAC_ASSIGNMENT_PROVIDER must be one of: memory, casbin (got %q)", c.RBAC.AssignmentProvider)
	}
	if c.RBAC.AutoReloadInterval < 0 {
		return fmt.Errorf("RBAC_AUTO_RELOAD_INTERVAL must not be negative")
	}
	return nil
}

func (c *Config) validateAudit() error {
	if c.Audit.StandardRetentionYears < 1 {
		return fmt.Errorf("AUDIT_RETENTION_STANDARD must be at least 1 year")
	}
	if c.Audit.ExtendedRetentionYears < c.Audit.StandardRetentionYears {
		return fmt.Errorf("AUDIT_RETENTION_EXTENDED (%d) must not be shorter than AUDIT_RETENTION_STANDARD (%d)",
			c.Audit.ExtendedRetentionYears, c.Audit.StandardRetentionYears)
	}
	if c.Audit.SweepInterval < time.Minute {
		return fmt.Errorf("AUDIT_SWEEP_INTERVAL must be at least 1m")
	}
	if c.Audit.ForwardBufferSize < 1 {
		return fmt.Errorf("AUDIT_FORWARD_BUFFER_SIZE must be positive")
	}
	if c.Audit.SoftCap < 0 {
		return fmt.Errorf("AUDIT_SOFT_CAP must not be negative")
	}
	if c.Audit.SecurityTopic == "" {
		return fmt.Errorf("AUDIT_SECURITY_TOPIC is required")
	}
	return nil
}

func (c *Config) validateCache() error {
	ttls := map[string]time.Duration{
		"CACHE_SESSION_TTL":    c.Cache.SessionTTL,
		"CACHE_PERMISSION_TTL": c.Cache.PermissionTTL,
		"CACHE_ROLE_TTL":       c.Cache.RoleTTL,
	}
	for name, ttl := range ttls {
		if ttl <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Cache.CleanupInterval <= 0 {
		return fmt.Errorf("CACHE_CLEANUP_INTERVAL must be positive")
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must not be negative")
	}
	return nil
}
