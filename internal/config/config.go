// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

// Package config loads Bastion configuration from layered sources:
// built-in defaults, an optional YAML file, then environment variables.
//
// Environment variables use flat legacy names (AUDIT_RETENTION_STANDARD,
// CACHE_SESSION_TTL) mapped onto nested koanf paths; unmapped variables are
// ignored so the process environment cannot pollute configuration.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	RBAC       RBACConfig       `koanf:"rbac"`
	Audit      AuditConfig      `koanf:"audit"`
	Cache      CacheConfig      `koanf:"cache"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// ServerConfig describes the running process.
type ServerConfig struct {
	// Environment is development, staging or production. Production enables
	// durable audit forwarding.
	Environment string `koanf:"environment"`
	ServiceName string `koanf:"service_name"`
	Version     string `koanf:"version"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// RBACConfig configures role assignment lookup.
type RBACConfig struct {
	// AssignmentProvider is "memory" or "casbin".
	AssignmentProvider string `koanf:"assignment_provider"`

	// AssignmentsPath is an optional casbin CSV file of "g, user, role" lines.
	AssignmentsPath string `koanf:"assignments_path"`

	// AutoReloadInterval reloads AssignmentsPath periodically; 0 disables.
	AutoReloadInterval time.Duration `koanf:"auto_reload_interval"`

	SeedDefaults bool `koanf:"seed_defaults"`
}

// AuditConfig configures the audit service and its durable forwarding.
type AuditConfig struct {
	StandardRetentionYears int           `koanf:"standard_retention_years"`
	ExtendedRetentionYears int           `koanf:"extended_retention_years"`
	SweepInterval          time.Duration `koanf:"sweep_interval"`

	// SoftCap logs a warning when the store grows beyond it; 0 disables.
	SoftCap int `koanf:"soft_cap"`

	ForwardBufferSize int `koanf:"forward_buffer_size"`

	// SinkPath is the badger directory for forwarded events. Empty runs
	// badger in memory.
	SinkPath string `koanf:"sink_path"`

	BreakerMaxRequests uint32        `koanf:"breaker_max_requests"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`

	SecurityTopic string `koanf:"security_topic"`
}

// CacheConfig configures the auth cache namespaces.
type CacheConfig struct {
	SessionTTL      time.Duration `koanf:"session_ttl"`
	PermissionTTL   time.Duration `koanf:"permission_ttl"`
	RoleTTL         time.Duration `koanf:"role_ttl"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	MaxEntries      int           `koanf:"max_entries"`
}

// SupervisorConfig mirrors supervisor.TreeConfig.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// IsProduction reports whether the environment is production.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
