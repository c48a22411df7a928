// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations in priority order.
var DefaultConfigPaths = []string{
	"bastion.yaml",
	"bastion.yml",
	"/etc/bastion/config.yaml",
	"/etc/bastion/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Environment: "development",
			ServiceName: "bastion",
			Version:     "1.0.0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RBAC: RBACConfig{
			AssignmentProvider: "memory",
			AutoReloadInterval: 0,
			SeedDefaults:       true,
		},
		Audit: AuditConfig{
			StandardRetentionYears: 7,
			ExtendedRetentionYears: 10,
			SweepInterval:          24 * time.Hour,
			SoftCap:                1_000_000,
			ForwardBufferSize:      1024,
			SinkPath:               "/data/bastion/audit",
			BreakerMaxRequests:     3,
			BreakerTimeout:         30 * time.Second,
			SecurityTopic:          "audit.security",
		},
		Cache: CacheConfig{
			SessionTTL:      15 * time.Minute,
			PermissionTTL:   5 * time.Minute,
			RoleTTL:         30 * time.Minute,
			CleanupInterval: time.Minute,
			MaxEntries:      10_000,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5.0,
			FailureDecay:     30.0,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file and
// the environment, in that order of increasing precedence, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var envMappings = map[string]string{
	"bastion_environment":  "server.environment",
	"bastion_service_name": "server.service_name",
	"bastion_version":      "server.version",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"rbac_assignment_provider":  "rbac.assignment_provider",
	"rbac_assignments_path":     "rbac.assignments_path",
	"rbac_auto_reload_interval": "rbac.auto_reload_interval",
	"rbac_seed_defaults":        "rbac.seed_defaults",

	"audit_retention_standard":   "audit.standard_retention_years",
	"audit_retention_extended":   "audit.extended_retention_years",
	"audit_sweep_interval":       "audit.sweep_interval",
	"audit_soft_cap":             "audit.soft_cap",
	"audit_forward_buffer_size":  "audit.forward_buffer_size",
	"audit_sink_path":            "audit.sink_path",
	"audit_breaker_max_requests": "audit.breaker_max_requests",
	"audit_breaker_timeout":      "audit.breaker_timeout",
	"audit_security_topic":       "audit.security_topic",

	"cache_session_ttl":      "cache.session_ttl",
	"cache_permission_ttl":   "cache.permission_ttl",
	"cache_role_ttl":         "cache.role_ttl",
	"cache_cleanup_interval": "cache.cleanup_interval",
	"cache_max_entries":      "cache.max_entries",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc maps environment variable names to koanf paths.
// Unmapped keys return "" and are skipped.
//
//   - BASTION_ENVIRONMENT -> server.environment
//   - AUDIT_RETENTION_STANDARD -> audit.standard_retention_years
//   - CACHE_SESSION_TTL -> cache.session_ttl
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
