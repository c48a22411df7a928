// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

// Package main is the entry point for the Bastion process.
//
// Bastion hosts the authorization engine, the compliance audit trail and the
// auth cache. The binary builds those components from configuration and runs
// their background work under a supervisor tree:
//
//  1. Configuration: defaults, config.yaml, then environment (koanf v2)
//  2. Logging: zerolog, level and format from configuration
//  3. RBAC: registry seeded with the default roles, memory or casbin assignments
//  4. Auth cache: session, permission and role namespaces wired into the engine
//  5. Audit: in-memory indexed store; in production a badger sink behind a
//     circuit breaker, restored at startup and fed by the forwarder
//  6. Supervisor: forwarder, retention sweep, cache cleanup, security alerts
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the tree. The forwarder drains its buffer into the
// durable sink before the sink is closed.
//
// # Example Usage
//
//	export BASTION_ENVIRONMENT=production
//	export AUDIT_SINK_PATH=/var/lib/bastion/audit
//	export CACHE_SESSION_TTL=15m
//	./bastion
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/bastion/internal/config"
	"github.com/tomtom215/bastion/internal/logging"
	"github.com/tomtom215/bastion/internal/metrics"
	"github.com/tomtom215/bastion/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	metrics.AppInfo.WithLabelValues(cfg.Server.Version, cfg.Server.Environment).Set(1)
	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("assignment_provider", cfg.RBAC.AssignmentProvider).
		Bool("durable_audit", cfg.IsProduction()).
		Msg("Starting Bastion")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize components")
	}

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		_ = a.close()
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	a.register(tree)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	if err := <-tree.ServeBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	if err := a.close(); err != nil {
		logging.Error().Err(err).Msg("Error releasing resources")
	}
	logging.Info().Msg("Bastion stopped gracefully")
}
