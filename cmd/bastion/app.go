// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/bastion/internal/audit"
	"github.com/tomtom215/bastion/internal/cache"
	"github.com/tomtom215/bastion/internal/config"
	"github.com/tomtom215/bastion/internal/logging"
	"github.com/tomtom215/bastion/internal/rbac"
	"github.com/tomtom215/bastion/internal/supervisor"
	"github.com/tomtom215/bastion/internal/supervisor/services"
)

// app holds every long-lived component built from the configuration.
type app struct {
	cfg *config.Config

	registry  *rbac.Registry
	casbin    *rbac.CasbinAssignments
	engine    *rbac.Engine
	authCache *cache.AuthCache
	audit     *audit.Service

	pubsub    *gochannel.GoChannel
	security  *audit.SecurityPublisher
	sink      audit.Sink
	forwarder *audit.Forwarder
}

// newApp wires the RBAC engine, the auth cache and the audit service.
// In production it also opens the durable sink, restores previously
// forwarded events and prepares the forwarder.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	a.registry = rbac.NewRegistry()
	if cfg.RBAC.SeedDefaults {
		if err := rbac.SeedDefaults(a.registry); err != nil {
			return nil, fmt.Errorf("seed rbac defaults: %w", err)
		}
	}

	var assignments rbac.AssignmentProvider = rbac.NewMemoryAssignments()
	if cfg.RBAC.AssignmentProvider == "casbin" {
		// Reloads run under the supervisor so the cache is invalidated
		// alongside them.
		provider, err := rbac.NewCasbinAssignments(rbac.CasbinConfig{PolicyPath: cfg.RBAC.AssignmentsPath})
		if err != nil {
			return nil, fmt.Errorf("casbin assignments: %w", err)
		}
		a.casbin = provider
		assignments = provider
	}

	authCfg := cache.DefaultAuthCacheConfig()
	authCfg.SessionTTL = cfg.Cache.SessionTTL
	authCfg.PermissionTTL = cfg.Cache.PermissionTTL
	authCfg.RoleTTL = cfg.Cache.RoleTTL
	authCfg.MaxEntries = cfg.Cache.MaxEntries
	a.authCache = cache.NewAuthCache(authCfg)

	a.engine = rbac.NewEngine(a.registry, assignments, rbac.WithDecisionCache(a.authCache))

	a.pubsub = gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NopLogger{})
	a.security = audit.NewSecurityPublisher(a.pubsub, cfg.Audit.SecurityTopic)

	opts := []audit.Option{
		audit.WithMetadata(audit.Metadata{
			Source:      cfg.Server.ServiceName,
			Version:     cfg.Server.Version,
			Environment: cfg.Server.Environment,
		}),
		audit.WithRetentionYears(cfg.Audit.StandardRetentionYears, cfg.Audit.ExtendedRetentionYears),
		audit.WithSoftCap(cfg.Audit.SoftCap),
		audit.WithSecurityEmitter(a.security),
	}

	if cfg.IsProduction() {
		sink, err := audit.OpenBadgerSink(cfg.Audit.SinkPath)
		if err != nil {
			a.close()
			return nil, err
		}
		breakerCfg := audit.DefaultBreakerConfig()
		if cfg.Audit.BreakerMaxRequests > 0 {
			breakerCfg.MaxRequests = cfg.Audit.BreakerMaxRequests
		}
		if cfg.Audit.BreakerTimeout > 0 {
			breakerCfg.Timeout = cfg.Audit.BreakerTimeout
		}
		a.sink = audit.NewBreakerSink(sink, breakerCfg)
		a.forwarder = audit.NewForwarder(a.sink, audit.ForwarderConfig{BufferSize: cfg.Audit.ForwardBufferSize})
		opts = append(opts, audit.WithProduction(true), audit.WithForwarder(a.forwarder))

		a.audit = audit.NewService(nil, opts...)
		restored, err := a.audit.Restore(ctx, sink)
		if err != nil {
			logging.Warn().Err(err).Int("restored", restored).Msg("Audit restore from durable sink incomplete")
		} else {
			logging.Info().Int("restored", restored).Msg("Audit events restored from durable sink")
		}
	} else {
		a.audit = audit.NewService(nil, opts...)
	}

	return a, nil
}

// register adds the background services to tree.
func (a *app) register(tree *supervisor.Tree) {
	if a.forwarder != nil {
		tree.AddDataService(services.NewForwarderService(a.forwarder).WithDrainTimeout(a.cfg.Supervisor.ShutdownTimeout))
	}

	tree.AddMaintenanceService(services.NewPeriodicService("audit-retention", a.cfg.Audit.SweepInterval, a.sweepRetention).RunAtStart())
	tree.AddMaintenanceService(services.NewPeriodicService("cache-cleanup", a.cfg.Cache.CleanupInterval, a.cleanupCache))
	tree.AddMaintenanceService(newSecurityAlertService(a.pubsub, a.security.Topic()))

	if a.casbin != nil && a.cfg.RBAC.AssignmentsPath != "" && a.cfg.RBAC.AutoReloadInterval > 0 {
		tree.AddMaintenanceService(services.NewPeriodicService("rbac-policy-reload", a.cfg.RBAC.AutoReloadInterval, a.reloadAssignments))
	}
}

func (a *app) sweepRetention(ctx context.Context) error {
	_, err := a.audit.Sweep(ctx, time.Now())
	return err
}

func (a *app) cleanupCache(ctx context.Context) error {
	a.authCache.Cleanup(ctx)
	return ctx.Err()
}

func (a *app) reloadAssignments(ctx context.Context) error {
	if err := a.casbin.Reload(); err != nil {
		return fmt.Errorf("reload role assignments: %w", err)
	}
	// Assignments may have changed under every user.
	a.authCache.InvalidateRoleResolution()
	logging.Ctx(ctx).Debug().Str("path", a.cfg.RBAC.AssignmentsPath).Msg("Role assignments reloaded")
	return nil
}

// close releases resources in reverse construction order. The forwarder is
// stopped by its supervised service before close runs.
func (a *app) close() error {
	var errs []error
	if a.audit != nil {
		errs = append(errs, a.audit.Close())
	}
	if a.sink != nil {
		errs = append(errs, a.sink.Close())
	}
	if a.security != nil {
		errs = append(errs, a.security.Close())
	}
	return errors.Join(errs...)
}
