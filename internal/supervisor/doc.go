// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

/*
Package supervisor runs Bastion's long-lived background work under a suture v4
supervision tree.

# Overview

Services are grouped into two layers so a crash in one cannot stall the other:

	RootSupervisor ("bastion")
	├── DataSupervisor ("data-layer")
	│   └── ForwarderService (production only)
	└── MaintenanceSupervisor ("maintenance-layer")
	    ├── PeriodicService "audit-retention"
	    ├── PeriodicService "cache-cleanup"
	    └── PeriodicService "rbac-policy-reload" (casbin file provider only)

The audit forwarder owns the only durable write path, so it lives apart from
the periodic sweeps: a sweep that panics on a malformed event restarts without
interrupting forwarding.

# Usage

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
	    FailureThreshold: cfg.Supervisor.FailureThreshold,
	    FailureDecay:     cfg.Supervisor.FailureDecay,
	    FailureBackoff:   cfg.Supervisor.FailureBackoff,
	    ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	if err != nil {
	    return err
	}
	tree.AddDataService(services.NewForwarderService(forwarder))
	tree.AddMaintenanceService(services.NewPeriodicService("cache-cleanup", time.Minute, cleanup))
	return tree.Serve(ctx)

Supervisor events (restarts, backoff, stop timeouts) are logged through
sutureslog into the zerolog stream via logging.NewSlogLogger.
*/
package supervisor
