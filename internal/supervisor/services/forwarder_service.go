// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/bastion/internal/logging"
)

// DefaultDrainTimeout bounds how long Stop may spend flushing queued events.
const DefaultDrainTimeout = 10 * time.Second

// StartStopper matches the audit forwarder lifecycle.
//
// Satisfied by *audit.Forwarder.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ForwarderService wraps the audit forwarder as a supervised service.
//
// It adapts the Start/Stop lifecycle to suture's Serve pattern:
//  1. Calls Start(ctx) to begin the writer goroutine
//  2. Waits for context cancellation
//  3. Calls Stop with a fresh drain deadline so queued events still reach
//     the sink after the tree's context is gone
type ForwarderService struct {
	forwarder    StartStopper
	name         string
	drainTimeout time.Duration
}

// NewForwarderService creates a forwarder service wrapper.
//
//	fwd := audit.NewForwarder(sink, audit.DefaultForwarderConfig())
//	tree.AddDataService(services.NewForwarderService(fwd))
func NewForwarderService(forwarder StartStopper) *ForwarderService {
	return &ForwarderService{
		forwarder:    forwarder,
		name:         "audit-forwarder",
		drainTimeout: DefaultDrainTimeout,
	}
}

// WithDrainTimeout overrides DefaultDrainTimeout.
func (s *ForwarderService) WithDrainTimeout(d time.Duration) *ForwarderService {
	if d > 0 {
		s.drainTimeout = d
	}
	return s
}

// Serve implements suture.Service.
//
// A Start failure is returned immediately so suture restarts the service
// under its backoff policy.
func (s *ForwarderService) Serve(ctx context.Context) error {
	if err := s.forwarder.Start(ctx); err != nil {
		return fmt.Errorf("audit forwarder start failed: %w", err)
	}

	<-ctx.Done()

	drainCtx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()
	if err := s.forwarder.Stop(drainCtx); err != nil {
		logging.Warn().Err(err).Str("service", s.name).Msg("Audit forwarder did not drain before timeout")
		return fmt.Errorf("audit forwarder stop failed: %w", err)
	}

	return ctx.Err()
}

// String implements fmt.Stringer for suture logs.
func (s *ForwarderService) String() string {
	return s.name
}
