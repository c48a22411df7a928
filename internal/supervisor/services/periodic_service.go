// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package services

import (
	"context"
	"time"

	"github.com/tomtom215/bastion/internal/logging"
	"github.com/tomtom215/bastion/internal/metrics"
)

// Task is one unit of periodic maintenance.
type Task func(ctx context.Context) error

// PeriodicService runs a Task on a fixed interval until canceled.
//
// Task errors are logged and counted but do not end Serve: a failed retention
// sweep is retried on the next tick rather than through supervisor backoff.
// Panics propagate to suture, which restarts the service.
type PeriodicService struct {
	name       string
	interval   time.Duration
	task       Task
	runAtStart bool
	newTicker  func(time.Duration) ticker
}

// ticker is the part of *time.Ticker the service uses.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewPeriodicService creates a service that runs task every interval.
//
//	svc := services.NewPeriodicService("cache-cleanup", time.Minute, func(ctx context.Context) error {
//	    authCache.Cleanup(ctx)
//	    return nil
//	})
func NewPeriodicService(name string, interval time.Duration, task Task) *PeriodicService {
	return &PeriodicService{
		name:     name,
		interval: interval,
		task:     task,
		newTicker: func(d time.Duration) ticker {
			return timeTicker{t: time.NewTicker(d)}
		},
	}
}

// RunAtStart makes Serve run the task once before waiting for the first tick.
func (s *PeriodicService) RunAtStart() *PeriodicService {
	s.runAtStart = true
	return s
}

// Serve implements suture.Service.
func (s *PeriodicService) Serve(ctx context.Context) error {
	if s.interval <= 0 {
		// Disabled: park until shutdown so suture does not restart us.
		<-ctx.Done()
		return ctx.Err()
	}

	if s.runAtStart {
		s.run(ctx)
	}

	t := s.newTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C():
			s.run(ctx)
		}
	}
}

func (s *PeriodicService) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := s.task(ctx)
	metrics.RecordServiceRun(s.name, err)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("service", s.name).Msg("Periodic task failed")
		return
	}
	logging.Ctx(ctx).Debug().Str("service", s.name).Dur("duration", time.Since(start)).Msg("Periodic task completed")
}

// String implements fmt.Stringer for suture logs.
func (s *PeriodicService) String() string {
	return s.name
}
