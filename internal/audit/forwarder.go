// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/bastion/internal/logging"
	"github.com/tomtom215/bastion/internal/metrics"
)

// ForwarderConfig configures a Forwarder.
type ForwarderConfig struct {
	// BufferSize is the size of the async write buffer.
	BufferSize int

	// WriteTimeout bounds one sink write.
	WriteTimeout time.Duration
}

// DefaultForwarderConfig returns a 1024-event buffer and a 5 second write
// timeout.
func DefaultForwarderConfig() ForwarderConfig {
	return ForwarderConfig{
		BufferSize:   1024,
		WriteTimeout: 5 * time.Second,
	}
}

// Forwarder copies recorded events to a Sink on a background goroutine.
// Enqueue never blocks: when the buffer is full the event is dropped from
// forwarding (it remains in the in-memory store).
type Forwarder struct {
	sink   Sink
	config ForwarderConfig
	queue  chan Event

	mu      sync.RWMutex
	started bool
	stopped bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewForwarder creates a forwarder. Call Start to begin writing.
func NewForwarder(sink Sink, cfg ForwarderConfig) *Forwarder {
	def := DefaultForwarderConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Forwarder{
		sink:   sink,
		config: cfg,
		queue:  make(chan Event, cfg.BufferSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Enqueue schedules event for forwarding.
func (f *Forwarder) Enqueue(event Event) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.stopped {
		metrics.RecordAuditForward("dropped")
		return ErrForwarderStopped
	}
	select {
	case f.queue <- event:
		metrics.AuditForwardQueueDepth.Set(float64(len(f.queue)))
		return nil
	default:
		metrics.RecordAuditForward("dropped")
		return ErrBufferFull
	}
}

// Start launches the writer goroutine.
func (f *Forwarder) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return ErrForwarderStopped
	}
	if f.started {
		return fmt.Errorf("audit forwarder already started")
	}
	f.started = true
	go f.run()

	logging.Ctx(ctx).Info().Int("buffer_size", f.config.BufferSize).Msg("Audit forwarder started")
	return nil
}

// Stop rejects new events and waits until the buffer is drained or ctx
// expires.
func (f *Forwarder) Stop(ctx context.Context) error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return nil
	}
	f.stopped = true
	started := f.started
	f.mu.Unlock()

	if !started {
		f.drain()
		return nil
	}

	close(f.stopCh)
	select {
	case <-f.done:
		logging.Info().Msg("Audit forwarder stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit forwarder drain: %w", ctx.Err())
	}
}

// Pending returns the number of buffered events.
func (f *Forwarder) Pending() int {
	return len(f.queue)
}

func (f *Forwarder) run() {
	defer close(f.done)

	for {
		select {
		case <-f.stopCh:
			f.drain()
			return
		case event := <-f.queue:
			f.write(event)
		}
	}
}

// drain writes everything still buffered.
func (f *Forwarder) drain() {
	for {
		select {
		case event := <-f.queue:
			f.write(event)
		default:
			return
		}
	}
}

func (f *Forwarder) write(event Event) {
	metrics.AuditForwardQueueDepth.Set(float64(len(f.queue)))

	ctx, cancel := context.WithTimeout(context.Background(), f.config.WriteTimeout)
	defer cancel()

	if err := f.sink.Write(ctx, event); err != nil {
		metrics.RecordAuditForward("failure")
		logging.Warn().Err(err).Str("event_id", event.ID).Msg("Failed to forward audit event")
		return
	}
	metrics.RecordAuditForward("success")
}
