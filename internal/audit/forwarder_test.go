// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type memorySink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *memorySink) Write(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *memorySink) Close() error { return nil }

func (m *memorySink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestDefaultForwarderConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultForwarderConfig()
	if cfg.BufferSize != 1024 {
		t.Errorf("BufferSize = %d, want 1024", cfg.BufferSize)
	}
	if cfg.WriteTimeout != 5*time.Second {
		t.Errorf("WriteTimeout = %v, want 5s", cfg.WriteTimeout)
	}
}

func TestForwarder_StopDrains(t *testing.T) {
	t.Parallel()

	sink := &memorySink{}
	f := NewForwarder(sink, ForwarderConfig{BufferSize: 100})
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	for i := 0; i < 50; i++ {
		if err := f.Enqueue(storeEvent(fmt.Sprintf("e%d", i), "u1", time.Now(), uint64(i))); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if sink.count() != 50 {
		t.Errorf("sink received %d events, want 50", sink.count())
	}

	if err := f.Enqueue(storeEvent("late", "u1", time.Now(), 99)); !errors.Is(err, ErrForwarderStopped) {
		t.Errorf("Enqueue() after Stop error = %v, want ErrForwarderStopped", err)
	}
	if err := f.Stop(ctx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestForwarder_BufferFull(t *testing.T) {
	t.Parallel()

	sink := &memorySink{}
	f := NewForwarder(sink, ForwarderConfig{BufferSize: 1})

	if err := f.Enqueue(storeEvent("e1", "u1", time.Now(), 1)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := f.Enqueue(storeEvent("e2", "u1", time.Now(), 2)); !errors.Is(err, ErrBufferFull) {
		t.Errorf("Enqueue() on full buffer error = %v, want ErrBufferFull", err)
	}
	if f.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", f.Pending())
	}

	// Stop without Start still flushes the buffer.
	if err := f.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if sink.count() != 1 {
		t.Errorf("sink received %d events, want 1", sink.count())
	}
}

func TestForwarder_SinkFailureIsContained(t *testing.T) {
	t.Parallel()

	sink := &memorySink{err: errors.New("unavailable")}
	f := NewForwarder(sink, ForwarderConfig{BufferSize: 4})
	s := NewService(nil, WithForwarder(f), WithProduction(true))
	_ = f.Start(context.Background())

	if _, err := s.Record(context.Background(), loginEvent("u1")); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := f.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.Store().Len() != 1 {
		t.Error("event must remain in the store")
	}
}
