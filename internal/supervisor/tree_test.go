// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/bastion/internal/config"
)

// stubService fails a fixed number of times and then runs until canceled.
type stubService struct {
	name     string
	starts   atomic.Int32
	failures int32
}

func (s *stubService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	if n <= s.failures {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubService) String() string { return s.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestNewTree_AppliesDefaults(t *testing.T) {
	tree, err := NewTree(quietLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	if tree.Root() == nil {
		t.Fatal("root supervisor should not be nil")
	}
	if tree.config != DefaultTreeConfig() {
		t.Errorf("config = %+v, want defaults %+v", tree.config, DefaultTreeConfig())
	}
}

func TestNewTree_NilLogger(t *testing.T) {
	tree, err := NewTree(nil, TreeConfig{})
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	if tree.logger == nil {
		t.Error("expected slog.Default fallback")
	}
}

func TestTreeConfigFrom(t *testing.T) {
	got := TreeConfigFrom(config.SupervisorConfig{
		FailureThreshold: 3,
		FailureDecay:     10,
		FailureBackoff:   time.Second,
		ShutdownTimeout:  2 * time.Second,
	})
	want := TreeConfig{FailureThreshold: 3, FailureDecay: 10, FailureBackoff: time.Second, ShutdownTimeout: 2 * time.Second}
	if got != want {
		t.Errorf("TreeConfigFrom = %+v, want %+v", got, want)
	}
}

func TestTree_StartsBothLayers(t *testing.T) {
	tree, _ := NewTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	data := &stubService{name: "forwarder"}
	maint := &stubService{name: "cache-cleanup"}
	tree.AddDataService(data)
	tree.AddMaintenanceService(maint)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	if !waitFor(t, time.Second, func() bool { return data.starts.Load() > 0 && maint.starts.Load() > 0 }) {
		t.Errorf("services not started: data=%d maintenance=%d", data.starts.Load(), maint.starts.Load())
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("tree did not shut down in time")
	}
}

func TestTree_RestartsFailingService(t *testing.T) {
	tree, _ := NewTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	failing := &stubService{name: "audit-retention", failures: 2}
	stable := &stubService{name: "forwarder"}
	tree.AddMaintenanceService(failing)
	tree.AddDataService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	if !waitFor(t, 2*time.Second, func() bool { return failing.starts.Load() >= 3 }) {
		t.Errorf("expected at least 3 starts, got %d", failing.starts.Load())
	}
	if stable.starts.Load() != 1 {
		t.Errorf("stable service starts = %d, want 1", stable.starts.Load())
	}
}

func TestTree_RemoveMaintenanceService(t *testing.T) {
	tree, _ := NewTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	svc := &stubService{name: "rbac-policy-reload"}
	token := tree.AddMaintenanceService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	if !waitFor(t, time.Second, func() bool { return svc.starts.Load() > 0 }) {
		t.Fatal("service not started")
	}
	if err := tree.RemoveMaintenanceService(token); err != nil {
		t.Errorf("RemoveMaintenanceService: %v", err)
	}
}
