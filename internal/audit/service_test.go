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

	"github.com/tomtom215/bastion/internal/logging"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingEnqueuer struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingEnqueuer) Enqueue(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEnqueuer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type recordingEmitter struct {
	mu      sync.Mutex
	reasons []string
	err     error
}

func (r *recordingEmitter) PublishSecurityEvent(_ context.Context, _ Event, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
	return r.err
}

func loginEvent(actor string) Event {
	return Event{
		EventType: EventTypeAuthentication,
		Actor:     Actor{ID: actor},
		Action:    "login",
	}
}

func mustRecord(t *testing.T, s *Service, ev Event) string {
	t.Helper()
	id, err := s.Record(context.Background(), ev)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	return id
}

func TestService_RecordThenQueryScenario(t *testing.T) {
	t.Parallel()

	s := NewService(nil)
	id := mustRecord(t, s, Event{
		EventType:       EventTypeAuthentication,
		Actor:           Actor{ID: "u1"},
		Action:          "login",
		Outcome:         OutcomeSuccess,
		RetentionPolicy: RetentionExtended,
	})
	mustRecord(t, s, loginEvent("u2"))
	mustRecord(t, s, Event{EventType: EventTypeDataAccess, Actor: Actor{ID: "u1"}, Action: "read"})

	got, err := s.Query(context.Background(), Criteria{
		ActorIDs:   []string{"u1"},
		EventTypes: []EventType{EventTypeAuthentication},
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != id {
		t.Fatalf("Query() = %+v, want exactly event %s", got, id)
	}
	if got[0].RetentionPolicy != RetentionExtended {
		t.Errorf("RetentionPolicy = %s, want extended", got[0].RetentionPolicy)
	}
}

func TestService_RecordDefaults(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	s := NewService(nil,
		WithClock(clock.Now),
		WithMetadata(Metadata{Version: "1.2.0", Environment: "staging"}),
	)

	ctx := logging.ContextWithCorrelationID(context.Background(), "corr0001")
	ctx = logging.ContextWithRequestID(ctx, "req-1")
	id, err := s.Record(ctx, Event{
		EventType: EventTypeSystemConfiguration,
		Actor:     Actor{ID: "admin"},
		Action:    "update",
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	ev, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ev.ID == "" || !ev.Timestamp.Equal(clock.Now()) || ev.Sequence != 1 {
		t.Errorf("stamping: id=%q ts=%v seq=%d", ev.ID, ev.Timestamp, ev.Sequence)
	}
	if ev.Severity != SeverityLow || ev.Outcome != OutcomeSuccess || ev.RetentionPolicy != RetentionStandard {
		t.Errorf("defaults: severity=%s outcome=%s retention=%s", ev.Severity, ev.Outcome, ev.RetentionPolicy)
	}
	if ev.Category != CategoryConfiguration {
		t.Errorf("Category = %s, want configuration", ev.Category)
	}
	want := Metadata{Source: DefaultSource, Version: "1.2.0", Environment: "staging", CorrelationID: "corr0001", RequestID: "req-1"}
	if ev.Metadata != want {
		t.Errorf("Metadata = %+v, want %+v", ev.Metadata, want)
	}
}

func TestService_RecordValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event Event
	}{
		{"missing event type", Event{Actor: Actor{ID: "u1"}, Action: "login"}},
		{"missing action", Event{EventType: EventTypeAuthentication, Actor: Actor{ID: "u1"}}},
		{"missing actor", Event{EventType: EventTypeAuthentication, Action: "login"}},
		{"bad severity", Event{EventType: EventTypeAuthentication, Actor: Actor{ID: "u1"}, Action: "login", Severity: "extreme"}},
		{"bad outcome", Event{EventType: EventTypeAuthentication, Actor: Actor{ID: "u1"}, Action: "login", Outcome: "maybe"}},
		{"bad retention", Event{EventType: EventTypeAuthentication, Actor: Actor{ID: "u1"}, Action: "login", RetentionPolicy: "forever"}},
	}

	s := NewService(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Record(context.Background(), tt.event); !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("Record() error = %v, want ErrInvalidEvent", err)
			}
		})
	}
	if s.Store().Len() != 0 {
		t.Errorf("invalid events were stored: %d", s.Store().Len())
	}
}

func TestService_RecordCancelledAndClosed(t *testing.T) {
	t.Parallel()

	s := NewService(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Record(ctx, loginEvent("u1")); !errors.Is(err, context.Canceled) {
		t.Errorf("Record(cancelled) error = %v, want context.Canceled", err)
	}

	_ = s.Close()
	if _, err := s.Record(context.Background(), loginEvent("u1")); !errors.Is(err, ErrServiceClosed) {
		t.Errorf("Record() after Close error = %v, want ErrServiceClosed", err)
	}
}

func TestService_EventsAreImmutable(t *testing.T) {
	t.Parallel()

	s := NewService(nil)
	input := loginEvent("u1")
	input.Details = map[string]interface{}{"method": "password"}
	id := mustRecord(t, s, input)

	input.Details["method"] = "tampered"
	ev, _ := s.Get(context.Background(), id)
	ev.Details["method"] = "tampered"

	again, _ := s.Get(context.Background(), id)
	if again.Details["method"] != "password" {
		t.Errorf("stored details changed to %v", again.Details["method"])
	}
}

func TestService_QueryByActorSortedNewestFirst(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	s := NewService(nil, WithClock(clock.Now))

	want := map[string]bool{}
	for i := 0; i < 30; i++ {
		actor := fmt.Sprintf("u%d", i%3)
		id := mustRecord(t, s, loginEvent(actor))
		if actor == "u1" {
			want[id] = true
		}
		clock.Advance(time.Minute)
	}

	got, err := s.Query(context.Background(), Criteria{ActorIDs: []string{"u1"}})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Query() returned %d events, want %d", len(got), len(want))
	}
	for i, ev := range got {
		if !want[ev.ID] {
			t.Errorf("unexpected event %s for actor %s", ev.ID, ev.Actor.ID)
		}
		if i > 0 && ev.Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("events not sorted newest first at %d", i)
		}
	}
}

func TestService_QueryTieBreakBySequence(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	s := NewService(nil, WithClock(clock.Now))
	first := mustRecord(t, s, loginEvent("u1"))
	second := mustRecord(t, s, loginEvent("u1"))
	third := mustRecord(t, s, loginEvent("u1"))

	got, _ := s.Query(context.Background(), Criteria{})
	if len(got) != 3 || got[0].ID != third || got[1].ID != second || got[2].ID != first {
		t.Errorf("equal timestamps should order by sequence descending")
	}
}

func TestService_QueryCombinesFields(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	s := NewService(nil, WithClock(clock.Now))
	day1 := clock.Now()

	mustRecord(t, s, Event{EventType: EventTypeAuthentication, Actor: Actor{ID: "a"}, Action: "login"})
	mustRecord(t, s, Event{EventType: EventTypeDataAccess, Actor: Actor{ID: "b"}, Action: "read",
		Target: &Target{ID: "claim-1"}, Severity: SeverityHigh, ComplianceFlags: []ComplianceFlag{FlagGDPR}})
	clock.Advance(48 * time.Hour)
	mustRecord(t, s, Event{EventType: EventTypeDataAccess, Actor: Actor{ID: "a"}, Action: "read",
		Target: &Target{ID: "claim-1"}, Outcome: OutcomeFailure})
	mustRecord(t, s, Event{EventType: EventTypeUserManagement, Actor: Actor{ID: "c"}, Action: "create"})

	tests := []struct {
		name     string
		criteria Criteria
		want     int
	}{
		{"no criteria", Criteria{}, 4},
		{"actors OR", Criteria{ActorIDs: []string{"a", "b"}}, 3},
		{"actor AND type", Criteria{ActorIDs: []string{"a"}, EventTypes: []EventType{EventTypeDataAccess}}, 1},
		{"target", Criteria{TargetIDs: []string{"claim-1"}}, 2},
		{"first day only", Criteria{Range: TimeRange{Start: day1.Add(-time.Hour), End: day1.Add(time.Hour)}}, 2},
		{"open ended start", Criteria{Range: TimeRange{Start: day1.Add(24 * time.Hour)}}, 2},
		{"severity", Criteria{Severities: []Severity{SeverityHigh}}, 1},
		{"outcome", Criteria{Outcomes: []Outcome{OutcomeFailure}}, 1},
		{"category", Criteria{Categories: []Category{CategoryDataAccess, CategoryUserManagement}}, 3},
		{"compliance flag", Criteria{ComplianceFlags: []ComplianceFlag{FlagGDPR, FlagSOX}}, 1},
		{"unknown actor", Criteria{ActorIDs: []string{"zzz"}}, 0},
		{"limit", Criteria{Limit: 3}, 3},
		{"offset", Criteria{Offset: 3}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(context.Background(), tt.criteria)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Query() returned %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestService_QueryCancelled(t *testing.T) {
	t.Parallel()

	s := NewService(nil)
	mustRecord(t, s, loginEvent("u1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Query(ctx, Criteria{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Query(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestService_GetNotFound(t *testing.T) {
	t.Parallel()

	s := NewService(nil)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrEventNotFound", err)
	}
}

func TestService_Sweep(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	now := clock.Now()
	s := NewService(nil, WithClock(clock.Now))

	record := func(at time.Time, policy RetentionPolicy) string {
		clock.Set(at)
		ev := loginEvent("u1")
		ev.RetentionPolicy = policy
		ev.Target = &Target{ID: "t1"}
		return mustRecord(t, s, ev)
	}

	oldStandard := record(now.AddDate(-7, 0, -1), RetentionStandard)
	freshStandard := record(now.AddDate(-6, 0, 0), RetentionStandard)
	keptExtended := record(now.AddDate(-8, 0, 0), RetentionExtended)
	oldExtended := record(now.AddDate(-10, 0, -1), RetentionExtended)
	ancientPermanent := record(now.AddDate(-50, 0, 0), RetentionPermanent)

	result, err := s.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.Removed != 2 || result.Remaining != 3 {
		t.Errorf("Sweep() = %+v, want 2 removed, 3 remaining", result)
	}
	if result.ByPolicy[RetentionStandard] != 1 || result.ByPolicy[RetentionExtended] != 1 {
		t.Errorf("ByPolicy = %v", result.ByPolicy)
	}

	for _, id := range []string{oldStandard, oldExtended} {
		if _, err := s.Get(context.Background(), id); !errors.Is(err, ErrEventNotFound) {
			t.Errorf("event %s should have been swept", id)
		}
	}
	for _, id := range []string{freshStandard, keptExtended, ancientPermanent} {
		if _, err := s.Get(context.Background(), id); err != nil {
			t.Errorf("event %s should survive: %v", id, err)
		}
	}

	ms := s.Store().(*MemoryStore)
	for name, n := range ms.indexSizes() {
		if n != 3 {
			t.Errorf("%s index holds %d ids after sweep, want 3", name, n)
		}
	}
}

func TestService_SweepUsesCalendarYears(t *testing.T) {
	t.Parallel()

	// 2020 and 2024 are leap years, so seven 365-day years end two days
	// before the seventh anniversary.
	recorded := time.Date(2019, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newTestClock()
	clock.Set(recorded)
	s := NewService(nil, WithClock(clock.Now))
	id := mustRecord(t, s, loginEvent("u1"))

	tests := []struct {
		name    string
		now     time.Time
		removed int
	}{
		{"a day past seven 365-day years", recorded.Add((7*365 + 1) * 24 * time.Hour), 0},
		{"exactly seven calendar years", recorded.AddDate(7, 0, 0), 0},
		{"just past seven calendar years", recorded.AddDate(7, 0, 0).Add(time.Second), 1},
	}
	for _, tt := range tests {
		res, err := s.Sweep(context.Background(), tt.now)
		if err != nil {
			t.Fatalf("%s: Sweep() error = %v", tt.name, err)
		}
		if res.Removed != tt.removed {
			t.Errorf("%s: Removed = %d, want %d", tt.name, res.Removed, tt.removed)
		}
	}
	if _, err := s.Get(context.Background(), id); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("event should be gone after its seventh anniversary")
	}
}

func TestService_SweepRetentionYearsOption(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	recorded := clock.Now()
	s := NewService(nil, WithClock(clock.Now), WithRetentionYears(1, 2))
	mustRecord(t, s, loginEvent("u1"))

	res, _ := s.Sweep(context.Background(), recorded.AddDate(1, 0, 1))
	if res.Removed != 1 {
		t.Errorf("Removed = %d, want 1", res.Removed)
	}
}

func TestService_SweepCustomRetention(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	s := NewService(nil, WithClock(clock.Now), WithRetention(time.Hour, 2*time.Hour))
	mustRecord(t, s, loginEvent("u1"))

	res, _ := s.Sweep(context.Background(), clock.Now().Add(90*time.Minute))
	if res.Removed != 1 {
		t.Errorf("Removed = %d, want 1", res.Removed)
	}
}

func TestService_ProductionForwarding(t *testing.T) {
	t.Parallel()

	q := &recordingEnqueuer{}
	dev := NewService(nil, WithForwarder(q))
	mustRecord(t, dev, loginEvent("u1"))
	if q.count() != 0 {
		t.Error("events must not be forwarded outside production")
	}

	prod := NewService(nil, WithForwarder(q), WithProduction(true))
	mustRecord(t, prod, loginEvent("u1"))
	if q.count() != 1 {
		t.Errorf("forwarded %d events, want 1", q.count())
	}

	failing := &recordingEnqueuer{err: ErrBufferFull}
	svc := NewService(nil, WithForwarder(failing), WithProduction(true))
	if _, err := svc.Record(context.Background(), loginEvent("u1")); err != nil {
		t.Errorf("forwarding failure must not fail Record: %v", err)
	}
	if svc.Store().Len() != 1 {
		t.Error("event must be stored even when forwarding fails")
	}
}

func TestService_ComplianceCheck(t *testing.T) {
	t.Parallel()

	em := &recordingEmitter{}
	s := NewService(nil, WithSecurityEmitter(em))

	mustRecord(t, s, loginEvent("u1"))
	crit := loginEvent("u1")
	crit.Severity = SeverityCritical
	mustRecord(t, s, crit)
	failed := loginEvent("u1")
	failed.Outcome = OutcomeFailure
	mustRecord(t, s, failed)

	if len(em.reasons) != 2 || em.reasons[0] != ReasonCritical || em.reasons[1] != ReasonFailure {
		t.Errorf("reasons = %v, want [critical failure]", em.reasons)
	}

	em.err = errors.New("broker down")
	if _, err := s.Record(context.Background(), failed); err != nil {
		t.Errorf("publish failure must not fail Record: %v", err)
	}
}

func TestService_SoftCapNeverDrops(t *testing.T) {
	t.Parallel()

	s := NewService(nil, WithSoftCap(2))
	for i := 0; i < 5; i++ {
		mustRecord(t, s, loginEvent("u1"))
	}
	if s.Store().Len() != 5 {
		t.Errorf("Len() = %d, want 5", s.Store().Len())
	}
}
