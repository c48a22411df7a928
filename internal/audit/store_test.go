// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package audit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

func storeEvent(id, actor string, ts time.Time, seq uint64) Event {
	return Event{
		ID:              id,
		Timestamp:       ts,
		Sequence:        seq,
		EventType:       EventTypeAuthentication,
		Category:        CategoryAuthentication,
		Severity:        SeverityLow,
		Actor:           Actor{ID: actor},
		Action:          "login",
		Outcome:         OutcomeSuccess,
		RetentionPolicy: RetentionStandard,
	}
}

func TestMemoryStore_InsertRejectsDuplicates(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	now := time.Now()
	if err := s.Insert(storeEvent("e1", "u1", now, 1)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := s.Insert(storeEvent("e1", "u1", now, 2)); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("duplicate Insert() error = %v, want ErrInvalidEvent", err)
	}
	if err := s.Insert(storeEvent("", "u1", now, 3)); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("Insert() without id error = %v, want ErrInvalidEvent", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestMemoryStore_RemoveWhereCleansIndices(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		ev := storeEvent(fmt.Sprintf("e%d", i), fmt.Sprintf("u%d", i%3), base.Add(time.Duration(i)*24*time.Hour), uint64(i+1))
		ev.Target = &Target{Type: "claim", ID: fmt.Sprintf("c%d", i%2)}
		if err := s.Insert(ev); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	removed, err := s.RemoveWhere(context.Background(), func(ev *Event) bool {
		return ev.Timestamp.Before(base.Add(5 * 24 * time.Hour))
	})
	if err != nil {
		t.Fatalf("RemoveWhere() error = %v", err)
	}
	if removed[RetentionStandard] != 5 {
		t.Errorf("removed = %v, want 5 standard", removed)
	}

	for name, n := range s.indexSizes() {
		if n != 5 {
			t.Errorf("%s index holds %d ids, want 5", name, n)
		}
	}

	// Removed events are unreachable through every index.
	got, err := s.Query(context.Background(), Criteria{
		Range: TimeRange{Start: base, End: base.Add(4 * 24 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Query() after removal returned %d events, want 0", len(got))
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ev := storeEvent("e1", "u1", time.Now(), 1)
	ev.Details = map[string]interface{}{"ip": "10.0.0.1"}
	ev.Target = &Target{ID: "t1"}
	_ = s.Insert(ev)

	ev.Details["ip"] = "changed"
	ev.Target.ID = "changed"

	got, ok := s.Get("e1")
	if !ok {
		t.Fatal("Get(e1) not found")
	}
	if got.Details["ip"] != "10.0.0.1" || got.Target.ID != "t1" {
		t.Error("store must not alias the caller's event")
	}

	got.Details["ip"] = "mutated"
	again, _ := s.Get("e1")
	if again.Details["ip"] != "10.0.0.1" {
		t.Error("Get must return an independent copy")
	}
}

func TestMemoryStore_ConcurrentInsertAndQuery(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	base := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				_ = s.Insert(storeEvent(id, fmt.Sprintf("u%d", w), base, uint64(w*1000+i)))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				events, err := s.Query(context.Background(), Criteria{ActorIDs: []string{fmt.Sprintf("u%d", r)}})
				if err != nil {
					t.Errorf("Query() error = %v", err)
					return
				}
				for _, ev := range events {
					if ev.Actor.ID != fmt.Sprintf("u%d", r) {
						t.Errorf("Query returned actor %s", ev.Actor.ID)
						return
					}
				}
			}
		}(r)
	}
	wg.Wait()

	if s.Len() != 400 {
		t.Errorf("Len() = %d, want 400", s.Len())
	}
}

func TestPage(t *testing.T) {
	t.Parallel()

	events := make([]*Event, 5)
	for i := range events {
		events[i] = &Event{ID: fmt.Sprintf("e%d", i)}
	}

	tests := []struct {
		name          string
		offset, limit int
		want          []string
	}{
		{"all", 0, 0, []string{"e0", "e1", "e2", "e3", "e4"}},
		{"limit", 0, 2, []string{"e0", "e1"}},
		{"offset and limit", 3, 5, []string{"e3", "e4"}},
		{"offset past end", 9, 1, nil},
		{"negative offset", -1, 1, []string{"e0"}},
		{"max limit", 0, math.MaxInt, []string{"e0", "e1", "e2", "e3", "e4"}},
		{"offset with max limit", 1, math.MaxInt, []string{"e1", "e2", "e3", "e4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := page(events, tt.offset, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("page() returned %d events, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("page()[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}
