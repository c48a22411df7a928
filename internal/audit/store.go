// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ctxCheckInterval is how many events a long scan processes between
// context checks.
const ctxCheckInterval = 1024

// Store defines the interface for audit event storage.
type Store interface {
	// Insert adds an event. The id must be unique.
	Insert(event Event) error

	// Get retrieves an event by ID.
	Get(id string) (Event, bool)

	// Query returns events matching criteria, newest first.
	Query(ctx context.Context, criteria Criteria) ([]Event, error)

	// RemoveWhere deletes every event for which expired returns true and
	// reports the number removed per retention policy.
	RemoveWhere(ctx context.Context, expired func(*Event) bool) (map[RetentionPolicy]int, error)

	// Len returns the number of stored events.
	Len() int
}

type idSet map[string]struct{}

// index maps a key to the ids of the events carrying it.
type index map[string]idSet

func (ix index) add(key, id string) {
	if key == "" {
		return
	}
	set, ok := ix[key]
	if !ok {
		set = make(idSet)
		ix[key] = set
	}
	set[id] = struct{}{}
}

func (ix index) remove(key, id string) {
	set, ok := ix[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(ix, key)
	}
}

// union returns the ids indexed under any of keys.
func (ix index) union(keys []string) idSet {
	out := make(idSet)
	for _, key := range keys {
		for id := range ix[key] {
			out[id] = struct{}{}
		}
	}
	return out
}

// MemoryStore keeps events in memory with four secondary indices: actor id,
// target id, UTC calendar date and event type. Inserts and deletes update
// the primary map and every index under one lock.
type MemoryStore struct {
	mu       sync.RWMutex
	events   map[string]*Event
	byActor  index
	byTarget index
	byDate   index
	byType   index
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:   make(map[string]*Event),
		byActor:  make(index),
		byTarget: make(index),
		byDate:   make(index),
		byType:   make(index),
	}
}

// Insert adds event and indexes it.
func (s *MemoryStore) Insert(event Event) error {
	if event.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	ev := event.clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[ev.ID]; exists {
		return fmt.Errorf("%w: duplicate id %s", ErrInvalidEvent, ev.ID)
	}
	s.events[ev.ID] = &ev
	s.byActor.add(ev.Actor.ID, ev.ID)
	s.byTarget.add(ev.targetID(), ev.ID)
	s.byDate.add(ev.dateKey(), ev.ID)
	s.byType.add(string(ev.EventType), ev.ID)
	return nil
}

// removeLocked must be called with mu held for writing.
func (s *MemoryStore) removeLocked(ev *Event) {
	delete(s.events, ev.ID)
	s.byActor.remove(ev.Actor.ID, ev.ID)
	s.byTarget.remove(ev.targetID(), ev.ID)
	s.byDate.remove(ev.dateKey(), ev.ID)
	s.byType.remove(string(ev.EventType), ev.ID)
}

// Get retrieves an event by ID.
func (s *MemoryStore) Get(id string) (Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return Event{}, false
	}
	return ev.clone(), true
}

// Query narrows the candidate set through the indices, applies the
// remaining filters linearly, then sorts newest first and pages.
func (s *MemoryStore) Query(ctx context.Context, criteria Criteria) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates, restricted := s.candidatesLocked(&criteria)

	var matched []*Event
	scanned := 0
	visit := func(ev *Event) bool {
		scanned++
		if scanned%ctxCheckInterval == 0 && ctx.Err() != nil {
			return false
		}
		if criteria.matchesUnindexed(ev) {
			matched = append(matched, ev)
		}
		return true
	}

	if restricted {
		for id := range candidates {
			if ev, ok := s.events[id]; ok && !visit(ev) {
				break
			}
		}
	} else {
		for _, ev := range s.events {
			if !visit(ev) {
				break
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("audit query: %w", err)
	}

	sortNewestFirst(matched)
	return page(matched, criteria.Offset, criteria.Limit), nil
}

// candidatesLocked intersects the per-field index unions. restricted is
// false when no indexed field is present and every event is a candidate.
func (s *MemoryStore) candidatesLocked(c *Criteria) (idSet, bool) {
	var (
		candidates idSet
		restricted bool
	)
	intersect := func(u idSet) {
		if !restricted {
			candidates, restricted = u, true
			return
		}
		for id := range candidates {
			if _, ok := u[id]; !ok {
				delete(candidates, id)
			}
		}
	}

	if c.Range.bounded() {
		intersect(s.byDate.union(s.dateKeysLocked(c.Range)))
	}
	if len(c.EventTypes) > 0 {
		keys := make([]string, len(c.EventTypes))
		for i, t := range c.EventTypes {
			keys[i] = string(t)
		}
		intersect(s.byType.union(keys))
	}
	if len(c.ActorIDs) > 0 {
		intersect(s.byActor.union(c.ActorIDs))
	}
	if len(c.TargetIDs) > 0 {
		intersect(s.byTarget.union(c.TargetIDs))
	}
	return candidates, restricted
}

// dateKeysLocked returns the indexed dates that fall inside r. Keys are
// YYYY-MM-DD so lexical order matches calendar order.
func (s *MemoryStore) dateKeysLocked(r TimeRange) []string {
	var from, to string
	if !r.Start.IsZero() {
		from = r.Start.UTC().Format(time.DateOnly)
	}
	if !r.End.IsZero() {
		to = r.End.UTC().Format(time.DateOnly)
	}
	keys := make([]string, 0, len(s.byDate))
	for key := range s.byDate {
		if from != "" && key < from {
			continue
		}
		if to != "" && key > to {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// RemoveWhere deletes matching events from the primary map and all four
// indices. On cancellation it stops early and returns what it removed.
func (s *MemoryStore) RemoveWhere(ctx context.Context, expired func(*Event) bool) (map[RetentionPolicy]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[RetentionPolicy]int)
	scanned := 0
	for _, ev := range s.events {
		scanned++
		if scanned%ctxCheckInterval == 0 && ctx.Err() != nil {
			return removed, fmt.Errorf("audit sweep: %w", ctx.Err())
		}
		if expired(ev) {
			s.removeLocked(ev)
			removed[ev.RetentionPolicy]++
		}
	}
	return removed, nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// indexSizes reports the number of ids held by each index. Used by tests
// to check that deletes leave no dangling entries.
func (s *MemoryStore) indexSizes() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := func(ix index) int {
		n := 0
		for _, set := range ix {
			n += len(set)
		}
		return n
	}
	return map[string]int{
		"actor":  count(s.byActor),
		"target": count(s.byTarget),
		"date":   count(s.byDate),
		"type":   count(s.byType),
	}
}

func sortNewestFirst(events []*Event) {
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.Sequence > b.Sequence
	})
}

// page clones the selected window of events.
func page(events []*Event, offset, limit int) []Event {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(events) {
		return []Event{}
	}
	end := len(events)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	out := make([]Event, 0, end-offset)
	for _, ev := range events[offset:end] {
		out = append(out, ev.clone())
	}
	return out
}
