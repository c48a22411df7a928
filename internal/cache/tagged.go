// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

// Package cache provides the tagged TTL cache used to memoize session,
// role and permission lookups, and the AuthCache facade that keeps those
// memoized answers coherent with the authorization engine.
//
// Entries expire lazily: a read of an expired entry removes it and reports a
// miss, and Cleanup sweeps the rest on a schedule. Every entry may carry
// tags so that a whole group (for example everything derived from one user)
// can be dropped in a single call.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/bastion/internal/metrics"
)

// DefaultMaxEntries bounds each namespace unless WithMaxEntries overrides it.
const DefaultMaxEntries = 10000

// Eviction reasons reported to metrics.
const (
	evictExpired     = "expired"
	evictCapacity    = "capacity"
	evictInvalidated = "invalidated"
	evictTag         = "tag"
)

// Entry is one cached value.
type Entry[T any] struct {
	Data      T
	Timestamp time.Time
	TTL       time.Duration
	Tags      []string
}

func (e *Entry[T]) expired(now time.Time) bool {
	return now.Sub(e.Timestamp) > e.TTL
}

func (e *Entry[T]) hasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Stats is a point-in-time summary of one namespace.
type Stats struct {
	Namespace  string        `json:"namespace"`
	Valid      int           `json:"valid"`
	Expired    int           `json:"expired"`
	AverageAge time.Duration `json:"average_age"`
	Hits       int64         `json:"hits"`
	Misses     int64         `json:"misses"`
	Evictions  int64         `json:"evictions"`
}

// HitRate returns hits / (hits + misses) as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

type options struct {
	maxEntries int
	now        func() time.Time
}

// Option configures a Tagged cache.
type Option func(*options)

// WithMaxEntries caps the number of entries. When a put would exceed the cap
// the oldest entry is evicted. n <= 0 disables the cap.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		o.maxEntries = n
	}
}

// WithClock replaces time.Now, letting tests advance time without sleeping.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Tagged is a thread-safe map of keys to expiring, tagged entries.
type Tagged[T any] struct {
	name       string
	maxEntries int
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]*Entry[T]
	ages    *ageIndex

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewTagged creates an empty cache. name labels the namespace in metrics and
// logs.
func NewTagged[T any](name string, opts ...Option) *Tagged[T] {
	o := options{maxEntries: DefaultMaxEntries, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Tagged[T]{
		name:       name,
		maxEntries: o.maxEntries,
		now:        o.now,
		entries:    make(map[string]*Entry[T]),
		ages:       newAgeIndex(),
	}
}

// Name returns the namespace name.
func (c *Tagged[T]) Name() string {
	return c.name
}

// Put stores data under key, replacing any previous entry and resetting its
// insertion time.
func (c *Tagged[T]) Put(key string, data T, ttl time.Duration, tags []string) {
	now := c.now()
	entry := &Entry[T]{
		Data:      data,
		Timestamp: now,
		TTL:       ttl,
		Tags:      append([]string(nil), tags...),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry
	c.ages.touch(key, now)

	evicted := 0
	for c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		oldest, ok := c.ages.oldest()
		if !ok {
			break
		}
		c.removeLocked(oldest)
		evicted++
	}
	c.recordEvictions(evictCapacity, evicted)
	metrics.CacheSize.WithLabelValues(c.name).Set(float64(len(c.entries)))
}

// Get returns the data stored under key. An expired entry is removed and
// reported as a miss.
func (c *Tagged[T]) Get(key string) (T, bool) {
	var zero T
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	if ok && !entry.expired(now) {
		data := entry.Data
		c.mu.RUnlock()
		c.hit()
		return data, true
	}
	c.mu.RUnlock()

	if ok {
		c.mu.Lock()
		// Another writer may have replaced the entry between the locks.
		if current, still := c.entries[key]; still && current == entry {
			c.removeLocked(key)
			c.recordEvictions(evictExpired, 1)
		}
		c.mu.Unlock()
	}
	c.miss()
	return zero, false
}

// Update applies fn to the data of a live entry, keeping its insertion time
// and TTL, and returns the updated data.
func (c *Tagged[T]) Update(key string, fn func(*T)) (T, bool) {
	var zero T
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.miss()
		return zero, false
	}
	if entry.expired(now) {
		c.removeLocked(key)
		c.recordEvictions(evictExpired, 1)
		c.miss()
		return zero, false
	}
	fn(&entry.Data)
	c.hit()
	return entry.Data, true
}

// Invalidate removes key. It reports whether an entry was present.
func (c *Tagged[T]) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	c.removeLocked(key)
	c.recordEvictions(evictInvalidated, 1)
	return true
}

// InvalidateByTag removes every entry carrying tag and returns the count.
func (c *Tagged[T]) InvalidateByTag(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if entry.hasTag(tag) {
			c.removeLocked(key)
			removed++
		}
	}
	c.recordEvictions(evictTag, removed)
	return removed
}

// Cleanup removes expired entries and returns how many were removed. It
// stops early when ctx is cancelled.
func (c *Tagged[T]) Cleanup(ctx context.Context) int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	scanned := 0
	for key, entry := range c.entries {
		scanned++
		if scanned%1024 == 0 && ctx.Err() != nil {
			break
		}
		if entry.expired(now) {
			c.removeLocked(key)
			removed++
		}
	}
	c.recordEvictions(evictExpired, removed)
	return removed
}

// Stats counts valid and expired entries and their average age.
func (c *Tagged[T]) Stats() Stats {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Namespace: c.name,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
	var totalAge time.Duration
	for _, entry := range c.entries {
		if entry.expired(now) {
			s.Expired++
		} else {
			s.Valid++
		}
		totalAge += now.Sub(entry.Timestamp)
	}
	if n := len(c.entries); n > 0 {
		s.AverageAge = totalAge / time.Duration(n)
	}
	return s
}

// MemoryUsage estimates the footprint as the JSON size of every key, value
// and tag. Entries that fail to encode are skipped; the first such error is
// returned alongside the partial estimate.
func (c *Tagged[T]) MemoryUsage() (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total int64
	var firstErr error
	for key, entry := range c.entries {
		total += int64(len(key))
		for _, tag := range entry.Tags {
			total += int64(len(tag))
		}
		data, err := json.Marshal(entry.Data)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("encode %s entry %q: %w", c.name, key, err)
			}
			continue
		}
		total += int64(len(data))
	}
	return total, firstErr
}

// Len returns the number of stored entries, expired ones included.
func (c *Tagged[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// removeLocked must be called with mu held for writing.
func (c *Tagged[T]) removeLocked(key string) {
	delete(c.entries, key)
	c.ages.remove(key)
	metrics.CacheSize.WithLabelValues(c.name).Set(float64(len(c.entries)))
}

func (c *Tagged[T]) recordEvictions(reason string, n int) {
	if n <= 0 {
		return
	}
	c.evictions.Add(int64(n))
	metrics.RecordCacheEviction(c.name, reason, n)
}

func (c *Tagged[T]) hit() {
	c.hits.Add(1)
	metrics.RecordCacheLookup(c.name, true)
}

func (c *Tagged[T]) miss() {
	c.misses.Add(1)
	metrics.RecordCacheLookup(c.name, false)
}

// GenerateKey derives a stable key from a prefix and any JSON-encodable
// parameters.
//
//	key := cache.GenerateKey("perm", permissionKey{User: "u1", Permission: "claim.submit"})
func GenerateKey(prefix string, params interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		return prefix + ":" + fmt.Sprintf("%v", params)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", prefix, hash[:16])
}
