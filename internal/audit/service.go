// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package audit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/bastion/internal/logging"
	"github.com/tomtom215/bastion/internal/metrics"
	"github.com/tomtom215/bastion/internal/validation"
)

// ErrServiceClosed is returned by Record after Close.
var ErrServiceClosed = errors.New("audit service closed")

// Default retention periods in calendar years.
const (
	DefaultStandardRetentionYears = 7
	DefaultExtendedRetentionYears = 10
)

// DefaultSource is the metadata source stamped on events.
const DefaultSource = "bastion"

// Enqueuer accepts events for durable forwarding without blocking.
type Enqueuer interface {
	Enqueue(event Event) error
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetadata sets the default metadata merged into every event. Fields
// supplied by the caller win.
func WithMetadata(m Metadata) Option {
	return func(s *Service) {
		if m.Source == "" {
			m.Source = DefaultSource
		}
		s.defaults = m
	}
}

// WithProduction enables durable forwarding.
func WithProduction(enabled bool) Option {
	return func(s *Service) {
		s.production = enabled
	}
}

// WithForwarder sets the durable forwarding queue used in production mode.
func WithForwarder(f Enqueuer) Option {
	return func(s *Service) {
		s.forwarder = f
	}
}

// WithSecurityEmitter sets where escalated events are published.
func WithSecurityEmitter(e SecurityEmitter) Option {
	return func(s *Service) {
		s.security = e
	}
}

// WithRetentionYears sets the standard and extended periods in calendar
// years. Non-positive values keep the defaults.
func WithRetentionYears(standard, extended int) Option {
	return func(s *Service) {
		if standard > 0 {
			s.standardRetention = retention{years: standard}
		}
		if extended > 0 {
			s.extendedRetention = retention{years: extended}
		}
	}
}

// WithRetention sets exact standard and extended periods, replacing the
// calendar-year defaults. Non-positive values keep the defaults.
func WithRetention(standard, extended time.Duration) Option {
	return func(s *Service) {
		if standard > 0 {
			s.standardRetention = retention{period: standard}
		}
		if extended > 0 {
			s.extendedRetention = retention{period: extended}
		}
	}
}

// retention is either a whole number of calendar years or an exact period.
type retention struct {
	years  int
	period time.Duration
}

// expiresAt returns the instant after which an event recorded at ts is
// eligible for removal.
func (r retention) expiresAt(ts time.Time) time.Time {
	if r.period > 0 {
		return ts.Add(r.period)
	}
	return ts.AddDate(r.years, 0, 0)
}

// WithSoftCap logs a warning once the store holds more than n events.
// Events are never dropped. n <= 0 disables the warning.
func WithSoftCap(n int) Option {
	return func(s *Service) {
		s.softCap = n
	}
}

// Service records, queries and expires audit events.
type Service struct {
	store      Store
	now        func() time.Time
	defaults   Metadata
	production bool
	forwarder  Enqueuer
	security   SecurityEmitter

	standardRetention retention
	extendedRetention retention
	softCap           int

	seq     atomic.Uint64
	overCap atomic.Bool
	closed  atomic.Bool
}

// NewService creates a service over store. A nil store gets a fresh
// MemoryStore.
func NewService(store Store, opts ...Option) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	s := &Service{
		store:             store,
		now:               time.Now,
		defaults:          Metadata{Source: DefaultSource},
		standardRetention: retention{years: DefaultStandardRetentionYears},
		extendedRetention: retention{years: DefaultExtendedRetentionYears},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

// Close stops the service from accepting events. It does not close the
// forwarder or security emitter, which are owned by the caller.
func (s *Service) Close() error {
	s.closed.Store(true)
	return nil
}

// Record stamps event with an id, timestamp and sequence number, fills
// defaults, validates it and stores it. Only invalid input, a cancelled
// context or a closed service produce an error; forwarding and
// security-event failures are logged.
func (s *Service) Record(ctx context.Context, event Event) (string, error) {
	if s.closed.Load() {
		return "", ErrServiceClosed
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("record audit event: %w", err)
	}

	ev := event.clone()
	ev.ID = uuid.NewString()
	ev.Timestamp = s.now().UTC()
	ev.Sequence = s.seq.Add(1)
	s.applyDefaults(ctx, &ev)

	if verr := validation.ValidateStruct(ev); verr != nil {
		metrics.AuditEventsRejected.Inc()
		return "", fmt.Errorf("%w: %s", ErrInvalidEvent, verr.Error())
	}
	if err := s.store.Insert(ev); err != nil {
		metrics.AuditEventsRejected.Inc()
		return "", err
	}

	size := s.store.Len()
	metrics.AuditEventsRecorded.WithLabelValues(string(ev.EventType), string(ev.Severity)).Inc()
	metrics.AuditStoreSize.Set(float64(size))

	logging.Ctx(ctx).Info().
		Str("event_id", ev.ID).
		Str("event_type", string(ev.EventType)).
		Str("severity", string(ev.Severity)).
		Str("actor_id", ev.Actor.ID).
		Str("action", ev.Action).
		Str("outcome", string(ev.Outcome)).
		Msg("Audit event recorded")

	s.checkSoftCap(size)
	s.forward(ctx, &ev)
	s.complianceCheck(ctx, &ev)

	return ev.ID, nil
}

func (s *Service) applyDefaults(ctx context.Context, ev *Event) {
	if ev.Severity == "" {
		ev.Severity = SeverityLow
	}
	if ev.Outcome == "" {
		ev.Outcome = OutcomeSuccess
	}
	if ev.RetentionPolicy == "" {
		ev.RetentionPolicy = RetentionStandard
	}
	if ev.Category == "" {
		ev.Category = categoryFor(ev.EventType)
	}
	if ev.Actor.Type == "" {
		ev.Actor.Type = "user"
	}

	md := &ev.Metadata
	if md.Source == "" {
		md.Source = s.defaults.Source
	}
	if md.Version == "" {
		md.Version = s.defaults.Version
	}
	if md.Environment == "" {
		md.Environment = s.defaults.Environment
	}
	if md.CorrelationID == "" {
		md.CorrelationID = logging.CorrelationIDFromContext(ctx)
	}
	if md.RequestID == "" {
		md.RequestID = logging.RequestIDFromContext(ctx)
	}
}

func (s *Service) checkSoftCap(size int) {
	if s.softCap <= 0 {
		return
	}
	if size <= s.softCap {
		s.overCap.Store(false)
		return
	}
	if s.overCap.CompareAndSwap(false, true) {
		logging.Warn().
			Int("events", size).
			Int("soft_cap", s.softCap).
			Msg("Audit store exceeds soft cap; events are retained until the retention sweep")
	}
}

func (s *Service) forward(ctx context.Context, ev *Event) {
	if !s.production || s.forwarder == nil {
		return
	}
	if err := s.forwarder.Enqueue(ev.clone()); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event_id", ev.ID).Msg("Audit event not forwarded")
	}
}

// complianceCheck escalates critical and failed events.
func (s *Service) complianceCheck(ctx context.Context, ev *Event) {
	var reason string
	switch {
	case ev.Severity == SeverityCritical:
		reason = ReasonCritical
	case ev.Outcome == OutcomeFailure:
		reason = ReasonFailure
	default:
		return
	}

	logging.Ctx(ctx).Warn().
		Str("event_id", ev.ID).
		Str("event_type", string(ev.EventType)).
		Str("actor_id", ev.Actor.ID).
		Str("reason", reason).
		Msg("Security event detected")

	published := "false"
	if s.security != nil {
		if err := s.security.PublishSecurityEvent(ctx, ev.clone(), reason); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("event_id", ev.ID).Msg("Failed to publish security event")
		} else {
			published = "true"
		}
	}
	metrics.AuditSecurityEvents.WithLabelValues(reason, published).Inc()
}

// Query returns events matching criteria, newest first.
func (s *Service) Query(ctx context.Context, criteria Criteria) ([]Event, error) {
	start := time.Now()
	defer func() {
		metrics.AuditQueryDuration.Observe(time.Since(start).Seconds())
	}()
	return s.store.Query(ctx, criteria)
}

// Get returns one event.
func (s *Service) Get(ctx context.Context, id string) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	ev, ok := s.store.Get(id)
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return ev, nil
}

// Restore loads persisted events into the store without forwarding them
// again and advances the sequence counter past the highest restored value.
// Events already present are skipped.
func (s *Service) Restore(ctx context.Context, source Replayer) (int, error) {
	restored := 0
	err := source.Replay(ctx, func(ev Event) error {
		if _, exists := s.store.Get(ev.ID); exists {
			return nil
		}
		if err := s.store.Insert(ev); err != nil {
			return err
		}
		for {
			cur := s.seq.Load()
			if ev.Sequence <= cur || s.seq.CompareAndSwap(cur, ev.Sequence) {
				break
			}
		}
		restored++
		return nil
	})
	metrics.AuditStoreSize.Set(float64(s.store.Len()))
	if err != nil {
		return restored, fmt.Errorf("restore audit events: %w", err)
	}
	logging.Ctx(ctx).Info().Int("restored", restored).Msg("Audit events restored")
	return restored, nil
}

// SweepResult reports one retention sweep.
type SweepResult struct {
	Removed   int
	ByPolicy  map[RetentionPolicy]int
	Remaining int
}

// Sweep removes standard events older than the standard threshold and
// extended events older than the extended threshold. Permanent events are
// kept.
func (s *Service) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	byPolicy, err := s.store.RemoveWhere(ctx, func(ev *Event) bool {
		return s.expired(ev, now)
	})

	result := SweepResult{ByPolicy: byPolicy, Remaining: s.store.Len()}
	for policy, n := range byPolicy {
		result.Removed += n
		metrics.AuditRetentionRemoved.WithLabelValues(string(policy)).Add(float64(n))
	}
	metrics.AuditStoreSize.Set(float64(result.Remaining))

	logEvent := logging.Ctx(ctx).Info()
	if err != nil {
		logEvent = logging.Ctx(ctx).Warn().Err(err)
	}
	logEvent.
		Int("removed", result.Removed).
		Int("remaining", result.Remaining).
		Msg("Audit retention sweep complete")

	return result, err
}

func (s *Service) expired(ev *Event, now time.Time) bool {
	switch ev.RetentionPolicy {
	case RetentionPermanent:
		return false
	case RetentionExtended:
		return now.After(s.extendedRetention.expiresAt(ev.Timestamp))
	default:
		return now.After(s.standardRetention.expiresAt(ev.Timestamp))
	}
}
