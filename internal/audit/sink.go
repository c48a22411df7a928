// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/bastion/internal/logging"
	"github.com/tomtom215/bastion/internal/metrics"
)

// Sink is a durable destination for recorded events.
type Sink interface {
	Write(ctx context.Context, event Event) error
	Close() error
}

// Replayer streams previously persisted events, oldest first.
type Replayer interface {
	Replay(ctx context.Context, fn func(Event) error) error
}

// Key prefix for BadgerDB storage. Keys are audit:<unix nanos, zero
// padded>:<id> so iteration order is chronological.
const sinkKeyPrefix = "audit:"

func sinkKey(e *Event) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", sinkKeyPrefix, e.Timestamp.UnixNano(), e.ID))
}

// BadgerSink persists events in BadgerDB.
type BadgerSink struct {
	db     *badger.DB
	ownsDB bool
}

// NewBadgerSink wraps an open database. Close does not close db.
func NewBadgerSink(db *badger.DB) *BadgerSink {
	return &BadgerSink{db: db}
}

// OpenBadgerSink opens (or creates) a database at path. An empty path
// opens an in-memory database.
func OpenBadgerSink(path string) (*BadgerSink, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit sink at %s: %w", path, err)
	}
	return &BadgerSink{db: db, ownsDB: true}, nil
}

// Write stores event as JSON.
func (s *BadgerSink) Write(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(sinkKey(&event), data); err != nil {
			return fmt.Errorf("set audit event: %w", err)
		}
		return nil
	})
}

// Replay calls fn for every stored event in timestamp order.
func (s *BadgerSink) Replay(ctx context.Context, fn func(Event) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(sinkKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var event Event
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if err := fn(event); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of stored events.
func (s *BadgerSink) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(sinkKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the database if the sink opened it.
func (s *BadgerSink) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// BreakerConfig configures a BreakerSink.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerConfig trips after 5 consecutive failures and probes again
// after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "audit-sink",
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerSink guards a Sink with a circuit breaker so an unavailable
// destination fails fast instead of stalling the forwarder.
type BreakerSink struct {
	next Sink
	name string
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerSink wraps next.
func NewBreakerSink(next Sink, cfg BreakerConfig) *BreakerSink {
	if cfg.Name == "" {
		cfg.Name = DefaultBreakerConfig().Name
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Audit sink circuit breaker state changed")
		},
	}
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)

	return &BreakerSink{
		next: next,
		name: cfg.Name,
		cb:   gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Write forwards to the wrapped sink unless the breaker is open.
func (b *BreakerSink) Write(ctx context.Context, event Event) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Write(ctx, event)
	})
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}
	return err
}

// State returns the breaker state: closed, half-open or open.
func (b *BreakerSink) State() string {
	return strings.ToLower(b.cb.State().String())
}

// Close closes the wrapped sink.
func (b *BreakerSink) Close() error {
	return b.next.Close()
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
