// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

// Package metrics holds the Prometheus collectors for Bastion.
//
// Collectors are registered on the default registry via promauto and are
// updated through the Record* helpers so label sets stay consistent.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Authorization Metrics
	AuthzDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_authz_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"kind", "result"}, // kind: "permission", "resource"; result: "allowed", "denied"
	)

	AuthzDecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bastion_authz_decision_duration_seconds",
			Help:    "Latency of authorization decisions",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		},
		[]string{"kind"},
	)

	AuthzCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_authz_cache_lookups_total",
			Help: "Authorization cache lookups by kind and result",
		},
		[]string{"kind", "result"}, // kind: "roles", "permission"; result: "hit", "miss"
	)

	AuthzRoleClosureSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bastion_authz_role_closure_size",
			Help:    "Number of effective roles resolved per user",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)

	AuthzAssignmentErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bastion_authz_assignment_errors_total",
			Help: "Role assignment lookups that failed and resolved to no roles",
		},
	)

	// Audit Metrics
	AuditEventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_audit_events_recorded_total",
			Help: "Total audit events recorded",
		},
		[]string{"event_type", "severity"},
	)

	AuditEventsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bastion_audit_events_rejected_total",
			Help: "Audit events rejected by shape validation",
		},
	)

	AuditStoreSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bastion_audit_store_events",
			Help: "Current number of events in the audit store",
		},
	)

	AuditQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bastion_audit_query_duration_seconds",
			Help:    "Duration of audit queries",
			Buckets: prometheus.DefBuckets,
		},
	)

	AuditRetentionRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_audit_retention_removed_total",
			Help: "Audit events removed by the retention sweep",
		},
		[]string{"policy"},
	)

	AuditForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_audit_forwarded_total",
			Help: "Audit events forwarded to durable storage",
		},
		[]string{"result"}, // "success", "failure", "dropped"
	)

	AuditForwardQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bastion_audit_forward_queue_depth",
			Help: "Events waiting in the durable forwarding buffer",
		},
	)

	AuditSecurityEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_audit_security_events_total",
			Help: "Security events emitted by the compliance check",
		},
		[]string{"reason", "published"}, // reason: "critical", "failure"
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"namespace"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"namespace"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bastion_cache_entries",
			Help: "Current number of cached entries",
		},
		[]string{"namespace"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"namespace", "reason"}, // reason: "expired", "invalidated", "capacity"
	)

	CacheStaleWritesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_cache_stale_writes_dropped_total",
			Help: "Cache writes dropped because the user's authority changed while computing them",
		},
		[]string{"namespace"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bastion_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Supervisor Metrics
	SupervisorServiceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_supervisor_service_runs_total",
			Help: "Periodic service iterations by service and result",
		},
		[]string{"service", "result"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bastion_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "environment"},
	)
)

func result(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// RecordAuthzDecision records one authorization decision.
func RecordAuthzDecision(kind string, allowed bool, duration time.Duration) {
	AuthzDecisions.WithLabelValues(kind, result(allowed, "allowed", "denied")).Inc()
	AuthzDecisionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordAuthzCacheLookup records a decision-cache lookup.
func RecordAuthzCacheLookup(kind string, hit bool) {
	AuthzCacheLookups.WithLabelValues(kind, result(hit, "hit", "miss")).Inc()
}

// RecordCacheLookup records a namespace hit or miss.
func RecordCacheLookup(namespace string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(namespace).Inc()
		return
	}
	CacheMisses.WithLabelValues(namespace).Inc()
}

// RecordCacheEviction records n evictions for the given reason.
func RecordCacheEviction(namespace, reason string, n int) {
	if n <= 0 {
		return
	}
	CacheEvictions.WithLabelValues(namespace, reason).Add(float64(n))
}

// RecordAuditForward records the outcome of a durable forward attempt.
func RecordAuditForward(res string) {
	AuditForwarded.WithLabelValues(res).Inc()
}

// RecordServiceRun records one periodic service iteration.
func RecordServiceRun(service string, err error) {
	SupervisorServiceRuns.WithLabelValues(service, result(err == nil, "success", "error")).Inc()
}
