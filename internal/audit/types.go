// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

// Package audit records security-relevant events for compliance and
// forensic analysis.
//
// Events are append-only. The Service stamps each event with an id,
// timestamp and sequence number, stores it in an indexed MemoryStore, and
// optionally forwards it to a durable Sink and publishes security events.
// A retention sweep removes events past their policy's threshold.
package audit

import (
	"errors"
	"maps"
	"slices"
	"time"
)

// Sentinel errors.
var (
	ErrInvalidEvent     = errors.New("invalid audit event")
	ErrEventNotFound    = errors.New("audit event not found")
	ErrForwarderStopped = errors.New("audit forwarder stopped")
	ErrBufferFull       = errors.New("audit forward buffer full")
)

// EventType categorizes audit events.
type EventType string

const (
	EventTypeAuthentication      EventType = "authentication"
	EventTypeAuthorization       EventType = "authorization"
	EventTypeDataAccess          EventType = "data_access"
	EventTypeDataModification    EventType = "data_modification"
	EventTypeSystemConfiguration EventType = "system_configuration"
	EventTypeSecurityIncident    EventType = "security_incident"
	EventTypeUserManagement      EventType = "user_management"
)

// Category groups event types for reporting.
type Category string

const (
	CategoryAuthentication   Category = "authentication"
	CategoryAuthorization    Category = "authorization"
	CategoryDataAccess       Category = "data_access"
	CategoryDataModification Category = "data_modification"
	CategoryConfiguration    Category = "configuration"
	CategorySecurity         Category = "security"
	CategoryUserManagement   Category = "user_management"
	CategoryGeneral          Category = "general"
)

// categoryFor derives the category of an event type when the caller leaves
// it empty.
func categoryFor(t EventType) Category {
	switch t {
	case EventTypeAuthentication:
		return CategoryAuthentication
	case EventTypeAuthorization:
		return CategoryAuthorization
	case EventTypeDataAccess:
		return CategoryDataAccess
	case EventTypeDataModification:
		return CategoryDataModification
	case EventTypeSystemConfiguration:
		return CategoryConfiguration
	case EventTypeSecurityIncident:
		return CategorySecurity
	case EventTypeUserManagement:
		return CategoryUserManagement
	default:
		return CategoryGeneral
	}
}

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Outcome indicates whether an action succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial"
)

// RetentionPolicy controls how long an event survives the retention sweep.
type RetentionPolicy string

const (
	RetentionStandard  RetentionPolicy = "standard"
	RetentionExtended  RetentionPolicy = "extended"
	RetentionPermanent RetentionPolicy = "permanent"
)

// ComplianceFlag labels the regulations an event is evidence for.
type ComplianceFlag string

const (
	FlagGDPR     ComplianceFlag = "GDPR"
	FlagCCPA     ComplianceFlag = "CCPA"
	FlagSOX      ComplianceFlag = "SOX"
	FlagSOC2     ComplianceFlag = "SOC2"
	FlagISO27001 ComplianceFlag = "ISO27001"
	FlagHIPAA    ComplianceFlag = "HIPAA"
	FlagPCIDSS   ComplianceFlag = "PCI_DSS"
)

// Actor represents who performed an action.
type Actor struct {
	// Type of actor (user, service, system).
	Type      string `json:"type"`
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Target represents the object of an action.
type Target struct {
	Type           string `json:"type"`
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	Owner          string `json:"owner,omitempty"`
	Classification string `json:"classification,omitempty"`
}

// Metadata describes where an event was recorded.
type Metadata struct {
	Source        string `json:"source"`
	Version       string `json:"version,omitempty"`
	Environment   string `json:"environment,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
}

// Event is one audit record. Events are never mutated after Record.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Sequence is assigned by the Service and orders events that share a
	// timestamp.
	Sequence uint64 `json:"sequence"`

	EventType       EventType              `json:"event_type" validate:"required"`
	Category        Category               `json:"category"`
	Severity        Severity               `json:"severity" validate:"oneof=low medium high critical"`
	Actor           Actor                  `json:"actor"`
	Target          *Target                `json:"target,omitempty"`
	Action          string                 `json:"action" validate:"required"`
	Outcome         Outcome                `json:"outcome" validate:"oneof=success failure partial"`
	Details         map[string]interface{} `json:"details,omitempty"`
	Metadata        Metadata               `json:"metadata"`
	ComplianceFlags []ComplianceFlag       `json:"compliance_flags,omitempty"`
	RetentionPolicy RetentionPolicy        `json:"retention_policy" validate:"oneof=standard extended permanent"`
}

// HasFlag reports whether the event carries flag.
func (e *Event) HasFlag(flag ComplianceFlag) bool {
	return slices.Contains(e.ComplianceFlags, flag)
}

// dateKey is the calendar-date index key (UTC).
func (e *Event) dateKey() string {
	return e.Timestamp.UTC().Format(time.DateOnly)
}

func (e *Event) targetID() string {
	if e.Target == nil {
		return ""
	}
	return e.Target.ID
}

// clone returns a copy that shares no mutable state with e.
func (e *Event) clone() Event {
	c := *e
	if e.Target != nil {
		t := *e.Target
		c.Target = &t
	}
	c.Details = maps.Clone(e.Details)
	c.ComplianceFlags = slices.Clone(e.ComplianceFlags)
	return c
}

// TimeRange bounds a query. A zero Start or End leaves that side open; both
// bounds are inclusive.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r TimeRange) bounded() bool {
	return !r.Start.IsZero() || !r.End.IsZero()
}

func (r TimeRange) contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Criteria selects events. Within one field the values are ORed; across
// fields they are ANDed. Empty fields do not filter.
type Criteria struct {
	Range           TimeRange        `json:"range"`
	EventTypes      []EventType      `json:"event_types,omitempty"`
	Categories      []Category       `json:"categories,omitempty"`
	ActorIDs        []string         `json:"actor_ids,omitempty"`
	TargetIDs       []string         `json:"target_ids,omitempty"`
	Severities      []Severity       `json:"severities,omitempty"`
	Outcomes        []Outcome        `json:"outcomes,omitempty"`
	ComplianceFlags []ComplianceFlag `json:"compliance_flags,omitempty"`
	Offset          int              `json:"offset,omitempty"`
	Limit           int              `json:"limit,omitempty"`
}

// matchesUnindexed applies the filters that have no index.
func (c *Criteria) matchesUnindexed(e *Event) bool {
	if len(c.Categories) > 0 && !slices.Contains(c.Categories, e.Category) {
		return false
	}
	if len(c.Severities) > 0 && !slices.Contains(c.Severities, e.Severity) {
		return false
	}
	if len(c.Outcomes) > 0 && !slices.Contains(c.Outcomes, e.Outcome) {
		return false
	}
	if len(c.ComplianceFlags) > 0 && !slices.ContainsFunc(c.ComplianceFlags, e.HasFlag) {
		return false
	}
	return c.Range.contains(e.Timestamp)
}
