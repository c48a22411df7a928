// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package audit

import (
	"context"
	"sort"
	"time"
)

// topActorLimit is the number of actors listed in a summary.
const topActorLimit = 10

// ActorCount is one row of a summary's top-actor list.
type ActorCount struct {
	ActorID string `json:"actor_id"`
	Count   int    `json:"count"`
}

// Summary aggregates events over a time range.
type Summary struct {
	Range      TimeRange         `json:"range"`
	Total      int               `json:"total"`
	ByType     map[EventType]int `json:"by_type"`
	ByCategory map[Category]int  `json:"by_category"`
	BySeverity map[Severity]int  `json:"by_severity"`
	ByOutcome  map[Outcome]int   `json:"by_outcome"`
	TopActors  []ActorCount      `json:"top_actors"`
}

// EventSummary is the per-event line of a compliance report.
type EventSummary struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	Severity  Severity  `json:"severity"`
	Outcome   Outcome   `json:"outcome"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"`
	TargetID  string    `json:"target_id,omitempty"`
}

// ComplianceReport lists the events flagged for one regulation.
type ComplianceReport struct {
	Regulation     ComplianceFlag `json:"regulation"`
	GeneratedAt    time.Time      `json:"generated_at"`
	Summary        Summary        `json:"summary"`
	CriticalEvents int            `json:"critical_events"`
	FailedEvents   int            `json:"failed_events"`
	Events         []EventSummary `json:"events"`
}

// GetAuditSummary counts the events in r by type, category, severity and
// outcome, and lists the most active actors.
func (s *Service) GetAuditSummary(ctx context.Context, r TimeRange) (Summary, error) {
	events, err := s.Query(ctx, Criteria{Range: r})
	if err != nil {
		return Summary{}, err
	}
	return summarize(r, events), nil
}

// GenerateComplianceReport summarizes the events in r flagged with
// regulation.
func (s *Service) GenerateComplianceReport(ctx context.Context, regulation ComplianceFlag, r TimeRange) (ComplianceReport, error) {
	events, err := s.Query(ctx, Criteria{Range: r, ComplianceFlags: []ComplianceFlag{regulation}})
	if err != nil {
		return ComplianceReport{}, err
	}

	report := ComplianceReport{
		Regulation:  regulation,
		GeneratedAt: s.now().UTC(),
		Summary:     summarize(r, events),
		Events:      make([]EventSummary, 0, len(events)),
	}
	for i := range events {
		ev := &events[i]
		if ev.Severity == SeverityCritical {
			report.CriticalEvents++
		}
		if ev.Outcome == OutcomeFailure {
			report.FailedEvents++
		}
		report.Events = append(report.Events, EventSummary{
			ID:        ev.ID,
			Timestamp: ev.Timestamp,
			EventType: ev.EventType,
			Severity:  ev.Severity,
			Outcome:   ev.Outcome,
			ActorID:   ev.Actor.ID,
			Action:    ev.Action,
			TargetID:  ev.targetID(),
		})
	}
	return report, nil
}

func summarize(r TimeRange, events []Event) Summary {
	sum := Summary{
		Range:      r,
		Total:      len(events),
		ByType:     make(map[EventType]int),
		ByCategory: make(map[Category]int),
		BySeverity: make(map[Severity]int),
		ByOutcome:  make(map[Outcome]int),
	}
	actors := make(map[string]int)
	for i := range events {
		ev := &events[i]
		sum.ByType[ev.EventType]++
		sum.ByCategory[ev.Category]++
		sum.BySeverity[ev.Severity]++
		sum.ByOutcome[ev.Outcome]++
		actors[ev.Actor.ID]++
	}

	sum.TopActors = make([]ActorCount, 0, len(actors))
	for id, n := range actors {
		sum.TopActors = append(sum.TopActors, ActorCount{ActorID: id, Count: n})
	}
	sort.Slice(sum.TopActors, func(i, j int) bool {
		a, b := sum.TopActors[i], sum.TopActors[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.ActorID < b.ActorID
	})
	if len(sum.TopActors) > topActorLimit {
		sum.TopActors = sum.TopActors[:topActorLimit]
	}
	return sum
}
