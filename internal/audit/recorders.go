// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package audit

import "context"

// Target classifications that raise data-access severity.
const (
	ClassificationConfidential = "confidential"
	ClassificationRestricted   = "restricted"
)

// RecordAuthentication records a login, logout or credential check.
// Failures and partial outcomes are medium severity.
//
//nolint:gocritic // hugeParam: Actor passed by value for API simplicity
func (s *Service) RecordAuthentication(ctx context.Context, actor Actor, action string, outcome Outcome, details map[string]interface{}) (string, error) {
	severity := SeverityLow
	if outcome == OutcomeFailure || outcome == OutcomePartial {
		severity = SeverityMedium
	}
	return s.Record(ctx, Event{
		EventType:       EventTypeAuthentication,
		Category:        CategoryAuthentication,
		Severity:        severity,
		Actor:           actor,
		Action:          action,
		Outcome:         outcome,
		Details:         details,
		ComplianceFlags: []ComplianceFlag{FlagSOC2},
		RetentionPolicy: RetentionExtended,
	})
}

// RecordDataAccess records a read of customer data. Severity follows the
// target's classification.
//
//nolint:gocritic // hugeParam: Actor passed by value for API simplicity
func (s *Service) RecordDataAccess(ctx context.Context, actor Actor, target Target, action string, details map[string]interface{}) (string, error) {
	severity := SeverityLow
	switch target.Classification {
	case ClassificationConfidential:
		severity = SeverityMedium
	case ClassificationRestricted:
		severity = SeverityHigh
	}
	return s.Record(ctx, Event{
		EventType:       EventTypeDataAccess,
		Category:        CategoryDataAccess,
		Severity:        severity,
		Actor:           actor,
		Target:          &target,
		Action:          action,
		Outcome:         OutcomeSuccess,
		Details:         details,
		ComplianceFlags: []ComplianceFlag{FlagGDPR, FlagCCPA},
		RetentionPolicy: RetentionExtended,
	})
}

// RecordSystemConfiguration records a configuration change.
//
//nolint:gocritic // hugeParam: Actor passed by value for API simplicity
func (s *Service) RecordSystemConfiguration(ctx context.Context, actor Actor, action string, details map[string]interface{}) (string, error) {
	return s.Record(ctx, Event{
		EventType:       EventTypeSystemConfiguration,
		Category:        CategoryConfiguration,
		Severity:        SeverityHigh,
		Actor:           actor,
		Action:          action,
		Outcome:         OutcomeSuccess,
		Details:         details,
		ComplianceFlags: []ComplianceFlag{FlagSOX, FlagSOC2},
		RetentionPolicy: RetentionPermanent,
	})
}

// RecordSecurityIncident records a detected incident. An empty severity
// defaults to high.
//
//nolint:gocritic // hugeParam: Actor passed by value for API simplicity
func (s *Service) RecordSecurityIncident(ctx context.Context, actor Actor, action string, severity Severity, details map[string]interface{}) (string, error) {
	if severity == "" {
		severity = SeverityHigh
	}
	return s.Record(ctx, Event{
		EventType:       EventTypeSecurityIncident,
		Category:        CategorySecurity,
		Severity:        severity,
		Actor:           actor,
		Action:          action,
		Outcome:         OutcomeFailure,
		Details:         details,
		ComplianceFlags: []ComplianceFlag{FlagSOC2, FlagISO27001},
		RetentionPolicy: RetentionPermanent,
	})
}

// SystemActor returns the actor used for events Bastion raises itself.
func SystemActor() Actor {
	return Actor{
		Type: "system",
		ID:   "system",
		Name: "Bastion",
	}
}
