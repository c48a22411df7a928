// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package audit

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Exporter renders events for external consumers.
type Exporter interface {
	Export(events []Event) ([]byte, error)
	ContentType() string
}

// JSONExporter exports events as an indented JSON array.
type JSONExporter struct{}

// Export exports events to JSON format.
func (JSONExporter) Export(events []Event) ([]byte, error) {
	if events == nil {
		events = []Event{}
	}
	return json.MarshalIndent(events, "", "  ")
}

// ContentType returns the MIME type of the export.
func (JSONExporter) ContentType() string {
	return "application/json"
}

// CEFExporter exports events in Common Event Format for SIEM ingestion.
type CEFExporter struct {
	DeviceVendor  string
	DeviceProduct string
	DeviceVersion string
}

// NewCEFExporter creates a CEF exporter for the given product version.
func NewCEFExporter(version string) *CEFExporter {
	if version == "" {
		version = "1.0"
	}
	return &CEFExporter{
		DeviceVendor:  "Bastion",
		DeviceProduct: "AuthorizationCore",
		DeviceVersion: version,
	}
}

// ContentType returns the MIME type of the export.
func (e *CEFExporter) ContentType() string {
	return "text/plain"
}

// Export writes one line per event:
// CEF:Version|Device Vendor|Device Product|Device Version|Signature ID|Name|Severity|Extension
func (e *CEFExporter) Export(events []Event) ([]byte, error) {
	lines := make([]string, 0, len(events))
	for i := range events {
		ev := &events[i]
		lines = append(lines, fmt.Sprintf("CEF:0|%s|%s|%s|%s|%s|%d|%s",
			escapeHeader(e.DeviceVendor),
			escapeHeader(e.DeviceProduct),
			escapeHeader(e.DeviceVersion),
			escapeHeader(string(ev.EventType)),
			escapeHeader(ev.Action),
			cefSeverity(ev.Severity),
			cefExtension(ev),
		))
	}
	return []byte(strings.Join(lines, "\n")), nil
}

// cefSeverity maps severity onto the CEF 0-10 scale.
func cefSeverity(s Severity) int {
	switch s {
	case SeverityLow:
		return 3
	case SeverityMedium:
		return 5
	case SeverityHigh:
		return 8
	case SeverityCritical:
		return 10
	default:
		return 0
	}
}

func cefExtension(ev *Event) string {
	parts := []string{
		fmt.Sprintf("rt=%d", ev.Timestamp.UnixMilli()),
		"externalId=" + escapeExtension(ev.ID),
		"suid=" + escapeExtension(ev.Actor.ID),
	}
	if ev.Actor.Name != "" {
		parts = append(parts, "suser="+escapeExtension(ev.Actor.Name))
	}
	if ev.Actor.IP != "" {
		parts = append(parts, "src="+escapeExtension(ev.Actor.IP))
	}
	if ev.Target != nil {
		parts = append(parts, "duid="+escapeExtension(ev.Target.ID))
		if ev.Target.Name != "" {
			parts = append(parts, "duser="+escapeExtension(ev.Target.Name))
		}
	}
	parts = append(parts,
		"act="+escapeExtension(ev.Action),
		"outcome="+escapeExtension(string(ev.Outcome)),
		"cat="+escapeExtension(string(ev.Category)),
	)
	if len(ev.ComplianceFlags) > 0 {
		flags := make([]string, len(ev.ComplianceFlags))
		for i, f := range ev.ComplianceFlags {
			flags[i] = string(f)
		}
		parts = append(parts, "cs1Label=complianceFlags", "cs1="+escapeExtension(strings.Join(flags, ",")))
	}
	if ev.Metadata.CorrelationID != "" {
		parts = append(parts, "cs2Label=correlationId", "cs2="+escapeExtension(ev.Metadata.CorrelationID))
	}
	return strings.Join(parts, " ")
}

// escapeHeader escapes pipes and backslashes in header fields.
func escapeHeader(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "|", "\\|")
	return flatten(s)
}

// escapeExtension escapes equals signs and backslashes in extension values.
func escapeExtension(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "=", "\\=")
	return flatten(s)
}

func flatten(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", " ")
}
