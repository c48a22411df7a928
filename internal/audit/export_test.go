// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package audit

import (
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func exportFixture() []Event {
	ev := storeEvent("e1", "u1", time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC), 1)
	ev.Actor.Name = "Alice|Admin"
	ev.Actor.IP = "10.0.0.7"
	ev.Action = "update=retention"
	ev.Severity = SeverityHigh
	ev.Target = &Target{Type: "config", ID: "retention", Name: "line1\nline2"}
	ev.ComplianceFlags = []ComplianceFlag{FlagSOX, FlagSOC2}
	ev.Metadata.CorrelationID = "corr0001"
	return []Event{ev}
}

func TestJSONExporter(t *testing.T) {
	t.Parallel()

	var exp Exporter = JSONExporter{}
	data, err := exp.Export(exportFixture())
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	var got []Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("exported JSON does not decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e1" || got[0].Target.ID != "retention" {
		t.Errorf("decoded = %+v", got)
	}
	if exp.ContentType() != "application/json" {
		t.Errorf("ContentType() = %s", exp.ContentType())
	}

	empty, _ := exp.Export(nil)
	if string(empty) != "[]" {
		t.Errorf("Export(nil) = %s, want []", empty)
	}
}

func TestCEFExporter(t *testing.T) {
	t.Parallel()

	exp := NewCEFExporter("2.0.0")
	data, err := exp.Export(exportFixture())
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	line := string(data)

	if !strings.HasPrefix(line, "CEF:0|Bastion|AuthorizationCore|2.0.0|authentication|update=retention|8|") {
		t.Errorf("unexpected header: %s", line)
	}
	for _, want := range []string{
		"rt=1770091506000",
		"suid=u1",
		`suser=Alice|Admin`,
		"src=10.0.0.7",
		"duid=retention",
		"duser=line1 line2",
		`act=update\=retention`,
		"cs1=SOX,SOC2",
		"cs2=corr0001",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("missing %q in %s", want, line)
		}
	}
	if strings.Contains(line, "\n") {
		t.Error("one event must produce one line")
	}
}

func TestCEFSeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   Severity
		want int
	}{
		{SeverityLow, 3},
		{SeverityMedium, 5},
		{SeverityHigh, 8},
		{SeverityCritical, 10},
		{"unknown", 0},
	}
	for _, tt := range tests {
		if got := cefSeverity(tt.in); got != tt.want {
			t.Errorf("cefSeverity(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
