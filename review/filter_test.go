package review

import (
	"testing"

	"github.com/reviewloop/reviewloop/engine"
)

func testFindings() []engine.Finding {
	return []engine.Finding{
		{Path: "a.go", Line: 1, Severity: engine.SeverityHigh, Message: "sql injection"},
		{Path: "b.go", Line: 3, Severity: engine.SeverityMedium, Message: "missing error check"},
		{Path: "a.go", Line: 9, Severity: engine.SeverityLow, Message: "naming nit"},
		{Path: "b.go", Line: 7, Severity: engine.SeverityHigh, Message: "race condition"},
		{Path: "c.go", Line: 2, Severity: engine.SeverityLow, Message: "shadowed variable"},
	}
}

func TestFilterBySeverity(t *testing.T) {
	tests := []struct {
		name      string
		threshold engine.Severity
		wantCount int
		wantFirst string
	}{
		{
			name:      "low threshold keeps everything",
			threshold: engine.SeverityLow,
			wantCount: 5,
			wantFirst: "sql injection",
		},
		{
			name:      "medium threshold drops low",
			threshold: engine.SeverityMedium,
			wantCount: 3,
			wantFirst: "sql injection",
		},
		{
			name:      "high threshold keeps only high",
			threshold: engine.SeverityHigh,
			wantCount: 2,
			wantFirst: "sql injection",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterBySeverity(testFindings(), tt.threshold)
			if len(got) != tt.wantCount {
				t.Fatalf("FilterBySeverity() count = %d, want %d", len(got), tt.wantCount)
			}
			if got[0].Message != tt.wantFirst {
				t.Errorf("first finding = %q, want %q", got[0].Message, tt.wantFirst)
			}
		})
	}
}

func TestFilterBySeverityPreservesOrder(t *testing.T) {
	got := FilterBySeverity(testFindings(), engine.SeverityMedium)

	want := []string{"sql injection", "missing error check", "race condition"}
	for i, msg := range want {
		if got[i].Message != msg {
			t.Errorf("finding[%d] = %q, want %q", i, got[i].Message, msg)
		}
	}
}

func TestFilterBySeverityDropsUnknown(t *testing.T) {
	findings := []engine.Finding{
		{Severity: "critical", Message: "unknown severity"},
		{Severity: engine.SeverityLow, Message: "known severity"},
	}

	got := FilterBySeverity(findings, engine.SeverityLow)
	if len(got) != 1 {
		t.Fatalf("FilterBySeverity() count = %d, want 1", len(got))
	}
	if got[0].Message != "known severity" {
		t.Errorf("kept finding = %q, want the known severity", got[0].Message)
	}
}

func TestFilterBySeverityEmptyInput(t *testing.T) {
	if got := FilterBySeverity(nil, engine.SeverityLow); len(got) != 0 {
		t.Errorf("FilterBySeverity(nil) = %v, want empty", got)
	}
}

func TestCountBySeverity(t *testing.T) {
	findings := testFindings()

	if got := CountBySeverity(findings, engine.SeverityHigh); got != 2 {
		t.Errorf("CountBySeverity(high) = %d, want 2", got)
	}
	if got := CountBySeverity(findings, engine.SeverityMedium); got != 1 {
		t.Errorf("CountBySeverity(medium) = %d, want 1", got)
	}
	if got := CountBySeverity(findings, engine.SeverityLow); got != 2 {
		t.Errorf("CountBySeverity(low) = %d, want 2", got)
	}
}
