package core

import "testing"

func TestStatusRoundTrip(t *testing.T) {
	statuses := []Status{
		StatusNew, StatusUnderReview, StatusActionRequired,
		StatusInProgress, StatusCompleted, StatusClosed,
	}

	for _, s := range statuses {
		parsed, err := ParseStatus(string(s))
		if err != nil {
			t.Errorf("ParseStatus(%q) failed: %v", s, err)
		}
		if parsed != s {
			t.Errorf("Expected %q to round-trip, got %q", s, parsed)
		}
	}

	if _, err := ParseStatus("Archived"); err == nil {
		t.Error("Expected error for unknown status")
	}
}

func TestPriorityRoundTrip(t *testing.T) {
	priorities := []Priority{PriorityP1, PriorityP2, PriorityP3, PriorityP4}

	for _, p := range priorities {
		parsed, err := ParsePriority(string(p))
		if err != nil {
			t.Errorf("ParsePriority(%q) failed: %v", p, err)
		}
		if parsed != p {
			t.Errorf("Expected %q to round-trip, got %q", p, parsed)
		}
	}

	if _, err := ParsePriority("P5"); err == nil {
		t.Error("Expected error for unknown priority")
	}
}

func TestSeverityRoundTrip(t *testing.T) {
	severities := []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

	for _, s := range severities {
		parsed, err := ParseSeverity(string(s))
		if err != nil {
			t.Errorf("ParseSeverity(%q) failed: %v", s, err)
		}
		if parsed != s {
			t.Errorf("Expected %q to round-trip, got %q", s, parsed)
		}
	}

	if _, err := ParseSeverity("Severe"); err == nil {
		t.Error("Expected error for unknown severity")
	}
}

func TestCategoryRoundTrip(t *testing.T) {
	categories := []Category{
		CategoryNatPSA, CategoryMedicinesRecall, CategoryDeviceAlert,
		CategorySafetyRoundup, CategoryDrugSafety, CategorySupplyAlert,
		CategorySSP, CategoryUncategorized,
	}

	for _, c := range categories {
		parsed, err := ParseCategory(string(c))
		if err != nil {
			t.Errorf("ParseCategory(%q) failed: %v", c, err)
		}
		if parsed != c {
			t.Errorf("Expected %q to round-trip, got %q", c, parsed)
		}
	}

	if _, err := ParseCategory("Recall"); err == nil {
		t.Error("Expected error for unknown category")
	}
}

func TestPriorityRank(t *testing.T) {
	if PriorityP1.Rank() >= PriorityP2.Rank() {
		t.Error("P1 should rank before P2")
	}
	if PriorityP2.Rank() >= PriorityP3.Rank() {
		t.Error("P2 should rank before P3")
	}
	if PriorityP3.Rank() >= PriorityP4.Rank() {
		t.Error("P3 should rank before P4")
	}
	if Priority("unknown").Rank() <= PriorityP4.Rank() {
		t.Error("Unknown priority should rank last")
	}
}

func TestStatusIsOpen(t *testing.T) {
	tests := []struct {
		status Status
		open   bool
	}{
		{StatusNew, true},
		{StatusActionRequired, true},
		{StatusUnderReview, false},
		{StatusInProgress, false},
		{StatusCompleted, false},
		{StatusClosed, false},
	}

	for _, tt := range tests {
		if got := tt.status.IsOpen(); got != tt.open {
			t.Errorf("Status %q IsOpen = %v, want %v", tt.status, got, tt.open)
		}
	}
}

func TestAddSourceURLs(t *testing.T) {
	alert := &Alert{SourceURLs: []string{"https://www.gov.uk/a"}}

	changed := alert.AddSourceURLs([]string{"https://www.gov.uk/a", "https://www.gov.uk/b", ""})
	if !changed {
		t.Error("Expected AddSourceURLs to report a change")
	}
	if len(alert.SourceURLs) != 2 {
		t.Fatalf("Expected 2 source URLs, got %d", len(alert.SourceURLs))
	}
	if alert.SourceURLs[1] != "https://www.gov.uk/b" {
		t.Errorf("Expected new URL appended, got %v", alert.SourceURLs)
	}

	// Re-adding the same URLs is a no-op.
	if alert.AddSourceURLs([]string{"https://www.gov.uk/b"}) {
		t.Error("Expected no change when adding a known URL")
	}
}

func TestProcessStatsAdd(t *testing.T) {
	total := ProcessStats{Processed: 1, Created: 1}
	total.Add(ProcessStats{Processed: 2, Updated: 1, Skipped: 1, Failed: 1, Relevant: 1})

	if total.Processed != 3 || total.Created != 1 || total.Updated != 1 ||
		total.Skipped != 1 || total.Failed != 1 || total.Relevant != 1 {
		t.Errorf("Unexpected accumulated stats: %+v", total)
	}
}
