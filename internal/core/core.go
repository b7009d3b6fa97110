// Package core defines the domain types shared across the alert pipeline.
package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoContentID marks an inbound item skipped because it lacks the stable
// identifier used for deduplication. Synthesizing one would corrupt the
// dedup key space, so such items never enter the pipeline.
var ErrNoContentID = errors.New("missing content id")

// Status tracks an alert through the manual remediation workflow.
type Status string

const (
	StatusNew            Status = "New"
	StatusUnderReview    Status = "Under Review"
	StatusActionRequired Status = "Action Required"
	StatusInProgress     Status = "In Progress"
	StatusCompleted      Status = "Completed"
	StatusClosed         Status = "Closed"
)

// ParseStatus converts a persisted string back to a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusNew, StatusUnderReview, StatusActionRequired, StatusInProgress, StatusCompleted, StatusClosed:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown alert status %q", s)
}

// IsOpen reports whether the alert still requires action to be taken.
func (s Status) IsOpen() bool {
	return s == StatusNew || s == StatusActionRequired
}

// Priority is the response deadline tier assigned at triage time.
type Priority string

const (
	PriorityP1 Priority = "P1-Immediate"
	PriorityP2 Priority = "P2-Within 48h"
	PriorityP3 Priority = "P3-Within 1 week"
	PriorityP4 Priority = "P4-Routine"
)

// ParsePriority converts a persisted string back to a Priority.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityP1, PriorityP2, PriorityP3, PriorityP4:
		return Priority(s), nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// Rank returns the sort rank of a priority: P1 sorts before P2 before P3
// before P4. Unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityP1:
		return 1
	case PriorityP2:
		return 2
	case PriorityP3:
		return 3
	case PriorityP4:
		return 4
	}
	return 5
}

// Severity is the clinical seriousness of an alert.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// ParseSeverity converts a persisted string back to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return Severity(s), nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// Relevance is the automatic triage outcome for an alert.
type Relevance string

const (
	RelevanceAuto         Relevance = "Auto-Relevant"
	RelevanceAutoNot      Relevance = "Auto-Not-Relevant"
	RelevanceManualReview Relevance = "Manual-Review"
)

// FinalRelevance is the human-confirmed relevance decision. The empty string
// means no decision has been recorded yet.
type FinalRelevance string

const (
	FinalRelevant    FinalRelevance = "Relevant"
	FinalNotRelevant FinalRelevance = "Not-Relevant"
	FinalUnset       FinalRelevance = ""
)

// Category is one of the fixed alert categories used for sorting and
// severity derivation.
type Category string

const (
	CategoryNatPSA          Category = "National Patient Safety Alert"
	CategoryMedicinesRecall Category = "Medicines Recall"
	CategoryDeviceAlert     Category = "Medical Device Alert"
	CategorySafetyRoundup   Category = "MHRA Safety Roundup"
	CategoryDrugSafety      Category = "Drug Safety Update"
	CategorySupplyAlert     Category = "Medicine Supply Alert"
	CategorySSP             Category = "Serious Shortage Protocol"
	CategoryUncategorized   Category = "Uncategorized"
)

// ParseCategory converts a persisted string back to a Category.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryNatPSA, CategoryMedicinesRecall, CategoryDeviceAlert, CategorySafetyRoundup,
		CategoryDrugSafety, CategorySupplyAlert, CategorySSP, CategoryUncategorized:
		return Category(s), nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// AlertInput is the canonical shape every feed source is normalized into
// before it enters the processing pipeline.
type AlertInput struct {
	ContentID          string // stable external key; required for dedup
	Title              string
	Link               string
	PublicTimestamp    string // raw date string, parsed later
	IssuedDate         string // raw date string from content metadata
	Description        string
	Body               string // flattened article body, may be empty
	AlertType          string
	MessageType        string
	MedicalSpecialties []string
	DataSource         string   // e.g. "GOV.UK", "GOV.UK ATOM"
	SourceURLs         []string // origin URLs, usually a singleton
}

// Alert is the persisted record for one tracked safety notice.
type Alert struct {
	ID int64

	// Identification
	AlertID        string // derived short id, stable per ContentID
	GovUKReference string
	ContentID      string
	URL            string
	Title          string
	PublishedDate  *time.Time
	IssuedDate     *time.Time

	// Classification & triage
	AlertType          string
	MessageType        string
	MedicalSpecialties string // pipe-joined textual form
	Category           Category
	Severity           Severity
	Priority           Priority
	AutoRelevance      Relevance
	FinalRelevance     FinalRelevance
	RelevanceReason    string

	// Extracted product facts, all best-effort
	ProductName      string
	ActiveIngredient string
	Manufacturer     string
	BatchNumbers     string
	ExpiryDates      string
	TherapeuticArea  string

	// Workflow state, human-owned after creation
	Status              Status
	AssignedTo          string
	DateFirstReviewed   *time.Time
	ActionRequired      string
	EMISSearchTerms     string
	EMISSearchCompleted bool
	EMISSearchDate      *time.Time
	EMISSearchReason    string
	PatientsAffected    *int

	EmergencyDrugsCheck    bool
	EmergencyDrugsAffected string

	PracticeTeamNotified     bool
	PracticeTeamNotifiedDate *time.Time
	TeamNotificationMethod   string
	PatientsContacted        string
	ContactMethod            string

	MedicationStopped          bool
	MedicationStoppedDate      *time.Time
	MedicationNotStoppedReason string
	PatientHarmAssessed        bool
	PatientHarmOccurred        bool
	HarmSeverity               string
	PatientHarmDetails         string

	// Compliance metrics, both in hours, computed once
	ActionCompletedDate *time.Time
	TimeToFirstReview   *float64
	TimeToCompletion    *float64
	Notes               string

	// Duplicate tracking: back-reference, not ownership
	IsDuplicate    bool
	PrimaryAlertID string

	// System metadata
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DataSource string
	SourceURLs []string // set of origin URLs across all feeds
	Backfilled bool
	Notified   bool
	NotifiedAt *time.Time
}

// HasSourceURL reports whether the alert already records the given origin URL.
func (a *Alert) HasSourceURL(url string) bool {
	for _, u := range a.SourceURLs {
		if u == url {
			return true
		}
	}
	return false
}

// AddSourceURLs unions the given URLs into the alert's source set, preserving
// first-seen order. It returns true if the set changed.
func (a *Alert) AddSourceURLs(urls []string) bool {
	changed := false
	for _, u := range urls {
		if u == "" || a.HasSourceURL(u) {
			continue
		}
		a.SourceURLs = append(a.SourceURLs, u)
		changed = true
	}
	return changed
}

// FeedState records conditional-GET caching state for one polled feed.
type FeedState struct {
	URL          string
	LastModified string
	ETag         string
	LastPolled   time.Time
}

// ProcessStats summarizes one ingestion run.
type ProcessStats struct {
	Processed int // inputs examined
	Created   int // new alerts inserted
	Updated   int // existing alerts with merged metadata
	Skipped   int // unprocessable inputs (missing content id)
	Failed    int // persistence failures
	Relevant  int // newly created Auto-Relevant alerts
}

// Add accumulates another run's counts into s.
func (s *ProcessStats) Add(other ProcessStats) {
	s.Processed += other.Processed
	s.Created += other.Created
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.Relevant += other.Relevant
}
