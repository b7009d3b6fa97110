package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stroudgreenmedical/medicinealerts/internal/core"
	"github.com/stroudgreenmedical/medicinealerts/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	db, err := store.NewStore(filepath.Join(t.TempDir(), "alerts.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewService(db), db
}

func seedAlert(t *testing.T, db *store.Store, status core.Status) *core.Alert {
	t.Helper()
	alert := &core.Alert{
		AlertID:        "MHRA-TEST0001",
		ContentID:      "content-wf-1",
		Title:          "Class 2 Medicines Recall: Test Product",
		Category:       core.CategoryMedicinesRecall,
		Severity:       core.SeverityHigh,
		Priority:       core.PriorityP2,
		AutoRelevance:  core.RelevanceManualReview,
		Status:         status,
		CreatedAt:      time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC),
		DataSource:     "GOV.UK",
		SourceURLs:     []string{"https://www.gov.uk/drug-device-alerts/test"},
	}
	if err := db.Alerts().Create(context.Background(), alert); err != nil {
		t.Fatalf("seed alert failed: %v", err)
	}
	return alert
}

func TestTimeToFirstReviewComputedOnce(t *testing.T) {
	svc, db := newTestService(t)
	seeded := seedAlert(t, db, core.StatusNew)

	// Reviewed 90 minutes after creation.
	reviewed := seeded.CreatedAt.Add(90 * time.Minute)
	alert, err := svc.Apply(context.Background(), seeded.AlertID, Update{DateFirstReviewed: &reviewed})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if alert.TimeToFirstReview == nil || *alert.TimeToFirstReview != 1.5 {
		t.Fatalf("TimeToFirstReview = %v, want 1.5", alert.TimeToFirstReview)
	}

	// Re-setting the date must not recompute the metric.
	later := seeded.CreatedAt.Add(10 * time.Hour)
	alert, err = svc.Apply(context.Background(), seeded.AlertID, Update{DateFirstReviewed: &later})
	if err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}
	if *alert.TimeToFirstReview != 1.5 {
		t.Errorf("TimeToFirstReview = %v after re-set, want unchanged 1.5", *alert.TimeToFirstReview)
	}
	if alert.DateFirstReviewed == nil || !alert.DateFirstReviewed.Equal(later) {
		t.Errorf("DateFirstReviewed = %v, want %v", alert.DateFirstReviewed, later)
	}
}

func TestTimeToCompletionComputedOnce(t *testing.T) {
	svc, db := newTestService(t)
	seeded := seedAlert(t, db, core.StatusInProgress)

	completed := seeded.CreatedAt.Add(48 * time.Hour)
	alert, err := svc.Apply(context.Background(), seeded.AlertID, Update{ActionCompletedDate: &completed})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if alert.TimeToCompletion == nil || *alert.TimeToCompletion != 48 {
		t.Fatalf("TimeToCompletion = %v, want 48", alert.TimeToCompletion)
	}

	again := completed.Add(time.Hour)
	alert, err = svc.Apply(context.Background(), seeded.AlertID, Update{ActionCompletedDate: &again})
	if err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}
	if *alert.TimeToCompletion != 48 {
		t.Errorf("TimeToCompletion = %v after re-set, want unchanged 48", *alert.TimeToCompletion)
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to core.Status
		ok       bool
	}{
		{core.StatusNew, core.StatusUnderReview, true},
		{core.StatusNew, core.StatusActionRequired, true},
		{core.StatusUnderReview, core.StatusInProgress, true},
		{core.StatusInProgress, core.StatusCompleted, true},
		{core.StatusActionRequired, core.StatusClosed, true},
		{core.StatusCompleted, core.StatusNew, false},
		{core.StatusClosed, core.StatusInProgress, false},
		{core.StatusInProgress, core.StatusUnderReview, false},
	}

	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestApplyRejectsBackwardTransition(t *testing.T) {
	svc, db := newTestService(t)
	seeded := seedAlert(t, db, core.StatusCompleted)

	status := core.StatusNew
	_, err := svc.Apply(context.Background(), seeded.AlertID, Update{Status: &status})
	if !errors.Is(err, ErrBadTransition) {
		t.Errorf("err = %v, want ErrBadTransition", err)
	}
}

func TestMarkReviewedMovesNewToUnderReview(t *testing.T) {
	svc, db := newTestService(t)
	seeded := seedAlert(t, db, core.StatusNew)

	alert, err := svc.MarkReviewed(context.Background(), seeded.AlertID, "Chandni Shah")
	if err != nil {
		t.Fatalf("MarkReviewed failed: %v", err)
	}
	if alert.Status != core.StatusUnderReview {
		t.Errorf("Status = %q, want Under Review", alert.Status)
	}
	if alert.DateFirstReviewed == nil || alert.TimeToFirstReview == nil {
		t.Error("first review timestamp and metric should be set")
	}
	if alert.AssignedTo != "Chandni Shah" {
		t.Errorf("AssignedTo = %q", alert.AssignedTo)
	}
}

func TestMarkReviewedKeepsLaterStatus(t *testing.T) {
	svc, db := newTestService(t)
	seeded := seedAlert(t, db, core.StatusInProgress)

	alert, err := svc.MarkReviewed(context.Background(), seeded.AlertID, "")
	if err != nil {
		t.Fatalf("MarkReviewed failed: %v", err)
	}
	if alert.Status != core.StatusInProgress {
		t.Errorf("Status = %q, want In Progress untouched", alert.Status)
	}
}

func TestMarkNotRelevantFromAnyStatus(t *testing.T) {
	for _, from := range []core.Status{
		core.StatusNew, core.StatusUnderReview, core.StatusActionRequired,
		core.StatusInProgress, core.StatusCompleted,
	} {
		t.Run(string(from), func(t *testing.T) {
			svc, db := newTestService(t)
			seeded := seedAlert(t, db, from)

			alert, err := svc.MarkNotRelevant(context.Background(), seeded.AlertID, "Not stocked at this practice")
			if err != nil {
				t.Fatalf("MarkNotRelevant failed: %v", err)
			}
			if alert.Status != core.StatusClosed {
				t.Errorf("Status = %q, want Closed", alert.Status)
			}
			if alert.FinalRelevance != core.FinalNotRelevant {
				t.Errorf("FinalRelevance = %q", alert.FinalRelevance)
			}
			if alert.RelevanceReason != "Not stocked at this practice" {
				t.Errorf("RelevanceReason = %q", alert.RelevanceReason)
			}
		})
	}
}

func TestApplyUnknownAlert(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Apply(context.Background(), "MHRA-MISSING1", Update{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestApplyPatchesWorkflowFields(t *testing.T) {
	svc, db := newTestService(t)
	seeded := seedAlert(t, db, core.StatusActionRequired)

	checked := true
	notes := "EMIS search run, two patients flagged"
	patients := 2
	alert, err := svc.Apply(context.Background(), seeded.AlertID, Update{
		EMISSearchCompleted: &checked,
		PatientsAffected:    &patients,
		Notes:               &notes,
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !alert.EMISSearchCompleted {
		t.Error("EMISSearchCompleted should be set")
	}
	if alert.PatientsAffected == nil || *alert.PatientsAffected != 2 {
		t.Errorf("PatientsAffected = %v", alert.PatientsAffected)
	}
	if alert.Notes != notes {
		t.Errorf("Notes = %q", alert.Notes)
	}

	// Round-trip through the store.
	got, err := db.Alerts().GetByAlertID(context.Background(), seeded.AlertID)
	if err != nil || got == nil {
		t.Fatalf("GetByAlertID failed: %v", err)
	}
	if !got.EMISSearchCompleted || got.Notes != notes {
		t.Error("patched fields did not persist")
	}
}
