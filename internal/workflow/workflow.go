// Package workflow applies manual updates to tracked alerts: status
// transitions, pharmacist review bookkeeping and the set-once compliance
// metrics derived from them.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stroudgreenmedical/medicinealerts/internal/core"
	"github.com/stroudgreenmedical/medicinealerts/internal/logger"
	"github.com/stroudgreenmedical/medicinealerts/internal/persistence"
)

var (
	ErrNotFound      = errors.New("alert not found")
	ErrBadTransition = errors.New("invalid status transition")
)

// statusRank orders the normal forward flow. Transitions may only move to
// an equal or higher rank; Closed is additionally reachable from anywhere
// through MarkNotRelevant.
var statusRank = map[core.Status]int{
	core.StatusNew:            0,
	core.StatusUnderReview:    1,
	core.StatusActionRequired: 2,
	core.StatusInProgress:     3,
	core.StatusCompleted:      4,
	core.StatusClosed:         4,
}

// Update is a partial patch of the human-owned workflow fields. Nil fields
// are left untouched.
type Update struct {
	Status            *core.Status
	AssignedTo        *string
	DateFirstReviewed *time.Time
	ActionRequired    *string

	EMISSearchCompleted *bool
	EMISSearchDate      *time.Time
	EMISSearchReason    *string
	PatientsAffected    *int

	EmergencyDrugsCheck    *bool
	EmergencyDrugsAffected *string

	PracticeTeamNotified     *bool
	PracticeTeamNotifiedDate *time.Time
	TeamNotificationMethod   *string
	PatientsContacted        *string
	ContactMethod            *string

	MedicationStopped          *bool
	MedicationStoppedDate      *time.Time
	MedicationNotStoppedReason *string
	PatientHarmAssessed        *bool
	PatientHarmOccurred        *bool
	HarmSeverity               *string
	PatientHarmDetails         *string

	ActionCompletedDate *time.Time
	FinalRelevance      *core.FinalRelevance
	Notes               *string
}

// Service mutates alert workflow state through the repository.
type Service struct {
	alerts persistence.AlertRepository

	// now is swappable for tests
	now func() time.Time
}

func NewService(db persistence.Database) *Service {
	return &Service{alerts: db.Alerts(), now: time.Now}
}

// Apply patches one alert. Status changes must follow the forward flow;
// use MarkNotRelevant to force-close from any state. The compliance
// metrics time_to_first_review and time_to_completion are computed exactly
// once, when their source timestamp transitions from unset to set.
func (s *Service) Apply(ctx context.Context, alertID string, upd Update) (*core.Alert, error) {
	alert, err := s.get(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if upd.Status != nil && *upd.Status != alert.Status {
		if !canTransition(alert.Status, *upd.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrBadTransition, alert.Status, *upd.Status)
		}
		alert.Status = *upd.Status
	}

	if upd.DateFirstReviewed != nil {
		if alert.DateFirstReviewed == nil {
			hours := upd.DateFirstReviewed.Sub(alert.CreatedAt).Hours()
			alert.TimeToFirstReview = &hours
		}
		alert.DateFirstReviewed = upd.DateFirstReviewed
	}
	if upd.ActionCompletedDate != nil {
		if alert.ActionCompletedDate == nil {
			hours := upd.ActionCompletedDate.Sub(alert.CreatedAt).Hours()
			alert.TimeToCompletion = &hours
		}
		alert.ActionCompletedDate = upd.ActionCompletedDate
	}

	applyFields(alert, upd)

	alert.UpdatedAt = s.now().UTC()
	if err := s.alerts.Update(ctx, alert); err != nil {
		return nil, fmt.Errorf("workflow update failed: %w", err)
	}

	logger.Get().Info().
		Str("alert_id", alert.AlertID).
		Str("status", string(alert.Status)).
		Msg("workflow updated")

	return alert, nil
}

// MarkReviewed records the first pharmacist review: New alerts move to
// Under Review, and the first-review timestamp and metric are set if they
// were not already.
func (s *Service) MarkReviewed(ctx context.Context, alertID, reviewer string) (*core.Alert, error) {
	now := s.now().UTC()

	upd := Update{DateFirstReviewed: &now}
	if reviewer != "" {
		upd.AssignedTo = &reviewer
	}

	alert, err := s.get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status == core.StatusNew {
		status := core.StatusUnderReview
		upd.Status = &status
	}

	return s.Apply(ctx, alertID, upd)
}

// MarkNotRelevant is the closure shortcut: from any status the alert is
// force-closed with a confirmed Not-Relevant outcome.
func (s *Service) MarkNotRelevant(ctx context.Context, alertID, reason string) (*core.Alert, error) {
	alert, err := s.get(ctx, alertID)
	if err != nil {
		return nil, err
	}

	alert.Status = core.StatusClosed
	alert.FinalRelevance = core.FinalNotRelevant
	if reason != "" {
		alert.RelevanceReason = reason
	}
	alert.UpdatedAt = s.now().UTC()

	if err := s.alerts.Update(ctx, alert); err != nil {
		return nil, fmt.Errorf("workflow update failed: %w", err)
	}

	logger.Get().Info().Str("alert_id", alert.AlertID).Msg("alert closed as not relevant")
	return alert, nil
}

func (s *Service) get(ctx context.Context, alertID string) (*core.Alert, error) {
	alert, err := s.alerts.GetByAlertID(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("lookup failed: %w", err)
	}
	if alert == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, alertID)
	}
	return alert, nil
}

func canTransition(from, to core.Status) bool {
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank >= fromRank
}

func applyFields(alert *core.Alert, upd Update) {
	if upd.AssignedTo != nil {
		alert.AssignedTo = *upd.AssignedTo
	}
	if upd.ActionRequired != nil {
		alert.ActionRequired = *upd.ActionRequired
	}
	if upd.EMISSearchCompleted != nil {
		alert.EMISSearchCompleted = *upd.EMISSearchCompleted
	}
	if upd.EMISSearchDate != nil {
		alert.EMISSearchDate = upd.EMISSearchDate
	}
	if upd.EMISSearchReason != nil {
		alert.EMISSearchReason = *upd.EMISSearchReason
	}
	if upd.PatientsAffected != nil {
		alert.PatientsAffected = upd.PatientsAffected
	}
	if upd.EmergencyDrugsCheck != nil {
		alert.EmergencyDrugsCheck = *upd.EmergencyDrugsCheck
	}
	if upd.EmergencyDrugsAffected != nil {
		alert.EmergencyDrugsAffected = *upd.EmergencyDrugsAffected
	}
	if upd.PracticeTeamNotified != nil {
		alert.PracticeTeamNotified = *upd.PracticeTeamNotified
	}
	if upd.PracticeTeamNotifiedDate != nil {
		alert.PracticeTeamNotifiedDate = upd.PracticeTeamNotifiedDate
	}
	if upd.TeamNotificationMethod != nil {
		alert.TeamNotificationMethod = *upd.TeamNotificationMethod
	}
	if upd.PatientsContacted != nil {
		alert.PatientsContacted = *upd.PatientsContacted
	}
	if upd.ContactMethod != nil {
		alert.ContactMethod = *upd.ContactMethod
	}
	if upd.MedicationStopped != nil {
		alert.MedicationStopped = *upd.MedicationStopped
	}
	if upd.MedicationStoppedDate != nil {
		alert.MedicationStoppedDate = upd.MedicationStoppedDate
	}
	if upd.MedicationNotStoppedReason != nil {
		alert.MedicationNotStoppedReason = *upd.MedicationNotStoppedReason
	}
	if upd.PatientHarmAssessed != nil {
		alert.PatientHarmAssessed = *upd.PatientHarmAssessed
	}
	if upd.PatientHarmOccurred != nil {
		alert.PatientHarmOccurred = *upd.PatientHarmOccurred
	}
	if upd.HarmSeverity != nil {
		alert.HarmSeverity = *upd.HarmSeverity
	}
	if upd.PatientHarmDetails != nil {
		alert.PatientHarmDetails = *upd.PatientHarmDetails
	}
	if upd.FinalRelevance != nil {
		alert.FinalRelevance = *upd.FinalRelevance
	}
	if upd.Notes != nil {
		alert.Notes = *upd.Notes
	}
}
