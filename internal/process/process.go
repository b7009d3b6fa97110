// Package process implements the alert ingestion pipeline: deduplication,
// classification, enrichment and persistence of canonical alert inputs.
package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stroudgreenmedical/medicinealerts/internal/config"
	"github.com/stroudgreenmedical/medicinealerts/internal/core"
	"github.com/stroudgreenmedical/medicinealerts/internal/extract"
	"github.com/stroudgreenmedical/medicinealerts/internal/logger"
	"github.com/stroudgreenmedical/medicinealerts/internal/persistence"
	"github.com/stroudgreenmedical/medicinealerts/internal/triage"
)

// Notifier announces newly created relevant alerts. Failures are logged and
// swallowed; a broken webhook must never fail ingestion.
type Notifier interface {
	NotifyNewAlert(ctx context.Context, alert *core.Alert) error
}

// Processor turns canonical alert inputs into persisted alert records.
type Processor struct {
	alerts   persistence.AlertRepository
	engine   *triage.Engine
	notifier Notifier
	cfg      *config.Config

	// now is swappable for tests
	now func() time.Time
}

// NewProcessor builds a processor. notifier may be nil when notifications
// are not configured.
func NewProcessor(db persistence.Database, engine *triage.Engine, notifier Notifier, cfg *config.Config) *Processor {
	return &Processor{
		alerts:   db.Alerts(),
		engine:   engine,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// AlertID derives the short human-readable alert ID from a content ID. The
// derivation is a stable hash, so reprocessing the same content always
// yields the same ID.
func AlertID(contentID string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(contentID))
	hex := strings.ReplaceAll(id.String(), "-", "")
	return "MHRA-" + strings.ToUpper(hex[:8])
}

// Approver returns who signs off alerts created at the given time. Alerts
// on or after the switch date belong to the successor.
func Approver(now, switchDate time.Time, initial, successor string) string {
	if !switchDate.IsZero() && !now.Before(switchDate) {
		return successor
	}
	return initial
}

// dateFormats covers the shapes the sources emit: ISO-8601 from the GOV.UK
// API and ATOM feeds, RFC 1123/822 pubDates from RSS feeds, and bare
// YYYY-MM-DD from scraped detail pages.
var dateFormats = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"2006-01-02",
}

// ParseDate parses a source date string. Anything unparseable resolves to
// nil rather than an error, so one bad date never aborts a batch.
func ParseDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}

	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc
		}
	}

	logger.Get().Warn().Str("date", raw).Msg("could not parse date")
	return nil
}

// Process upserts one canonical alert input. It returns the stored alert
// and whether it was newly created. Inputs without a content ID are
// rejected with core.ErrNoContentID.
func (p *Processor) Process(ctx context.Context, in core.AlertInput, backfill bool) (*core.Alert, bool, error) {
	if strings.TrimSpace(in.ContentID) == "" {
		return nil, false, core.ErrNoContentID
	}

	existing, err := p.alerts.GetByContentID(ctx, in.ContentID)
	if err != nil {
		return nil, false, fmt.Errorf("lookup failed: %w", err)
	}
	if existing != nil {
		if err := p.mergeMetadata(ctx, existing, in); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	alert, err := p.createAlert(ctx, in, backfill)
	if err != nil {
		return nil, false, err
	}
	return alert, true, nil
}

func (p *Processor) createAlert(ctx context.Context, in core.AlertInput, backfill bool) (*core.Alert, error) {
	now := p.now().UTC()
	decision := p.engine.Triage(in)
	facts := extract.ProductFacts(in.Title, in.Description, in.Body)

	alert := &core.Alert{
		AlertID:        AlertID(in.ContentID),
		ContentID:      in.ContentID,
		URL:            in.Link,
		Title:          in.Title,
		GovUKReference: extract.Reference(in.Title),

		PublishedDate: ParseDate(in.PublicTimestamp),
		IssuedDate:    ParseDate(in.IssuedDate),

		AlertType:          in.AlertType,
		MessageType:        in.MessageType,
		MedicalSpecialties: joinSpecialties(in.MedicalSpecialties),

		Category:        decision.Category,
		Severity:        decision.Severity,
		Priority:        decision.Priority,
		AutoRelevance:   decision.Relevance,
		RelevanceReason: decision.Reason,

		ProductName:      facts.ProductName,
		ActiveIngredient: facts.ActiveIngredient,
		Manufacturer:     facts.Manufacturer,
		BatchNumbers:     facts.BatchNumbers,
		ExpiryDates:      facts.ExpiryDates,
		TherapeuticArea:  facts.TherapeuticArea,

		AssignedTo: Approver(now, p.cfg.ApprovalSwitchDate(),
			p.cfg.Approvals.InitialApprover, p.cfg.Approvals.SuccessorApprover),

		CreatedAt:  now,
		UpdatedAt:  now,
		DataSource: in.DataSource,
		SourceURLs: in.SourceURLs,
		Backfilled: backfill,
	}

	alert.EMISSearchTerms = extract.SearchTerms(facts.ProductName, facts.ActiveIngredient, facts.BatchNumbers)

	// Initial workflow state follows the triage outcome.
	switch decision.Relevance {
	case core.RelevanceAuto:
		alert.Status = core.StatusActionRequired
		alert.FinalRelevance = core.FinalRelevant
	case core.RelevanceAutoNot:
		alert.Status = core.StatusClosed
		alert.FinalRelevance = core.FinalNotRelevant
	default:
		alert.Status = core.StatusNew
		alert.FinalRelevance = core.FinalUnset
	}

	if err := p.alerts.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("insert failed: %w", err)
	}

	logger.Get().Info().
		Str("alert_id", alert.AlertID).
		Str("category", string(alert.Category)).
		Str("relevance", string(alert.AutoRelevance)).
		Msg("processed alert")

	p.maybeNotify(ctx, alert, backfill)

	return alert, nil
}

// maybeNotify announces a newly created Auto-Relevant alert. Backfill runs
// stay silent, and notification failure never fails the ingestion.
func (p *Processor) maybeNotify(ctx context.Context, alert *core.Alert, backfill bool) {
	if p.notifier == nil || backfill || alert.AutoRelevance != core.RelevanceAuto {
		return
	}

	if err := p.notifier.NotifyNewAlert(ctx, alert); err != nil {
		logger.Get().Warn().Err(err).Str("alert_id", alert.AlertID).Msg("notification failed")
		return
	}

	now := p.now().UTC()
	alert.Notified = true
	alert.NotifiedAt = &now
	if err := p.alerts.Update(ctx, alert); err != nil {
		logger.Get().Warn().Err(err).Str("alert_id", alert.AlertID).Msg("could not record notification")
	}
}

// mergeMetadata updates only source metadata on an existing alert. Workflow
// fields are human-owned after creation and are never touched here.
func (p *Processor) mergeMetadata(ctx context.Context, existing *core.Alert, in core.AlertInput) error {
	if in.Title != "" {
		existing.Title = in.Title
	}
	if in.MessageType != "" {
		existing.MessageType = in.MessageType
	}
	existing.AddSourceURLs(in.SourceURLs)

	newSpecialties := joinSpecialties(in.MedicalSpecialties)
	if newSpecialties != "" && newSpecialties != existing.MedicalSpecialties {
		existing.MedicalSpecialties = newSpecialties

		// Re-triage on changed specialties, but only while no human has
		// overridden the automatic outcome.
		if existing.FinalRelevance == core.FinalUnset ||
			string(existing.FinalRelevance) == string(existing.AutoRelevance) {
			decision := p.engine.Triage(in)
			existing.AutoRelevance = decision.Relevance
			existing.RelevanceReason = decision.Reason
		}
	}

	existing.UpdatedAt = p.now().UTC()

	if err := p.alerts.Update(ctx, existing); err != nil {
		return fmt.Errorf("metadata update failed: %w", err)
	}
	return nil
}

// ProcessBatch runs a slice of inputs through Process, isolating failures
// per item. During backfills it logs progress every hundred records.
func (p *Processor) ProcessBatch(ctx context.Context, inputs []core.AlertInput, backfill bool) core.ProcessStats {
	var stats core.ProcessStats

	for _, in := range inputs {
		stats.Processed++

		alert, created, err := p.Process(ctx, in, backfill)
		switch {
		case errors.Is(err, core.ErrNoContentID):
			stats.Skipped++
			logger.Get().Warn().Str("title", in.Title).Msg("alert missing content_id, skipping")
		case err != nil:
			stats.Failed++
			logger.Get().Error().Err(err).Str("content_id", in.ContentID).Msg("error processing alert")
		case created:
			stats.Created++
			if alert.AutoRelevance == core.RelevanceAuto {
				stats.Relevant++
			}
		default:
			stats.Updated++
		}

		if backfill && stats.Processed%100 == 0 {
			logger.Get().Info().Int("processed", stats.Processed).Msg("backfill progress")
		}
	}

	return stats
}

func joinSpecialties(specialties []string) string {
	return strings.Join(specialties, " | ")
}
