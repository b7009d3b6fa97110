// Package notify sends Microsoft Teams webhook notifications for newly
// triaged alerts.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/stroudgreenmedical/medicinealerts/internal/config"
	"github.com/stroudgreenmedical/medicinealerts/internal/core"
	"github.com/stroudgreenmedical/medicinealerts/internal/logger"
)

// MessageCard is the legacy Teams connector card payload.
type MessageCard struct {
	Type       string    `json:"@type"`
	Context    string    `json:"@context"`
	Summary    string    `json:"summary"`
	ThemeColor string    `json:"themeColor,omitempty"`
	Title      string    `json:"title"`
	Sections   []Section `json:"sections,omitempty"`
	Actions    []Action  `json:"potentialAction,omitempty"`
}

// Section is one content block of a message card.
type Section struct {
	ActivityTitle    string `json:"activityTitle,omitempty"`
	ActivitySubtitle string `json:"activitySubtitle,omitempty"`
	ActivityImage    string `json:"activityImage,omitempty"`
	Facts            []Fact `json:"facts,omitempty"`
	Text             string `json:"text,omitempty"`
}

// Fact is a name/value row in a card section.
type Fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Action is a card action, currently always an OpenUri link.
type Action struct {
	Type    string   `json:"@type"`
	Name    string   `json:"name"`
	Targets []Target `json:"targets"`
}

// Target is one OS-specific URI for an action.
type Target struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

// themeColors maps priority bands to card accent colors.
var themeColors = map[core.Priority]string{
	core.PriorityP1: "FF0000",
	core.PriorityP2: "FF8C00",
	core.PriorityP3: "FFD700",
	core.PriorityP4: "32CD32",
}

// TeamsClient posts message cards to a configured incoming webhook. It
// satisfies the processing pipeline's Notifier interface.
type TeamsClient struct {
	webhookURL string
	client     *http.Client
}

// NewTeamsClient builds a client from configuration. The returned client
// is inert (Enabled reports false) when no webhook URL is configured.
func NewTeamsClient(cfg *config.Config) *TeamsClient {
	timeout := 30 * time.Second
	if cfg.Notify.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Notify.Timeout); err == nil {
			timeout = d
		}
	}

	return &TeamsClient{
		webhookURL: cfg.Notify.TeamsWebhookURL,
		client:     &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a webhook URL is configured.
func (c *TeamsClient) Enabled() bool {
	return c.webhookURL != ""
}

// NotifyNewAlert announces one newly created relevant alert.
func (c *TeamsClient) NotifyNewAlert(ctx context.Context, alert *core.Alert) error {
	if !c.Enabled() {
		return fmt.Errorf("teams webhook URL not configured")
	}

	if err := c.send(ctx, alertCard(alert)); err != nil {
		return err
	}

	logger.Get().Info().Str("alert_id", alert.AlertID).Msg("teams notification sent")
	return nil
}

// NotifySummary posts a digest of a completed polling period.
func (c *TeamsClient) NotifySummary(ctx context.Context, stats core.ProcessStats, periodHours int) error {
	if !c.Enabled() {
		return fmt.Errorf("teams webhook URL not configured")
	}

	card := &MessageCard{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		Summary:    "Medicines Alerts Summary",
		ThemeColor: "0078D7",
		Title:      "Medicines Alerts Summary",
		Sections: []Section{{
			ActivityTitle: fmt.Sprintf("Summary for the last %d hours", periodHours),
			Facts: []Fact{
				{Name: "New Alerts", Value: fmt.Sprintf("%d", stats.Created)},
				{Name: "Relevant to Practice", Value: fmt.Sprintf("%d", stats.Relevant)},
				{Name: "Auto-closed", Value: fmt.Sprintf("%d", stats.Created-stats.Relevant)},
				{Name: "Failed", Value: fmt.Sprintf("%d", stats.Failed)},
			},
		}},
	}

	return c.send(ctx, card)
}

func alertCard(alert *core.Alert) *MessageCard {
	color, ok := themeColors[alert.Priority]
	if !ok {
		color = "0078D7"
	}

	facts := []Fact{
		{Name: "Category", Value: string(alert.Category)},
		{Name: "Severity", Value: string(alert.Severity)},
		{Name: "Priority", Value: string(alert.Priority)},
	}
	if alert.ProductName != "" {
		facts = append(facts, Fact{Name: "Product", Value: alert.ProductName})
	}
	if alert.BatchNumbers != "" {
		facts = append(facts, Fact{Name: "Batch Numbers", Value: alert.BatchNumbers})
	}
	if alert.MedicalSpecialties != "" {
		facts = append(facts, Fact{Name: "Medical Specialties", Value: alert.MedicalSpecialties})
	}
	facts = append(facts,
		Fact{Name: "Published", Value: formatDate(alert.PublishedDate)},
		Fact{Name: "Assigned To", Value: alert.AssignedTo},
	)

	text := alert.RelevanceReason
	if text == "" {
		text = "This alert has been classified as relevant to the practice."
	}

	card := &MessageCard{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		Summary:    "MHRA Alert: " + alert.Title,
		ThemeColor: color,
		Title:      alert.Title,
		Sections: []Section{{
			ActivityTitle:    "New MHRA Alert Requires Review",
			ActivitySubtitle: "Auto-classified as " + string(alert.AutoRelevance),
			Facts:            facts,
			Text:             text,
		}},
	}

	if alert.URL != "" {
		card.Actions = append(card.Actions, Action{
			Type:    "OpenUri",
			Name:    "View on GOV.UK",
			Targets: []Target{{OS: "default", URI: alert.URL}},
		})
	}

	return card
}

func (c *TeamsClient) send(ctx context.Context, card *MessageCard) error {
	payload, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("failed to marshal message card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post to teams webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("teams webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "Unknown"
	}
	return t.Format("02 January 2006")
}

// SummaryAccumulator collects processing stats across polling runs so the
// periodic summary job can report one digest per period. Safe for use from
// concurrent scheduler jobs.
type SummaryAccumulator struct {
	mu    sync.Mutex
	stats core.ProcessStats
}

// Add folds one batch result into the running totals.
func (a *SummaryAccumulator) Add(stats core.ProcessStats) {
	a.mu.Lock()
	a.stats.Add(stats)
	a.mu.Unlock()
}

// Flush returns the accumulated totals and resets them for the next period.
func (a *SummaryAccumulator) Flush() core.ProcessStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := a.stats
	a.stats = core.ProcessStats{}
	return stats
}
