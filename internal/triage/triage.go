// Package triage classifies medicines safety alerts: category detection,
// severity/priority rules, and GP-relevance triage. All functions are total;
// unmatched input falls through to an explicit default, never an error.
package triage

import (
	"fmt"
	"strings"

	"github.com/stroudgreenmedical/medicinealerts/internal/config"
	"github.com/stroudgreenmedical/medicinealerts/internal/core"
)

// categoryRule maps keyword hits in a text field to a category. Rules are
// evaluated in order; the first hit wins, so NatPSA keywords must stay ahead
// of the recall-class keywords.
type categoryRule struct {
	category core.Category
	field    textField
	keywords []string
}

type textField int

const (
	fieldTitle textField = iota
	fieldMessageType
	fieldAlertType
)

var categoryRules = []categoryRule{
	{core.CategoryNatPSA, fieldTitle, []string{"national patient safety", "natpsa"}},
	{core.CategoryMedicinesRecall, fieldTitle, []string{"class 1", "class 2", "class 3", "class 4"}},
	{core.CategoryMedicinesRecall, fieldTitle, []string{"medicines recall", "medicines defect"}},
	{core.CategoryDeviceAlert, fieldTitle, []string{"field safety notice", "device safety information", "dsi"}},
	{core.CategoryDeviceAlert, fieldAlertType, []string{"fsn", "device-safety-information"}},
	{core.CategorySafetyRoundup, fieldTitle, []string{"safety roundup"}},
	{core.CategorySafetyRoundup, fieldMessageType, []string{"mhra safety roundup"}},
	{core.CategoryDrugSafety, fieldTitle, []string{"drug safety update", "dsu"}},
	{core.CategoryDrugSafety, fieldAlertType, []string{"drug_safety_update"}},
	{core.CategorySupplyAlert, fieldTitle, []string{"supply", "shortage", "msn", "sda"}},
	{core.CategorySSP, fieldTitle, []string{"serious shortage protocol", "ssp"}},
	{core.CategoryMedicinesRecall, fieldAlertType, []string{"medical_safety_alert"}},
}

// Classify assigns an alert to one of the fixed categories from its title,
// message type and alert type. Matching is case-insensitive substring over a
// priority-ordered rule list. Text that matches no rule is reported as
// Uncategorized rather than silently bucketed elsewhere.
func Classify(title, messageType, alertType string) core.Category {
	title = strings.ToLower(title)
	messageType = strings.ToLower(messageType)
	alertType = strings.ToLower(alertType)

	for _, rule := range categoryRules {
		var text string
		switch rule.field {
		case fieldTitle:
			text = title
		case fieldMessageType:
			text = messageType
		case fieldAlertType:
			text = alertType
		}
		if containsAny(text, rule.keywords) {
			return rule.category
		}
	}
	return core.CategoryUncategorized
}

// SeverityPriority derives the severity and priority band from the recall
// class mentioned anywhere in the alert text and from the detected category.
// Independent of relevance. Feed entries carry the class only in the title,
// so the title participates in the class checks alongside the typed fields.
func SeverityPriority(title, alertType, messageType string, category core.Category) (core.Severity, core.Priority) {
	classText := strings.ToLower(title + " " + alertType + " " + messageType)

	switch {
	case category == core.CategoryNatPSA:
		return core.SeverityCritical, core.PriorityP1
	case strings.Contains(classText, "class 1"):
		return core.SeverityCritical, core.PriorityP1
	case strings.Contains(classText, "class 2"):
		return core.SeverityHigh, core.PriorityP2
	case category == core.CategorySSP:
		return core.SeverityHigh, core.PriorityP2
	case strings.Contains(classText, "class 3"):
		return core.SeverityMedium, core.PriorityP3
	case category == core.CategoryDeviceAlert,
		category == core.CategoryDrugSafety,
		category == core.CategorySafetyRoundup,
		category == core.CategorySupplyAlert:
		return core.SeverityMedium, core.PriorityP3
	case strings.Contains(classText, "class 4"):
		return core.SeverityLow, core.PriorityP4
	default:
		return core.SeverityMedium, core.PriorityP3
	}
}

// Titles that mention primary care without carrying a matching specialty tag
// go to manual review instead of auto-closing.
var gpKeywords = []string{
	"gp",
	"general practice",
	"primary care",
	"dispensing",
	"prescrib",
	"pharmac",
}

// Decision is the complete triage outcome for one alert.
type Decision struct {
	Relevance core.Relevance
	Reason    string
	Severity  core.Severity
	Priority  core.Priority
	Category  core.Category
}

// Engine applies the configured triage policy. In auto mode it decides
// relevance from the specialty lists; in manual mode every alert is routed
// to pharmacist review while severity, priority and category are still
// computed.
type Engine struct {
	mode                string
	relevantSpecialties []string
	allowList           map[string]struct{}
	denyList            map[string]struct{}
}

// NewEngine builds a triage engine from configuration.
func NewEngine(cfg *config.Config) *Engine {
	return &Engine{
		mode:                cfg.Triage.Mode,
		relevantSpecialties: cfg.Triage.RelevantSpecialties,
		allowList:           toSet(cfg.Triage.AllowList),
		denyList:            toSet(cfg.Triage.DenyList),
	}
}

// NewEngineWithLists builds an engine with explicit allow/deny content ID
// lists, used by tests and by operators maintaining override lists.
func NewEngineWithLists(mode string, specialties, allow, deny []string) *Engine {
	return &Engine{
		mode:                mode,
		relevantSpecialties: specialties,
		allowList:           toSet(allow),
		denyList:            toSet(deny),
	}
}

// Triage produces the full classification for one alert input.
func (e *Engine) Triage(in core.AlertInput) Decision {
	category := Classify(in.Title, in.MessageType, in.AlertType)
	severity, priority := SeverityPriority(in.Title, in.AlertType, in.MessageType, category)

	if e.mode == config.TriageModeManual {
		return Decision{
			Relevance: core.RelevanceManualReview,
			Reason:    "Pending pharmacist review",
			Severity:  severity,
			Priority:  priority,
			Category:  category,
		}
	}

	if _, denied := e.denyList[in.ContentID]; denied {
		return Decision{
			Relevance: core.RelevanceAutoNot,
			Reason:    "Content ID on deny list",
			Severity:  core.SeverityLow,
			Priority:  core.PriorityP4,
			Category:  category,
		}
	}

	if _, allowed := e.allowList[in.ContentID]; allowed {
		return Decision{
			Relevance: core.RelevanceAuto,
			Reason:    "Content ID on allow list",
			Severity:  severity,
			Priority:  priority,
			Category:  category,
		}
	}

	matched := e.matchSpecialties(in.MedicalSpecialties)
	if len(matched) > 0 {
		d := Decision{
			Relevance: core.RelevanceAuto,
			Severity:  severity,
			Priority:  priority,
			Category:  category,
		}
		switch category {
		case core.CategoryNatPSA:
			// NatPSAs are always actioned at the highest band.
			d.Severity = core.SeverityCritical
			d.Priority = core.PriorityP1
			d.Reason = "National Patient Safety Alert relevant to general practice"
		case core.CategorySafetyRoundup:
			d.Reason = "MHRA Safety Roundup covering general practice specialties"
		default:
			d.Reason = fmt.Sprintf("Matched specialties: %s", strings.Join(matched, ", "))
		}
		return d
	}

	if containsAny(strings.ToLower(in.Title), gpKeywords) {
		return Decision{
			Relevance: core.RelevanceManualReview,
			Reason:    "GP-related keywords in title but no matching specialty",
			Severity:  core.SeverityMedium,
			Priority:  core.PriorityP3,
			Category:  category,
		}
	}

	return Decision{
		Relevance: core.RelevanceAutoNot,
		Reason:    "No relevant medical specialties",
		Severity:  core.SeverityLow,
		Priority:  core.PriorityP4,
		Category:  category,
	}
}

// matchSpecialties returns the listed specialties that contain any
// configured relevant specialty as a case-insensitive substring.
func (e *Engine) matchSpecialties(listed []string) []string {
	var matched []string
	for _, specialty := range listed {
		lower := strings.ToLower(specialty)
		for _, relevant := range e.relevantSpecialties {
			if strings.Contains(lower, strings.ToLower(relevant)) {
				matched = append(matched, specialty)
				break
			}
		}
	}
	return matched
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
