// Package extract pulls product facts out of alert free text: product name,
// batch numbers, expiry dates, therapeutic area, regulatory references and
// suggested clinical-system search terms. Extraction is best effort; a miss
// leaves the field empty.
package extract

import (
	"regexp"
	"strings"
)

// ProductDetails holds the facts extracted from one alert's text.
type ProductDetails struct {
	ProductName      string
	ActiveIngredient string
	Manufacturer     string
	BatchNumbers     string
	ExpiryDates      string
	TherapeuticArea  string
}

var productNamePattern = regexp.MustCompile(`Recall:\s*([^(\[]+)`)

var batchPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Batch(?:es)?[:\s]+([A-Z0-9, ]+)`),
	regexp.MustCompile(`(?i)Lot(?:s)?[:\s]+([A-Z0-9, ]+)`),
	regexp.MustCompile(`(?i)Batch Number(?:s)?[:\s]+([A-Z0-9, ]+)`),
}

var expiryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Expiry[:\s]+([0-9/\-A-Za-z ]+)`),
	regexp.MustCompile(`(?i)Exp(?:iry)? Date[:\s]+([0-9/\-A-Za-z ]+)`),
	regexp.MustCompile(`(?i)Use [Bb]y[:\s]+([0-9/\-A-Za-z ]+)`),
}

// therapeuticBucket pairs an area label with the keywords that map to it.
// Buckets are checked in order; the first bucket with any hit wins.
type therapeuticBucket struct {
	area     string
	keywords []string
}

var therapeuticBuckets = []therapeuticBucket{
	{"cardiovascular", []string{"heart", "cardiac", "blood pressure", "hypertension", "ace inhibitor", "beta blocker"}},
	{"diabetes", []string{"diabetes", "insulin", "metformin", "glucose", "blood sugar"}},
	{"respiratory", []string{"asthma", "copd", "inhaler", "respiratory", "broncho"}},
	{"mental health", []string{"antidepressant", "anxiety", "psychiatric", "mental health", "ssri"}},
	{"pain management", []string{"painkiller", "analgesic", "opioid", "nsaid", "pain relief"}},
	{"antibiotics", []string{"antibiotic", "infection", "antimicrobial", "penicillin"}},
}

// ProductFacts extracts product details from the alert's title, description
// and body. The three fields are searched as one concatenated text, title
// first, and the first matching pattern wins.
func ProductFacts(title, description, body string) ProductDetails {
	var details ProductDetails

	if m := productNamePattern.FindStringSubmatch(title); m != nil {
		details.ProductName = strings.TrimSpace(m[1])
	}

	text := title + " " + description + " " + body

	for _, pattern := range batchPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			details.BatchNumbers = strings.TrimSpace(m[1])
			break
		}
	}

	for _, pattern := range expiryPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			details.ExpiryDates = strings.TrimSpace(m[1])
			break
		}
	}

	lower := strings.ToLower(text)
	for _, bucket := range therapeuticBuckets {
		for _, keyword := range bucket.keywords {
			if strings.Contains(lower, keyword) {
				details.TherapeuticArea = bucket.area
				break
			}
		}
		if details.TherapeuticArea != "" {
			break
		}
	}

	return details
}

// Reference patterns as they appear parenthesized in GOV.UK titles,
// e.g. (EL(25)A/29), (MDR/2025/001), (NatPSA-2025-001).
var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\(([A-Z]+\(\d+\)[A-Z]?/\d+)\)`),
	regexp.MustCompile(`\(([A-Z]+/\d+/\d+)\)`),
	regexp.MustCompile(`\(([A-Za-z]+-\d+-\d+)\)`),
}

// Reference extracts the regulatory reference from an alert title, or ""
// when no known pattern is present.
func Reference(title string) string {
	for _, pattern := range referencePatterns {
		if m := pattern.FindStringSubmatch(title); m != nil {
			return m[1]
		}
	}
	return ""
}

var nonWordPattern = regexp.MustCompile(`[^\w\s]`)

// SearchTerms builds a suggested EMIS search query from the extracted
// product facts, joining distinct terms with " OR ". Falls back to a fixed
// prompt when nothing usable was extracted.
func SearchTerms(productName, activeIngredient, batchNumbers string) string {
	var terms []string

	if productName != "" {
		terms = append(terms, strings.TrimSpace(nonWordPattern.ReplaceAllString(productName, "")))
	}
	if activeIngredient != "" && activeIngredient != productName {
		terms = append(terms, activeIngredient)
	}
	if batchNumbers != "" && len(batchNumbers) < 20 {
		terms = append(terms, "batch:"+batchNumbers)
	}

	if len(terms) == 0 {
		return "Check prescription records"
	}
	return strings.Join(terms, " OR ")
}
