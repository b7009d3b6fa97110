// Package govuk is a client for the GOV.UK Search and Content APIs, scoped
// to MHRA safety-alert publications.
package govuk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/stroudgreenmedical/medicinealerts/internal/config"
	"github.com/stroudgreenmedical/medicinealerts/internal/core"
	"github.com/stroudgreenmedical/medicinealerts/internal/logger"
)

const siteBaseURL = "https://www.gov.uk"

// BackfillDocumentTypes are the content-store document types scanned during
// a historical backfill.
var BackfillDocumentTypes = []string{
	"medical_safety_alert",
	"drug_safety_update",
	"press_release",
	"guidance",
	"notice",
}

// SearchResult is one row from the Search API, limited to the fields the
// pipeline requests.
type SearchResult struct {
	Title           string `json:"title"`
	Link            string `json:"link"`
	PublicTimestamp string `json:"public_timestamp"`
	Description     string `json:"description"`
	ContentID       string `json:"content_id"`
}

// SearchResponse is the Search API envelope.
type SearchResponse struct {
	Total   int            `json:"total"`
	Results []SearchResult `json:"results"`
}

// Content is the Content API envelope, limited to the detail fields the
// pipeline enriches alerts with.
type Content struct {
	Details ContentDetails `json:"details"`
}

// ContentDetails holds the body and safety-alert metadata of a content item.
type ContentDetails struct {
	Body     string          `json:"body"`
	Metadata ContentMetadata `json:"metadata"`
}

// ContentMetadata carries the MHRA-specific alert metadata.
type ContentMetadata struct {
	AlertType         string   `json:"alert_type"`
	MessageType       string   `json:"message_type"`
	MedicalSpecialism []string `json:"medical_specialism"`
	IssueDate         string   `json:"issue_date"`
}

// Client talks to the GOV.UK Search and Content APIs.
type Client struct {
	searchURL    string
	contentURL   string
	organisation string
	pageSize     int
	maxRetries   int
	client       *http.Client
}

// NewClient builds a client from configuration.
func NewClient(cfg *config.Config) *Client {
	timeout, err := time.ParseDuration(cfg.GovUK.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		searchURL:    cfg.GovUK.SearchURL,
		contentURL:   cfg.GovUK.ContentURL,
		organisation: cfg.GovUK.Organisation,
		pageSize:     cfg.GovUK.PageSize,
		maxRetries:   cfg.GovUK.MaxRetries,
		client:       &http.Client{Timeout: timeout},
	}
}

// SearchAlerts queries the Search API for one page of documents of the
// given type, newest first.
func (c *Client) SearchAlerts(ctx context.Context, documentType string, start, count int) (*SearchResponse, error) {
	params := url.Values{}
	params.Set("filter_content_store_document_type", documentType)
	params.Set("filter_organisations", c.organisation)
	params.Set("order", "-public_timestamp")
	params.Set("count", strconv.Itoa(count))
	params.Set("start", strconv.Itoa(start))
	params.Set("fields", "title,link,public_timestamp,description,content_id")

	var response SearchResponse
	if err := c.getJSON(ctx, c.searchURL+"?"+params.Encode(), &response); err != nil {
		return nil, fmt.Errorf("search %s failed: %w", documentType, err)
	}
	return &response, nil
}

// FetchAll paginates the Search API until it has every document of the
// given type, up to maxResults.
func (c *Client) FetchAll(ctx context.Context, documentType string, maxResults int) ([]SearchResult, error) {
	var all []SearchResult
	start := 0

	for start < maxResults {
		count := c.pageSize
		if remaining := maxResults - start; remaining < count {
			count = remaining
		}

		batch, err := c.SearchAlerts(ctx, documentType, start, count)
		if err != nil {
			return all, err
		}
		if len(batch.Results) == 0 {
			break
		}

		all = append(all, batch.Results...)
		start += c.pageSize
		if start >= batch.Total {
			break
		}
	}

	return all, nil
}

// GetContent fetches the full content item for a search-result link. The
// link may be a bare path or an absolute www.gov.uk URL.
func (c *Client) GetContent(ctx context.Context, path string) (*Content, error) {
	if strings.HasPrefix(path, "http") {
		path = strings.TrimPrefix(path, "https://www.gov.uk")
		path = strings.TrimPrefix(path, "http://www.gov.uk")
	}

	var content Content
	if err := c.getJSON(ctx, c.contentURL+path, &content); err != nil {
		return nil, fmt.Errorf("content fetch %s failed: %w", path, err)
	}
	return &content, nil
}

// Enrich fills in the alert metadata and body from the Content API. Failure
// to enrich is non-fatal; the input is returned as-is with a warning logged.
func (c *Client) Enrich(ctx context.Context, in core.AlertInput) core.AlertInput {
	if in.Link == "" {
		return in
	}

	content, err := c.GetContent(ctx, in.Link)
	if err != nil {
		logger.Get().Warn().Err(err).Str("link", in.Link).Msg("could not enrich alert")
		return in
	}

	in.AlertType = content.Details.Metadata.AlertType
	in.MessageType = content.Details.Metadata.MessageType
	in.MedicalSpecialties = content.Details.Metadata.MedicalSpecialism
	in.IssuedDate = content.Details.Metadata.IssueDate
	in.Body = FlattenHTML(content.Details.Body)

	return in
}

// getJSON performs a GET with exponential backoff and decodes the JSON
// response. Retries on transport errors and 5xx responses.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	attempts := c.maxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(4<<(attempt-1)) * time.Second
			if wait > 10*time.Second {
				wait = 10 * time.Second
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		lastErr = c.tryGetJSON(ctx, rawURL, out)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (c *Client) tryGetJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Normalize converts a search result into the canonical alert input.
// Results without a content ID are unprocessable.
func Normalize(result SearchResult, source string) (core.AlertInput, error) {
	if strings.TrimSpace(result.ContentID) == "" {
		return core.AlertInput{}, core.ErrNoContentID
	}

	link := result.Link
	if strings.HasPrefix(link, "/") {
		link = siteBaseURL + link
	}

	in := core.AlertInput{
		ContentID:       result.ContentID,
		Title:           result.Title,
		Link:            link,
		PublicTimestamp: result.PublicTimestamp,
		Description:     result.Description,
		DataSource:      source,
	}
	if link != "" {
		in.SourceURLs = []string{link}
	}
	return in, nil
}

// FlattenHTML reduces an HTML body to whitespace-normalized text. Invalid
// markup comes back unchanged.
func FlattenHTML(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
