package govuk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stroudgreenmedical/medicinealerts/internal/config"
	"github.com/stroudgreenmedical/medicinealerts/internal/core"
)

func testClient(searchURL, contentURL string) *Client {
	cfg := &config.Config{}
	cfg.GovUK.SearchURL = searchURL
	cfg.GovUK.ContentURL = contentURL
	cfg.GovUK.Organisation = "medicines-and-healthcare-products-regulatory-agency"
	cfg.GovUK.PageSize = 2
	cfg.GovUK.MaxRetries = 1
	cfg.GovUK.Timeout = "5s"
	return NewClient(cfg)
}

func TestSearchAlerts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("filter_content_store_document_type"); got != "medical_safety_alert" {
			t.Errorf("document type filter = %q", got)
		}
		if got := q.Get("filter_organisations"); got != "medicines-and-healthcare-products-regulatory-agency" {
			t.Errorf("organisation filter = %q", got)
		}
		if got := q.Get("order"); got != "-public_timestamp" {
			t.Errorf("order = %q", got)
		}
		_ = json.NewEncoder(w).Encode(SearchResponse{
			Total: 1,
			Results: []SearchResult{{
				Title:           "Class 1 Medicines Recall: Amoxicillin",
				Link:            "/drug-device-alerts/amoxicillin",
				PublicTimestamp: "2025-08-01T09:30:00+01:00",
				ContentID:       "abc-123",
			}},
		})
	}))
	defer server.Close()

	client := testClient(server.URL, server.URL)
	resp, err := client.SearchAlerts(context.Background(), "medical_safety_alert", 0, 100)
	if err != nil {
		t.Fatalf("SearchAlerts() error: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ContentID != "abc-123" {
		t.Errorf("unexpected results: %+v", resp.Results)
	}
}

func TestFetchAllPaginates(t *testing.T) {
	total := 5
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		start := 0
		fmt.Sscanf(q.Get("start"), "%d", &start)
		count := 0
		fmt.Sscanf(q.Get("count"), "%d", &count)

		var results []SearchResult
		for i := start; i < total && i < start+count; i++ {
			results = append(results, SearchResult{ContentID: fmt.Sprintf("id-%d", i)})
		}
		_ = json.NewEncoder(w).Encode(SearchResponse{Total: total, Results: results})
	}))
	defer server.Close()

	client := testClient(server.URL, server.URL)
	results, err := client.FetchAll(context.Background(), "medical_safety_alert", 100)
	if err != nil {
		t.Fatalf("FetchAll() error: %v", err)
	}
	if len(results) != total {
		t.Fatalf("got %d results, want %d", len(results), total)
	}
	if results[4].ContentID != "id-4" {
		t.Errorf("last result = %+v", results[4])
	}
}

func TestGetContentTrimsDomain(t *testing.T) {
	var requestedPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(Content{
			Details: ContentDetails{
				Metadata: ContentMetadata{AlertType: "Class 1"},
			},
		})
	}))
	defer server.Close()

	client := testClient(server.URL, server.URL)
	content, err := client.GetContent(context.Background(), "https://www.gov.uk/drug-device-alerts/amoxicillin")
	if err != nil {
		t.Fatalf("GetContent() error: %v", err)
	}
	if requestedPath != "/drug-device-alerts/amoxicillin" {
		t.Errorf("requested path = %q", requestedPath)
	}
	if content.Details.Metadata.AlertType != "Class 1" {
		t.Errorf("alert type = %q", content.Details.Metadata.AlertType)
	}
}

func TestEnrichNonFatalOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	client := testClient(server.URL, server.URL)
	in := core.AlertInput{ContentID: "abc", Title: "Recall", Link: "/drug-device-alerts/x"}
	got := client.Enrich(context.Background(), in)
	if got.Title != "Recall" || got.ContentID != "abc" {
		t.Errorf("Enrich() must return the input unchanged on failure, got %+v", got)
	}
}

func TestEnrichFillsMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Content{
			Details: ContentDetails{
				Body: "<p>Stop dispensing <strong>affected batches</strong> immediately.</p>",
				Metadata: ContentMetadata{
					AlertType:         "Class 1 Medicines Recall",
					MessageType:       "Medicines recall",
					MedicalSpecialism: []string{"General practice", "Pharmacy"},
					IssueDate:         "2025-08-01",
				},
			},
		})
	}))
	defer server.Close()

	client := testClient(server.URL, server.URL)
	got := client.Enrich(context.Background(), core.AlertInput{ContentID: "abc", Link: "/drug-device-alerts/x"})

	if got.AlertType != "Class 1 Medicines Recall" {
		t.Errorf("AlertType = %q", got.AlertType)
	}
	if len(got.MedicalSpecialties) != 2 {
		t.Errorf("MedicalSpecialties = %v", got.MedicalSpecialties)
	}
	if got.IssuedDate != "2025-08-01" {
		t.Errorf("IssuedDate = %q", got.IssuedDate)
	}
	if got.Body != "Stop dispensing affected batches immediately." {
		t.Errorf("Body = %q", got.Body)
	}
}

func TestNormalize(t *testing.T) {
	in, err := Normalize(SearchResult{
		ContentID:       "abc-123",
		Title:           "Class 1 Medicines Recall: Amoxicillin",
		Link:            "/drug-device-alerts/amoxicillin",
		PublicTimestamp: "2025-08-01T09:30:00+01:00",
	}, "GOV.UK")
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if in.Link != "https://www.gov.uk/drug-device-alerts/amoxicillin" {
		t.Errorf("Link = %q, want absolute URL", in.Link)
	}
	if len(in.SourceURLs) != 1 || in.SourceURLs[0] != in.Link {
		t.Errorf("SourceURLs = %v", in.SourceURLs)
	}

	_, err = Normalize(SearchResult{Title: "No identifier"}, "GOV.UK")
	if !errors.Is(err, core.ErrNoContentID) {
		t.Errorf("err = %v, want ErrNoContentID", err)
	}
}

func TestFlattenHTML(t *testing.T) {
	got := FlattenHTML("<div><h2>Action</h2>\n<p>Quarantine   stock.</p></div>")
	if got != "Action Quarantine stock." {
		t.Errorf("FlattenHTML() = %q", got)
	}
	if FlattenHTML("") != "" {
		t.Error("FlattenHTML(empty) should be empty")
	}
}
