// Package feeds fetches and parses the RSS/Atom safety-alert feeds and
// normalizes their entries into the canonical alert-input shape.
package feeds

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stroudgreenmedical/medicinealerts/internal/core"
)

// ErrNoContentID marks a feed entry that cannot enter the pipeline because
// it lacks a stable identifier.
var ErrNoContentID = core.ErrNoContentID

// RSS represents an RSS feed structure
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Channel Channel  `xml:"channel"`
}

// Atom represents an Atom feed structure
type Atom struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Link    []AtomLink  `xml:"link"`
	Entries []AtomEntry `xml:"entry"`
}

// Channel represents an RSS channel
type Channel struct {
	Title       string    `xml:"title"`
	Description string    `xml:"description"`
	Link        string    `xml:"link"`
	Items       []RSSItem `xml:"item"`
}

// RSSItem represents an RSS item
type RSSItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

// AtomLink represents an Atom link element
type AtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

// AtomEntry represents an Atom entry
type AtomEntry struct {
	Title     string     `xml:"title"`
	Link      []AtomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	ID        string     `xml:"id"`
}

// Entry is one normalized feed item, independent of the wire format it
// arrived in.
type Entry struct {
	ID        string
	Title     string
	Link      string
	Summary   string
	Body      string
	Published string
	Updated   string
}

// ParsedFeed represents a parsed feed with caching metadata
type ParsedFeed struct {
	Title        string
	Entries      []Entry
	LastModified string
	ETag         string
	NotModified  bool
}

// Manager fetches and parses alert feeds
type Manager struct {
	client    *http.Client
	userAgent string
}

// NewManager creates a feed manager with the given user agent and timeout
func NewManager(userAgent string, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

const fetchAttempts = 3

// FetchFeed fetches and parses a feed from the given URL. lastModified and
// etag enable conditional GET; a 304 comes back as NotModified. Transient
// failures are retried with a short backoff.
func (m *Manager) FetchFeed(feedURL string, lastModified, etag string) (*ParsedFeed, error) {
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		parsed, err := m.tryFetchFeed(feedURL, lastModified, etag)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
		if attempt < fetchAttempts {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
	}
	return nil, fmt.Errorf("fetching feed after %d attempts: %w", fetchAttempts, lastErr)
}

func (m *Manager) tryFetchFeed(feedURL string, lastModified, etag string) (*ParsedFeed, error) {
	req, err := http.NewRequest("GET", feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	req.Header.Set("User-Agent", m.userAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotModified {
		return &ParsedFeed{NotModified: true}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}

	parsed, err := Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", feedURL, err)
	}

	parsed.LastModified = resp.Header.Get("Last-Modified")
	parsed.ETag = resp.Header.Get("ETag")

	return parsed, nil
}

// Parse decodes raw feed bytes, trying RSS first, then Atom.
func Parse(data []byte) (*ParsedFeed, error) {
	var rss RSS
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&rss); err == nil && rss.Channel.Title != "" {
		return parseRSS(rss), nil
	}

	var atom Atom
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&atom); err == nil && atom.Title != "" {
		return parseAtom(atom), nil
	}

	return nil, fmt.Errorf("unable to parse as RSS or Atom feed")
}

func parseRSS(rss RSS) *ParsedFeed {
	var entries []Entry
	for _, item := range rss.Channel.Items {
		entries = append(entries, Entry{
			ID:        item.GUID,
			Title:     item.Title,
			Link:      item.Link,
			Summary:   item.Description,
			Published: item.PubDate,
		})
	}
	return &ParsedFeed{Title: rss.Channel.Title, Entries: entries}
}

func parseAtom(atom Atom) *ParsedFeed {
	var entries []Entry
	for _, entry := range atom.Entries {
		var link string
		for _, l := range entry.Link {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}
		entries = append(entries, Entry{
			ID:        entry.ID,
			Title:     entry.Title,
			Link:      link,
			Summary:   entry.Summary,
			Body:      entry.Content,
			Published: entry.Published,
			Updated:   entry.Updated,
		})
	}
	return &ParsedFeed{Title: atom.Title, Entries: entries}
}

// Normalize converts a feed entry into the canonical alert input consumed by
// the processing pipeline. An entry without a stable ID is unprocessable.
func Normalize(entry Entry, source string) (core.AlertInput, error) {
	if strings.TrimSpace(entry.ID) == "" {
		return core.AlertInput{}, ErrNoContentID
	}

	timestamp := entry.Published
	if timestamp == "" {
		timestamp = entry.Updated
	}

	in := core.AlertInput{
		ContentID:       entry.ID,
		Title:           entry.Title,
		Link:            entry.Link,
		PublicTimestamp: timestamp,
		Description:     entry.Summary,
		Body:            entry.Body,
		DataSource:      source,
	}
	if entry.Link != "" {
		in.SourceURLs = []string{entry.Link}
	}
	return in, nil
}
