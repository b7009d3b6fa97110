// Package persistence provides the database abstraction the alert pipeline
// operates against. The core never issues raw queries; it talks to these
// repositories.
package persistence

import (
	"context"

	"github.com/stroudgreenmedical/medicinealerts/internal/core"
)

// AlertRepository handles alert persistence operations
type AlertRepository interface {
	// Create inserts a new alert
	Create(ctx context.Context, alert *core.Alert) error

	// GetByContentID retrieves an alert by its stable external key.
	// Returns nil (no error) when no alert exists for the content ID.
	GetByContentID(ctx context.Context, contentID string) (*core.Alert, error)

	// GetByAlertID retrieves an alert by its derived short ID
	GetByAlertID(ctx context.Context, alertID string) (*core.Alert, error)

	// Update persists all mutable fields of an existing alert
	Update(ctx context.Context, alert *core.Alert) error

	// List retrieves alerts with pagination and filtering
	List(ctx context.Context, opts ListOptions) ([]core.Alert, error)

	// ListOpen retrieves alerts whose status still counts against SLA
	// deadlines (New, Action Required)
	ListOpen(ctx context.Context) ([]core.Alert, error)

	// CountByStatus returns the number of alerts per workflow status
	CountByStatus(ctx context.Context) (map[core.Status]int, error)
}

// FeedStateRepository persists conditional-GET caching state per feed URL
type FeedStateRepository interface {
	// Get retrieves the cached state for a feed URL, or nil if never polled
	Get(ctx context.Context, url string) (*core.FeedState, error)

	// Upsert stores the latest caching state for a feed URL
	Upsert(ctx context.Context, state *core.FeedState) error
}

// ListOptions provides common filtering and pagination options
type ListOptions struct {
	Limit  int               // Maximum number of results (0 for no limit)
	Offset int               // Number of results to skip
	SortBy string            // Field to sort by
	Order  string            // "asc" or "desc"
	Filter map[string]string // Key-value filters
}

// Database aggregates the repositories behind one connection
type Database interface {
	// Alerts returns the alert repository
	Alerts() AlertRepository

	// FeedStates returns the feed state repository
	FeedStates() FeedStateRepository

	// Close closes the database connection
	Close() error

	// Ping verifies the database connection
	Ping(ctx context.Context) error
}
