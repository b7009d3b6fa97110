package process

import (
	"context"
	"sync"
	"time"

	"github.com/stroudgreenmedical/medicinealerts/internal/config"
	"github.com/stroudgreenmedical/medicinealerts/internal/core"
	"github.com/stroudgreenmedical/medicinealerts/internal/feeds"
	"github.com/stroudgreenmedical/medicinealerts/internal/govuk"
	"github.com/stroudgreenmedical/medicinealerts/internal/logger"
	"github.com/stroudgreenmedical/medicinealerts/internal/persistence"
)

// Feed entries beyond this per poll are left for the next cycle.
const maxEntriesPerFeed = 50

// Document types checked on the regular polling cycle.
var pollDocumentTypes = []string{"medical_safety_alert", "drug_safety_update"}

// Ingestor pulls alerts from all configured sources and runs them through
// the processor. A failing source degrades to zero new alerts for that
// source; it never fails the whole cycle.
type Ingestor struct {
	client     *govuk.Client
	feedMgr    *feeds.Manager
	feedStates persistence.FeedStateRepository
	proc       *Processor
	cfg        *config.Config

	// mu serializes ingest cycles so two sources never race an insert
	// for the same content ID.
	mu sync.Mutex
}

// NewIngestor wires an ingestor from configuration.
func NewIngestor(cfg *config.Config, db persistence.Database, proc *Processor) *Ingestor {
	timeout, err := time.ParseDuration(cfg.Feeds.Timeout)
	if err != nil {
		timeout = 30 * time.Second
	}
	return &Ingestor{
		client:     govuk.NewClient(cfg),
		feedMgr:    feeds.NewManager(cfg.Feeds.UserAgent, timeout),
		feedStates: db.FeedStates(),
		proc:       proc,
		cfg:        cfg,
	}
}

// PollAll runs one full polling cycle: the Search API followed by the
// RSS/Atom feeds.
func (ing *Ingestor) PollAll(ctx context.Context) core.ProcessStats {
	stats := ing.PollSearch(ctx)
	stats.Add(ing.PollFeeds(ctx))
	return stats
}

// PollSearch fetches the newest page of each polled document type from the
// Search API, enriches the results via the Content API and processes them.
func (ing *Ingestor) PollSearch(ctx context.Context) core.ProcessStats {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	var stats core.ProcessStats

	for _, documentType := range pollDocumentTypes {
		resp, err := ing.client.SearchAlerts(ctx, documentType, 0, ing.cfg.GovUK.PageSize)
		if err != nil {
			logger.Get().Error().Err(err).Str("document_type", documentType).Msg("search poll failed")
			continue
		}

		inputs := ing.normalizeSearchResults(ctx, resp.Results, true)
		batch := ing.proc.ProcessBatch(ctx, inputs, false)
		stats.Add(batch)

		logger.Get().Info().
			Str("document_type", documentType).
			Int("processed", batch.Processed).
			Int("created", batch.Created).
			Msg("search poll complete")
	}

	return stats
}

// PollFeeds polls the configured RSS/Atom feeds one at a time, using stored
// conditional-GET state to skip unchanged feeds. Feeds overlap in coverage,
// so polling them sequentially lets a duplicate entry merge into the alert
// the earlier feed created instead of colliding with it.
func (ing *Ingestor) PollFeeds(ctx context.Context) core.ProcessStats {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	var stats core.ProcessStats
	for _, feedURL := range ing.cfg.Feeds.URLs {
		stats.Add(ing.pollFeed(ctx, feedURL))
	}
	return stats
}

func (ing *Ingestor) pollFeed(ctx context.Context, feedURL string) core.ProcessStats {
	var stats core.ProcessStats

	var lastModified, etag string
	state, err := ing.feedStates.Get(ctx, feedURL)
	if err != nil {
		logger.Get().Warn().Err(err).Str("feed", feedURL).Msg("could not load feed state")
	} else if state != nil {
		lastModified = state.LastModified
		etag = state.ETag
	}

	parsed, err := ing.feedMgr.FetchFeed(feedURL, lastModified, etag)
	if err != nil {
		logger.Get().Error().Err(err).Str("feed", feedURL).Msg("feed poll failed")
		return stats
	}
	if parsed.NotModified {
		logger.Get().Debug().Str("feed", feedURL).Msg("feed not modified")
		return stats
	}

	entries := parsed.Entries
	if len(entries) > maxEntriesPerFeed {
		entries = entries[:maxEntriesPerFeed]
	}

	var inputs []core.AlertInput
	for _, entry := range entries {
		in, err := feeds.Normalize(entry, "GOV.UK ATOM")
		if err != nil {
			logger.Get().Warn().Str("title", entry.Title).Msg("feed entry missing content_id")
			stats.Processed++
			stats.Skipped++
			continue
		}
		inputs = append(inputs, in)
	}

	stats.Add(ing.proc.ProcessBatch(ctx, inputs, false))

	newState := &core.FeedState{
		URL:          feedURL,
		LastModified: parsed.LastModified,
		ETag:         parsed.ETag,
		LastPolled:   time.Now().UTC(),
	}
	if err := ing.feedStates.Upsert(ctx, newState); err != nil {
		logger.Get().Warn().Err(err).Str("feed", feedURL).Msg("could not store feed state")
	}

	logger.Get().Info().
		Str("feed", feedURL).
		Int("processed", stats.Processed).
		Int("created", stats.Created).
		Msg("feed poll complete")

	return stats
}

// Backfill pages through the historical archive of every backfill document
// type and processes everything with notifications suppressed.
func (ing *Ingestor) Backfill(ctx context.Context, maxResults int) core.ProcessStats {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	var stats core.ProcessStats

	for _, documentType := range govuk.BackfillDocumentTypes {
		results, err := ing.client.FetchAll(ctx, documentType, maxResults)
		if err != nil {
			logger.Get().Error().Err(err).Str("document_type", documentType).Msg("backfill fetch failed")
			// A partial page may still have come back; process what we have.
		}

		inputs := ing.normalizeSearchResults(ctx, results, true)
		batch := ing.proc.ProcessBatch(ctx, inputs, true)
		stats.Add(batch)

		logger.Get().Info().
			Str("document_type", documentType).
			Int("processed", batch.Processed).
			Int("created", batch.Created).
			Msg("backfill pass complete")
	}

	return stats
}

// normalizeSearchResults converts search rows to canonical inputs,
// optionally enriching each with Content API metadata. Rows without a
// content ID stay in the slice so the batch counts them as skipped.
func (ing *Ingestor) normalizeSearchResults(ctx context.Context, results []govuk.SearchResult, enrich bool) []core.AlertInput {
	var inputs []core.AlertInput
	for _, result := range results {
		in, err := govuk.Normalize(result, "GOV.UK")
		if err != nil {
			// Preserve the unprocessable row; ProcessBatch reports it.
			inputs = append(inputs, core.AlertInput{Title: result.Title})
			continue
		}
		if enrich {
			in = ing.client.Enrich(ctx, in)
		}
		inputs = append(inputs, in)
	}
	return inputs
}
