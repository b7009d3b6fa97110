// Package sla evaluates response deadlines for open alerts.
package sla

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/stroudgreenmedical/medicinealerts/internal/config"
	"github.com/stroudgreenmedical/medicinealerts/internal/core"
	"github.com/stroudgreenmedical/medicinealerts/internal/persistence"
)

// Evaluator checks persisted alerts against the configured deadlines.
type Evaluator struct {
	alerts persistence.AlertRepository
	cfg    *config.Config
}

func NewEvaluator(db persistence.Database, cfg *config.Config) *Evaluator {
	return &Evaluator{alerts: db.Alerts(), cfg: cfg}
}

// IsOverdue reports whether an alert has blown its response deadline.
// Only alerts still awaiting action (New or Action Required) can be
// overdue; a zero deadline means the priority band has none.
func (e *Evaluator) IsOverdue(priority core.Priority, status core.Status, createdAt, now time.Time) bool {
	if !status.IsOpen() {
		return false
	}
	hours := e.cfg.SLAHours(priority.Rank())
	if hours <= 0 {
		return false
	}
	deadline := createdAt.Add(time.Duration(hours * float64(time.Hour)))
	return now.After(deadline)
}

// Deadline returns when the alert becomes overdue, or false if its
// priority band has no deadline.
func (e *Evaluator) Deadline(priority core.Priority, createdAt time.Time) (time.Time, bool) {
	hours := e.cfg.SLAHours(priority.Rank())
	if hours <= 0 {
		return time.Time{}, false
	}
	return createdAt.Add(time.Duration(hours * float64(time.Hour))), true
}

// Overdue lists all currently overdue alerts, most urgent first: priority
// rank ascending, then oldest created first within a band.
func (e *Evaluator) Overdue(ctx context.Context, now time.Time) ([]core.Alert, error) {
	open, err := e.alerts.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing open alerts: %w", err)
	}

	var overdue []core.Alert
	for _, a := range open {
		if e.IsOverdue(a.Priority, a.Status, a.CreatedAt, now) {
			overdue = append(overdue, a)
		}
	}

	sort.SliceStable(overdue, func(i, j int) bool {
		ri, rj := overdue[i].Priority.Rank(), overdue[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return overdue[i].CreatedAt.Before(overdue[j].CreatedAt)
	})

	return overdue, nil
}
