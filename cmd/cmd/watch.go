package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stroudgreenmedical/medicinealerts/internal/logger"
	"github.com/stroudgreenmedical/medicinealerts/internal/notify"
	"github.com/stroudgreenmedical/medicinealerts/internal/scheduler"
	"github.com/stroudgreenmedical/medicinealerts/internal/sla"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the interval scheduler in-process until interrupted",
	Long: `watch runs the periodic jobs in the foreground:

  - GOV.UK search poll (default every 4h)
  - RSS/ATOM feed poll (default hourly)
  - overdue-alert check (default hourly)
  - Teams summary digest (default daily, when a webhook is configured)

Stop with Ctrl-C; in-flight runs finish before exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		ingestor := buildIngestor(cfg, db)
		evaluator := sla.NewEvaluator(db, cfg)
		teams := notify.NewTeamsClient(cfg)
		var summary notify.SummaryAccumulator

		summaryInterval := scheduler.ParseInterval(cfg.Scheduler.SummaryInterval, 24*time.Hour)

		sched := scheduler.New(
			scheduler.Job{
				Name:     "govuk-poll",
				Interval: scheduler.ParseInterval(cfg.Scheduler.PollInterval, 4*time.Hour),
				Run: func(ctx context.Context) error {
					stats := ingestor.PollSearch(ctx)
					summary.Add(stats)
					logger.Get().Info().
						Int("created", stats.Created).
						Int("failed", stats.Failed).
						Msg("search poll complete")
					return nil
				},
			},
			scheduler.Job{
				Name:     "feed-poll",
				Interval: scheduler.ParseInterval(cfg.Scheduler.FeedsInterval, time.Hour),
				Run: func(ctx context.Context) error {
					stats := ingestor.PollFeeds(ctx)
					summary.Add(stats)
					logger.Get().Info().
						Int("created", stats.Created).
						Int("failed", stats.Failed).
						Msg("feed poll complete")
					return nil
				},
			},
			scheduler.Job{
				Name:     "overdue-check",
				Interval: scheduler.ParseInterval(cfg.Scheduler.OverdueInterval, time.Hour),
				Run: func(ctx context.Context) error {
					overdue, err := evaluator.Overdue(ctx, time.Now().UTC())
					if err != nil {
						return err
					}
					for _, a := range overdue {
						logger.Get().Warn().
							Str("alert_id", a.AlertID).
							Str("priority", string(a.Priority)).
							Time("created_at", a.CreatedAt).
							Msg("alert overdue")
					}
					return nil
				},
			},
		)

		if teams.Enabled() {
			sched.Add(scheduler.Job{
				Name:     "teams-summary",
				Interval: summaryInterval,
				Run: func(ctx context.Context) error {
					stats := summary.Flush()
					if stats.Processed == 0 {
						return nil
					}
					hours := int(summaryInterval.Hours())
					return teams.NotifySummary(ctx, stats, hours)
				},
			})
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Println("Scheduler running; press Ctrl-C to stop.")
		sched.Start(ctx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
