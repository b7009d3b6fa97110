package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stroudgreenmedical/medicinealerts/internal/core"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one polling cycle over the GOV.UK search API and feeds",
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

		stats := buildIngestor(cfg, db).PollAll(cmd.Context())
		printStats(stats)
		return nil
	},
}

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Poll only the RSS/ATOM feeds",
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

		stats := buildIngestor(cfg, db).PollFeeds(cmd.Context())
		printStats(stats)
		return nil
	},
}

var backfillMaxResults int

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Bulk-import historical alerts (notifications suppressed)",
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

		stats := buildIngestor(cfg, db).Backfill(cmd.Context(), backfillMaxResults)
		printStats(stats)
		return nil
	},
}

func printStats(stats core.ProcessStats) {
	fmt.Printf("Processed: %d\n", stats.Processed)
	fmt.Printf("Created:   %d (%d relevant)\n", stats.Created, stats.Relevant)
	fmt.Printf("Updated:   %d\n", stats.Updated)
	fmt.Printf("Skipped:   %d\n", stats.Skipped)
	fmt.Printf("Failed:    %d\n", stats.Failed)
}

func init() {
	backfillCmd.Flags().IntVar(&backfillMaxResults, "max-results", 500, "maximum number of historical records per document type")

	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(feedsCmd)
	rootCmd.AddCommand(backfillCmd)
}
