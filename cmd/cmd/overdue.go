package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stroudgreenmedical/medicinealerts/internal/core"
	"github.com/stroudgreenmedical/medicinealerts/internal/sla"
)

var overdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "List open alerts that have blown their response deadline",
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

		evaluator := sla.NewEvaluator(db, cfg)
		now := time.Now().UTC()
		overdue, err := evaluator.Overdue(cmd.Context(), now)
		if err != nil {
			return err
		}

		if len(overdue) == 0 {
			fmt.Println("No overdue alerts.")
			return nil
		}

		fmt.Printf("%d overdue alert(s):\n\n", len(overdue))
		for _, a := range overdue {
			age := now.Sub(a.CreatedAt).Round(time.Minute)
			fmt.Printf("%-14s %-18s %-16s %8s  %s\n",
				a.AlertID, a.Priority, a.Status, age, a.Title)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show alert counts by workflow status",
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

		counts, err := db.Alerts().CountByStatus(cmd.Context())
		if err != nil {
			return err
		}

		order := []core.Status{
			core.StatusNew, core.StatusUnderReview, core.StatusActionRequired,
			core.StatusInProgress, core.StatusCompleted, core.StatusClosed,
		}
		total := 0
		for _, status := range order {
			n := counts[status]
			total += n
			fmt.Printf("%-16s %d\n", status, n)
		}
		fmt.Printf("%-16s %d\n", "Total", total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(overdueCmd)
	rootCmd.AddCommand(statsCmd)
}
