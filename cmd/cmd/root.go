/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stroudgreenmedical/medicinealerts/internal/config"
	"github.com/stroudgreenmedical/medicinealerts/internal/notify"
	"github.com/stroudgreenmedical/medicinealerts/internal/process"
	"github.com/stroudgreenmedical/medicinealerts/internal/store"
	"github.com/stroudgreenmedical/medicinealerts/internal/triage"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "medicinealerts",
	Short: "Ingest and triage MHRA medicines and device safety alerts",
	Long: `medicinealerts polls GOV.UK for MHRA safety alerts (recalls, National
Patient Safety Alerts, Drug Safety Updates, supply notices), classifies each
one for relevance to a GP practice, and tracks the resulting actions with
SLA-based overdue detection.

Typical use:
  medicinealerts backfill          # one-off historical import
  medicinealerts poll              # one polling cycle over all sources
  medicinealerts watch             # run the interval scheduler in-process
  medicinealerts overdue           # list alerts past their response deadline`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./medicinealerts.yaml)")
}

// loadConfig resolves configuration once per command invocation.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// openStore opens the SQLite store at the configured path.
func openStore(cfg *config.Config) (*store.Store, error) {
	db, err := store.NewStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", cfg.Database.Path, err)
	}
	return db, nil
}

// buildIngestor wires the full ingestion pipeline: triage engine, optional
// Teams notifier, processor and source pollers.
func buildIngestor(cfg *config.Config, db *store.Store) *process.Ingestor {
	engine := triage.NewEngine(cfg)

	var notifier process.Notifier
	if teams := notify.NewTeamsClient(cfg); teams.Enabled() {
		notifier = teams
	}

	proc := process.NewProcessor(db, engine, notifier, cfg)
	return process.NewIngestor(cfg, db, proc)
}
