package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/parcel-funnel/internal/report"
	"github.com/pdiddy/parcel-funnel/internal/store"
	"github.com/pdiddy/parcel-funnel/pkg/types"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "List stored campaign runs or show one",
	Long: `Report reads the run history kept in the configured store. Without
--run-id it lists recent runs; with --run-id it renders that run's funnels,
quality distribution and KPIs, and with --out exports them again.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().String("run-id", "", "run to show")
	reportCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	reportCmd.Flags().String("format", "", "output format: table, json, or yaml")
	reportCmd.Flags().String("out", "", "directory for report and CSV exports")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	cfg, err := loadConfig(func(c *types.CampaignConfig) error {
		if v, _ := flags.GetString("format"); v != "" {
			c.Output.Format = types.OutputFormat(v)
		}
		if v, _ := flags.GetString("out"); v != "" {
			c.Output.Dir = v
		}
		return nil
	})
	if err != nil {
		return err
	}
	if cfg.Store.Driver == "" {
		return fmt.Errorf("no run history: set store.driver and store.dsn in the config file")
	}

	s, err := store.New(ctx, cfg.Store, cfg.Cache.TTL)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	id, _ := flags.GetString("run-id")
	if id == "" {
		limit, _ := flags.GetInt("limit")
		runs, err := s.ListRuns(ctx, limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs recorded.")
			return nil
		}
		return report.Runs(os.Stdout, runs)
	}

	rep, err := s.LoadRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return err
	}
	if err := report.Write(os.Stdout, rep, cfg.Output.Format); err != nil {
		return err
	}
	if cfg.Output.Dir != "" {
		paths, err := report.Export(cfg.Output.Dir, rep)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintf(os.Stderr, "Wrote %s\n", p)
		}
	}
	return nil
}
