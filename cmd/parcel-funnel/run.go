// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/parcel-funnel/internal/campaign"
	"github.com/pdiddy/parcel-funnel/internal/metrics"
	"github.com/pdiddy/parcel-funnel/internal/report"
	"github.com/pdiddy/parcel-funnel/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a mailing campaign over a parcel list",
	Long: `Run reads the parcel list (CSV or shapefile), retrieves ownership rows from
the land registry or from an --owners export, geocodes every owner address,
and prints the land acquisition funnel, contact processing funnel, address
quality distribution and KPIs. Lookups that time out are retried once in a
recovery pass before the tables are built.

With --out the report, the mailing list and the funnel tables are also
written as JSON, YAML and CSV files.`,
	RunE: runCampaign,
}

func init() {
	runCmd.Flags().String("parcels", "", "parcel list: CSV file or ESRI shapefile (.shp)")
	runCmd.Flags().String("owners", "", "ownership rows CSV; skips live registry lookups")
	runCmd.Flags().String("out", "", "directory for report and CSV exports")
	runCmd.Flags().String("format", "", "stdout format: table, json, or yaml (default table on a terminal, json otherwise)")
	runCmd.Flags().String("policy", "", "classification policy: legacy, current, or strict")
	runCmd.Flags().String("name", "", "campaign name recorded with the run")
	runCmd.Flags().Bool("strict", false, "abort on the first malformed input row")
	runCmd.Flags().String("metrics-file", "", "write run metrics in Prometheus textfile format")

	rootCmd.AddCommand(runCmd)
}

func runCampaign(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(func(c *types.CampaignConfig) error {
		flags := cmd.Flags()
		if v, _ := flags.GetString("parcels"); v != "" {
			c.Input.ParcelsPath = v
		}
		if v, _ := flags.GetString("owners"); v != "" {
			c.Input.OwnersPath = v
		}
		if v, _ := flags.GetString("out"); v != "" {
			c.Output.Dir = v
		}
		if v, _ := flags.GetString("format"); v != "" {
			c.Output.Format = types.OutputFormat(v)
		}
		if v, _ := flags.GetString("policy"); v != "" {
			c.Policy = types.Policy{Version: types.PolicyVersion(v)}
		}
		if v, _ := flags.GetString("name"); v != "" {
			c.Name = v
		}
		if v, _ := flags.GetString("metrics-file"); v != "" {
			c.Metrics.TextfilePath = v
		}
		if flags.Changed("strict") {
			c.Input.Strict, _ = flags.GetBool("strict")
		}
		return nil
	})
	if err != nil {
		return err
	}

	in, err := campaign.LoadInputs(cfg.Input)
	if err != nil {
		return err
	}
	sum := in.Log.Summary()
	fmt.Fprintf(os.Stderr, "Read %d parcels (%d rows read, %d excluded)\n", len(in.Parcels), sum.Read, sum.Excluded)

	res, err := campaign.Connect(ctx, cfg, in.Owners, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Warn("closing resources", zap.Error(err))
		}
	}()

	m := metrics.New()
	opts := []campaign.Option{
		campaign.WithMetrics(m),
		campaign.WithLogger(logger),
		campaign.WithProgress(os.Stderr),
	}
	if res.Store != nil {
		opts = append(opts, campaign.WithStore(res.Store))
	}

	engine, err := campaign.New(cfg, res.Collaborators, opts...)
	if err != nil {
		return err
	}
	result, err := engine.Run(ctx, in.Parcels, in.Log)
	if err != nil {
		return err
	}

	if err := report.Write(os.Stdout, result.Report, cfg.Output.Format); err != nil {
		return err
	}

	if cfg.Output.Dir != "" {
		paths, err := report.Export(cfg.Output.Dir, result.Report)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintf(os.Stderr, "Wrote %s\n", p)
		}
	}

	if cfg.Metrics.TextfilePath != "" {
		if err := m.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			return err
		}
	}

	if result.Recovery.HasFailures() {
		fmt.Fprintf(os.Stderr, "%d lookup(s) failed after recovery; affected addresses were routed to the agency channel\n",
			result.Recovery.Failed)
	}
	return nil
}
