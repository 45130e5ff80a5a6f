// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the parcel-funnel CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/pdiddy/parcel-funnel/internal/secrets"
	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// logger is built in PersistentPreRunE from the --verbose flag.
var logger = zap.NewNop()

// envKeys are the configuration keys that may be set through
// PARCEL_FUNNEL_* environment variables.
var envKeys = []string{
	"name",
	"policy.version",
	"input.parcels_path", "input.owners_path", "input.strict",
	"lookup.timeout", "lookup.concurrency", "lookup.max_retries", "lookup.enable_pec",
	"lookup.registry.kind", "lookup.registry.base_url", "lookup.registry.driver",
	"lookup.registry.dsn", "lookup.registry.api_key",
	"lookup.geocoder.base_url", "lookup.geocoder.api_key",
	"lookup.pec.base_url", "lookup.pec.api_key",
	"store.driver", "store.dsn",
	"cache.backend", "cache.redis_addr", "cache.ttl",
	"output.dir", "output.format",
	"metrics.textfile_path",
}

// rootCmd is the base command for the parcel-funnel CLI.
var rootCmd = &cobra.Command{
	Use:   "parcel-funnel",
	Short: "Land acquisition and owner contact funnels for mailing campaigns",
	Long: `parcel-funnel turns a list of cadastral parcels into a deduplicated
mailing list of owners. It queries the land registry for ownership rows,
geocodes every owner address, classifies address quality under a versioned
policy, and reports the land acquisition and contact processing funnels with
executive KPIs.

Subcommands: run executes a campaign, classify and normalize inspect single
addresses, and report shows stored runs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		l, err := newLogger(verbose)
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		logger = l

		s, err := secrets.Load(".secrets/", logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./parcel-funnel.yaml or ~/.config/parcel-funnel/parcel-funnel.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging in console format")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("parcel-funnel")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "parcel-funnel"))
		}
	}

	viper.SetEnvPrefix("PARCEL_FUNNEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, k := range envKeys {
		_ = viper.BindEnv(k)
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger returns a JSON production logger, or a console development
// logger when verbose is set. Both write to stderr so stdout carries only
// the report.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// loadConfig merges defaults, the config file, environment and secrets,
// then validates. Command flags are applied by the caller through override
// before validation.
func loadConfig(override func(*types.CampaignConfig) error) (types.CampaignConfig, error) {
	cfg := types.DefaultCampaignConfig()
	// Derived from policy.version in Validate unless the file sets it.
	cfg.Policy = types.Policy{}
	cfg.Output.Format = ""

	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}
	if override != nil {
		if err := override(&cfg); err != nil {
			return cfg, err
		}
	}
	secrets.Apply(loadedSecrets, &cfg)

	if cfg.Output.Format == "" {
		cfg.Output.Format = defaultFormat()
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// defaultFormat renders tables for a terminal and JSON for pipes.
func defaultFormat() types.OutputFormat {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return types.OutputTable
	}
	return types.OutputJSON
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
