package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/parcel-funnel/internal/normalize"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [addresses...]",
	Short: "Show the normalized form of owner addresses",
	Long: `Normalize prints the canonical form used to deduplicate and geocode each
address, with the civic number and the "no civic number" marker extracted
from it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("%-30s  %-30s  %-8s  %s\n", "RAW", "NORMALIZED", "NUMBER", "NO CIVIC")
		for _, raw := range args {
			norm := normalize.Address(raw)
			fmt.Printf("%-30s  %-30s  %-8s  %t\n",
				raw, norm, normalize.CivicNumber(norm), normalize.HasNoCivicMarker(norm))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}
