package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/parcel-funnel/internal/classify"
	"github.com/pdiddy/parcel-funnel/pkg/types"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify one address against a geocoding response",
	Long: `Classify applies the address quality policy to a single owner address and
a geocoding response given on the command line, and prints the tier, the
mailing channel and the decision rule. Useful for checking how a policy
version treats a particular case without running a campaign.`,
	Example: `  parcel-funnel classify --address "Via Roma 12" --resolved 12 --postal 00184
  parcel-funnel classify --address "Loc. Poggio s/n" --no-civic --policy legacy`,
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().String("address", "", "owner address as written in the registry")
	classifyCmd.Flags().String("resolved", "", "street number returned by the geocoder")
	classifyCmd.Flags().String("postal", "", "postal code returned by the geocoder")
	classifyCmd.Flags().Float64("lat", 0, "latitude returned by the geocoder")
	classifyCmd.Flags().Float64("lon", 0, "longitude returned by the geocoder")
	classifyCmd.Flags().Bool("match", false, "geocoder reports the street number matched")
	classifyCmd.Flags().Bool("no-civic", false, "geocoder reports the address has no civic number")
	classifyCmd.Flags().Bool("failed", false, "treat the geocoding call as failed")
	classifyCmd.Flags().String("policy", "", "classification policy: legacy, current, or strict")
	classifyCmd.Flags().Bool("json", false, "output the classified address as JSON")

	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	addr, _ := flags.GetString("address")
	if addr == "" {
		return fmt.Errorf("provide an address with --address")
	}

	cfg, err := loadConfig(func(c *types.CampaignConfig) error {
		if v, _ := flags.GetString("policy"); v != "" {
			c.Policy = types.Policy{Version: types.PolicyVersion(v)}
		}
		return nil
	})
	if err != nil {
		return err
	}

	var cand types.AddressCandidate
	if failed, _ := flags.GetBool("failed"); failed {
		cand = classify.Candidate(addr, types.LookupFailed, types.GeocodeResult{})
	} else {
		geo := types.GeocodeResult{}
		geo.StreetNumber, _ = flags.GetString("resolved")
		geo.PostalCode, _ = flags.GetString("postal")
		geo.Lat, _ = flags.GetFloat64("lat")
		geo.Lon, _ = flags.GetFloat64("lon")
		geo.NoCivic, _ = flags.GetBool("no-civic")
		if flags.Changed("match") {
			m, _ := flags.GetBool("match")
			geo.NumberMatch = &m
		}
		cand = classify.FromGeocode(addr, geo)
	}

	out, err := classify.New(cfg.Policy).Classify(cand)
	if err != nil {
		return err
	}

	if asJSON, _ := flags.GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	fmt.Printf("%-12s %s\n", "Address:", out.Raw)
	fmt.Printf("%-12s %s\n", "Normalized:", out.Normalized)
	fmt.Printf("%-12s %s\n", "Lookup:", out.Status)
	fmt.Printf("%-12s %s\n", "Tier:", out.Tier)
	fmt.Printf("%-12s %s\n", "Channel:", out.Channel)
	fmt.Printf("%-12s %s\n", "Rule:", out.Rule)
	fmt.Printf("%-12s %s\n", "Automation:", classify.Automation(out.Tier))
	fmt.Printf("%-12s %s\n", "Policy:", out.PolicyVersion)
	return nil
}
