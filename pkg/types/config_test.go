// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		want    Policy
		wantErr bool
	}{
		{"empty is current", Policy{}, Policy{Version: PolicyCurrent, NoCivic: NoCivicDirectMail}, false},
		{"version only legacy", Policy{Version: PolicyLegacy}, Policy{Version: PolicyLegacy, NoCivic: NoCivicAgency}, false},
		{"version only strict", Policy{Version: PolicyStrict}, Policy{Version: PolicyStrict, NoCivic: NoCivicDirectMail, UltraHigh: true}, false},
		{"strict ultra high restored", Policy{Version: PolicyStrict, NoCivic: NoCivicDirectMail}, Policy{Version: PolicyStrict, NoCivic: NoCivicDirectMail, UltraHigh: true}, false},
		{"matching routing", Policy{Version: PolicyLegacy, NoCivic: NoCivicAgency}, Policy{Version: PolicyLegacy, NoCivic: NoCivicAgency}, false},
		{"unknown version with routing", Policy{Version: "bogus", NoCivic: NoCivicAgency}, Policy{}, true},
		{"unknown version", Policy{Version: "v4"}, Policy{}, true},
		{"legacy with direct mail", Policy{Version: PolicyLegacy, NoCivic: NoCivicDirectMail}, Policy{}, true},
		{"current with agency", Policy{Version: PolicyCurrent, NoCivic: NoCivicAgency}, Policy{}, true},
		{"unknown routing", Policy{Version: PolicyCurrent, NoCivic: "pigeon"}, Policy{}, true},
		{"ultra high on legacy", Policy{Version: PolicyLegacy, UltraHigh: true}, Policy{}, true},
		{"ultra high on current", Policy{Version: PolicyCurrent, NoCivic: NoCivicDirectMail, UltraHigh: true}, Policy{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCampaignConfig()
			cfg.Policy = tt.policy
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Policy)
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	var cfg CampaignConfig
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 20*time.Second, cfg.Lookup.Timeout)
	assert.Equal(t, 4, cfg.Lookup.Concurrency)
	assert.Equal(t, 5, cfg.Lookup.MaxRetries)
	assert.Equal(t, OutputTable, cfg.Output.Format)
	assert.Equal(t, []string{"A"}, cfg.Funnel.ResidentialPrefixes)
	assert.Equal(t, []string{"A/10"}, cfg.Funnel.ExcludedCategories)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CampaignConfig)
	}{
		{"output format", func(c *CampaignConfig) { c.Output.Format = "xml" }},
		{"cache backend", func(c *CampaignConfig) { c.Cache.Backend = "memcached" }},
		{"store cache without store", func(c *CampaignConfig) { c.Cache.Backend = "store" }},
		{"redis without address", func(c *CampaignConfig) { c.Cache.Backend = "redis" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCampaignConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
