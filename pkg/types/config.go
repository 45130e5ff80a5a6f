// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
	"time"
)

// PolicyVersion names a historical classification policy.
type PolicyVersion string

const (
	// PolicyLegacy routes "no civic number" addresses to LOW/AGENCY and has
	// no ULTRA_HIGH tier.
	PolicyLegacy PolicyVersion = "legacy"

	// PolicyCurrent routes "no civic number" addresses to HIGH/DIRECT_MAIL.
	PolicyCurrent PolicyVersion = "current"

	// PolicyStrict is PolicyCurrent plus the ULTRA_HIGH refinement of HIGH.
	PolicyStrict PolicyVersion = "strict"
)

// NoCivicRouting selects how addresses carrying the "no civic number" marker
// are classified.
type NoCivicRouting string

const (
	NoCivicDirectMail NoCivicRouting = "direct_mail"
	NoCivicAgency     NoCivicRouting = "agency"
)

// Policy is the immutable, versioned classification policy handed to the
// classifier and aggregators at construction time.
type Policy struct {
	// Version identifies the policy for audit output.
	Version PolicyVersion `json:"version" yaml:"version" mapstructure:"version"`

	// NoCivic routes addresses with the "no civic number" marker. It is
	// derived from Version; a configured value must match it.
	NoCivic NoCivicRouting `json:"no_civic" yaml:"no_civic" mapstructure:"no_civic"`

	// UltraHigh enables the ULTRA_HIGH refinement of exact matches. Only the
	// strict version has it.
	UltraHigh bool `json:"ultra_high" yaml:"ultra_high" mapstructure:"ultra_high"`
}

// resolve replaces p with the named version's policy. Explicit no_civic or
// ultra_high settings must agree with the version.
func (p *Policy) resolve() error {
	named, err := PolicyFor(p.Version)
	if err != nil {
		return err
	}
	if p.NoCivic != "" && p.NoCivic != named.NoCivic {
		return fmt.Errorf("policy.no_civic %q contradicts policy version %q, which routes no-civic addresses as %q",
			p.NoCivic, named.Version, named.NoCivic)
	}
	if p.UltraHigh && !named.UltraHigh {
		return fmt.Errorf("policy.ultra_high is only available with policy version %q, got %q", PolicyStrict, named.Version)
	}
	*p = named
	return nil
}

// PolicyFor returns the named historical policy.
func PolicyFor(v PolicyVersion) (Policy, error) {
	switch v {
	case PolicyLegacy:
		return Policy{Version: PolicyLegacy, NoCivic: NoCivicAgency}, nil
	case PolicyCurrent, "":
		return Policy{Version: PolicyCurrent, NoCivic: NoCivicDirectMail}, nil
	case PolicyStrict:
		return Policy{Version: PolicyStrict, NoCivic: NoCivicDirectMail, UltraHigh: true}, nil
	default:
		return Policy{}, fmt.Errorf("unknown policy version %q (want legacy, current, or strict)", v)
	}
}

// InputConfig holds settings for reading the parcel list and ownership rows.
type InputConfig struct {
	// ParcelsPath is a CSV file or ESRI shapefile (.shp) with the parcel list.
	ParcelsPath string `json:"parcels_path" yaml:"parcels_path" mapstructure:"parcels_path"`

	// OwnersPath optionally supplies ownership rows from a CSV export instead
	// of querying the registry.
	OwnersPath string `json:"owners_path,omitempty" yaml:"owners_path,omitempty" mapstructure:"owners_path"`

	// Strict aborts the run on the first malformed input row.
	Strict bool `json:"strict" yaml:"strict" mapstructure:"strict"`
}

// HTTPConfig holds shared HTTP settings used by the lookup clients.
type HTTPConfig struct {
	// Timeout bounds a single collaborator call. A call exceeding it is
	// queued for the recovery pass.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is sent with every request (e.g. "parcel-funnel/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// MaxRetries is the number of 429 retries before giving up (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// EndpointConfig describes one external collaborator.
type EndpointConfig struct {
	// Kind selects the client: "http" or "sql" (registry only).
	Kind string `json:"kind" yaml:"kind" mapstructure:"kind"`

	// BaseURL is the HTTP endpoint root.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Driver and DSN configure a SQL-backed registry mirror
	// ("sqlite3", "postgres", or "oracle").
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty" mapstructure:"driver"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty" mapstructure:"dsn"`

	// APIKey authenticates HTTP calls; usually loaded from .secrets/.
	APIKey string `json:"-" yaml:"-" mapstructure:"api_key"`
}

// LookupConfig holds settings for the registry, geocoding and PEC stages.
type LookupConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Concurrency bounds parallel calls within one municipality batch.
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	Registry EndpointConfig `json:"registry" yaml:"registry" mapstructure:"registry"`
	Geocoder EndpointConfig `json:"geocoder" yaml:"geocoder" mapstructure:"geocoder"`
	PEC      EndpointConfig `json:"pec" yaml:"pec" mapstructure:"pec"`

	// EnablePEC turns on certified-email lookups for legal entities.
	EnablePEC bool `json:"enable_pec" yaml:"enable_pec" mapstructure:"enable_pec"`
}

// FunnelConfig holds settings for funnel aggregation.
type FunnelConfig struct {
	// ResidentialPrefixes are property-category prefixes that count as
	// residential for the Cat.A filter (default ["A"]).
	ResidentialPrefixes []string `json:"residential_prefixes" yaml:"residential_prefixes" mapstructure:"residential_prefixes"`

	// ExcludedCategories are exact category codes removed from the
	// residential set (default ["A/10"], offices).
	ExcludedCategories []string `json:"excluded_categories" yaml:"excluded_categories" mapstructure:"excluded_categories"`

	// ConsolidateOwners adds the owner-level "Final Mailing List" stage.
	ConsolidateOwners bool `json:"consolidate_owners" yaml:"consolidate_owners" mapstructure:"consolidate_owners"`
}

// IsResidential reports whether a property-category code passes the Cat.A
// filter.
func (c FunnelConfig) IsResidential(category string) bool {
	code := strings.ToUpper(strings.TrimSpace(category))
	if code == "" {
		return false
	}
	for _, ex := range c.ExcludedCategories {
		if code == strings.ToUpper(ex) {
			return false
		}
	}
	for _, p := range c.ResidentialPrefixes {
		if strings.HasPrefix(code, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

// StoreConfig configures the SQL store for the geocode cache and run history.
type StoreConfig struct {
	// Driver is "sqlite3", "postgres" or "oracle". Empty disables the store.
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	// DSN is the driver-specific data source (a file path for sqlite3).
	DSN string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`
}

// CacheConfig selects the geocode cache backend.
type CacheConfig struct {
	// Backend is "store" (the SQL store), "redis", or "" for in-memory only.
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`

	// RedisAddr is host:port for the redis backend.
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`

	// TTL bounds how long a cached geocode is reused (0 = forever).
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
}

// OutputFormat selects the report rendering.
type OutputFormat string

const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
)

// OutputConfig holds settings for writing the output tables.
type OutputConfig struct {
	// Dir receives contacts.csv, funnels and KPI exports. Empty skips files.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// Format selects stdout rendering.
	Format OutputFormat `json:"format" yaml:"format" mapstructure:"format"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	// TextfilePath receives the run metrics in exposition format. Empty
	// disables the export.
	TextfilePath string `json:"textfile_path" yaml:"textfile_path" mapstructure:"textfile_path"`
}

// CampaignConfig groups all settings for one campaign run. It is built once
// in the CLI and passed by value; no component reads ambient configuration.
type CampaignConfig struct {
	Name    string        `json:"name" yaml:"name" mapstructure:"name"`
	Policy  Policy        `json:"policy" yaml:"policy" mapstructure:"policy"`
	Input   InputConfig   `json:"input" yaml:"input" mapstructure:"input"`
	Lookup  LookupConfig  `json:"lookup" yaml:"lookup" mapstructure:"lookup"`
	Funnel  FunnelConfig  `json:"funnel" yaml:"funnel" mapstructure:"funnel"`
	Store   StoreConfig   `json:"store" yaml:"store" mapstructure:"store"`
	Cache   CacheConfig   `json:"cache" yaml:"cache" mapstructure:"cache"`
	Output  OutputConfig  `json:"output" yaml:"output" mapstructure:"output"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
}

// DefaultCampaignConfig returns the configuration used when no file or flag
// overrides a setting.
func DefaultCampaignConfig() CampaignConfig {
	policy, _ := PolicyFor(PolicyCurrent)
	return CampaignConfig{
		Name:   "campaign",
		Policy: policy,
		Lookup: LookupConfig{
			HTTPConfig: HTTPConfig{
				Timeout:    20 * time.Second,
				UserAgent:  "parcel-funnel/0.1",
				MaxRetries: 5,
			},
			Concurrency: 4,
			Registry:    EndpointConfig{Kind: "http"},
			Geocoder:    EndpointConfig{Kind: "http"},
			PEC:         EndpointConfig{Kind: "http"},
		},
		Funnel: FunnelConfig{
			ResidentialPrefixes: []string{"A"},
			ExcludedCategories:  []string{"A/10"},
		},
		Output: OutputConfig{Format: OutputTable},
	}
}

// Validate fills zero values with defaults and rejects inconsistent
// settings.
func (c *CampaignConfig) Validate() error {
	def := DefaultCampaignConfig()
	if err := c.Policy.resolve(); err != nil {
		return err
	}
	if c.Lookup.Timeout <= 0 {
		c.Lookup.Timeout = def.Lookup.Timeout
	}
	if c.Lookup.UserAgent == "" {
		c.Lookup.UserAgent = def.Lookup.UserAgent
	}
	if c.Lookup.MaxRetries <= 0 {
		c.Lookup.MaxRetries = def.Lookup.MaxRetries
	}
	if c.Lookup.Concurrency <= 0 {
		c.Lookup.Concurrency = def.Lookup.Concurrency
	}
	if len(c.Funnel.ResidentialPrefixes) == 0 {
		c.Funnel.ResidentialPrefixes = def.Funnel.ResidentialPrefixes
	}
	if c.Funnel.ExcludedCategories == nil {
		c.Funnel.ExcludedCategories = def.Funnel.ExcludedCategories
	}
	switch c.Output.Format {
	case "":
		c.Output.Format = OutputTable
	case OutputTable, OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("output.format must be table, json, or yaml, got %q", c.Output.Format)
	}
	switch c.Cache.Backend {
	case "", "store", "redis":
	default:
		return fmt.Errorf("cache.backend must be store or redis, got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "store" && c.Store.Driver == "" {
		return fmt.Errorf("cache.backend store requires store.driver")
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache.backend redis requires cache.redis_addr")
	}
	return nil
}
