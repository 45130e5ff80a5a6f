// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// FunnelKind names one of the two funnels.
type FunnelKind string

const (
	FunnelLand    FunnelKind = "land_acquisition"
	FunnelContact FunnelKind = "contact_processing"
)

// StageKind describes how a stage relates to its basis stage.
type StageKind string

const (
	// StageInitial is the first stage; it has no conversion rate.
	StageInitial StageKind = "initial"

	// StageSequential is ordinary attrition from its basis.
	StageSequential StageKind = "sequential"

	// StageSplit is one branch of a partition of its basis.
	StageSplit StageKind = "split"

	// StageMultiplicative expands its basis; its rate is a multiplier and
	// may exceed 1.
	StageMultiplicative StageKind = "multiplicative"
)

// FunnelStage is a named checkpoint reporting item count and aggregate area
// at one point in the pipeline. It is a snapshot, not a live cursor.
type FunnelStage struct {
	Name     string  `json:"name" yaml:"name"`
	Count    int     `json:"count" yaml:"count"`
	Hectares float64 `json:"hectares" yaml:"hectares"`

	// Conversion is Count divided by the basis stage's count. Nil for the
	// initial stage and when the basis is empty.
	Conversion *float64 `json:"conversion,omitempty" yaml:"conversion,omitempty"`

	// Basis names the stage the conversion rate is computed against.
	Basis string    `json:"basis,omitempty" yaml:"basis,omitempty"`
	Kind  StageKind `json:"kind" yaml:"kind"`

	BusinessRule string `json:"business_rule" yaml:"business_rule"`
	Automation   string `json:"automation" yaml:"automation"`
}

// IsMultiplier reports whether the stage's rate is a multiplier rather than
// a conversion.
func (s FunnelStage) IsMultiplier() bool {
	return s.Kind == StageMultiplicative
}

// FunnelTable is the ordered stage list of one funnel.
type FunnelTable struct {
	Funnel FunnelKind    `json:"funnel" yaml:"funnel"`
	Stages []FunnelStage `json:"stages" yaml:"stages"`
}

// Stage returns the named stage and whether it exists.
func (t FunnelTable) Stage(name string) (FunnelStage, bool) {
	for _, s := range t.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return FunnelStage{}, false
}

// QualityBucket is one confidence tier of the quality distribution.
type QualityBucket struct {
	Tier       Tier    `json:"tier" yaml:"tier"`
	Count      int     `json:"count" yaml:"count"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
	Automation string  `json:"automation" yaml:"automation"`
	Routing    Channel `json:"routing" yaml:"routing"`
}

// QualityDistribution is the tier histogram of classified addresses.
type QualityDistribution struct {
	Buckets []QualityBucket `json:"buckets" yaml:"buckets"`
	Total   int             `json:"total" yaml:"total"`

	// RoundingResidual is 100 minus the sum of rounded percentages. It is
	// reported as-is, never redistributed.
	RoundingResidual float64 `json:"rounding_residual" yaml:"rounding_residual"`
}

// Bucket returns the bucket for tier.
func (d QualityDistribution) Bucket(tier Tier) QualityBucket {
	for _, b := range d.Buckets {
		if b.Tier == tier {
			return b
		}
	}
	return QualityBucket{Tier: tier}
}

// KPISource records the funnel or quality figure a KPI was derived from.
type KPISource struct {
	Numerator   string `json:"numerator" yaml:"numerator"`
	Denominator string `json:"denominator" yaml:"denominator"`
}

// KPIRecord holds the executive summary ratios. A nil ratio is undefined
// because its denominator is zero.
type KPIRecord struct {
	LandAcquisitionEfficiency   *float64 `json:"land_acquisition_efficiency" yaml:"land_acquisition_efficiency"`
	ContactMultiplicationFactor *float64 `json:"contact_multiplication_factor" yaml:"contact_multiplication_factor"`
	ZeroTouchProcessingRate     *float64 `json:"zero_touch_processing_rate" yaml:"zero_touch_processing_rate"`
	DirectMailEfficiency        *float64 `json:"direct_mail_efficiency" yaml:"direct_mail_efficiency"`

	Sources map[string]KPISource `json:"sources" yaml:"sources"`
}
