// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// LookupStatus records what the geocoding collaborator produced for a
// candidate.
type LookupStatus string

const (
	// LookupResolved means the service answered with a street number or the
	// "no civic number" marker.
	LookupResolved LookupStatus = "resolved"

	// LookupUnresolved means the service answered but carried neither a
	// street number nor the marker, or the address was empty.
	LookupUnresolved LookupStatus = "unresolved"

	// LookupFailed means the call timed out and the recovery pass failed too.
	LookupFailed LookupStatus = "failed"
)

// GeocodeResult is the structured response of the geocoding collaborator.
type GeocodeResult struct {
	// StreetNumber is the resolved civic number; empty when absent.
	StreetNumber string `json:"street_number,omitempty" yaml:"street_number,omitempty"`

	PostalCode string  `json:"postal_code,omitempty" yaml:"postal_code,omitempty"`
	Lat        float64 `json:"lat" yaml:"lat"`
	Lon        float64 `json:"lon" yaml:"lon"`

	// NumberMatch is the service's own verdict on whether the submitted and
	// resolved numbers agree; nil when the service does not say.
	NumberMatch *bool `json:"number_match,omitempty" yaml:"number_match,omitempty"`

	// NoCivic reports that the service returned the "no civic number" marker.
	NoCivic bool `json:"no_civic,omitempty" yaml:"no_civic,omitempty"`
}

// HasCoordinates reports whether the result carries a usable position.
func (g GeocodeResult) HasCoordinates() bool {
	return g.Lat != 0 || g.Lon != 0
}

// AddressCandidate is a normalized address plus the geocoding response. One
// candidate exists per distinct normalized address string.
type AddressCandidate struct {
	Raw        string `json:"raw" yaml:"raw"`
	Normalized string `json:"normalized" yaml:"normalized"`

	// Submitted is the civic number carried by the normalized address.
	Submitted string `json:"submitted,omitempty" yaml:"submitted,omitempty"`

	// NoCivicMarker reports the canonical "no civic number" token in the
	// normalized address.
	NoCivicMarker bool `json:"no_civic_marker,omitempty" yaml:"no_civic_marker,omitempty"`

	Status  LookupStatus  `json:"status" yaml:"status"`
	Geocode GeocodeResult `json:"geocode" yaml:"geocode"`
}

// HasNumber reports whether the submitted address carried an explicit civic
// number.
func (c AddressCandidate) HasNumber() bool {
	return c.Submitted != ""
}

// Tier is an address confidence tier.
type Tier string

const (
	TierUltraHigh Tier = "ULTRA_HIGH"
	TierHigh      Tier = "HIGH"
	TierMedium    Tier = "MEDIUM"
	TierLow       Tier = "LOW"
)

// Tiers lists all tiers in reporting order.
var Tiers = []Tier{TierUltraHigh, TierHigh, TierMedium, TierLow}

// Channel is the downstream routing path for a contact.
type Channel string

const (
	ChannelDirectMail Channel = "DIRECT_MAIL"
	ChannelAgency     Channel = "AGENCY"
)

// DecisionRule identifies the classification table row that fired.
type DecisionRule string

const (
	RuleLookupFailed     DecisionRule = "lookup_failed"
	RuleLookupUnresolved DecisionRule = "lookup_unresolved"
	RuleExactMatch       DecisionRule = "exact_match"
	RuleNoCivic          DecisionRule = "no_civic_number"
	RuleNumberMismatch   DecisionRule = "number_mismatch"
	RuleInterpolated     DecisionRule = "interpolated_number"
)

// ClassifiedAddress is an AddressCandidate with its assigned tier and
// routing channel.
type ClassifiedAddress struct {
	AddressCandidate `yaml:",inline"`

	Tier          Tier          `json:"tier" yaml:"tier"`
	Channel       Channel       `json:"channel" yaml:"channel"`
	Rule          DecisionRule  `json:"rule" yaml:"rule"`
	PolicyVersion PolicyVersion `json:"policy_version" yaml:"policy_version"`
}

// Contact is the deduplication unit: one (fiscal identifier, normalized
// address) pair aggregating every ownership row that shares both.
type Contact struct {
	FiscalID  string        `json:"fiscal_id" yaml:"fiscal_id"`
	Address   string        `json:"address" yaml:"address"`
	OwnerName string        `json:"owner_name" yaml:"owner_name"`
	Identity  OwnerIdentity `json:"identity" yaml:"identity"`

	Classified ClassifiedAddress `json:"classified" yaml:"classified"`

	// ParcelKeys lists the distinct parcels contributing to the contact in
	// first-seen order.
	ParcelKeys []string `json:"parcel_keys" yaml:"parcel_keys"`

	// AreaHa sums the full area of each distinct parcel.
	AreaHa float64 `json:"area_ha" yaml:"area_ha"`

	// RowIndexes references the contributing OwnershipRows.
	RowIndexes []int `json:"row_indexes" yaml:"row_indexes"`

	// PEC is the certified email of a legal entity, when found.
	PEC string `json:"pec,omitempty" yaml:"pec,omitempty"`
}

// Key returns the deduplication key of a contact.
func (c Contact) Key() string {
	return c.FiscalID + "|" + c.Address
}
