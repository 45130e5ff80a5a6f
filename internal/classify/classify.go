// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify assigns a confidence tier and routing channel to each
// geocoded address. The decision table is evaluated top to bottom and the
// first matching row wins; the result depends only on the candidate and the
// policy the Classifier was built with.
package classify

import (
	"fmt"

	"github.com/pdiddy/parcel-funnel/internal/normalize"
	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// ClassificationAmbiguityError reports a resolved candidate that no decision
// row covers. It is a data-integrity fault: the lookup layer tags such
// responses as unresolved, so reaching it means a candidate was built by
// hand or corrupted.
type ClassificationAmbiguityError struct {
	Normalized string
	Status     types.LookupStatus
}

func (e *ClassificationAmbiguityError) Error() string {
	return fmt.Sprintf("classification ambiguity: %s candidate %q has neither a resolved number nor the no-civic marker",
		e.Status, e.Normalized)
}

// Classifier applies the decision table under a fixed policy.
type Classifier struct {
	policy types.Policy
}

// New returns a Classifier bound to policy.
func New(policy types.Policy) *Classifier {
	return &Classifier{policy: policy}
}

// Policy returns the policy the classifier was built with.
func (c *Classifier) Policy() types.Policy {
	return c.policy
}

// Candidate builds an AddressCandidate from a raw address and the geocoding
// response. Submitted number and marker are derived from the normalized form.
func Candidate(raw string, status types.LookupStatus, geo types.GeocodeResult) types.AddressCandidate {
	norm := normalize.Address(raw)
	return types.AddressCandidate{
		Raw:           raw,
		Normalized:    norm,
		Submitted:     normalize.CivicNumber(norm),
		NoCivicMarker: normalize.HasNoCivicMarker(norm),
		Status:        status,
		Geocode:       geo,
	}
}

// FromGeocode builds a candidate from a successful geocoding call and tags
// it resolved or unresolved. A response is resolved when it carries a street
// number or a no-civic marker is present on either side; an empty response
// is always unresolved.
func FromGeocode(raw string, geo types.GeocodeResult) types.AddressCandidate {
	cand := Candidate(raw, types.LookupUnresolved, geo)
	if geo == (types.GeocodeResult{}) || cand.Normalized == "" {
		return cand
	}
	if geo.StreetNumber != "" || geo.NoCivic || cand.NoCivicMarker {
		cand.Status = types.LookupResolved
	}
	return cand
}

// Classify returns the classified address for cand.
//
//	0. lookup failed/unresolved                   -> LOW / AGENCY
//	1. has number, resolved == submitted          -> HIGH (ULTRA_HIGH) / DIRECT_MAIL
//	2. no-civic marker (input or response)        -> per policy
//	3. has number, resolved != submitted          -> MEDIUM / DIRECT_MAIL
//	4. no number, service supplied one            -> LOW / AGENCY
func (c *Classifier) Classify(cand types.AddressCandidate) (types.ClassifiedAddress, error) {
	out := types.ClassifiedAddress{
		AddressCandidate: cand,
		PolicyVersion:    c.policy.Version,
	}

	switch cand.Status {
	case types.LookupFailed:
		return c.set(out, types.TierLow, types.RuleLookupFailed), nil
	case types.LookupUnresolved:
		return c.set(out, types.TierLow, types.RuleLookupUnresolved), nil
	case types.LookupResolved:
	default:
		return out, fmt.Errorf("classify %q: unknown lookup status %q", cand.Normalized, cand.Status)
	}

	geo := cand.Geocode
	resolved := geo.StreetNumber != ""

	if cand.HasNumber() && resolved && numbersAgree(cand) {
		tier := types.TierHigh
		if c.policy.UltraHigh && geo.NumberMatch != nil && *geo.NumberMatch &&
			geo.PostalCode != "" && geo.HasCoordinates() {
			tier = types.TierUltraHigh
		}
		return c.set(out, tier, types.RuleExactMatch), nil
	}

	if cand.NoCivicMarker || geo.NoCivic {
		tier := types.TierHigh
		if c.policy.NoCivic == types.NoCivicAgency {
			tier = types.TierLow
		}
		return c.set(out, tier, types.RuleNoCivic), nil
	}

	if cand.HasNumber() && resolved {
		return c.set(out, types.TierMedium, types.RuleNumberMismatch), nil
	}

	if !cand.HasNumber() && resolved {
		return c.set(out, types.TierLow, types.RuleInterpolated), nil
	}

	return out, &ClassificationAmbiguityError{Normalized: cand.Normalized, Status: cand.Status}
}

// numbersAgree prefers the service's own verdict and falls back to comparing
// the canonical numbers.
func numbersAgree(cand types.AddressCandidate) bool {
	if cand.Geocode.NumberMatch != nil {
		return *cand.Geocode.NumberMatch
	}
	return normalize.SameNumber(cand.Submitted, cand.Geocode.StreetNumber)
}

func (c *Classifier) set(out types.ClassifiedAddress, tier types.Tier, rule types.DecisionRule) types.ClassifiedAddress {
	out.Tier = tier
	out.Channel = ChannelFor(tier)
	out.Rule = rule
	return out
}

// ChannelFor maps a tier to its routing channel. Only LOW addresses need an
// agency; every other tier is mailed directly.
func ChannelFor(tier types.Tier) types.Channel {
	if tier == types.TierLow {
		return types.ChannelAgency
	}
	return types.ChannelDirectMail
}

// Automation returns the automation level label of a tier.
func Automation(tier types.Tier) string {
	switch tier {
	case types.TierUltraHigh, types.TierHigh:
		return "full"
	case types.TierMedium:
		return "assisted"
	default:
		return "manual"
	}
}

// IsZeroTouch reports whether a tier needs no human review before mailing.
func IsZeroTouch(tier types.Tier) bool {
	return Automation(tier) == "full"
}
