// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package quality builds the confidence-tier histogram of classified
// addresses.
package quality

import (
	"fmt"
	"math"

	"github.com/pdiddy/parcel-funnel/internal/classify"
	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// Distribute partitions addresses into the four tiers. Percentages are
// rounded to two decimals from the current counts; the rounding residual is
// reported, never redistributed.
func Distribute(addresses []types.ClassifiedAddress) (types.QualityDistribution, error) {
	counts := make(map[types.Tier]int, len(types.Tiers))
	var direct, agency int
	for _, a := range addresses {
		switch a.Tier {
		case types.TierUltraHigh, types.TierHigh, types.TierMedium, types.TierLow:
		default:
			return types.QualityDistribution{}, fmt.Errorf("address %q has unknown tier %q", a.Normalized, a.Tier)
		}
		counts[a.Tier]++
		switch a.Channel {
		case types.ChannelDirectMail:
			direct++
		case types.ChannelAgency:
			agency++
		}
	}

	total := len(addresses)
	dist := types.QualityDistribution{Total: total}
	var sumPct float64
	sum := 0
	for _, tier := range types.Tiers {
		b := types.QualityBucket{
			Tier:       tier,
			Count:      counts[tier],
			Automation: classify.Automation(tier),
			Routing:    classify.ChannelFor(tier),
		}
		if total > 0 {
			b.Percentage = round2(float64(b.Count) * 100 / float64(total))
		}
		sum += b.Count
		sumPct += b.Percentage
		dist.Buckets = append(dist.Buckets, b)
	}

	if sum != total {
		return types.QualityDistribution{}, fmt.Errorf("quality buckets sum to %d, want %d", sum, total)
	}
	if direct+agency != total {
		return types.QualityDistribution{}, fmt.Errorf("channel split %d + %d does not match %d addresses", direct, agency, total)
	}
	if total > 0 {
		dist.RoundingResidual = round2(100 - sumPct)
	}
	return dist, nil
}

// FromContacts returns the classified address of each contact.
func FromContacts(contacts []types.Contact) []types.ClassifiedAddress {
	out := make([]types.ClassifiedAddress, len(contacts))
	for i, c := range contacts {
		out[i] = c.Classified
	}
	return out
}

// ZeroTouch returns the count of addresses needing no human review.
func ZeroTouch(d types.QualityDistribution) int {
	n := 0
	for _, b := range d.Buckets {
		if classify.IsZeroTouch(b.Tier) {
			n += b.Count
		}
	}
	return n
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
