// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package kpi derives the executive summary ratios from the funnel tables
// and the quality distribution.
package kpi

import (
	"fmt"

	"github.com/pdiddy/parcel-funnel/internal/funnel"
	"github.com/pdiddy/parcel-funnel/internal/quality"
	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// KPI names used as keys of KPIRecord.Sources.
const (
	LandAcquisitionEfficiency   = "land_acquisition_efficiency"
	ContactMultiplicationFactor = "contact_multiplication_factor"
	ZeroTouchProcessingRate     = "zero_touch_processing_rate"
	DirectMailEfficiency        = "direct_mail_efficiency"
)

// Calculate computes the KPI record. The quality distribution must cover
// exactly the classified stage of the contact funnel.
func Calculate(land, contact types.FunnelTable, dist types.QualityDistribution) (types.KPIRecord, error) {
	stage := func(t types.FunnelTable, name string) (types.FunnelStage, error) {
		st, ok := t.Stage(name)
		if !ok {
			return st, fmt.Errorf("%s funnel has no %q stage", t.Funnel, name)
		}
		return st, nil
	}

	input, err := stage(land, funnel.StageInputParcels)
	if err != nil {
		return types.KPIRecord{}, err
	}
	qualified, err := stage(land, funnel.StageQualified)
	if err != nil {
		return types.KPIRecord{}, err
	}
	pairs, err := stage(contact, funnel.StageAddressPairs)
	if err != nil {
		return types.KPIRecord{}, err
	}
	classified, err := stage(contact, funnel.StageClassified)
	if err != nil {
		return types.KPIRecord{}, err
	}
	direct, err := stage(contact, funnel.StageDirectMail)
	if err != nil {
		return types.KPIRecord{}, err
	}

	if dist.Total != classified.Count {
		return types.KPIRecord{}, fmt.Errorf("quality distribution covers %d addresses, %q stage has %d",
			dist.Total, classified.Name, classified.Count)
	}

	zeroTouch := quality.ZeroTouch(dist)
	return types.KPIRecord{
		LandAcquisitionEfficiency:   ratio(qualified.Count, input.Count),
		ContactMultiplicationFactor: ratio(pairs.Count, qualified.Count),
		ZeroTouchProcessingRate:     ratio(zeroTouch, classified.Count),
		DirectMailEfficiency:        ratio(direct.Count, classified.Count),
		Sources: map[string]types.KPISource{
			LandAcquisitionEfficiency: {
				Numerator:   source(qualified.Name, qualified.Count),
				Denominator: source(input.Name, input.Count),
			},
			ContactMultiplicationFactor: {
				Numerator:   source(pairs.Name, pairs.Count),
				Denominator: source(qualified.Name, qualified.Count),
			},
			ZeroTouchProcessingRate: {
				Numerator:   source("ULTRA_HIGH + HIGH", zeroTouch),
				Denominator: source(classified.Name, classified.Count),
			},
			DirectMailEfficiency: {
				Numerator:   source(direct.Name, direct.Count),
				Denominator: source(classified.Name, classified.Count),
			},
		},
	}, nil
}

func ratio(num, den int) *float64 {
	if den == 0 {
		return nil
	}
	v := float64(num) / float64(den)
	return &v
}

func source(name string, n int) string {
	return fmt.Sprintf("%s (%d)", name, n)
}
