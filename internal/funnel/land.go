// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package funnel

import (
	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// Land builds and reconciles the Land Acquisition funnel.
func Land(q Qualification) (types.FunnelTable, error) {
	t := build(types.FunnelLand, []stageSpec{
		{StageInputParcels, len(q.Parcels), q.inputHectares(), "", types.StageInitial,
			"all parcels accepted from the input list", "automated (ingest)"},
		{StageAPIRetrieved, len(q.Retrieved), q.Hectares(q.Retrieved), StageInputParcels, types.StageSequential,
			"parcels with at least one ownership row from the registry", "automated (registry API)"},
		{StagePrivate, len(q.Private), q.Hectares(q.Private), StageAPIRetrieved, types.StageSplit,
			"every owner is an individual (fiscal code starts with a letter)", "automated (fiscal id rule)"},
		{StageEntity, len(q.Entity), q.Hectares(q.Entity), StageAPIRetrieved, types.StageSplit,
			"at least one owner is a legal entity (fiscal code starts with a digit)", "automated (fiscal id rule)"},
		{StageCatAFilter, len(q.CatA), q.Hectares(q.CatA), StagePrivate, types.StageSequential,
			"residential Cat.A filter applied to individual-owned parcels only", "automated (category rule)"},
		{StageQualified, len(q.Qualified), q.Hectares(q.Qualified), StageAPIRetrieved, types.StageSequential,
			"Cat.A private parcels plus entity parcels, which bypass the filter", "automated"},
	})

	if err := equalCounts(t, "private + entity = retrieved", []string{StagePrivate, StageEntity}, StageAPIRetrieved); err != nil {
		return types.FunnelTable{}, err
	}
	if err := equalCounts(t, "qualified = Cat.A + entity", []string{StageCatAFilter, StageEntity}, StageQualified); err != nil {
		return types.FunnelTable{}, err
	}
	if err := checkBases(t); err != nil {
		return types.FunnelTable{}, err
	}
	return t, nil
}
