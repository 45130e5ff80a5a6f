// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package funnel

import (
	"fmt"

	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// Contact builds and reconciles the Contact Processing funnel from the
// qualification and the deduplicated, classified contacts. When consolidate
// is set the owner-level Final Mailing List stage is appended.
func Contact(q Qualification, contacts []types.Contact, consolidate bool) (types.FunnelTable, error) {
	var all, direct, agency []string
	var directCount, agencyCount int
	owners := make(map[string]bool)
	for _, c := range contacts {
		all = append(all, c.ParcelKeys...)
		switch c.Classified.Channel {
		case types.ChannelDirectMail:
			directCount++
			direct = append(direct, c.ParcelKeys...)
			owners[c.FiscalID] = true
		case types.ChannelAgency:
			agencyCount++
			agency = append(agency, c.ParcelKeys...)
		default:
			return types.FunnelTable{}, &ReconciliationError{Funnel: types.FunnelContact, Check: "every contact is routed",
				Detail: fmt.Sprintf("contact %s has channel %q", c.Key(), c.Classified.Channel)}
		}
	}

	qualifiedHa := q.Hectares(q.Qualified)
	specs := []stageSpec{
		{StageQualified, len(q.Qualified), qualifiedHa, "", types.StageInitial,
			"parcels carried over from the land acquisition funnel", "automated"},
		{StageOwnerRows, len(q.Rows), qualifiedHa, StageQualified, types.StageMultiplicative,
			"one row per owner per qualified parcel; co-ownership expands the set", "automated (registry API)"},
		{StageAddressPairs, len(contacts), q.Hectares(all), StageOwnerRows, types.StageSequential,
			"rows collapsed on (fiscal id, normalized address)", "automated (exact match)"},
		{StageClassified, len(contacts), q.Hectares(all), StageAddressPairs, types.StageSequential,
			"every address pair assigned a confidence tier", "automated (decision table)"},
		{StageDirectMail, directCount, q.Hectares(direct), StageClassified, types.StageSplit,
			"ULTRA_HIGH, HIGH and MEDIUM addresses routed to direct mail", "full / assisted"},
		{StageAgency, agencyCount, q.Hectares(agency), StageClassified, types.StageSplit,
			"LOW addresses routed to a tracing agency", "manual"},
	}
	if consolidate {
		specs = append(specs, stageSpec{StageFinalMailing, len(owners), q.Hectares(direct), StageDirectMail, types.StageSequential,
			"direct mail contacts consolidated to one letter per owner", "automated"})
	}
	t := build(types.FunnelContact, specs)

	for _, c := range contacts {
		for _, k := range c.ParcelKeys {
			if !q.IsQualified(k) {
				return types.FunnelTable{}, &ReconciliationError{Funnel: types.FunnelContact, Check: "contacts reference qualified parcels",
					Detail: fmt.Sprintf("contact %s references %s", c.Key(), k)}
			}
		}
	}
	if len(contacts) > len(q.Rows) {
		return types.FunnelTable{}, &ReconciliationError{Funnel: types.FunnelContact, Check: "contacts <= rows",
			Detail: fmt.Sprintf("%d > %d", len(contacts), len(q.Rows))}
	}
	if err := equalCounts(t, "classified = address pairs", []string{StageClassified}, StageAddressPairs); err != nil {
		return types.FunnelTable{}, err
	}
	if err := equalCounts(t, "direct + agency = classified", []string{StageDirectMail, StageAgency}, StageClassified); err != nil {
		return types.FunnelTable{}, err
	}
	if err := checkBases(t); err != nil {
		return types.FunnelTable{}, err
	}
	return t, nil
}
