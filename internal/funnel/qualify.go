// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package funnel

import (
	"github.com/pdiddy/parcel-funnel/internal/owner"
	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// Qualification partitions the input parcels by retrieval, owner type and
// the residential filter. Every key list is in input order.
type Qualification struct {
	Parcels []types.ParcelRecord

	Retrieved []string
	Private   []string
	Entity    []string
	CatA      []string
	Qualified []string

	// Rows are the ownership rows of qualified parcels; they feed the
	// contact funnel.
	Rows []types.OwnershipRow

	areas     map[string]float64
	qualified map[string]bool
}

// Qualify evaluates the land stages for parcels given every retrieved
// ownership row. Rows that reference no input parcel are ignored.
func Qualify(parcels []types.ParcelRecord, rows []types.OwnershipRow, cfg types.FunnelConfig) Qualification {
	q := Qualification{
		Parcels:   parcels,
		areas:     make(map[string]float64, len(parcels)),
		qualified: make(map[string]bool),
	}
	for _, p := range parcels {
		q.areas[p.Key()] = p.AreaHa
	}

	byParcel := make(map[string][]types.OwnershipRow)
	for _, r := range rows {
		if _, ok := q.areas[r.ParcelKey]; !ok {
			continue
		}
		byParcel[r.ParcelKey] = append(byParcel[r.ParcelKey], r)
	}

	for _, p := range parcels {
		key := p.Key()
		prows := byParcel[key]
		if len(prows) == 0 {
			continue
		}
		q.Retrieved = append(q.Retrieved, key)

		entity := false
		residential := false
		for _, r := range prows {
			if owner.Resolve(r.FiscalID).Type == types.OwnerLegalEntity {
				entity = true
			}
			if cfg.IsResidential(r.Category) {
				residential = true
			}
		}

		switch {
		case entity:
			q.Entity = append(q.Entity, key)
		case residential:
			q.Private = append(q.Private, key)
			q.CatA = append(q.CatA, key)
		default:
			q.Private = append(q.Private, key)
			continue
		}
		q.qualified[key] = true
		q.Rows = append(q.Rows, prows...)
	}

	for _, p := range parcels {
		if q.qualified[p.Key()] {
			q.Qualified = append(q.Qualified, p.Key())
		}
	}
	return q
}

// Areas returns parcel hectares by key.
func (q Qualification) Areas() map[string]float64 {
	return q.areas
}

// IsQualified reports whether a parcel reached the Qualified stage.
func (q Qualification) IsQualified(key string) bool {
	return q.qualified[key]
}

// Hectares sums the area of the given parcels, counting each once.
func (q Qualification) Hectares(keys []string) float64 {
	seen := make(map[string]bool, len(keys))
	var sum float64
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		sum += q.areas[k]
	}
	return sum
}

func (q Qualification) inputHectares() float64 {
	var sum float64
	for _, p := range q.Parcels {
		sum += p.AreaHa
	}
	return sum
}
