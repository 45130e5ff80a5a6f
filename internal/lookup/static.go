// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lookup

import (
	"context"

	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// StaticRegistry answers from ownership rows loaded from a registry export
// instead of calling the live service.
type StaticRegistry struct {
	byParcel map[string][]types.OwnershipRow
}

// NewStaticRegistry indexes rows by parcel key.
func NewStaticRegistry(rows []types.OwnershipRow) *StaticRegistry {
	r := &StaticRegistry{byParcel: make(map[string][]types.OwnershipRow)}
	for _, row := range rows {
		r.byParcel[row.ParcelKey] = append(r.byParcel[row.ParcelKey], row)
	}
	return r
}

// Owners returns the rows recorded for the parcel.
func (r *StaticRegistry) Owners(_ context.Context, parcel types.ParcelRecord) ([]types.OwnershipRow, error) {
	rows := r.byParcel[parcel.Key()]
	out := make([]types.OwnershipRow, len(rows))
	copy(out, rows)
	return out, nil
}
