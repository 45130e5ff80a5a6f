// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dedup collapses ownership rows into contacts keyed by fiscal
// identifier and normalized address. Matching is exact on both parts of the
// key; no fuzzy merging is attempted.
package dedup

import (
	"fmt"

	"github.com/pdiddy/parcel-funnel/internal/normalize"
	"github.com/pdiddy/parcel-funnel/internal/owner"
	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// IdentityFunc resolves the owner type of a fiscal identifier.
type IdentityFunc func(fiscalID string) types.OwnerIdentity

// Deduplicator groups rows incrementally. Rows added after the recovery
// pass merge into existing groups.
type Deduplicator struct {
	areas    map[string]float64
	identity IdentityFunc

	contacts []*types.Contact
	index    map[string]int
	parcels  []map[string]bool

	addresses map[string]bool
	rows      int
}

// New returns a Deduplicator. areas maps parcel keys to hectares; a parcel
// missing from it contributes zero area. A nil identity uses owner.Resolve.
func New(areas map[string]float64, identity IdentityFunc) *Deduplicator {
	if identity == nil {
		identity = owner.Resolve
	}
	return &Deduplicator{
		areas:     areas,
		identity:  identity,
		index:     make(map[string]int),
		addresses: make(map[string]bool),
	}
}

// Key returns the grouping key of a row.
func Key(row types.OwnershipRow) string {
	return types.CanonicalFiscalID(row.FiscalID) + "|" + normalize.Address(row.RawAddress)
}

// Add merges rows into the contact set and returns the normalized addresses
// seen for the first time, in first-seen order. Callers geocode only those.
func (d *Deduplicator) Add(rows ...types.OwnershipRow) []string {
	var fresh []string
	for _, row := range rows {
		d.rows++
		fiscal := types.CanonicalFiscalID(row.FiscalID)
		addr := normalize.Address(row.RawAddress)
		key := fiscal + "|" + addr

		if !d.addresses[addr] {
			d.addresses[addr] = true
			fresh = append(fresh, addr)
		}

		idx, ok := d.index[key]
		if !ok {
			idx = len(d.contacts)
			d.index[key] = idx
			d.contacts = append(d.contacts, &types.Contact{
				FiscalID:  fiscal,
				Address:   addr,
				OwnerName: row.OwnerName,
				Identity:  d.identity(fiscal),
			})
			d.parcels = append(d.parcels, make(map[string]bool))
		}

		c := d.contacts[idx]
		c.RowIndexes = append(c.RowIndexes, row.Index)
		if !d.parcels[idx][row.ParcelKey] {
			d.parcels[idx][row.ParcelKey] = true
			c.ParcelKeys = append(c.ParcelKeys, row.ParcelKey)
			c.AreaHa += d.areas[row.ParcelKey]
		}
	}
	return fresh
}

// Rows returns how many rows have been added.
func (d *Deduplicator) Rows() int {
	return d.rows
}

// Len returns the number of contacts.
func (d *Deduplicator) Len() int {
	return len(d.contacts)
}

// Addresses returns every distinct normalized address in first-seen order.
func (d *Deduplicator) Addresses() []string {
	out := make([]string, 0, len(d.addresses))
	seen := make(map[string]bool, len(d.addresses))
	for _, c := range d.contacts {
		if !seen[c.Address] {
			seen[c.Address] = true
			out = append(out, c.Address)
		}
	}
	return out
}

// Contacts returns a copy of the contacts in first-seen order, each carrying
// the classification of its address. Every address must be classified.
func (d *Deduplicator) Contacts(classified map[string]types.ClassifiedAddress) ([]types.Contact, error) {
	if err := d.Check(); err != nil {
		return nil, err
	}
	out := make([]types.Contact, len(d.contacts))
	for i, c := range d.contacts {
		cl, ok := classified[c.Address]
		if !ok {
			return nil, fmt.Errorf("contact %s: address %q was never classified", c.FiscalID, c.Address)
		}
		out[i] = *c
		out[i].Classified = cl
		out[i].ParcelKeys = append([]string(nil), c.ParcelKeys...)
		out[i].RowIndexes = append([]int(nil), c.RowIndexes...)
	}
	return out, nil
}

// Check verifies that grouping never produced more contacts than rows.
func (d *Deduplicator) Check() error {
	if len(d.contacts) > d.rows {
		return fmt.Errorf("dedup produced %d contacts from %d rows", len(d.contacts), d.rows)
	}
	return nil
}
