// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the parcel-funnel pipeline:
// input parcels and ownership rows, classified addresses, contacts, and the
// funnel, quality and KPI output tables.
package types

import (
	"strings"
	"unicode"
)

// ParcelRecord is one input unit of land identified by municipality, sheet
// and parcel number. It is immutable once loaded.
type ParcelRecord struct {
	// CadastralType distinguishes land ("T") from building ("F") records.
	CadastralType string `json:"cadastral_type" yaml:"cadastral_type"`

	// ConnectionPointID ties the parcel to the project's grid connection point.
	ConnectionPointID string `json:"connection_point_id" yaml:"connection_point_id"`

	Province     string `json:"province" yaml:"province"`
	Municipality string `json:"municipality" yaml:"municipality"`

	// Section is the optional cadastral section code.
	Section string `json:"section,omitempty" yaml:"section,omitempty"`

	Sheet  string `json:"sheet" yaml:"sheet"`
	Number string `json:"number" yaml:"number"`

	// AreaHa is the parcel area in hectares (always positive).
	AreaHa float64 `json:"area_ha" yaml:"area_ha"`
}

// Key returns the parcel's unique identity, e.g. "H501/B/12/345".
func (p ParcelRecord) Key() string {
	return strings.ToUpper(strings.Join([]string{
		strings.TrimSpace(p.Municipality),
		strings.TrimSpace(p.Section),
		strings.TrimSpace(p.Sheet),
		strings.TrimSpace(p.Number),
	}, "/"))
}

// OwnershipRow is one raw row returned by the registry for a parcel. Rows
// are never mutated; derived state references them by Index.
type OwnershipRow struct {
	// Index is the row's position in the campaign's row set.
	Index int `json:"index" yaml:"index"`

	OwnerName string `json:"owner_name" yaml:"owner_name"`
	FiscalID  string `json:"fiscal_id" yaml:"fiscal_id"`

	// RawAddress is the owner's address exactly as the registry returned it.
	RawAddress string `json:"raw_address" yaml:"raw_address"`

	// Category is the property-category code (e.g. "A/2", "D/1").
	Category string `json:"category" yaml:"category"`

	// ParcelKey references the ParcelRecord this row was returned for.
	ParcelKey string `json:"parcel_key" yaml:"parcel_key"`
}

// CanonicalFiscalID returns the fiscal identifier upper-cased with
// whitespace removed, the form used for grouping.
func CanonicalFiscalID(id string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, id)
}

// OwnerType distinguishes natural persons from legal entities.
type OwnerType string

const (
	OwnerIndividual  OwnerType = "individual"
	OwnerLegalEntity OwnerType = "legal_entity"
)

// OwnerIdentity is the resolved owner type plus any caveat recorded while
// resolving it.
type OwnerIdentity struct {
	Type   OwnerType `json:"type" yaml:"type"`
	Caveat string    `json:"caveat,omitempty" yaml:"caveat,omitempty"`
}
