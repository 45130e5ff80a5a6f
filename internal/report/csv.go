// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pdiddy/parcel-funnel/pkg/types"
)

var contactHeader = []string{
	"fiscal_id", "owner_name", "owner_type", "address", "tier", "channel", "rule",
	"policy_version", "postal_code", "parcels", "area_ha", "rows", "pec", "caveat",
}

// ContactsCSV writes one line per contact, the mailing list handed to the
// direct mail and agency channels.
func ContactsCSV(w io.Writer, contacts []types.Contact) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(contactHeader); err != nil {
		return err
	}
	for _, c := range contacts {
		rec := []string{
			c.FiscalID,
			c.OwnerName,
			string(c.Identity.Type),
			c.Address,
			string(c.Classified.Tier),
			string(c.Classified.Channel),
			string(c.Classified.Rule),
			string(c.Classified.PolicyVersion),
			c.Classified.Geocode.PostalCode,
			joinKeys(c.ParcelKeys),
			strconv.FormatFloat(c.AreaHa, 'f', 4, 64),
			strconv.Itoa(len(c.RowIndexes)),
			c.PEC,
			c.Identity.Caveat,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FunnelCSV writes the stages of one funnel.
func FunnelCSV(w io.Writer, t types.FunnelTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"funnel", "stage", "count", "hectares", "conversion", "basis", "kind", "business_rule", "automation"}); err != nil {
		return err
	}
	for _, st := range t.Stages {
		conv := ""
		if st.Conversion != nil {
			conv = strconv.FormatFloat(*st.Conversion, 'f', 4, 64)
		}
		rec := []string{
			string(t.Funnel), st.Name, strconv.Itoa(st.Count),
			strconv.FormatFloat(st.Hectares, 'f', 4, 64), conv, st.Basis,
			string(st.Kind), st.BusinessRule, st.Automation,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// QualityCSV writes the tier distribution.
func QualityCSV(w io.Writer, d types.QualityDistribution) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"tier", "count", "percentage", "automation", "routing"}); err != nil {
		return err
	}
	for _, b := range d.Buckets {
		rec := []string{
			string(b.Tier), strconv.Itoa(b.Count), strconv.FormatFloat(b.Percentage, 'f', 2, 64),
			b.Automation, string(b.Routing),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
