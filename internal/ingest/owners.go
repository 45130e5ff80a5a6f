// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// OwnerResult holds ownership rows read from an export file.
type OwnerResult struct {
	Rows []types.OwnershipRow
	Log  *DiscrepancyLog
}

// ownerFixture is the YAML shape of an ownership row.
type ownerFixture struct {
	ParcelKey    string `yaml:"parcel_key"`
	Municipality string `yaml:"municipality"`
	Section      string `yaml:"section"`
	Sheet        string `yaml:"sheet"`
	Parcel       string `yaml:"parcel"`
	OwnerName    string `yaml:"owner_name"`
	FiscalID     string `yaml:"fiscal_id"`
	Address      string `yaml:"address"`
	Category     string `yaml:"category"`
}

// ReadOwners loads ownership rows from a CSV or YAML registry export.
// Each row names its parcel either by parcel_key or by municipality,
// section, sheet and parcel. Row indexes start at 0 in file order.
func ReadOwners(path string, strict bool) (OwnerResult, error) {
	var (
		recs []record
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		recs, err = readOwnerYAML(path)
	default:
		recs, err = readCSV(path)
	}
	if err != nil {
		return OwnerResult{}, err
	}

	source := filepath.Base(path)
	res := OwnerResult{Log: NewDiscrepancyLog()}
	for _, rec := range recs {
		row, merr := parseOwner(source, rec)
		if merr != nil {
			if strict {
				return OwnerResult{}, eris.Wrap(merr, "ingest: strict mode")
			}
			res.Log.exclude(KindMalformed, merr, row.ParcelKey)
			continue
		}
		row.Index = len(res.Rows)
		res.Rows = append(res.Rows, row)
		res.Log.accept()
	}
	return res, nil
}

func parseOwner(source string, rec record) (types.OwnershipRow, *MalformedRowError) {
	row := types.OwnershipRow{
		OwnerName:  rec.get("owner_name"),
		FiscalID:   types.CanonicalFiscalID(rec.get("fiscal_id")),
		RawAddress: rec.get("address"),
		Category:   strings.ToUpper(rec.get("category")),
		ParcelKey:  strings.ToUpper(rec.get("parcel_key")),
	}
	if row.ParcelKey == "" {
		p := types.ParcelRecord{
			Municipality: rec.get("municipality"),
			Section:      rec.get("section"),
			Sheet:        rec.get("sheet"),
			Number:       rec.get("parcel"),
		}
		if p.Municipality == "" || p.Sheet == "" || p.Number == "" {
			return row, &MalformedRowError{Source: source, Line: rec.line, Field: "parcel_key", Reason: "missing parcel reference"}
		}
		row.ParcelKey = p.Key()
	}
	if row.FiscalID == "" {
		return row, &MalformedRowError{Source: source, Line: rec.line, Field: "fiscal_id", Reason: "missing"}
	}
	return row, nil
}

func readOwnerYAML(path string) ([]record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read owners yaml")
	}
	var fixtures []ownerFixture
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		return nil, eris.Wrap(err, "ingest: parse owners yaml")
	}

	out := make([]record, len(fixtures))
	for i, f := range fixtures {
		out[i] = record{line: i + 1, values: map[string]string{
			"parcel_key":   strings.TrimSpace(f.ParcelKey),
			"municipality": strings.TrimSpace(f.Municipality),
			"section":      strings.TrimSpace(f.Section),
			"sheet":        strings.TrimSpace(f.Sheet),
			"parcel":       strings.TrimSpace(f.Parcel),
			"owner_name":   strings.TrimSpace(f.OwnerName),
			"fiscal_id":    strings.TrimSpace(f.FiscalID),
			"address":      strings.TrimSpace(f.Address),
			"category":     strings.TrimSpace(f.Category),
		}}
	}
	return out, nil
}
