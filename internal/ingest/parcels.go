// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// ParcelResult holds the accepted parcels and the log of excluded rows.
type ParcelResult struct {
	Parcels []types.ParcelRecord
	Log     *DiscrepancyLog
}

// ReadParcels loads the parcel list from a CSV file or an ESRI shapefile,
// chosen by extension. With strict set the first malformed row aborts the
// read; otherwise malformed rows are excluded and logged.
func ReadParcels(path string, strict bool) (ParcelResult, error) {
	var (
		recs []record
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		recs, err = readShapefile(path)
	default:
		recs, err = readCSV(path)
	}
	if err != nil {
		return ParcelResult{}, err
	}
	return parcelsFromRecords(filepath.Base(path), recs, strict)
}

func parcelsFromRecords(source string, recs []record, strict bool) (ParcelResult, error) {
	res := ParcelResult{Log: NewDiscrepancyLog()}
	seen := make(map[string]int)

	for _, rec := range recs {
		p, merr := parseParcel(source, rec)
		kind := KindMalformed
		if merr == nil {
			if first, dup := seen[p.Key()]; dup {
				merr = &MalformedRowError{Source: source, Line: rec.line, Field: "parcel",
					Reason: "duplicate parcel key " + p.Key() + " (first seen at line " + strconv.Itoa(first) + ")"}
				kind = KindDuplicate
			}
		}
		if merr != nil {
			if strict {
				return ParcelResult{}, eris.Wrap(merr, "ingest: strict mode")
			}
			res.Log.exclude(kind, merr, p.Key())
			continue
		}
		seen[p.Key()] = rec.line
		res.Parcels = append(res.Parcels, p)
		res.Log.accept()
	}
	return res, nil
}

func parseParcel(source string, rec record) (types.ParcelRecord, *MalformedRowError) {
	p := types.ParcelRecord{
		CadastralType:     strings.ToUpper(rec.get("cadastral_type")),
		ConnectionPointID: rec.get("connection_point_id"),
		Province:          strings.ToUpper(rec.get("province")),
		Municipality:      strings.ToUpper(rec.get("municipality")),
		Section:           strings.ToUpper(rec.get("section")),
		Sheet:             rec.get("sheet"),
		Number:            rec.get("parcel"),
	}
	for _, req := range []struct{ field, value string }{
		{"municipality", p.Municipality},
		{"sheet", p.Sheet},
		{"parcel", p.Number},
	} {
		if req.value == "" {
			return p, &MalformedRowError{Source: source, Line: rec.line, Field: req.field, Reason: "missing"}
		}
	}

	raw := rec.get("area_ha")
	if raw == "" {
		return p, &MalformedRowError{Source: source, Line: rec.line, Field: "area_ha", Reason: "missing"}
	}
	area, err := parseDecimal(raw)
	if err != nil {
		return p, &MalformedRowError{Source: source, Line: rec.line, Field: "area_ha", Reason: "not a number: " + raw}
	}
	if area <= 0 {
		return p, &MalformedRowError{Source: source, Line: rec.line, Field: "area_ha", Reason: "must be positive: " + raw}
	}
	p.AreaHa = area
	return p, nil
}

// parseDecimal accepts both "1.25" and the Italian "1,25". NaN and
// infinities are rejected.
func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return v, nil
}
