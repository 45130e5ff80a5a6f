// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// record is one input row as column name to trimmed value, with its
// 1-based line (CSV) or record number (shapefile).
type record struct {
	line   int
	values map[string]string
}

func (r record) get(col string) string {
	return r.values[col]
}

// aliases maps lower-cased source headers to canonical column names. DBF
// field names are capped at ten characters, hence the short forms.
var aliases = map[string]string{
	"cadastral_type":      "cadastral_type",
	"cad_type":            "cadastral_type",
	"tipo_catasto":        "cadastral_type",
	"connection_point_id": "connection_point_id",
	"conn_pt":             "connection_point_id",
	"province":            "province",
	"provincia":           "province",
	"municipality":        "municipality",
	"municipal":           "municipality",
	"comune":              "municipality",
	"section":             "section",
	"sezione":             "section",
	"sheet":               "sheet",
	"foglio":              "sheet",
	"parcel":              "parcel",
	"particella":          "parcel",
	"area_ha":             "area_ha",
	"superficie":          "area_ha",
	"parcel_key":          "parcel_key",
	"owner_name":          "owner_name",
	"owner":               "owner_name",
	"intestatario":        "owner_name",
	"fiscal_id":           "fiscal_id",
	"codice_fiscale":      "fiscal_id",
	"cod_fisc":            "fiscal_id",
	"address":             "address",
	"indirizzo":           "address",
	"category":            "category",
	"categoria":           "category",
}

func canonicalColumn(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.Trim(h, "\x00\ufeff")))
	if c, ok := aliases[h]; ok {
		return c
	}
	return h
}

// readCSV loads a CSV file with a header row into records.
func readCSV(path string) ([]record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open csv")
	}
	defer f.Close()
	return parseCSV(f)
}

func parseCSV(r io.Reader) ([]record, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("ingest: csv is empty")
	}
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read csv header")
	}
	if len(header) == 1 && strings.Contains(header[0], ";") {
		return nil, eris.New("ingest: csv uses ';' separators, export with ','")
	}

	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		colIdx[canonicalColumn(col)] = i
	}

	var out []record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read csv line %d", line)
		}
		if blank(row) {
			continue
		}
		values := make(map[string]string, len(colIdx))
		for col := range colIdx {
			values[col] = getCol(row, colIdx, col)
		}
		out = append(out, record{line: line, values: values})
	}
	return out, nil
}

// getCol safely retrieves a column value from a CSV row.
func getCol(row []string, colIdx map[string]int, col string) string {
	idx, ok := colIdx[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
