// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
)

// readShapefile reads the DBF attributes of every shape in a cadastral
// layer. Geometry is ignored; areas come from the attribute table.
func readShapefile(path string) ([]record, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open shapefile")
	}
	defer r.Close()

	fields := r.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = canonicalColumn(f.String())
	}

	var out []record
	for r.Next() {
		idx, _ := r.Shape()
		values := make(map[string]string, len(fields))
		for i, name := range names {
			values[name] = strings.TrimSpace(strings.Trim(r.ReadAttribute(idx, i), "\x00"))
		}
		out = append(out, record{line: idx + 1, values: values})
	}
	if err := r.Err(); err != nil {
		return nil, eris.Wrap(err, "ingest: read shapefile")
	}
	return out, nil
}
