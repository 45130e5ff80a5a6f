// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report renders campaign reports as text tables, JSON, YAML and
// CSV, and exports them to an output directory.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/parcel-funnel/internal/kpi"
	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// Write renders rep to w in the given format.
func Write(w io.Writer, rep types.CampaignReport, format types.OutputFormat) error {
	switch format {
	case types.OutputJSON:
		return JSON(w, rep)
	case types.OutputYAML:
		return YAML(w, rep)
	case types.OutputTable, "":
		return Text(w, rep)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// JSON writes rep as indented JSON.
func JSON(w io.Writer, rep types.CampaignReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

// YAML writes rep as YAML.
func YAML(w io.Writer, rep types.CampaignReport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}
	return enc.Close()
}

// Text writes the funnel, quality and KPI tables for a terminal.
func Text(w io.Writer, rep types.CampaignReport) error {
	ew := &errWriter{w: w}
	ew.printf("Campaign %s  run %s  policy %s\n", rep.Run.Name, rep.Run.ID, rep.Run.PolicyVersion)
	if d := rep.Run.Duration(); d > 0 {
		ew.printf("Finished %s in %s\n", rep.Run.FinishedAt.Format(time.RFC3339), d.Round(time.Millisecond))
	}

	writeFunnel(ew, "Land Acquisition Funnel", rep.Land)
	writeFunnel(ew, "Contact Processing Funnel", rep.Contact)
	writeQuality(ew, rep.Quality)
	writeKPI(ew, rep.KPI)

	ew.printf("\nInput rows: %s read, %s accepted, %s excluded; %s parcels without registry answer\n",
		humanize.Comma(int64(rep.Discrepancies.Read)), humanize.Comma(int64(rep.Discrepancies.Accepted)),
		humanize.Comma(int64(rep.Discrepancies.Excluded)), humanize.Comma(int64(rep.Discrepancies.RegistryFailed)))
	ew.printf("Recovery: %d queued, %d recovered, %d failed\n",
		rep.Recovery.Queued, rep.Recovery.Recovered, rep.Recovery.Failed)
	return ew.err
}

func writeFunnel(ew *errWriter, title string, t types.FunnelTable) {
	ew.printf("\n%s\n", title)
	ew.printf("%-34s  %10s  %12s  %10s  %s\n", "STAGE", "COUNT", "HECTARES", "RATE", "AUTOMATION")
	for _, st := range t.Stages {
		ew.printf("%-34s  %10s  %12s  %10s  %s\n",
			st.Name, humanize.Comma(int64(st.Count)), Hectares(st.Hectares), Rate(st), st.Automation)
	}
}

func writeQuality(ew *errWriter, d types.QualityDistribution) {
	ew.printf("\nAddress Quality\n")
	ew.printf("%-10s  %8s  %8s  %-10s  %s\n", "TIER", "COUNT", "PCT", "AUTOMATION", "ROUTING")
	for _, b := range d.Buckets {
		ew.printf("%-10s  %8s  %7.2f%%  %-10s  %s\n", b.Tier, humanize.Comma(int64(b.Count)), b.Percentage, b.Automation, b.Routing)
	}
	ew.printf("%-10s  %8s  rounding residual %.2f\n", "TOTAL", humanize.Comma(int64(d.Total)), d.RoundingResidual)
}

func writeKPI(ew *errWriter, k types.KPIRecord) {
	ew.printf("\nExecutive KPIs\n")
	rows := []struct {
		label string
		key   string
		value *float64
		mult  bool
	}{
		{"Land acquisition efficiency", kpi.LandAcquisitionEfficiency, k.LandAcquisitionEfficiency, false},
		{"Contact multiplication factor", kpi.ContactMultiplicationFactor, k.ContactMultiplicationFactor, true},
		{"Zero-touch processing rate", kpi.ZeroTouchProcessingRate, k.ZeroTouchProcessingRate, false},
		{"Direct mail efficiency", kpi.DirectMailEfficiency, k.DirectMailEfficiency, false},
	}
	for _, r := range rows {
		src := k.Sources[r.key]
		ew.printf("%-30s  %10s  %s / %s\n", r.label, ratio(r.value, r.mult), src.Numerator, src.Denominator)
	}
}

// Rate formats a stage's conversion: a percentage, or a multiplier for
// multiplicative stages. Undefined rates print as "n/a".
func Rate(st types.FunnelStage) string {
	if st.Kind == types.StageInitial {
		return ""
	}
	return ratio(st.Conversion, st.IsMultiplier())
}

func ratio(v *float64, mult bool) string {
	if v == nil {
		return "n/a"
	}
	if mult {
		return fmt.Sprintf("%.2fx", *v)
	}
	return fmt.Sprintf("%.1f%%", *v*100)
}

// Hectares formats an area with thousands separators and two decimals.
func Hectares(ha float64) string {
	return humanize.FormatFloat("#,###.##", ha)
}

// Runs writes a run listing, newest first.
func Runs(w io.Writer, runs []types.RunInfo) error {
	ew := &errWriter{w: w}
	ew.printf("%-36s  %-20s  %-8s  %-20s  %s\n", "ID", "NAME", "POLICY", "STARTED", "DURATION")
	for _, r := range runs {
		ew.printf("%-36s  %-20s  %-8s  %-20s  %s\n",
			r.ID, truncate(r.Name, 20), r.PolicyVersion, humanize.Time(r.StartedAt), r.Duration().Round(time.Second))
	}
	return ew.err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// Export writes report.json, report.yaml and the CSV tables to dir and
// returns the paths written.
func Export(dir string, rep types.CampaignReport) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory %s: %w", dir, err)
	}

	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"report.json", func(w io.Writer) error { return JSON(w, rep) }},
		{"report.yaml", func(w io.Writer) error { return YAML(w, rep) }},
		{"contacts.csv", func(w io.Writer) error { return ContactsCSV(w, rep.Contacts) }},
		{"land_funnel.csv", func(w io.Writer) error { return FunnelCSV(w, rep.Land) }},
		{"contact_funnel.csv", func(w io.Writer) error { return FunnelCSV(w, rep.Contact) }},
		{"quality.csv", func(w io.Writer) error { return QualityCSV(w, rep.Quality) }},
	}

	var written []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := writeFile(path, f.write); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// writeFile writes through a temp file and renames it into place.
func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}

// errWriter keeps the first write error so table code can print freely.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func joinKeys(keys []string) string {
	return strings.Join(keys, ";")
}
