// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package funnel builds the Land Acquisition and Contact Processing funnel
// tables from a fully materialized record set and reconciles them. A table
// that fails reconciliation is never returned.
package funnel

import (
	"fmt"

	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// Land Acquisition stage names.
const (
	StageInputParcels = "Input Parcels"
	StageAPIRetrieved = "API Data Retrieved"
	StagePrivate      = "Owner Classification: Private"
	StageEntity       = "Owner Classification: Entity"
	StageCatAFilter   = "Cat.A Filter Applied"
	StageQualified    = "Qualified Parcels"
)

// Contact Processing stage names. The first stage reuses StageQualified.
const (
	StageOwnerRows    = "Owner Rows Retrieved"
	StageAddressPairs = "Address Pairs Created"
	StageClassified   = "Quality Classification Applied"
	StageDirectMail   = "Direct Mail Ready"
	StageAgency       = "Agency Required"
	StageFinalMailing = "Final Mailing List"
)

// hectareTolerance absorbs float summation error in the hectare checks.
const hectareTolerance = 1e-6

// ReconciliationError reports a funnel whose counts do not add up. It is
// fatal: no table is emitted.
type ReconciliationError struct {
	Funnel types.FunnelKind
	Check  string
	Detail string
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("%s funnel does not reconcile: %s (%s)", e.Funnel, e.Check, e.Detail)
}

// stageSpec is one row of a funnel before rates are computed.
type stageSpec struct {
	name       string
	count      int
	hectares   float64
	basis      string
	kind       types.StageKind
	rule       string
	automation string
}

// build turns specs into stages, computing each conversion against its
// basis. A zero basis leaves the conversion undefined.
func build(kind types.FunnelKind, specs []stageSpec) types.FunnelTable {
	table := types.FunnelTable{Funnel: kind}
	counts := make(map[string]int, len(specs))
	for _, s := range specs {
		st := types.FunnelStage{
			Name:         s.name,
			Count:        s.count,
			Hectares:     s.hectares,
			Basis:        s.basis,
			Kind:         s.kind,
			BusinessRule: s.rule,
			Automation:   s.automation,
		}
		if s.kind != types.StageInitial {
			if base := counts[s.basis]; base > 0 {
				rate := float64(s.count) / float64(base)
				st.Conversion = &rate
			}
		}
		counts[s.name] = s.count
		table.Stages = append(table.Stages, st)
	}
	return table
}

// checkBases verifies that no non-multiplicative stage exceeds its basis in
// count or hectares, and that only multiplier stages report a rate above 1.
func checkBases(t types.FunnelTable) error {
	for _, s := range t.Stages {
		if s.Kind == types.StageInitial {
			continue
		}
		base, ok := t.Stage(s.Basis)
		if !ok {
			return &ReconciliationError{Funnel: t.Funnel, Check: "basis exists", Detail: fmt.Sprintf("stage %q references unknown basis %q", s.Name, s.Basis)}
		}
		if s.IsMultiplier() {
			continue
		}
		if s.Count > base.Count {
			return &ReconciliationError{Funnel: t.Funnel, Check: "count never exceeds basis",
				Detail: fmt.Sprintf("%s=%d > %s=%d", s.Name, s.Count, base.Name, base.Count)}
		}
		if s.Hectares > base.Hectares+hectareTolerance {
			return &ReconciliationError{Funnel: t.Funnel, Check: "hectares never exceed basis",
				Detail: fmt.Sprintf("%s=%.4f > %s=%.4f", s.Name, s.Hectares, base.Name, base.Hectares)}
		}
		if s.Conversion != nil && *s.Conversion > 1 {
			return &ReconciliationError{Funnel: t.Funnel, Check: "rate above 1 only on multipliers",
				Detail: fmt.Sprintf("%s rate %.4f", s.Name, *s.Conversion)}
		}
	}
	return nil
}

func equalCounts(t types.FunnelTable, check string, left []string, right string) error {
	sum := 0
	for _, name := range left {
		st, _ := t.Stage(name)
		sum += st.Count
	}
	r, _ := t.Stage(right)
	if sum != r.Count {
		return &ReconciliationError{Funnel: t.Funnel, Check: check, Detail: fmt.Sprintf("%d != %d", sum, r.Count)}
	}
	return nil
}
