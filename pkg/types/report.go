// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// RunInfo identifies one campaign run.
type RunInfo struct {
	ID            string        `json:"id" yaml:"id"`
	Name          string        `json:"name" yaml:"name"`
	PolicyVersion PolicyVersion `json:"policy_version" yaml:"policy_version"`
	StartedAt     time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt    time.Time     `json:"finished_at" yaml:"finished_at"`
}

// Duration returns the wall time of the run.
func (r RunInfo) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// DiscrepancyCounts tallies input rows and lookup gaps.
type DiscrepancyCounts struct {
	Read           int `json:"read" yaml:"read"`
	Accepted       int `json:"accepted" yaml:"accepted"`
	Excluded       int `json:"excluded" yaml:"excluded"`
	RegistryFailed int `json:"registry_failed" yaml:"registry_failed"`
}

// RecoveryCounts summarizes the recovery pass per service.
type RecoveryCounts struct {
	Queued    int            `json:"queued" yaml:"queued"`
	Recovered int            `json:"recovered" yaml:"recovered"`
	Failed    int            `json:"failed" yaml:"failed"`
	ByService map[string]int `json:"by_service,omitempty" yaml:"by_service,omitempty"`
}

// CampaignReport bundles every output table of a run.
type CampaignReport struct {
	Run           RunInfo             `json:"run" yaml:"run"`
	Land          FunnelTable         `json:"land_funnel" yaml:"land_funnel"`
	Contact       FunnelTable         `json:"contact_funnel" yaml:"contact_funnel"`
	Quality       QualityDistribution `json:"quality" yaml:"quality"`
	KPI           KPIRecord           `json:"kpi" yaml:"kpi"`
	Discrepancies DiscrepancyCounts   `json:"discrepancies" yaml:"discrepancies"`
	Recovery      RecoveryCounts      `json:"recovery" yaml:"recovery"`
	Contacts      []Contact           `json:"contacts,omitempty" yaml:"contacts,omitempty"`
}
