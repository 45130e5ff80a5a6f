// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics records campaign run metrics on a private Prometheus
// registry and writes them to a node_exporter textfile. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// Metrics provides observability for one campaign run.
type Metrics struct {
	registry *prometheus.Registry

	// Collaborator call latencies by service
	LookupLatency *prometheus.HistogramVec

	// Collaborator call outcomes by service and outcome
	LookupOutcome *prometheus.CounterVec

	// Recovery pass results by service and result
	Recovery *prometheus.CounterVec

	// Classified addresses by tier
	Tier *prometheus.GaugeVec

	// Final count of every funnel stage
	StageCount *prometheus.GaugeVec

	RunDuration prometheus.Gauge
}

// New creates a Metrics instance registered on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		LookupLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parcel_funnel_lookup_duration_seconds",
			Help:    "Duration of external lookups by service",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"service"}), // service: "registry", "geocode", "pec"

		LookupOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parcel_funnel_lookups_total",
			Help: "Total external lookups by service and outcome",
		}, []string{"service", "outcome"}), // outcome: "ok", "transient", "error", "cached"

		Recovery: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parcel_funnel_recovery_total",
			Help: "Recovery pass results by service",
		}, []string{"service", "result"}),

		Tier: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "parcel_funnel_addresses_by_tier",
			Help: "Classified addresses by confidence tier",
		}, []string{"tier"}),

		StageCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "parcel_funnel_stage_count",
			Help: "Item count at each funnel stage",
		}, []string{"funnel", "stage"}),

		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "parcel_funnel_run_duration_seconds",
			Help: "Wall time of the last campaign run",
		}),
	}
}

// ObserveLookup records one collaborator call.
func (m *Metrics) ObserveLookup(service, outcome string, d time.Duration) {
	if m != nil {
		m.LookupLatency.WithLabelValues(service).Observe(d.Seconds())
		m.LookupOutcome.WithLabelValues(service, outcome).Inc()
	}
}

// IncrementRecovery records the result of one recovery attempt.
func (m *Metrics) IncrementRecovery(service, result string) {
	if m != nil {
		m.Recovery.WithLabelValues(service, result).Inc()
	}
}

// RecordReport sets the gauges from a finished campaign report.
func (m *Metrics) RecordReport(rep types.CampaignReport) {
	if m == nil {
		return
	}
	for _, b := range rep.Quality.Buckets {
		m.Tier.WithLabelValues(string(b.Tier)).Set(float64(b.Count))
	}
	for _, table := range []types.FunnelTable{rep.Land, rep.Contact} {
		for _, st := range table.Stages {
			m.StageCount.WithLabelValues(string(table.Funnel), st.Name).Set(float64(st.Count))
		}
	}
	m.RunDuration.Set(rep.Run.Duration().Seconds())
}

// Gatherer exposes the private registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// WriteTextfile writes the registry in exposition format to path. An
// empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
