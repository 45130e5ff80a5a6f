// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/parcel-funnel/pkg/types"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveLookup("geocode", "ok", time.Second)
	m.IncrementRecovery("geocode", "recovered")
	m.RecordReport(types.CampaignReport{})
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
	assert.NotNil(t, m.Gatherer())
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveLookup("registry", "ok", 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.LookupOutcome.WithLabelValues("registry", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.LookupOutcome.WithLabelValues("registry", "ok")))
}

func TestRecordReportAndTextfile(t *testing.T) {
	m := New()
	m.ObserveLookup("geocode", "transient", 2*time.Second)
	m.IncrementRecovery("geocode", "recovered")

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m.RecordReport(types.CampaignReport{
		Run: types.RunInfo{StartedAt: start, FinishedAt: start.Add(90 * time.Second)},
		Land: types.FunnelTable{Funnel: types.FunnelLand, Stages: []types.FunnelStage{
			{Name: "Input Parcels", Count: 238},
		}},
		Quality: types.QualityDistribution{Buckets: []types.QualityBucket{
			{Tier: types.TierHigh, Count: 7},
		}},
	})

	assert.Equal(t, 238.0, testutil.ToFloat64(m.StageCount.WithLabelValues("land_acquisition", "Input Parcels")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.Tier.WithLabelValues("HIGH")))
	assert.Equal(t, 90.0, testutil.ToFloat64(m.RunDuration))

	path := filepath.Join(t.TempDir(), "parcel_funnel.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `parcel_funnel_recovery_total{result="recovered",service="geocode"} 1`)
	assert.Contains(t, string(data), "parcel_funnel_run_duration_seconds 90")
}
