// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package campaign

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/parcel-funnel/internal/funnel"
	"github.com/pdiddy/parcel-funnel/internal/ingest"
	"github.com/pdiddy/parcel-funnel/internal/lookup"
	"github.com/pdiddy/parcel-funnel/internal/metrics"
	"github.com/pdiddy/parcel-funnel/internal/store"
	"github.com/pdiddy/parcel-funnel/pkg/types"
)

var errTimeout = lookup.ErrTransient

// fakeRegistry answers from rows by parcel key. Parcels listed in flaky
// time out on their first call; parcels in down always time out; parcels
// in broken fail permanently.
type fakeRegistry struct {
	mu     sync.Mutex
	rows   map[string][]types.OwnershipRow
	flaky  map[string]bool
	down   map[string]bool
	broken map[string]bool
	calls  map[string]int
}

func (f *fakeRegistry) Owners(_ context.Context, p types.ParcelRecord) ([]types.OwnershipRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := p.Key()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[key]++
	switch {
	case f.down[key]:
		return nil, errTimeout
	case f.broken[key]:
		return nil, errors.New("registry rejected request")
	case f.flaky[key] && f.calls[key] == 1:
		return nil, errTimeout
	}
	out := make([]types.OwnershipRow, len(f.rows[key]))
	copy(out, f.rows[key])
	return out, nil
}

type fakeGeocoder struct {
	mu      sync.Mutex
	results map[string]types.GeocodeResult
	flaky   map[string]bool
	down    map[string]bool
	calls   map[string]int
}

func (f *fakeGeocoder) Geocode(_ context.Context, addr string) (types.GeocodeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[addr]++
	if f.down[addr] || (f.flaky[addr] && f.calls[addr] == 1) {
		return types.GeocodeResult{}, errTimeout
	}
	return f.results[addr], nil
}

type fakePEC map[string]string

func (f fakePEC) PEC(_ context.Context, id string) (string, error) {
	return f[id], nil
}

const (
	rossi   = "RSSMRA80A01H501U"
	bianchi = "BNCLRA85B41H501X"
	verdi   = "VRDGPP70C01F205Z"
	solare  = "01234567890"
)

func fixtureParcels() []types.ParcelRecord {
	p := func(mun, sheet, num string, ha float64) types.ParcelRecord {
		return types.ParcelRecord{CadastralType: "T", Municipality: mun, Sheet: sheet, Number: num, AreaHa: ha}
	}
	return []types.ParcelRecord{
		p("H501", "1", "1", 2),
		p("H501", "1", "2", 3),
		p("H501", "1", "3", 1),
		p("F205", "2", "1", 4),
		p("F205", "2", "2", 5),
		p("F205", "2", "3", 6),
	}
}

func fixture() (*fakeRegistry, *fakeGeocoder) {
	row := func(key, name, id, addr, cat string) types.OwnershipRow {
		return types.OwnershipRow{OwnerName: name, FiscalID: id, RawAddress: addr, Category: cat, ParcelKey: key}
	}
	reg := &fakeRegistry{
		rows: map[string][]types.OwnershipRow{
			"H501//1/1": {
				row("H501//1/1", "Mario Rossi", rossi, "Via Roma 12", "A/2"),
				row("H501//1/1", "Laura Bianchi", bianchi, "Via Roma 12 piano 2", "A/2"),
			},
			"H501//1/2": {row("H501//1/2", "Solare SRL", solare, "Via Po 1", "D/1")},
			"H501//1/3": {row("H501//1/3", "Mario Rossi", rossi, "Via Roma, 12", "C/6")},
			"F205//2/1": {row("F205//2/1", "Giuseppe Verdi", verdi, "Loc. Poggio s/n", "A/3")},
		},
		flaky: map[string]bool{"F205//2/1": true},
		down:  map[string]bool{"F205//2/3": true},
	}
	match := true
	geo := &fakeGeocoder{
		results: map[string]types.GeocodeResult{
			"VIA ROMA 12":    {StreetNumber: "12", PostalCode: "00184", Lat: 41.9, Lon: 12.5, NumberMatch: &match},
			"VIA PO 1":       {StreetNumber: "3", PostalCode: "00198"},
			"LOC POGGIO SNC": {PostalCode: "53100"},
		},
		flaky: map[string]bool{"VIA PO 1": true},
	}
	return reg, geo
}

func newEngine(t *testing.T, deps Collaborators, opts ...Option) *Engine {
	t.Helper()
	cfg := types.DefaultCampaignConfig()
	cfg.Name = "solar-nord"
	cfg.Lookup.Concurrency = 3
	e, err := New(cfg, deps, opts...)
	require.NoError(t, err)
	e.newID = func() string { return "run-1" }
	return e
}

func stageCount(t *testing.T, table types.FunnelTable, name string) int {
	t.Helper()
	st, ok := table.Stage(name)
	require.True(t, ok, "stage %q", name)
	return st.Count
}

func TestRunEndToEnd(t *testing.T) {
	reg, geo := fixture()
	var progress bytes.Buffer
	m := metrics.New()
	e := newEngine(t, Collaborators{Registry: reg, Geocoder: geo, PEC: fakePEC{solare: "solare@pec.it"}},
		WithProgress(&progress), WithMetrics(m))

	res, err := e.Run(context.Background(), fixtureParcels(), nil)
	require.NoError(t, err)
	rep := res.Report

	assert.Equal(t, "run-1", rep.Run.ID)
	assert.Equal(t, types.PolicyCurrent, rep.Run.PolicyVersion)

	land := rep.Land
	assert.Equal(t, 6, stageCount(t, land, funnel.StageInputParcels))
	assert.Equal(t, 4, stageCount(t, land, funnel.StageAPIRetrieved))
	assert.Equal(t, 3, stageCount(t, land, funnel.StagePrivate))
	assert.Equal(t, 1, stageCount(t, land, funnel.StageEntity))
	assert.Equal(t, 2, stageCount(t, land, funnel.StageCatAFilter))
	assert.Equal(t, 3, stageCount(t, land, funnel.StageQualified))
	input, _ := land.Stage(funnel.StageInputParcels)
	assert.InDelta(t, 21.0, input.Hectares, 1e-9)
	qualified, _ := land.Stage(funnel.StageQualified)
	assert.InDelta(t, 9.0, qualified.Hectares, 1e-9)

	contact := rep.Contact
	assert.Equal(t, 4, stageCount(t, contact, funnel.StageOwnerRows))
	assert.Equal(t, 4, stageCount(t, contact, funnel.StageAddressPairs))
	assert.Equal(t, 4, stageCount(t, contact, funnel.StageDirectMail))
	assert.Equal(t, 0, stageCount(t, contact, funnel.StageAgency))

	assert.Equal(t, 3, rep.Quality.Bucket(types.TierHigh).Count)
	assert.Equal(t, 1, rep.Quality.Bucket(types.TierMedium).Count)
	require.NotNil(t, rep.KPI.LandAcquisitionEfficiency)
	assert.InDelta(t, 0.5, *rep.KPI.LandAcquisitionEfficiency, 1e-9)

	require.Len(t, rep.Contacts, 4)
	byID := make(map[string]types.Contact)
	for _, c := range rep.Contacts {
		byID[c.FiscalID] = c
	}
	assert.Equal(t, "VIA ROMA 12", byID[rossi].Address)
	assert.Equal(t, []string{"H501//1/1"}, byID[rossi].ParcelKeys, "the C/6 parcel never qualified")
	assert.Equal(t, "solare@pec.it", byID[solare].PEC)
	assert.Equal(t, types.RuleNumberMismatch, byID[solare].Classified.Rule)
	assert.Equal(t, types.RuleNoCivic, byID[verdi].Classified.Rule)
	assert.Empty(t, byID[rossi].PEC)

	assert.Equal(t, 3, rep.Recovery.Queued)
	assert.Equal(t, 2, rep.Recovery.Recovered)
	assert.Equal(t, 1, rep.Recovery.Failed)
	assert.Equal(t, 2, rep.Recovery.ByService["registry"])
	assert.Equal(t, 1, rep.Discrepancies.RegistryFailed)
	assert.Equal(t, 2, reg.calls["F205//2/3"], "one primary call and one recovery call")

	assert.Equal(t, 1, geo.calls["VIA ROMA 12"], "identical normalized strings are geocoded once")
	assert.Equal(t, 2, geo.calls["VIA PO 1"])
	assert.Equal(t, 1, geo.calls["LOC POGGIO SNC"])
	require.Len(t, res.Addresses, 3)

	out := progress.String()
	assert.Contains(t, out, "registry: H501 (3 parcels)")
	assert.Contains(t, out, "recovery: 3 queued, 2 recovered, 1 failed")
	assert.Contains(t, out, "geocoding: 1 addresses from recovered parcels")

	assert.Equal(t, 4.0, testutil.ToFloat64(m.StageCount.WithLabelValues(string(types.FunnelContact), funnel.StageAddressPairs)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Recovery.WithLabelValues("registry", "recovery_failed")))
}

func TestRunLegacyPolicyRoutesNoCivicToAgency(t *testing.T) {
	reg, geo := fixture()
	cfg := types.DefaultCampaignConfig()
	cfg.Policy, _ = types.PolicyFor(types.PolicyLegacy)
	e, err := New(cfg, Collaborators{Registry: reg, Geocoder: geo})
	require.NoError(t, err)

	res, err := e.Run(context.Background(), fixtureParcels(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stageCount(t, res.Report.Contact, funnel.StageAgency))
	assert.Equal(t, types.PolicyLegacy, res.Report.Run.PolicyVersion)
}

func TestRunGeocodeFailureAfterRecoveryIsFinal(t *testing.T) {
	reg, geo := fixture()
	geo.down = map[string]bool{"LOC POGGIO SNC": true}
	e := newEngine(t, Collaborators{Registry: reg, Geocoder: geo})

	res, err := e.Run(context.Background(), fixtureParcels(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, geo.calls["LOC POGGIO SNC"], "addresses found after recovery get no second chance")

	for _, c := range res.Report.Contacts {
		if c.FiscalID == verdi {
			assert.Equal(t, types.LookupFailed, c.Classified.Status)
			assert.Equal(t, types.ChannelAgency, c.Classified.Channel)
		}
	}
	assert.Equal(t, 1, stageCount(t, res.Report.Contact, funnel.StageAgency))
}

func TestRunPermanentRegistryErrorIsLogged(t *testing.T) {
	reg, geo := fixture()
	reg.broken = map[string]bool{"H501//1/2": true}
	e := newEngine(t, Collaborators{Registry: reg, Geocoder: geo})

	disc := ingest.NewDiscrepancyLog()
	res, err := e.Run(context.Background(), fixtureParcels(), disc)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.calls["H501//1/2"], "permanent failures are not queued")
	assert.Equal(t, 2, res.Report.Discrepancies.RegistryFailed)
	assert.Equal(t, 3, stageCount(t, res.Report.Land, funnel.StageAPIRetrieved))
	assert.Equal(t, 0, stageCount(t, res.Report.Land, funnel.StageEntity))
}

func TestRunEmptyParcelList(t *testing.T) {
	reg, geo := fixture()
	e := newEngine(t, Collaborators{Registry: reg, Geocoder: geo})

	res, err := e.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stageCount(t, res.Report.Land, funnel.StageInputParcels))
	assert.Nil(t, res.Report.KPI.LandAcquisitionEfficiency)
	assert.Empty(t, res.Report.Contacts)
}

func TestRunCancelled(t *testing.T) {
	reg, geo := fixture()
	e := newEngine(t, Collaborators{Registry: reg, Geocoder: geo})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reg.down = map[string]bool{}
	for _, p := range fixtureParcels() {
		reg.down[p.Key()] = true
	}
	_, err := e.Run(ctx, fixtureParcels(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunSavesToStore(t *testing.T) {
	s, err := store.New(context.Background(), types.StoreConfig{
		Driver: "sqlite3",
		DSN:    filepath.Join(t.TempDir(), "campaign.db"),
	}, 0)
	require.NoError(t, err)
	defer s.Close()

	reg, geo := fixture()
	e := newEngine(t, Collaborators{Registry: reg, Geocoder: geo}, WithStore(s))
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return start }

	res, err := e.Run(context.Background(), fixtureParcels(), nil)
	require.NoError(t, err)

	saved, err := s.LoadRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, res.Report.Land, saved.Land)
	assert.Equal(t, res.Report.Quality, saved.Quality)
	assert.Len(t, saved.Contacts, 4)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(types.DefaultCampaignConfig(), Collaborators{})
	assert.Error(t, err)

	cfg := types.DefaultCampaignConfig()
	cfg.Output.Format = "xml"
	reg, geo := fixture()
	_, err = New(cfg, Collaborators{Registry: reg, Geocoder: geo})
	assert.Error(t, err)
}

func TestLoadInputs(t *testing.T) {
	dir := t.TempDir()
	parcels := filepath.Join(dir, "parcels.csv")
	owners := filepath.Join(dir, "owners.csv")
	require.NoError(t, os.WriteFile(parcels, []byte(
		"municipality,sheet,parcel,area_ha\nH501,1,1,2\nH501,1,2,3\nH501,1,2,3\n"), 0o644))
	require.NoError(t, os.WriteFile(owners, []byte(
		"parcel_key,owner_name,fiscal_id,address,category\n"+
			"H501//1/1,Mario Rossi,"+rossi+",Via Roma 12,A/2\n"+
			"X999//9/9,Ghost,"+bianchi+",Via Nulla 1,A/2\n"+
			"H501//1/2,,,Via Po 1,D/1\n"), 0o644))

	in, err := LoadInputs(types.InputConfig{ParcelsPath: parcels, OwnersPath: owners})
	require.NoError(t, err)
	assert.Len(t, in.Parcels, 2)
	require.Len(t, in.Owners, 1)
	assert.Equal(t, rossi, in.Owners[0].FiscalID)

	s := in.Log.Summary()
	assert.True(t, s.Reconciles())
	assert.Equal(t, 1, s.Count(ingest.KindDuplicate))
	assert.Equal(t, 1, s.Count(ingest.KindUnknownParcel))
	assert.Equal(t, 1, s.Count(ingest.KindMalformed))

	_, err = LoadInputs(types.InputConfig{})
	assert.Error(t, err)
}

func TestConnectStaticRegistry(t *testing.T) {
	cfg := types.DefaultCampaignConfig()
	cfg.Store = types.StoreConfig{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "c.db")}
	cfg.Cache.Backend = "store"

	res, err := Connect(context.Background(), cfg, []types.OwnershipRow{}, nil)
	require.NoError(t, err)
	defer res.Close()

	assert.IsType(t, &lookup.StaticRegistry{}, res.Registry)
	assert.IsType(t, &lookup.CachedGeocoder{}, res.Geocoder)
	assert.NotNil(t, res.Store)
	assert.Nil(t, res.PEC)
}

func TestConnectRejectsBadSettings(t *testing.T) {
	cfg := types.DefaultCampaignConfig()
	cfg.Cache.Backend = "store"
	_, err := Connect(context.Background(), cfg, nil, nil)
	assert.Error(t, err)

	cfg = types.DefaultCampaignConfig()
	cfg.Lookup.Registry.Kind = "ftp"
	_, err = Connect(context.Background(), cfg, nil, nil)
	assert.Error(t, err)
}
