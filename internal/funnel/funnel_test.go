// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package funnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/parcel-funnel/pkg/types"
)

func defaultFunnelConfig() types.FunnelConfig {
	return types.DefaultCampaignConfig().Funnel
}

func parcel(num string, ha float64) types.ParcelRecord {
	return types.ParcelRecord{CadastralType: "T", Municipality: "H501", Sheet: "10", Number: num, AreaHa: ha}
}

func row(idx int, p types.ParcelRecord, fiscal, addr, cat string) types.OwnershipRow {
	return types.OwnershipRow{Index: idx, FiscalID: fiscal, RawAddress: addr, Category: cat, ParcelKey: p.Key()}
}

// fixture: five parcels.
//
//	p1 private, residential     -> qualified via Cat.A
//	p2 private, non residential -> filtered out
//	p3 entity owner             -> qualified, bypasses filter
//	p4 no rows                  -> not retrieved
//	p5 private, office A/10     -> filtered out
func fixture() ([]types.ParcelRecord, []types.OwnershipRow) {
	p1, p2, p3, p4, p5 := parcel("1", 2), parcel("2", 3), parcel("3", 5), parcel("4", 7), parcel("5", 1)
	rows := []types.OwnershipRow{
		row(0, p1, "RSSMRA80A01H501U", "VIA ROMA 12", "A/2"),
		row(1, p1, "VRDLGU70B02H501X", "VIA ROMA 12", "C/6"),
		row(2, p2, "BNCGNN60C03H501Y", "VIA NAPOLI 3", "D/1"),
		row(3, p3, "01234567890", "VIA MILANO SNC", "D/7"),
		row(4, p3, "RSSMRA80A01H501U", "VIA ROMA 12", "A/3"),
		row(5, p5, "BNCGNN60C03H501Y", "VIA NAPOLI 3", "A/10"),
	}
	return []types.ParcelRecord{p1, p2, p3, p4, p5}, rows
}

func TestQualify(t *testing.T) {
	parcels, rows := fixture()
	q := Qualify(parcels, rows, defaultFunnelConfig())

	assert.Equal(t, []string{"H501//10/1", "H501//10/2", "H501//10/3", "H501//10/5"}, q.Retrieved)
	assert.Equal(t, []string{"H501//10/1", "H501//10/2", "H501//10/5"}, q.Private)
	assert.Equal(t, []string{"H501//10/3"}, q.Entity)
	assert.Equal(t, []string{"H501//10/1"}, q.CatA)
	assert.Equal(t, []string{"H501//10/1", "H501//10/3"}, q.Qualified)
	assert.Len(t, q.Rows, 4)
	assert.True(t, q.IsQualified("H501//10/3"))
	assert.False(t, q.IsQualified("H501//10/2"))
}

func TestLandFunnel(t *testing.T) {
	parcels, rows := fixture()
	table, err := Land(Qualify(parcels, rows, defaultFunnelConfig()))
	require.NoError(t, err)
	require.Len(t, table.Stages, 6)

	want := []struct {
		name  string
		count int
		ha    float64
	}{
		{StageInputParcels, 5, 18},
		{StageAPIRetrieved, 4, 11},
		{StagePrivate, 3, 6},
		{StageEntity, 1, 5},
		{StageCatAFilter, 1, 2},
		{StageQualified, 2, 7},
	}
	for i, w := range want {
		st := table.Stages[i]
		assert.Equal(t, w.name, st.Name)
		assert.Equal(t, w.count, st.Count, w.name)
		assert.InDelta(t, w.ha, st.Hectares, 1e-9, w.name)
		assert.NotEmpty(t, st.BusinessRule, w.name)
		assert.NotEmpty(t, st.Automation, w.name)
	}

	assert.Nil(t, table.Stages[0].Conversion)
	require.NotNil(t, table.Stages[1].Conversion)
	assert.InDelta(t, 0.8, *table.Stages[1].Conversion, 1e-9)
	assert.InDelta(t, 1.0/3.0, *table.Stages[4].Conversion, 1e-9)
	assert.InDelta(t, 0.5, *table.Stages[5].Conversion, 1e-9)
}

func TestLandFunnelHectaresNeverGrow(t *testing.T) {
	parcels, rows := fixture()
	table, err := Land(Qualify(parcels, rows, defaultFunnelConfig()))
	require.NoError(t, err)
	for _, st := range table.Stages[1:] {
		base, ok := table.Stage(st.Basis)
		require.True(t, ok)
		assert.LessOrEqual(t, st.Hectares, base.Hectares, st.Name)
		assert.LessOrEqual(t, st.Count, base.Count, st.Name)
	}
}

func TestLandFunnelEmptyBasis(t *testing.T) {
	table, err := Land(Qualify([]types.ParcelRecord{parcel("1", 1)}, nil, defaultFunnelConfig()))
	require.NoError(t, err)

	retrieved, _ := table.Stage(StageAPIRetrieved)
	require.NotNil(t, retrieved.Conversion)
	assert.Equal(t, 0.0, *retrieved.Conversion)

	for _, name := range []string{StagePrivate, StageEntity, StageQualified, StageCatAFilter} {
		st, _ := table.Stage(name)
		assert.Equal(t, 0, st.Count, name)
		assert.Nil(t, st.Conversion, name)
	}
}

func TestLandFunnelNoInput(t *testing.T) {
	table, err := Land(Qualify(nil, nil, defaultFunnelConfig()))
	require.NoError(t, err)
	for _, st := range table.Stages {
		assert.Nil(t, st.Conversion, st.Name)
	}
}

func TestLandFunnelReconciliationFailure(t *testing.T) {
	p := parcel("1", 1)
	q := Qualification{
		Parcels:   []types.ParcelRecord{p},
		Retrieved: []string{p.Key()},
		Private:   []string{p.Key()},
		Entity:    []string{p.Key()},
	}
	_, err := Land(q)
	var rec *ReconciliationError
	require.ErrorAs(t, err, &rec)
	assert.Equal(t, types.FunnelLand, rec.Funnel)
	assert.Equal(t, "private + entity = retrieved", rec.Check)
}

func contactFor(fiscal, addr string, ch types.Channel, tier types.Tier, keys ...string) types.Contact {
	return types.Contact{
		FiscalID: fiscal,
		Address:  addr,
		Classified: types.ClassifiedAddress{
			AddressCandidate: types.AddressCandidate{Normalized: addr},
			Tier:             tier,
			Channel:          ch,
		},
		ParcelKeys: keys,
	}
}

func TestContactFunnel(t *testing.T) {
	parcels, rows := fixture()
	q := Qualify(parcels, rows, defaultFunnelConfig())
	p1, p3 := parcels[0].Key(), parcels[2].Key()

	contacts := []types.Contact{
		contactFor("RSSMRA80A01H501U", "VIA ROMA 12", types.ChannelDirectMail, types.TierHigh, p1, p3),
		contactFor("VRDLGU70B02H501X", "VIA ROMA 12", types.ChannelDirectMail, types.TierHigh, p1),
		contactFor("01234567890", "VIA MILANO SNC", types.ChannelAgency, types.TierLow, p3),
	}

	table, err := Contact(q, contacts, true)
	require.NoError(t, err)
	require.Len(t, table.Stages, 7)

	rowsStage, _ := table.Stage(StageOwnerRows)
	assert.True(t, rowsStage.IsMultiplier())
	require.NotNil(t, rowsStage.Conversion)
	assert.InDelta(t, 2.0, *rowsStage.Conversion, 1e-9)

	pairs, _ := table.Stage(StageAddressPairs)
	assert.Equal(t, 3, pairs.Count)
	assert.InDelta(t, 0.75, *pairs.Conversion, 1e-9)

	direct, _ := table.Stage(StageDirectMail)
	agency, _ := table.Stage(StageAgency)
	assert.Equal(t, 2, direct.Count)
	assert.Equal(t, 1, agency.Count)
	assert.InDelta(t, 7.0, direct.Hectares, 1e-9)
	assert.InDelta(t, 5.0, agency.Hectares, 1e-9)

	final, _ := table.Stage(StageFinalMailing)
	assert.Equal(t, 2, final.Count)
	assert.Equal(t, StageDirectMail, final.Basis)
}

func TestContactFunnelWithoutConsolidation(t *testing.T) {
	parcels, rows := fixture()
	q := Qualify(parcels, rows, defaultFunnelConfig())
	table, err := Contact(q, nil, false)
	require.NoError(t, err)
	assert.Len(t, table.Stages, 6)

	pairs, _ := table.Stage(StageAddressPairs)
	assert.Equal(t, 0, pairs.Count)
	direct, _ := table.Stage(StageDirectMail)
	assert.Nil(t, direct.Conversion)
}

func TestContactFunnelRejectsUnroutedContact(t *testing.T) {
	parcels, rows := fixture()
	q := Qualify(parcels, rows, defaultFunnelConfig())
	_, err := Contact(q, []types.Contact{contactFor("X", "VIA ROMA 1", "", types.TierHigh, parcels[0].Key())}, false)
	var rec *ReconciliationError
	require.ErrorAs(t, err, &rec)
	assert.Equal(t, types.FunnelContact, rec.Funnel)
}

func TestContactFunnelRejectsUnqualifiedParcel(t *testing.T) {
	parcels, rows := fixture()
	q := Qualify(parcels, rows, defaultFunnelConfig())
	_, err := Contact(q, []types.Contact{
		contactFor("BNCGNN60C03H501Y", "VIA NAPOLI 3", types.ChannelDirectMail, types.TierHigh, parcels[1].Key()),
	}, false)
	var rec *ReconciliationError
	require.ErrorAs(t, err, &rec)
}

func TestContactFunnelRejectsMoreContactsThanRows(t *testing.T) {
	p := parcel("1", 1)
	q := Qualify([]types.ParcelRecord{p}, []types.OwnershipRow{row(0, p, "01234567890", "VIA ROMA 1", "D/1")}, defaultFunnelConfig())
	contacts := []types.Contact{
		contactFor("01234567890", "VIA ROMA 1", types.ChannelDirectMail, types.TierHigh, p.Key()),
		contactFor("01234567890", "VIA ROMA 2", types.ChannelDirectMail, types.TierHigh, p.Key()),
	}
	_, err := Contact(q, contacts, false)
	var rec *ReconciliationError
	require.ErrorAs(t, err, &rec)
	assert.Equal(t, "contacts <= rows", rec.Check)
}
