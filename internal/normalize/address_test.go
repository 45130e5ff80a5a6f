// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddress(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"plain", "Via Roma 12", "VIA ROMA 12"},
		{"comma before number", "Via Roma, 12", "VIA ROMA 12"},
		{"collapse spaces", "  via   roma    12 ", "VIA ROMA 12"},
		{"strip floor", "Via Roma 12 Piano 3", "VIA ROMA 12"},
		{"strip interno and rest", "Via Roma 12 int. 4 scala B", "VIA ROMA 12"},
		{"strip lotto", "Strada Provinciale 7 Lotto 2", "STRADA PROVINCIALE 7"},
		{"strip english apt", "Main Street 5 Apt 3B", "MAIN STREET 5"},
		{"qualifier in first position kept", "Palazzina Verdi", "PALAZZINA VERDI"},
		{"snc dotted", "Via dei Campi S.N.C.", "VIA DEI CAMPI SNC"},
		{"snc slash", "Loc. Poggio s/n", "LOC POGGIO SNC"},
		{"snc spelled out", "Contrada Piana senza numero civico", "CONTRADA PIANA SNC"},
		{"snc short spelled", "Contrada Piana senza numero", "CONTRADA PIANA SNC"},
		{"range spaced", "Via Milano 12 - 14", "VIA MILANO 12-14"},
		{"range tight", "Via Milano 12-14", "VIA MILANO 12-14"},
		{"chained range", "Via Milano 12 - 14 - 16", "VIA MILANO 12-14-16"},
		{"chained single digits", "Via Po 1 - 3 - 5", "VIA PO 1-3-5"},
		{"civic slash kept", "Via Napoli 8/B", "VIA NAPOLI 8/B"},
		{"garbage degrades", "@@##!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Address(tt.raw))
		})
	}
}

func TestAddressIdempotent(t *testing.T) {
	inputs := []string{
		"Via Roma 12",
		"via roma, 12 piano 2 interno 5",
		"Loc. Poggio s/n",
		"S.N.C.",
		"Via Milano 12 - 14 scala A",
		"Via X.Piano 2",
		"Piazza S. Nicola 3",
		"Contrada Piana senza numero civico, lotto 4",
		"Main St., Apt. 9",
		"12 - 14",
		"Via Milano 12 - 14 - 16",
		"",
	}
	for _, in := range inputs {
		once := Address(in)
		assert.Equal(t, once, Address(once), "normalize(normalize(%q))", in)
	}
}

func TestCivicNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"VIA ROMA 12", "12"},
		{"VIA ROMA 12A", "12A"},
		{"VIA NAPOLI 8/B", "8/B"},
		{"VIA MILANO 12-14", "12-14"},
		{"VIA ROMA", ""},
		{"VIA 4 NOVEMBRE", ""},
		{"VIA DEI CAMPI SNC", ""},
		{"12", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CivicNumber(tt.in))
		})
	}
}

func TestHasNoCivicMarker(t *testing.T) {
	assert.True(t, HasNoCivicMarker("VIA DEI CAMPI SNC"))
	assert.True(t, HasNoCivicMarker(Address("loc. poggio s/n")))
	assert.False(t, HasNoCivicMarker("VIA ROMA 12"))
	assert.False(t, HasNoCivicMarker("VIA SNCX 12"))
}

func TestSameNumber(t *testing.T) {
	tests := []struct {
		name      string
		submitted string
		resolved  string
		want      bool
	}{
		{"equal", "12", "12", true},
		{"leading zero", "012", "12", true},
		{"case", "12a", "12A", true},
		{"differs", "12", "14", false},
		{"in range", "12-14", "13", true},
		{"range endpoint", "12-14", "14", true},
		{"outside range", "12-14", "15", false},
		{"empty submitted", "", "12", false},
		{"empty resolved", "12", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SameNumber(tt.submitted, tt.resolved))
		})
	}
}
