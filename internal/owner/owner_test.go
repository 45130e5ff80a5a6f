// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package owner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pdiddy/parcel-funnel/pkg/types"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		wantType   types.OwnerType
		wantCaveat bool
	}{
		{"codice fiscale", "RSSMRA80A01H501U", types.OwnerIndividual, false},
		{"lower case with spaces", " rssmra80a01h501u ", types.OwnerIndividual, false},
		{"partita iva", "01234567890", types.OwnerLegalEntity, false},
		{"short individual", "RSSMRA80", types.OwnerIndividual, true},
		{"entity with letters", "0123456789X", types.OwnerLegalEntity, true},
		{"entity too long", "012345678901", types.OwnerLegalEntity, true},
		{"leading symbol", "*RSSMRA80A01H501", types.OwnerIndividual, true},
		{"empty", "", types.OwnerIndividual, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.id)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantCaveat, got.Caveat != "", "caveat %q", got.Caveat)
		})
	}
}

func TestResolverLogsCaveatOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewResolver(zap.New(core))

	r.Resolve("RSSMRA80")
	r.Resolve("rssmra80")
	r.Resolve("01234567890")
	r.Resolve("0123")

	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, 2, r.Caveats())
	assert.Equal(t, "RSSMRA80", logs.All()[0].ContextMap()["fiscal_id"])
}

func TestResolverNilLogger(t *testing.T) {
	r := NewResolver(nil)
	assert.Equal(t, types.OwnerIndividual, r.Resolve("?").Type)
}
