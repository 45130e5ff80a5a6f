// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package owner derives whether a fiscal identifier belongs to a natural
// person or a legal entity.
package owner

import (
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/pdiddy/parcel-funnel/pkg/types"
)

const (
	individualCodeLen = 16
	entityCodeLen     = 11
)

// Resolve returns the owner type of a fiscal identifier. A leading letter
// means an individual (codice fiscale), a leading digit a legal entity
// (partita IVA). Anything else resolves to individual with a caveat. Shape
// problems are recorded as caveats but never change the type.
func Resolve(fiscalID string) types.OwnerIdentity {
	id := types.CanonicalFiscalID(fiscalID)
	if id == "" {
		return types.OwnerIdentity{Type: types.OwnerIndividual, Caveat: "empty fiscal identifier"}
	}

	first := []rune(id)[0]
	switch {
	case unicode.IsLetter(first):
		out := types.OwnerIdentity{Type: types.OwnerIndividual}
		if len(id) != individualCodeLen || !alnum(id) {
			out.Caveat = "individual code is not 16 alphanumeric characters"
		}
		return out
	case unicode.IsDigit(first):
		out := types.OwnerIdentity{Type: types.OwnerLegalEntity}
		if len(id) != entityCodeLen || !digits(id) {
			out.Caveat = "entity code is not 11 digits"
		}
		return out
	default:
		return types.OwnerIdentity{Type: types.OwnerIndividual, Caveat: "fiscal identifier starts with neither a letter nor a digit"}
	}
}

func alnum(s string) bool {
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Resolver wraps Resolve and logs each caveat once per identifier.
type Resolver struct {
	log *zap.Logger

	mu     sync.Mutex
	logged map[string]bool
}

// NewResolver returns a Resolver that reports caveats to log. A nil logger
// discards them.
func NewResolver(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log, logged: make(map[string]bool)}
}

// Resolve returns the identity of fiscalID and logs its caveat, if any.
func (r *Resolver) Resolve(fiscalID string) types.OwnerIdentity {
	out := Resolve(fiscalID)
	if out.Caveat == "" {
		return out
	}

	id := types.CanonicalFiscalID(fiscalID)
	r.mu.Lock()
	seen := r.logged[id]
	r.logged[id] = true
	r.mu.Unlock()

	if !seen {
		r.log.Warn("owner type caveat",
			zap.String("fiscal_id", id),
			zap.String("type", string(out.Type)),
			zap.String("caveat", out.Caveat))
	}
	return out
}

// Caveats returns how many distinct identifiers carried a caveat.
func (r *Resolver) Caveats() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logged)
}
