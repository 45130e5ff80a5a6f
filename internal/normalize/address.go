// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize cleans raw owner addresses into the canonical form used
// for deduplication keys and geocoding submission. Every function here is a
// pure string transform: nothing is looked up, nothing fails.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// NoCivicToken is the canonical "no civic number" marker.
const NoCivicToken = "SNC"

// noCivicMarkers matches the spellings of "senza numero civico" after
// punctuation has been turned into whitespace. Longest forms come first so
// "SENZA NUMERO CIVICO" is not consumed as "SENZA NUMERO" + "CIVICO".
var noCivicMarkers = regexp.MustCompile(
	`\b(?:SENZA NUMERO CIVICO|SENZA NUMERO|SENZA CIVICO|S N C|S/NC|S/N|SNC|S N|SN)\b`)

// qualifiers is the fixed vocabulary of apartment/floor/building/lot
// keywords. A qualifier and everything after it is dropped.
var qualifiers = map[string]bool{
	"PIANO": true, "PT": true,
	"INTERNO": true, "INT": true,
	"SCALA": true, "SC": true,
	"EDIFICIO": true, "ED": true,
	"PALAZZINA": true, "FABBRICATO": true,
	"LOTTO": true,
	"APPARTAMENTO": true, "APP": true, "APT": true,
	"FLOOR": true, "BUILDING": true, "BLDG": true, "LOT": true,
}

var reRange = regexp.MustCompile(`(\d)\s*-\s*(\d)`)

// reCivic matches a civic number token: 12, 12A, 12/B, 12-14.
var reCivic = regexp.MustCompile(`^\d+[A-Z]?(?:/[A-Z0-9]+)?$|^\d+-\d+$`)

// Address returns the canonical form of raw. Empty or garbage input yields a
// best-effort result, never an error. Address(Address(x)) == Address(x).
func Address(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	// Punctuation other than range hyphens and civic slashes becomes
	// whitespace.
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '/':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	s = collapse(b.String())

	s = noCivicMarkers.ReplaceAllString(s, NoCivicToken)
	s = stripQualifiers(s)
	s = joinRanges(s)

	return collapse(s)
}

// joinRanges removes the spaces around hyphens between digits. Adjacent
// matches share a digit, so it repeats until nothing changes.
func joinRanges(s string) string {
	for {
		next := reRange.ReplaceAllString(s, "$1-$2")
		if next == s {
			return s
		}
		s = next
	}
}

// stripQualifiers drops the first qualifier keyword and everything after
// it. A qualifier in first position is kept so the address is never erased.
func stripQualifiers(s string) string {
	tokens := strings.Fields(s)
	for i := 1; i < len(tokens); i++ {
		if qualifiers[tokens[i]] {
			return strings.Join(tokens[:i], " ")
		}
	}
	return s
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CivicNumber returns the trailing civic number of a normalized address, or
// "" when there is none. A lone token is never a civic number, and the
// marker token is not a number.
func CivicNumber(normalized string) string {
	tokens := strings.Fields(normalized)
	if len(tokens) < 2 {
		return ""
	}
	last := tokens[len(tokens)-1]
	if reCivic.MatchString(last) {
		return last
	}
	return ""
}

// HasNoCivicMarker reports whether the normalized address carries the
// canonical "no civic number" token.
func HasNoCivicMarker(normalized string) bool {
	for _, tok := range strings.Fields(normalized) {
		if tok == NoCivicToken {
			return true
		}
	}
	return false
}

// SameNumber reports whether a resolved civic number agrees with the
// submitted one. Leading zeros and case are ignored; a submitted range
// "12-14" accepts any resolved number within it.
func SameNumber(submitted, resolved string) bool {
	sub := canonicalNumber(submitted)
	res := canonicalNumber(resolved)
	if sub == "" || res == "" {
		return false
	}
	if sub == res {
		return true
	}
	lo, hi, ok := parseRange(sub)
	if !ok {
		return false
	}
	n, err := strconv.Atoi(res)
	if err != nil {
		return false
	}
	return n >= lo && n <= hi
}

func canonicalNumber(s string) string {
	s = strings.ToUpper(strings.Join(strings.Fields(s), ""))
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" && s != "" {
		return "0"
	}
	return trimmed
}

func parseRange(s string) (int, int, bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lo, err1 := strconv.Atoi(parts[0])
	hi, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi, true
}
