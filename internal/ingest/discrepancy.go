// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest reads the parcel list and ownership rows. Malformed rows
// are excluded and tallied in a DiscrepancyLog rather than silently dropped.
package ingest

import (
	"fmt"
	"sync"
)

// Discrepancy kinds.
const (
	KindMalformed      = "malformed_row"
	KindDuplicate      = "duplicate_parcel"
	KindRegistryFailed = "registry_unavailable"
	KindUnknownParcel  = "unknown_parcel"
)

// MalformedRowError describes one rejected input row.
type MalformedRowError struct {
	Source string
	Line   int
	Field  string
	Reason string
}

func (e *MalformedRowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s:%d: %s: %s", e.Source, e.Line, e.Field, e.Reason)
}

// Discrepancy is one entry of the log.
type Discrepancy struct {
	Kind   string `json:"kind" yaml:"kind"`
	Source string `json:"source" yaml:"source"`
	Line   int    `json:"line,omitempty" yaml:"line,omitempty"`
	Key    string `json:"key,omitempty" yaml:"key,omitempty"`
	Reason string `json:"reason" yaml:"reason"`
}

// DiscrepancyLog tallies what was read, accepted and excluded. It is safe
// for concurrent use so lookup batches can note failures directly.
type DiscrepancyLog struct {
	mu       sync.Mutex
	read     int
	accepted int
	entries  []Discrepancy
}

// NewDiscrepancyLog returns an empty log.
func NewDiscrepancyLog() *DiscrepancyLog {
	return &DiscrepancyLog{}
}

func (l *DiscrepancyLog) accept() {
	l.mu.Lock()
	l.read++
	l.accepted++
	l.mu.Unlock()
}

func (l *DiscrepancyLog) exclude(kind string, e *MalformedRowError, key string) {
	l.mu.Lock()
	l.read++
	l.entries = append(l.entries, Discrepancy{Kind: kind, Source: e.Source, Line: e.Line, Key: key, Reason: e.Error()})
	l.mu.Unlock()
}

// Note records a discrepancy that is not an input row, such as a parcel
// the registry never answered for. It does not change the input tally.
func (l *DiscrepancyLog) Note(kind, source, key, reason string) {
	l.mu.Lock()
	l.entries = append(l.entries, Discrepancy{Kind: kind, Source: source, Key: key, Reason: reason})
	l.mu.Unlock()
}

// Merge appends other's tallies and entries to l.
func (l *DiscrepancyLog) Merge(other *DiscrepancyLog) {
	if other == nil {
		return
	}
	other.mu.Lock()
	read, accepted := other.read, other.accepted
	entries := append([]Discrepancy(nil), other.entries...)
	other.mu.Unlock()

	l.mu.Lock()
	l.read += read
	l.accepted += accepted
	l.entries = append(l.entries, entries...)
	l.mu.Unlock()
}

// Summary is a point-in-time copy of the log.
type Summary struct {
	Read     int           `json:"read" yaml:"read"`
	Accepted int           `json:"accepted" yaml:"accepted"`
	Excluded int           `json:"excluded" yaml:"excluded"`
	Entries  []Discrepancy `json:"entries" yaml:"entries"`
}

// Reconciles reports whether read = accepted + excluded.
func (s Summary) Reconciles() bool {
	return s.Read == s.Accepted+s.Excluded
}

// Count returns the number of entries of the given kind.
func (s Summary) Count(kind string) int {
	n := 0
	for _, e := range s.Entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Summary returns a snapshot of the log.
func (l *DiscrepancyLog) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Summary{Read: l.read, Accepted: l.accepted, Entries: append([]Discrepancy(nil), l.entries...)}
	for _, e := range l.entries {
		if e.Kind == KindMalformed || e.Kind == KindDuplicate {
			s.Excluded++
		}
	}
	return s
}
