// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists the geocode cache and campaign run history in a
// SQL database. SQLite and PostgreSQL are supported for writing; Oracle is
// accepted only by Open for read-only registry mirrors.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Store manages the campaign database.
type Store struct {
	db      *sql.DB
	dialect Dialect
	ttl     time.Duration
	now     func() time.Time
}

// New opens the database described by cfg and creates the schema if it
// does not exist. ttl bounds geocode cache reuse; zero keeps entries
// forever.
func New(ctx context.Context, cfg types.StoreConfig, ttl time.Duration) (*Store, error) {
	db, d, err := Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if d == Oracle {
		db.Close()
		return nil, fmt.Errorf("oracle is supported for registry mirrors only, not as the campaign store")
	}

	s := &Store{db: db, dialect: d, ttl: ttl, now: time.Now}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS geocode_cache (
			address TEXT PRIMARY KEY,
			result TEXT NOT NULL,
			cached_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			policy_version TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			kpi TEXT NOT NULL,
			discrepancies TEXT NOT NULL,
			recovery TEXT NOT NULL,
			quality_total INTEGER NOT NULL,
			rounding_residual DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS funnel_stages (
			run_id TEXT NOT NULL REFERENCES runs(id),
			funnel TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			count INTEGER NOT NULL,
			hectares DOUBLE PRECISION NOT NULL,
			conversion DOUBLE PRECISION,
			basis TEXT,
			kind TEXT NOT NULL,
			business_rule TEXT,
			automation TEXT,
			PRIMARY KEY (run_id, funnel, position)
		)`,
		`CREATE TABLE IF NOT EXISTS quality_buckets (
			run_id TEXT NOT NULL REFERENCES runs(id),
			position INTEGER NOT NULL,
			tier TEXT NOT NULL,
			count INTEGER NOT NULL,
			percentage DOUBLE PRECISION NOT NULL,
			automation TEXT NOT NULL,
			routing TEXT NOT NULL,
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS contacts (
			run_id TEXT NOT NULL REFERENCES runs(id),
			position INTEGER NOT NULL,
			fiscal_id TEXT NOT NULL,
			address TEXT NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_fiscal_id ON contacts(fiscal_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Get returns the cached geocode of a normalized address. Expired entries
// are reported as misses.
func (s *Store) Get(ctx context.Context, address string) (types.GeocodeResult, bool, error) {
	var payload, cachedAt string
	err := s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT result, cached_at FROM geocode_cache WHERE address = ?`), address,
	).Scan(&payload, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.GeocodeResult{}, false, nil
	}
	if err != nil {
		return types.GeocodeResult{}, false, fmt.Errorf("reading geocode cache: %w", err)
	}

	if s.ttl > 0 {
		at, err := time.Parse(time.RFC3339Nano, cachedAt)
		if err != nil || s.now().Sub(at) > s.ttl {
			return types.GeocodeResult{}, false, nil
		}
	}

	var res types.GeocodeResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return types.GeocodeResult{}, false, fmt.Errorf("decoding cached geocode for %q: %w", address, err)
	}
	return res, true, nil
}

// Put stores the geocode of a normalized address, replacing any earlier
// entry.
func (s *Store) Put(ctx context.Context, address string, res types.GeocodeResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding geocode: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.dialect.Rebind(
		`INSERT INTO geocode_cache (address, result, cached_at) VALUES (?, ?, ?)
		 ON CONFLICT(address) DO UPDATE SET result=excluded.result, cached_at=excluded.cached_at`),
		address, string(payload), s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("writing geocode cache: %w", err)
	}
	return nil
}
