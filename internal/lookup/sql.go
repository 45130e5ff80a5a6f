// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lookup

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/parcel-funnel/internal/store"
	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// ownershipQuery reads a registry mirror. Mirrors are expected to expose an
// "ownership" table or view with these columns; section is stored as ''
// when the parcel has none.
const ownershipQuery = `SELECT owner_name, fiscal_id, address, category
	FROM ownership
	WHERE municipality = ? AND section = ? AND sheet = ? AND parcel = ?
	ORDER BY fiscal_id, address`

// SQLRegistry answers ownership lookups from a relational mirror of the
// cadastral registry (SQLite, PostgreSQL or Oracle).
type SQLRegistry struct {
	db      *sql.DB
	dialect store.Dialect
	query   string
	timeout time.Duration
	log     *zap.Logger
}

// NewSQLRegistry opens the mirror described by ep.
func NewSQLRegistry(ctx context.Context, ep types.EndpointConfig, cfg types.HTTPConfig, log *zap.Logger) (*SQLRegistry, error) {
	db, d, err := store.Open(ctx, ep.Driver, ep.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening registry mirror: %w", err)
	}
	return newSQLRegistry(db, d, cfg.Timeout, log), nil
}

func newSQLRegistry(db *sql.DB, d store.Dialect, timeout time.Duration, log *zap.Logger) *SQLRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLRegistry{db: db, dialect: d, query: d.Rebind(ownershipQuery), timeout: timeout, log: log}
}

// Close releases the mirror connection.
func (r *SQLRegistry) Close() error {
	return r.db.Close()
}

// Owners returns the ownership rows of parcel.
func (r *SQLRegistry) Owners(ctx context.Context, parcel types.ParcelRecord) ([]types.OwnershipRow, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	rows, err := r.db.QueryContext(ctx, r.query,
		strings.ToUpper(strings.TrimSpace(parcel.Municipality)),
		strings.ToUpper(strings.TrimSpace(parcel.Section)),
		strings.TrimSpace(parcel.Sheet),
		strings.TrimSpace(parcel.Number),
	)
	if err != nil {
		return nil, r.wrap(parcel, err)
	}
	defer rows.Close()

	var out []types.OwnershipRow
	for rows.Next() {
		var name, fiscal, address, category sql.NullString
		if err := rows.Scan(&name, &fiscal, &address, &category); err != nil {
			return nil, fmt.Errorf("registry mirror: scanning %s: %w", parcel.Key(), err)
		}
		out = append(out, types.OwnershipRow{
			OwnerName:  strings.TrimSpace(name.String),
			FiscalID:   types.CanonicalFiscalID(fiscal.String),
			RawAddress: strings.TrimSpace(address.String),
			Category:   strings.ToUpper(strings.TrimSpace(category.String)),
			ParcelKey:  parcel.Key(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap(parcel, err)
	}
	r.log.Debug("registry mirror lookup", zap.String("parcel", parcel.Key()), zap.Int("rows", len(out)))
	return out, nil
}

func (r *SQLRegistry) wrap(parcel types.ParcelRecord, err error) error {
	if IsTransient(err) {
		return transient("registry mirror", err)
	}
	return fmt.Errorf("registry mirror: querying %s: %w", parcel.Key(), err)
}
