// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

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

// SaveRun persists a campaign report in one transaction. Saving the same
// run ID twice is an error.
func (s *Store) SaveRun(ctx context.Context, rep types.CampaignReport) error {
	if rep.Run.ID == "" {
		return fmt.Errorf("saving run: empty run id")
	}
	kpi, err := json.Marshal(rep.KPI)
	if err != nil {
		return fmt.Errorf("encoding kpi: %w", err)
	}
	disc, err := json.Marshal(rep.Discrepancies)
	if err != nil {
		return fmt.Errorf("encoding discrepancies: %w", err)
	}
	rec, err := json.Marshal(rep.Recovery)
	if err != nil {
		return fmt.Errorf("encoding recovery: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.dialect.Rebind(
		`INSERT INTO runs (id, name, policy_version, started_at, finished_at, kpi, discrepancies, recovery, quality_total, rounding_residual)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rep.Run.ID, rep.Run.Name, string(rep.Run.PolicyVersion),
		rep.Run.StartedAt.UTC().Format(time.RFC3339Nano), rep.Run.FinishedAt.UTC().Format(time.RFC3339Nano),
		string(kpi), string(disc), string(rec), rep.Quality.Total, rep.Quality.RoundingResidual,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", rep.Run.ID, err)
	}

	stageStmt, err := tx.PrepareContext(ctx, s.dialect.Rebind(
		`INSERT INTO funnel_stages (run_id, funnel, position, name, count, hectares, conversion, basis, kind, business_rule, automation)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("preparing stage insert: %w", err)
	}
	defer stageStmt.Close()

	for _, table := range []types.FunnelTable{rep.Land, rep.Contact} {
		for i, st := range table.Stages {
			var conv sql.NullFloat64
			if st.Conversion != nil {
				conv = sql.NullFloat64{Float64: *st.Conversion, Valid: true}
			}
			if _, err := stageStmt.ExecContext(ctx, rep.Run.ID, string(table.Funnel), i, st.Name, st.Count,
				st.Hectares, conv, st.Basis, string(st.Kind), st.BusinessRule, st.Automation); err != nil {
				return fmt.Errorf("inserting stage %q: %w", st.Name, err)
			}
		}
	}

	for i, b := range rep.Quality.Buckets {
		_, err := tx.ExecContext(ctx, s.dialect.Rebind(
			`INSERT INTO quality_buckets (run_id, position, tier, count, percentage, automation, routing)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`),
			rep.Run.ID, i, string(b.Tier), b.Count, b.Percentage, b.Automation, string(b.Routing))
		if err != nil {
			return fmt.Errorf("inserting quality bucket %s: %w", b.Tier, err)
		}
	}

	contactStmt, err := tx.PrepareContext(ctx, s.dialect.Rebind(
		`INSERT INTO contacts (run_id, position, fiscal_id, address, payload) VALUES (?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("preparing contact insert: %w", err)
	}
	defer contactStmt.Close()

	for i, c := range rep.Contacts {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encoding contact %s: %w", c.Key(), err)
		}
		if _, err := contactStmt.ExecContext(ctx, rep.Run.ID, i, c.FiscalID, c.Address, string(payload)); err != nil {
			return fmt.Errorf("inserting contact %s: %w", c.Key(), err)
		}
	}

	return tx.Commit()
}

// LoadRun reads a saved campaign report. It returns ErrNotFound when the
// run does not exist.
func (s *Store) LoadRun(ctx context.Context, id string) (types.CampaignReport, error) {
	var (
		rep                       types.CampaignReport
		policy, started, finished string
		kpi, disc, rec            string
	)
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT id, name, policy_version, started_at, finished_at, kpi, discrepancies, recovery, quality_total, rounding_residual
		 FROM runs WHERE id = ?`), id,
	).Scan(&rep.Run.ID, &rep.Run.Name, &policy, &started, &finished, &kpi, &disc, &rec,
		&rep.Quality.Total, &rep.Quality.RoundingResidual)
	if errors.Is(err, sql.ErrNoRows) {
		return rep, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return rep, fmt.Errorf("reading run %s: %w", id, err)
	}

	rep.Run.PolicyVersion = types.PolicyVersion(policy)
	rep.Run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	rep.Run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	if err := json.Unmarshal([]byte(kpi), &rep.KPI); err != nil {
		return rep, fmt.Errorf("decoding kpi: %w", err)
	}
	if err := json.Unmarshal([]byte(disc), &rep.Discrepancies); err != nil {
		return rep, fmt.Errorf("decoding discrepancies: %w", err)
	}
	if err := json.Unmarshal([]byte(rec), &rep.Recovery); err != nil {
		return rep, fmt.Errorf("decoding recovery: %w", err)
	}

	if rep.Land, err = s.loadFunnel(ctx, id, types.FunnelLand); err != nil {
		return rep, err
	}
	if rep.Contact, err = s.loadFunnel(ctx, id, types.FunnelContact); err != nil {
		return rep, err
	}
	if rep.Quality.Buckets, err = s.loadBuckets(ctx, id); err != nil {
		return rep, err
	}
	if rep.Contacts, err = s.loadContacts(ctx, id); err != nil {
		return rep, err
	}
	return rep, nil
}

func (s *Store) loadFunnel(ctx context.Context, id string, kind types.FunnelKind) (types.FunnelTable, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		`SELECT name, count, hectares, conversion, basis, kind, business_rule, automation
		 FROM funnel_stages WHERE run_id = ? AND funnel = ? ORDER BY position`), id, string(kind))
	if err != nil {
		return types.FunnelTable{}, fmt.Errorf("querying %s stages: %w", kind, err)
	}
	defer rows.Close()

	table := types.FunnelTable{Funnel: kind}
	for rows.Next() {
		var (
			st               types.FunnelStage
			conv             sql.NullFloat64
			basis, rule, aut sql.NullString
			stageKind        string
		)
		if err := rows.Scan(&st.Name, &st.Count, &st.Hectares, &conv, &basis, &stageKind, &rule, &aut); err != nil {
			return table, fmt.Errorf("scanning stage: %w", err)
		}
		if conv.Valid {
			v := conv.Float64
			st.Conversion = &v
		}
		st.Basis, st.Kind, st.BusinessRule, st.Automation = basis.String, types.StageKind(stageKind), rule.String, aut.String
		table.Stages = append(table.Stages, st)
	}
	return table, rows.Err()
}

func (s *Store) loadBuckets(ctx context.Context, id string) ([]types.QualityBucket, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		`SELECT tier, count, percentage, automation, routing FROM quality_buckets WHERE run_id = ? ORDER BY position`), id)
	if err != nil {
		return nil, fmt.Errorf("querying quality buckets: %w", err)
	}
	defer rows.Close()

	var out []types.QualityBucket
	for rows.Next() {
		var b types.QualityBucket
		var tier, routing string
		if err := rows.Scan(&tier, &b.Count, &b.Percentage, &b.Automation, &routing); err != nil {
			return nil, fmt.Errorf("scanning quality bucket: %w", err)
		}
		b.Tier, b.Routing = types.Tier(tier), types.Channel(routing)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) loadContacts(ctx context.Context, id string) ([]types.Contact, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		`SELECT payload FROM contacts WHERE run_id = ? ORDER BY position`), id)
	if err != nil {
		return nil, fmt.Errorf("querying contacts: %w", err)
	}
	defer rows.Close()

	var out []types.Contact
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning contact: %w", err)
		}
		var c types.Contact
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return nil, fmt.Errorf("decoding contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]types.RunInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		`SELECT id, name, policy_version, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []types.RunInfo
	for rows.Next() {
		var r types.RunInfo
		var policy, started, finished string
		if err := rows.Scan(&r.ID, &r.Name, &policy, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.PolicyVersion = types.PolicyVersion(policy)
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}
