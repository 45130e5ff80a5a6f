// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package campaign

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/parcel-funnel/internal/dedup"
	"github.com/pdiddy/parcel-funnel/internal/funnel"
	"github.com/pdiddy/parcel-funnel/internal/ingest"
	"github.com/pdiddy/parcel-funnel/internal/lookup"
	"github.com/pdiddy/parcel-funnel/internal/normalize"
	"github.com/pdiddy/parcel-funnel/internal/owner"
	"github.com/pdiddy/parcel-funnel/internal/recovery"
	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// run is the mutable state of one campaign run. Lookup goroutines write
// the maps under mu; aggregation reads them after every batch returned.
type run struct {
	e        *Engine
	log      *zap.Logger
	parcels  []types.ParcelRecord
	byKey    map[string]types.ParcelRecord
	disc     *ingest.DiscrepancyLog
	queue    *recovery.Queue
	resolver *owner.Resolver

	mu        sync.Mutex
	rows      map[string][]types.OwnershipRow
	geocodes  map[string]types.GeocodeResult
	failedGeo map[string]bool
	pec       map[string]string

	// Owned by the run goroutine.
	nextIndex int
	indexed   map[string]bool
	added     map[string]bool
	pecAsked  map[string]bool
	raw       map[string]string
}

func newRun(e *Engine, parcels []types.ParcelRecord, disc *ingest.DiscrepancyLog, log *zap.Logger) *run {
	r := &run{
		e:         e,
		log:       log,
		parcels:   parcels,
		byKey:     make(map[string]types.ParcelRecord, len(parcels)),
		disc:      disc,
		queue:     recovery.NewQueue(e.cfg.Lookup.Concurrency, log),
		resolver:  owner.NewResolver(log),
		rows:      make(map[string][]types.OwnershipRow),
		geocodes:  make(map[string]types.GeocodeResult),
		failedGeo: make(map[string]bool),
		pec:       make(map[string]string),
		indexed:   make(map[string]bool),
		added:     make(map[string]bool),
		pecAsked:  make(map[string]bool),
		raw:       make(map[string]string),
	}
	for _, p := range parcels {
		r.byKey[p.Key()] = p
	}
	return r
}

// batch is the parcels of one municipality in input order.
type batch struct {
	municipality string
	parcels      []types.ParcelRecord
}

func byMunicipality(parcels []types.ParcelRecord) []batch {
	var out []batch
	index := make(map[string]int)
	for _, p := range parcels {
		i, ok := index[p.Municipality]
		if !ok {
			i = len(out)
			index[p.Municipality] = i
			out = append(out, batch{municipality: p.Municipality})
		}
		out[i].parcels = append(out[i].parcels, p)
	}
	return out
}

// fetchOwners runs the primary registry pass, one municipality batch at a
// time with bounded parallelism inside each batch.
func (r *run) fetchOwners(ctx context.Context) error {
	ctx, span := r.e.tracer.Start(ctx, "campaign.registry")
	defer span.End()

	for _, b := range byMunicipality(r.parcels) {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.e.cfg.Lookup.Concurrency)
		for _, p := range b.parcels {
			p := p
			g.Go(func() error {
				rows, err := r.owners(gctx, p)
				switch {
				case err == nil:
					r.setRows(p.Key(), rows)
				case ctx.Err() != nil:
					return ctx.Err()
				case lookup.IsTransient(err):
					return r.queue.Enqueue(recovery.ServiceRegistry, p.Key(), err)
				default:
					r.registryFailed(p.Key(), err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("registry batch %s: %w", b.municipality, err)
		}
		fmt.Fprintf(r.e.out, "registry: %s (%d parcels)\n", b.municipality, len(b.parcels))
	}
	return nil
}

func (r *run) owners(ctx context.Context, p types.ParcelRecord) ([]types.OwnershipRow, error) {
	start := time.Now()
	rows, err := r.e.deps.Registry.Owners(ctx, p)
	r.observe(recovery.ServiceRegistry, start, err)
	return rows, err
}

func (r *run) setRows(key string, rows []types.OwnershipRow) {
	for i := range rows {
		rows[i].ParcelKey = key
	}
	r.mu.Lock()
	r.rows[key] = rows
	r.mu.Unlock()
}

func (r *run) registryFailed(key string, err error) {
	r.log.Warn("registry lookup failed", zap.String("parcel", key), zap.Error(err))
	r.disc.Note(ingest.KindRegistryFailed, "registry", key, err.Error())
}

// indexRows numbers the rows of parcels not yet indexed, in input order,
// continuing after the rows indexed earlier.
func (r *run) indexRows() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.parcels {
		key := p.Key()
		rows, ok := r.rows[key]
		if !ok || r.indexed[key] {
			continue
		}
		r.indexed[key] = true
		for i := range rows {
			rows[i].Index = r.nextIndex
			r.nextIndex++
		}
	}
}

// allRows returns every indexed row in input parcel order.
func (r *run) allRows() []types.OwnershipRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.OwnershipRow
	for _, p := range r.parcels {
		if r.indexed[p.Key()] {
			out = append(out, r.rows[p.Key()]...)
		}
	}
	return out
}

// addQualified feeds the rows of newly qualified parcels to the
// deduplicator. It returns the addresses seen for the first time and the
// legal entities not yet asked for a certified email.
func (r *run) addQualified(dd *dedup.Deduplicator, q funnel.Qualification) (addresses, entities []string) {
	var fresh []types.OwnershipRow
	for _, row := range q.Rows {
		if !r.added[row.ParcelKey] {
			fresh = append(fresh, row)
		}
	}
	for _, row := range fresh {
		r.added[row.ParcelKey] = true

		norm := normalize.Address(row.RawAddress)
		if _, ok := r.raw[norm]; !ok {
			r.raw[norm] = row.RawAddress
		}
		id := types.CanonicalFiscalID(row.FiscalID)
		if !r.pecAsked[id] && r.resolver.Resolve(id).Type == types.OwnerLegalEntity {
			r.pecAsked[id] = true
			entities = append(entities, id)
		}
	}
	return dd.Add(fresh...), entities
}

// geocode resolves addresses. With queue set, transient failures wait for
// the recovery pass; otherwise every failure is final.
func (r *run) geocode(ctx context.Context, addresses []string, queue bool) error {
	if len(addresses) == 0 {
		return nil
	}
	ctx, span := r.e.tracer.Start(ctx, "campaign.geocode")
	defer span.End()
	if queue {
		fmt.Fprintf(r.e.out, "geocoding: %d distinct addresses\n", len(addresses))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.e.cfg.Lookup.Concurrency)
	for _, addr := range addresses {
		addr := addr
		if addr == "" {
			r.setGeocode(addr, types.GeocodeResult{})
			continue
		}
		g.Go(func() error {
			res, err := r.geocodeOne(gctx, addr)
			switch {
			case err == nil:
				r.setGeocode(addr, res)
			case ctx.Err() != nil:
				return ctx.Err()
			case queue && lookup.IsTransient(err):
				return r.queue.Enqueue(recovery.ServiceGeocode, addr, err)
			default:
				r.geocodeFailed(addr, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *run) geocodeOne(ctx context.Context, addr string) (types.GeocodeResult, error) {
	start := time.Now()
	res, err := r.e.deps.Geocoder.Geocode(ctx, addr)
	r.observe(recovery.ServiceGeocode, start, err)
	return res, err
}

func (r *run) setGeocode(addr string, res types.GeocodeResult) {
	r.mu.Lock()
	r.geocodes[addr] = res
	delete(r.failedGeo, addr)
	r.mu.Unlock()
}

func (r *run) geocodeFailed(addr string, err error) {
	r.log.Warn("geocoding failed", zap.String("address", addr), zap.Error(err))
	r.mu.Lock()
	r.failedGeo[addr] = true
	r.mu.Unlock()
}

// lookupPEC asks the certified-email directory about legal entities.
func (r *run) lookupPEC(ctx context.Context, ids []string, queue bool) error {
	if r.e.deps.PEC == nil || len(ids) == 0 {
		return nil
	}
	ctx, span := r.e.tracer.Start(ctx, "campaign.pec")
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.e.cfg.Lookup.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			pec, err := r.pecOne(gctx, id)
			switch {
			case err == nil:
				r.setPEC(id, pec)
			case ctx.Err() != nil:
				return ctx.Err()
			case queue && lookup.IsTransient(err):
				return r.queue.Enqueue(recovery.ServicePEC, id, err)
			default:
				r.log.Warn("pec lookup failed", zap.String("fiscal_id", id), zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *run) pecOne(ctx context.Context, id string) (string, error) {
	start := time.Now()
	pec, err := r.e.deps.PEC.PEC(ctx, id)
	r.observe(recovery.ServicePEC, start, err)
	return pec, err
}

func (r *run) setPEC(id, pec string) {
	if pec == "" {
		return
	}
	r.mu.Lock()
	r.pec[id] = pec
	r.mu.Unlock()
}

// attachPEC copies certified emails onto legal-entity contacts.
func (r *run) attachPEC(contacts []types.Contact) {
	for i := range contacts {
		if contacts[i].Identity.Type == types.OwnerLegalEntity {
			contacts[i].PEC = r.pec[contacts[i].FiscalID]
		}
	}
}

// recover drains the recovery queue once. Failed registry items stay out
// of the retrieved set and are logged as discrepancies; failed geocodes
// become permanent lookup failures.
func (r *run) recover(ctx context.Context) (recovery.Summary, error) {
	queued := r.queue.Len()
	ctx, span := r.e.tracer.Start(ctx, "campaign.recovery")
	defer span.End()

	summary, err := r.queue.Drain(ctx, map[recovery.Service]recovery.Handler{
		recovery.ServiceRegistry: func(ctx context.Context, it recovery.Item) error {
			rows, err := r.owners(ctx, r.byKey[it.Key])
			if err != nil {
				return err
			}
			r.setRows(it.Key, rows)
			return nil
		},
		recovery.ServiceGeocode: func(ctx context.Context, it recovery.Item) error {
			res, err := r.geocodeOne(ctx, it.Key)
			if err != nil {
				return err
			}
			r.setGeocode(it.Key, res)
			return nil
		},
		recovery.ServicePEC: func(ctx context.Context, it recovery.Item) error {
			pec, err := r.pecOne(ctx, it.Key)
			if err != nil {
				return err
			}
			r.setPEC(it.Key, pec)
			return nil
		},
	})
	if err != nil {
		return summary, fmt.Errorf("recovery pass: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	for _, it := range summary.Items {
		r.e.metrics.IncrementRecovery(string(it.Service), string(it.State))
		if it.State != recovery.StateRecoveryFailed {
			continue
		}
		switch it.Service {
		case recovery.ServiceRegistry:
			r.disc.Note(ingest.KindRegistryFailed, "registry", it.Key, it.Err.Error())
		case recovery.ServiceGeocode:
			r.mu.Lock()
			r.failedGeo[it.Key] = true
			r.mu.Unlock()
		}
	}
	if queued > 0 {
		fmt.Fprintf(r.e.out, "recovery: %d queued, %d recovered, %d failed\n", queued, summary.Recovered, summary.Failed)
	}
	return summary, nil
}

func (r *run) observe(service recovery.Service, start time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case lookup.IsTransient(err):
		outcome = "transient"
	default:
		outcome = "error"
	}
	r.e.metrics.ObserveLookup(string(service), outcome, time.Since(start))
}
