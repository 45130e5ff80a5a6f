// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package campaign runs a mailing campaign end to end: registry lookups per
// municipality batch, geocoding of every distinct owner address, a single
// recovery pass for calls that timed out, then classification,
// deduplication and the funnel, quality and KPI tables. Aggregation starts
// only after every lookup has been resolved one way or another.
package campaign

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pdiddy/parcel-funnel/internal/classify"
	"github.com/pdiddy/parcel-funnel/internal/dedup"
	"github.com/pdiddy/parcel-funnel/internal/funnel"
	"github.com/pdiddy/parcel-funnel/internal/ingest"
	"github.com/pdiddy/parcel-funnel/internal/kpi"
	"github.com/pdiddy/parcel-funnel/internal/lookup"
	"github.com/pdiddy/parcel-funnel/internal/metrics"
	"github.com/pdiddy/parcel-funnel/internal/quality"
	"github.com/pdiddy/parcel-funnel/internal/recovery"
	"github.com/pdiddy/parcel-funnel/pkg/types"
)

const tracerName = "github.com/pdiddy/parcel-funnel/internal/campaign"

// Collaborators are the external services a run talks to.
type Collaborators struct {
	Registry lookup.Registry
	Geocoder lookup.Geocoder

	// PEC is optional; nil skips certified-email lookups.
	PEC lookup.PECDirectory
}

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, rep types.CampaignReport) error
}

// Engine executes campaign runs under one configuration.
type Engine struct {
	cfg     types.CampaignConfig
	deps    Collaborators
	store   RunStore
	metrics *metrics.Metrics
	log     *zap.Logger
	tracer  trace.Tracer
	out     io.Writer
	now     func() time.Time
	newID   func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore saves every successful run to s.
func WithStore(s RunStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithMetrics records lookup and run metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithProgress writes human-readable progress lines to w.
func WithProgress(w io.Writer) Option {
	return func(e *Engine) {
		if w != nil {
			e.out = w
		}
	}
}

// New validates cfg and returns an Engine. Registry and Geocoder are
// required.
func New(cfg types.CampaignConfig, deps Collaborators, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if deps.Registry == nil || deps.Geocoder == nil {
		return nil, fmt.Errorf("campaign needs a registry and a geocoder")
	}
	e := &Engine{
		cfg:    cfg,
		deps:   deps,
		log:    zap.NewNop(),
		tracer: otel.Tracer(tracerName),
		out:    io.Discard,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Result is everything a run produced. Report is what gets rendered and
// persisted; the other fields carry detail for diagnostics.
type Result struct {
	Report        types.CampaignReport
	Discrepancies ingest.Summary
	Recovery      recovery.Summary

	// Addresses are the classified distinct addresses in first-seen order.
	Addresses []types.ClassifiedAddress
}

// Run executes one campaign over parcels. disc carries the ingest tallies
// and receives lookup discrepancies; nil starts an empty log.
//
// Lookup failures never fail a run. Integrity faults do: a classification
// ambiguity or a funnel that does not reconcile returns an error and no
// report.
func (e *Engine) Run(ctx context.Context, parcels []types.ParcelRecord, disc *ingest.DiscrepancyLog) (Result, error) {
	if disc == nil {
		disc = ingest.NewDiscrepancyLog()
	}
	info := types.RunInfo{
		ID:            e.newID(),
		Name:          e.cfg.Name,
		PolicyVersion: e.cfg.Policy.Version,
		StartedAt:     e.now(),
	}

	ctx, span := e.tracer.Start(ctx, "campaign.run", trace.WithAttributes(
		attribute.String("run.id", info.ID),
		attribute.String("policy", string(info.PolicyVersion)),
		attribute.Int("parcels", len(parcels)),
	))
	defer span.End()

	log := e.log.With(zap.String("run_id", info.ID))
	log.Info("campaign started", zap.String("name", info.Name), zap.Int("parcels", len(parcels)),
		zap.String("policy", string(info.PolicyVersion)))
	fmt.Fprintf(e.out, "campaign %s: %d parcels, policy %s\n", info.Name, len(parcels), info.PolicyVersion)

	res, err := e.execute(ctx, newRun(e, parcels, disc, log), info)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("campaign failed", zap.Error(err))
		return res, err
	}
	log.Info("campaign finished",
		zap.Int("contacts", len(res.Report.Contacts)),
		zap.Duration("duration", res.Report.Run.Duration()))
	return res, nil
}

func (e *Engine) execute(ctx context.Context, r *run, info types.RunInfo) (Result, error) {
	// Primary pass.
	if err := r.fetchOwners(ctx); err != nil {
		return Result{}, err
	}
	r.indexRows()
	q := funnel.Qualify(r.parcels, r.allRows(), e.cfg.Funnel)
	dd := dedup.New(q.Areas(), r.resolver.Resolve)

	addresses, entities := r.addQualified(dd, q)
	if err := r.geocode(ctx, addresses, true); err != nil {
		return Result{}, err
	}
	if err := r.lookupPEC(ctx, entities, true); err != nil {
		return Result{}, err
	}

	// Recovery pass.
	summary, err := r.recover(ctx)
	if err != nil {
		return Result{}, err
	}

	// Parcels recovered from the registry may qualify now; only their new
	// addresses are geocoded, without a second recovery chance.
	r.indexRows()
	q = funnel.Qualify(r.parcels, r.allRows(), e.cfg.Funnel)
	addresses, entities = r.addQualified(dd, q)
	if len(addresses) > 0 {
		fmt.Fprintf(e.out, "geocoding: %d addresses from recovered parcels\n", len(addresses))
	}
	if err := r.geocode(ctx, addresses, false); err != nil {
		return Result{}, err
	}
	if err := r.lookupPEC(ctx, entities, false); err != nil {
		return Result{}, err
	}
	if c, ok := e.deps.Geocoder.(interface{ Stats() lookup.CacheStats }); ok {
		st := c.Stats()
		fmt.Fprintf(e.out, "geocode cache: %d memo, %d hits, %d misses\n", st.Memory, st.Hits, st.Misses)
	}

	// Aggregation.
	_, span := e.tracer.Start(ctx, "campaign.aggregate")
	defer span.End()

	classified, ordered, err := r.classify(dd)
	if err != nil {
		return Result{}, err
	}
	contacts, err := dd.Contacts(classified)
	if err != nil {
		return Result{}, eris.Wrap(err, "deduplicating contacts")
	}
	r.attachPEC(contacts)

	land, err := funnel.Land(q)
	if err != nil {
		return Result{}, eris.Wrap(err, "land acquisition funnel")
	}
	contactTable, err := funnel.Contact(q, contacts, e.cfg.Funnel.ConsolidateOwners)
	if err != nil {
		return Result{}, eris.Wrap(err, "contact processing funnel")
	}
	dist, err := quality.Distribute(quality.FromContacts(contacts))
	if err != nil {
		return Result{}, eris.Wrap(err, "quality distribution")
	}
	kpis, err := kpi.Calculate(land, contactTable, dist)
	if err != nil {
		return Result{}, eris.Wrap(err, "executive kpis")
	}

	ds := r.disc.Summary()
	if !ds.Reconciles() {
		return Result{}, eris.Errorf("discrepancy log does not reconcile: read %d, accepted %d, excluded %d",
			ds.Read, ds.Accepted, ds.Excluded)
	}

	info.FinishedAt = e.now()
	rep := types.CampaignReport{
		Run:     info,
		Land:    land,
		Contact: contactTable,
		Quality: dist,
		KPI:     kpis,
		Discrepancies: types.DiscrepancyCounts{
			Read:           ds.Read,
			Accepted:       ds.Accepted,
			Excluded:       ds.Excluded,
			RegistryFailed: ds.Count(ingest.KindRegistryFailed),
		},
		Recovery: recoveryCounts(summary),
		Contacts: contacts,
	}
	span.SetAttributes(attribute.Int("contacts", len(contacts)), attribute.Int("qualified", len(q.Qualified)))

	res := Result{Report: rep, Discrepancies: ds, Recovery: summary, Addresses: ordered}
	e.metrics.RecordReport(rep)
	fmt.Fprintf(e.out, "classified: %d addresses, %d contacts (%d zero-touch)\n",
		len(ordered), len(contacts), quality.ZeroTouch(dist))

	if e.store != nil {
		if err := e.store.SaveRun(ctx, rep); err != nil {
			return res, fmt.Errorf("saving run %s: %w", info.ID, err)
		}
		fmt.Fprintf(e.out, "run saved: %s\n", info.ID)
	}
	return res, nil
}

// classify classifies every distinct address once, in first-seen order.
func (r *run) classify(dd *dedup.Deduplicator) (map[string]types.ClassifiedAddress, []types.ClassifiedAddress, error) {
	c := classify.New(r.e.cfg.Policy)
	byAddress := make(map[string]types.ClassifiedAddress)
	var ordered []types.ClassifiedAddress

	for _, addr := range dd.Addresses() {
		var cand types.AddressCandidate
		if r.failedGeo[addr] {
			cand = classify.Candidate(r.raw[addr], types.LookupFailed, types.GeocodeResult{})
		} else {
			cand = classify.FromGeocode(r.raw[addr], r.geocodes[addr])
		}
		out, err := c.Classify(cand)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "classifying %q", addr)
		}
		byAddress[addr] = out
		ordered = append(ordered, out)
	}
	return byAddress, ordered, nil
}

func recoveryCounts(s recovery.Summary) types.RecoveryCounts {
	out := types.RecoveryCounts{Queued: s.Total(), Recovered: s.Recovered, Failed: s.Failed}
	for _, it := range s.Items {
		if out.ByService == nil {
			out.ByService = make(map[string]int)
		}
		out.ByService[string(it.Service)]++
	}
	return out
}
