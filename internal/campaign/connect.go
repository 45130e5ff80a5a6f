// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package campaign

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/parcel-funnel/internal/cache"
	"github.com/pdiddy/parcel-funnel/internal/ingest"
	"github.com/pdiddy/parcel-funnel/internal/lookup"
	"github.com/pdiddy/parcel-funnel/internal/store"
	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// Inputs is the parcel list of a run plus an optional registry export.
type Inputs struct {
	Parcels []types.ParcelRecord

	// Owners is nil when the registry is queried live.
	Owners []types.OwnershipRow

	Log *ingest.DiscrepancyLog
}

// LoadInputs reads the files named by cfg. Ownership rows that reference
// no input parcel are logged and dropped.
func LoadInputs(cfg types.InputConfig) (Inputs, error) {
	if cfg.ParcelsPath == "" {
		return Inputs{}, fmt.Errorf("no parcel list given")
	}
	pr, err := ingest.ReadParcels(cfg.ParcelsPath, cfg.Strict)
	if err != nil {
		return Inputs{}, fmt.Errorf("reading parcels: %w", err)
	}
	in := Inputs{Parcels: pr.Parcels, Log: pr.Log}
	if cfg.OwnersPath == "" {
		return in, nil
	}

	or, err := ingest.ReadOwners(cfg.OwnersPath, cfg.Strict)
	if err != nil {
		return Inputs{}, fmt.Errorf("reading owners: %w", err)
	}
	in.Log.Merge(or.Log)

	known := make(map[string]bool, len(in.Parcels))
	for _, p := range in.Parcels {
		known[p.Key()] = true
	}
	in.Owners = make([]types.OwnershipRow, 0, len(or.Rows))
	for _, row := range or.Rows {
		if !known[row.ParcelKey] {
			in.Log.Note(ingest.KindUnknownParcel, cfg.OwnersPath, row.ParcelKey,
				"ownership row references a parcel not in the input list")
			continue
		}
		in.Owners = append(in.Owners, row)
	}
	return in, nil
}

// Resources are the collaborators and stores opened for a run.
type Resources struct {
	Collaborators

	// Store is nil when no store is configured.
	Store *store.Store

	closers []func() error
}

// Close releases every opened connection.
func (r *Resources) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Connect opens the collaborators described by cfg. When owners is not nil
// the registry is answered from those rows instead of a live service.
func Connect(ctx context.Context, cfg types.CampaignConfig, owners []types.OwnershipRow, log *zap.Logger) (*Resources, error) {
	if log == nil {
		log = zap.NewNop()
	}
	res := &Resources{}
	fail := func(err error) (*Resources, error) {
		res.Close()
		return nil, err
	}

	if cfg.Store.Driver != "" {
		s, err := store.New(ctx, cfg.Store, cfg.Cache.TTL)
		if err != nil {
			return fail(fmt.Errorf("opening store: %w", err))
		}
		res.Store = s
		res.closers = append(res.closers, s.Close)
	}

	switch {
	case owners != nil:
		res.Registry = lookup.NewStaticRegistry(owners)
	case cfg.Lookup.Registry.Kind == "sql":
		reg, err := lookup.NewSQLRegistry(ctx, cfg.Lookup.Registry, cfg.Lookup.HTTPConfig, log)
		if err != nil {
			return fail(err)
		}
		res.Registry = reg
		res.closers = append(res.closers, reg.Close)
	case cfg.Lookup.Registry.Kind == "" || cfg.Lookup.Registry.Kind == "http":
		res.Registry = lookup.NewHTTPRegistry(cfg.Lookup.Registry, cfg.Lookup.HTTPConfig, log)
	default:
		return fail(fmt.Errorf("unknown registry kind %q (want http or sql)", cfg.Lookup.Registry.Kind))
	}

	var gc lookup.GeocodeCache
	switch cfg.Cache.Backend {
	case "":
	case "store":
		if res.Store == nil {
			return fail(fmt.Errorf("cache backend \"store\" needs store.driver"))
		}
		gc = res.Store
	case "redis":
		rc, err := cache.NewRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.TTL)
		if err != nil {
			return fail(err)
		}
		gc = rc
		res.closers = append(res.closers, rc.Close)
	default:
		return fail(fmt.Errorf("unknown cache backend %q (want store or redis)", cfg.Cache.Backend))
	}
	geocoder := lookup.NewHTTPGeocoder(cfg.Lookup.Geocoder, cfg.Lookup.HTTPConfig, log)
	res.Geocoder = lookup.NewCachedGeocoder(geocoder, gc, log)

	if cfg.Lookup.EnablePEC {
		res.PEC = lookup.NewHTTPPECDirectory(cfg.Lookup.PEC, cfg.Lookup.HTTPConfig, log)
	}
	return res, nil
}
