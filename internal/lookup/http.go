// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/parcel-funnel/internal/httputil"
	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// Fallback endpoints used when the configuration names none. They are
// empty in production builds, where base_url is mandatory, and declared as
// vars so tests can substitute an httptest server.
var (
	registryBase = ""
	geocoderBase = ""
	pecBase      = ""
)

// client holds what the three HTTP collaborators share.
type client struct {
	service string
	http    *http.Client
	base    string
	apiKey  string
	cfg     types.HTTPConfig
	log     *zap.Logger
}

func newClient(service, fallback string, ep types.EndpointConfig, cfg types.HTTPConfig, log *zap.Logger) client {
	base := ep.BaseURL
	if base == "" {
		base = fallback
	}
	if log == nil {
		log = zap.NewNop()
	}
	return client{
		service: service,
		http:    &http.Client{Timeout: cfg.Timeout},
		base:    strings.TrimRight(base, "/"),
		apiKey:  ep.APIKey,
		cfg:     cfg,
		log:     log,
	}
}

// getJSON issues a GET bounded by the configured timeout and decodes the
// body into out. found is false on 404. Failures that deserve a recovery
// attempt are wrapped as transient.
func (c client) getJSON(ctx context.Context, path string, params url.Values, out any) (found bool, err error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	if c.base == "" {
		return false, fmt.Errorf("%s: no base_url configured", c.service)
	}
	reqURL := c.base + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("creating %s request: %w", c.service, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.cfg.MaxRetries)
	if err != nil {
		if IsTransient(err) {
			return false, transient(c.service, err)
		}
		return false, fmt.Errorf("%s request: %w", c.service, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		c.log.Debug("lookup non-200", zap.String("service", c.service), zap.Int("status", resp.StatusCode), zap.String("path", path))
		return false, &StatusError{Service: c.service, Code: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if IsTransient(err) {
			return false, transient(c.service, err)
		}
		return false, fmt.Errorf("parsing %s response: %w", c.service, err)
	}
	return true, nil
}

// HTTPRegistry queries the cadastral registry service.
type HTTPRegistry struct {
	c client
}

// NewHTTPRegistry returns a registry client for ep.
func NewHTTPRegistry(ep types.EndpointConfig, cfg types.HTTPConfig, log *zap.Logger) *HTTPRegistry {
	return &HTTPRegistry{c: newClient("registry", registryBase, ep, cfg, log)}
}

type registryResponse struct {
	Owners []struct {
		OwnerName string `json:"owner_name"`
		FiscalID  string `json:"fiscal_id"`
		Address   string `json:"address"`
		Category  string `json:"category"`
	} `json:"owners"`
}

// Owners returns the ownership rows of parcel.
func (r *HTTPRegistry) Owners(ctx context.Context, parcel types.ParcelRecord) ([]types.OwnershipRow, error) {
	path := "/parcels/" + url.PathEscape(parcel.Municipality) + "/" + url.PathEscape(parcel.Sheet) + "/" + url.PathEscape(parcel.Number)
	params := url.Values{}
	if parcel.Section != "" {
		params.Set("section", parcel.Section)
	}
	if parcel.CadastralType != "" {
		params.Set("type", parcel.CadastralType)
	}

	var body registryResponse
	found, err := r.c.getJSON(ctx, path, params, &body)
	if err != nil || !found {
		return nil, err
	}

	rows := make([]types.OwnershipRow, 0, len(body.Owners))
	for _, o := range body.Owners {
		rows = append(rows, types.OwnershipRow{
			OwnerName:  strings.TrimSpace(o.OwnerName),
			FiscalID:   types.CanonicalFiscalID(o.FiscalID),
			RawAddress: strings.TrimSpace(o.Address),
			Category:   strings.ToUpper(strings.TrimSpace(o.Category)),
			ParcelKey:  parcel.Key(),
		})
	}
	return rows, nil
}

// HTTPGeocoder queries the geocoding service.
type HTTPGeocoder struct {
	c client
}

// NewHTTPGeocoder returns a geocoder client for ep.
func NewHTTPGeocoder(ep types.EndpointConfig, cfg types.HTTPConfig, log *zap.Logger) *HTTPGeocoder {
	return &HTTPGeocoder{c: newClient("geocoder", geocoderBase, ep, cfg, log)}
}

type geocodeResponse struct {
	StreetNumber string  `json:"street_number"`
	PostalCode   string  `json:"postal_code"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	NumberMatch  *bool   `json:"number_match"`
	NoCivic      bool    `json:"no_civic"`
}

// Geocode resolves a normalized address.
func (g *HTTPGeocoder) Geocode(ctx context.Context, normalized string) (types.GeocodeResult, error) {
	var body geocodeResponse
	found, err := g.c.getJSON(ctx, "/geocode", url.Values{"address": {normalized}, "country": {"IT"}}, &body)
	if err != nil || !found {
		return types.GeocodeResult{}, err
	}
	return types.GeocodeResult{
		StreetNumber: strings.TrimSpace(body.StreetNumber),
		PostalCode:   strings.TrimSpace(body.PostalCode),
		Lat:          body.Lat,
		Lon:          body.Lon,
		NumberMatch:  body.NumberMatch,
		NoCivic:      body.NoCivic,
	}, nil
}

// HTTPPECDirectory queries the national certified-email index.
type HTTPPECDirectory struct {
	c client
}

// NewHTTPPECDirectory returns a PEC directory client for ep.
func NewHTTPPECDirectory(ep types.EndpointConfig, cfg types.HTTPConfig, log *zap.Logger) *HTTPPECDirectory {
	return &HTTPPECDirectory{c: newClient("pec", pecBase, ep, cfg, log)}
}

// PEC returns the certified email registered for fiscalID.
func (p *HTTPPECDirectory) PEC(ctx context.Context, fiscalID string) (string, error) {
	var body struct {
		PEC string `json:"pec"`
	}
	found, err := p.c.getJSON(ctx, "/pec/"+url.PathEscape(types.CanonicalFiscalID(fiscalID)), nil, &body)
	if err != nil || !found {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(body.PEC)), nil
}
