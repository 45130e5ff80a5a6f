// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package lookup defines the external collaborators of a campaign (the
// cadastral registry, the geocoder and the certified-email directory) and
// their HTTP and SQL clients. Every client classifies its failures so the
// campaign can queue transient ones for the recovery pass.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// Registry returns the ownership rows of a parcel. A parcel the registry
// does not know yields no rows and no error. Row indexes are left zero;
// the campaign assigns them.
type Registry interface {
	Owners(ctx context.Context, parcel types.ParcelRecord) ([]types.OwnershipRow, error)
}

// Geocoder resolves a normalized address. An address the service cannot
// place yields a zero GeocodeResult and no error.
type Geocoder interface {
	Geocode(ctx context.Context, normalized string) (types.GeocodeResult, error)
}

// PECDirectory returns the certified email of a legal entity, or "" when
// none is registered.
type PECDirectory interface {
	PEC(ctx context.Context, fiscalID string) (string, error)
}

// ErrTransient marks a failure worth one more attempt in the recovery pass:
// a timeout, a 5xx answer or a 429 that outlived its retries.
var ErrTransient = errors.New("transient lookup failure")

// StatusError is a non-2xx answer from an HTTP collaborator.
type StatusError struct {
	Service string
	Code    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.Service, e.Code)
}

// Is makes 5xx and 429 answers match ErrTransient.
func (e *StatusError) Is(target error) bool {
	return target == ErrTransient && (e.Code == http.StatusTooManyRequests || e.Code >= 500)
}

// IsTransient reports whether err should be retried in the recovery pass.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// transient wraps err so that IsTransient reports true.
func transient(service string, err error) error {
	return fmt.Errorf("%s: %w: %w", service, ErrTransient, err)
}
