// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package recovery holds collaborator calls that timed out during the
// primary pass and retries them exactly once in a single recovery pass.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyDrained is returned when the queue is drained twice or an item
// is enqueued after the recovery pass ran.
var ErrAlreadyDrained = errors.New("recovery queue already drained")

// Service names the collaborator an item belongs to.
type Service string

const (
	ServiceRegistry Service = "registry"
	ServiceGeocode  Service = "geocode"
	ServicePEC      Service = "pec"
)

// State is the lifecycle position of a queued call.
type State string

const (
	StateSubmitted         State = "submitted"
	StateTimedOut          State = "timed_out"
	StateRecoveryAttempted State = "recovery_attempted"
	StateRecovered         State = "recovered"
	StateRecoveryFailed    State = "recovery_failed"
)

// Item is one queued call. Key identifies the request within its service:
// a parcel key, a normalized address or a fiscal identifier.
type Item struct {
	Service  Service `json:"service" yaml:"service"`
	Key      string  `json:"key" yaml:"key"`
	State    State   `json:"state" yaml:"state"`
	Attempts int     `json:"attempts" yaml:"attempts"`
	Err      error   `json:"-" yaml:"-"`
}

// Handler retries one item. A nil return marks the item recovered.
type Handler func(ctx context.Context, item Item) error

// Summary reports the outcome of a recovery pass.
type Summary struct {
	Recovered int    `json:"recovered" yaml:"recovered"`
	Failed    int    `json:"failed" yaml:"failed"`
	Items     []Item `json:"items" yaml:"items"`
}

// Total returns the number of items attempted.
func (s Summary) Total() int {
	return s.Recovered + s.Failed
}

// HasFailures reports whether any item stayed unresolved.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// FailedKeys returns the keys of the given service that could not be
// recovered.
func (s Summary) FailedKeys(service Service) []string {
	var out []string
	for _, it := range s.Items {
		if it.Service == service && it.State == StateRecoveryFailed {
			out = append(out, it.Key)
		}
	}
	return out
}

// Queue collects timed-out calls. Enqueue is safe for concurrent use.
type Queue struct {
	limit int
	log   *zap.Logger

	mu      sync.Mutex
	items   []*Item
	index   map[string]*Item
	drained bool
}

// NewQueue returns an empty queue whose pass runs at most limit handlers
// at once.
func NewQueue(limit int, log *zap.Logger) *Queue {
	if limit <= 0 {
		limit = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{limit: limit, log: log, index: make(map[string]*Item)}
}

// Enqueue records a timed-out call. Re-enqueueing the same service and key
// only counts another attempt.
func (q *Queue) Enqueue(service Service, key string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.drained {
		return ErrAlreadyDrained
	}

	id := string(service) + "|" + key
	if it, ok := q.index[id]; ok {
		it.Attempts++
		it.Err = cause
		return nil
	}
	it := &Item{Service: service, Key: key, State: StateTimedOut, Attempts: 1, Err: cause}
	q.items = append(q.items, it)
	q.index[id] = it
	q.log.Debug("queued for recovery", zap.String("service", string(service)), zap.String("key", key), zap.Error(cause))
	return nil
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a snapshot of the queued items.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.items))
	for i, it := range q.items {
		out[i] = *it
	}
	return out
}

// Drain runs the recovery pass: every item is retried once through the
// handler registered for its service. It may be called only once. Handler
// failures mark items failed; they never fail the pass.
func (q *Queue) Drain(ctx context.Context, handlers map[Service]Handler) (Summary, error) {
	q.mu.Lock()
	if q.drained {
		q.mu.Unlock()
		return Summary{}, ErrAlreadyDrained
	}
	q.drained = true
	items := q.items
	q.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.limit)
	for _, it := range items {
		it := it
		it.State = StateRecoveryAttempted
		it.Attempts++
		g.Go(func() error {
			h, ok := handlers[it.Service]
			var err error
			if !ok {
				err = fmt.Errorf("no recovery handler for %s", it.Service)
			} else {
				err = h(gctx, *it)
			}
			if err != nil {
				it.State = StateRecoveryFailed
				it.Err = err
				q.log.Warn("recovery failed", zap.String("service", string(it.Service)), zap.String("key", it.Key), zap.Error(err))
				return nil
			}
			it.State = StateRecovered
			it.Err = nil
			return nil
		})
	}
	_ = g.Wait()

	var s Summary
	for _, it := range items {
		switch it.State {
		case StateRecovered:
			s.Recovered++
		default:
			s.Failed++
		}
		s.Items = append(s.Items, *it)
	}
	return s, nil
}
