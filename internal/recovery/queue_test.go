// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTimeout = errors.New("timeout")

func TestQueueDrain(t *testing.T) {
	q := NewQueue(2, nil)
	require.NoError(t, q.Enqueue(ServiceRegistry, "H501//1/1", errTimeout))
	require.NoError(t, q.Enqueue(ServiceGeocode, "VIA ROMA 12", errTimeout))
	require.NoError(t, q.Enqueue(ServiceGeocode, "VIA ROMA 14", errTimeout))
	assert.Equal(t, 3, q.Len())

	sum, err := q.Drain(context.Background(), map[Service]Handler{
		ServiceRegistry: func(context.Context, Item) error { return nil },
		ServiceGeocode: func(_ context.Context, it Item) error {
			if it.Key == "VIA ROMA 14" {
				return errTimeout
			}
			return nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Recovered)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 3, sum.Total())
	assert.True(t, sum.HasFailures())
	assert.Equal(t, []string{"VIA ROMA 14"}, sum.FailedKeys(ServiceGeocode))
	assert.Empty(t, sum.FailedKeys(ServiceRegistry))

	for _, it := range sum.Items {
		assert.Equal(t, 2, it.Attempts, it.Key)
		if it.Key == "VIA ROMA 14" {
			assert.Equal(t, StateRecoveryFailed, it.State)
			assert.ErrorIs(t, it.Err, errTimeout)
		} else {
			assert.Equal(t, StateRecovered, it.State)
			assert.NoError(t, it.Err)
		}
	}
}

func TestQueueDrainsOnce(t *testing.T) {
	q := NewQueue(1, nil)
	require.NoError(t, q.Enqueue(ServicePEC, "01234567890", errTimeout))

	var calls int32
	h := map[Service]Handler{ServicePEC: func(context.Context, Item) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}}

	_, err := q.Drain(context.Background(), h)
	require.NoError(t, err)
	_, err = q.Drain(context.Background(), h)
	assert.ErrorIs(t, err, ErrAlreadyDrained)
	assert.ErrorIs(t, q.Enqueue(ServicePEC, "x", errTimeout), ErrAlreadyDrained)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQueueDuplicateEnqueue(t *testing.T) {
	q := NewQueue(1, nil)
	require.NoError(t, q.Enqueue(ServiceGeocode, "VIA ROMA 12", errTimeout))
	require.NoError(t, q.Enqueue(ServiceGeocode, "VIA ROMA 12", errTimeout))
	require.NoError(t, q.Enqueue(ServiceRegistry, "VIA ROMA 12", errTimeout))

	items := q.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 2, items[0].Attempts)
	assert.Equal(t, StateTimedOut, items[0].State)
}

func TestQueueMissingHandler(t *testing.T) {
	q := NewQueue(1, nil)
	require.NoError(t, q.Enqueue(ServicePEC, "01234567890", errTimeout))
	sum, err := q.Drain(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
}

func TestQueueEmptyDrain(t *testing.T) {
	sum, err := NewQueue(4, nil).Drain(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Total())
	assert.False(t, sum.HasFailures())
}

func TestQueueConcurrentEnqueueAndBoundedDrain(t *testing.T) {
	q := NewQueue(3, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, q.Enqueue(ServiceGeocode, fmt.Sprintf("VIA %d", i), errTimeout))
		}(i)
	}
	wg.Wait()
	require.Equal(t, 50, q.Len())

	var inflight, peak int32
	sum, err := q.Drain(context.Background(), map[Service]Handler{
		ServiceGeocode: func(context.Context, Item) error {
			n := atomic.AddInt32(&inflight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			atomic.AddInt32(&inflight, -1)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 50, sum.Recovered)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}
