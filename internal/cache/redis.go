// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache provides a Redis-backed geocode cache shared between
// campaign runs on different machines.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pdiddy/parcel-funnel/pkg/types"
)

const keyPrefix = "parcel-funnel:geocode:"

// Redis stores geocode results as JSON strings under a fixed key prefix.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to addr (host:port or a redis:// URL) and pings it.
// ttl of zero keeps entries until evicted.
func NewRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis cache: empty address")
	}

	opts := &redis.Options{Addr: addr}
	if parsed, err := redis.ParseURL(addr); err == nil {
		opts = parsed
	}
	opts.DialTimeout = 5 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

// Get returns the cached result for a normalized address.
func (r *Redis) Get(ctx context.Context, address string) (types.GeocodeResult, bool, error) {
	payload, err := r.client.Get(ctx, keyPrefix+address).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.GeocodeResult{}, false, nil
	}
	if err != nil {
		return types.GeocodeResult{}, false, fmt.Errorf("redis get %q: %w", address, err)
	}
	var res types.GeocodeResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return types.GeocodeResult{}, false, fmt.Errorf("decoding cached geocode for %q: %w", address, err)
	}
	return res, true, nil
}

// Put stores res under the address key with the configured TTL.
func (r *Redis) Put(ctx context.Context, address string, res types.GeocodeResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding geocode: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+address, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", address, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
