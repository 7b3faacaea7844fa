// Package rediskv implements the rate-limit key-value store on Redis.
package rediskv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akto-api-security/mcp-guardrails/internal/domain/ratelimit"
)

// Store is a Redis-backed ratelimit.Store. Writes use SET with TTL;
// there is deliberately no transaction around read-modify-write cycles,
// the limiter tolerates last-write-wins.
type Store struct {
	client *redis.Client
}

// NewStore creates a store against the given Redis address.
func NewStore(addr, password string, db int) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Get returns the value under key, with found=false for absent keys.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set writes value under key with the given TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Ping verifies connectivity at startup.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Compile-time check that Store implements ratelimit.Store.
var _ ratelimit.Store = (*Store)(nil)
