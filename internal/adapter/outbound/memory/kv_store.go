// Package memory provides in-memory implementations of outbound ports
// for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/akto-api-security/mcp-guardrails/internal/domain/ratelimit"
)

// entry is a stored value with its expiry.
type entry struct {
	value     []byte
	expiresAt time.Time
}

// KVStore implements ratelimit.Store with a TTL map. Thread-safe.
// Expired entries are dropped lazily on read and by a periodic sweep.
type KVStore struct {
	mu      sync.Mutex
	entries map[string]entry

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// defaultSweepInterval is how often expired entries are removed.
const defaultSweepInterval = time.Minute

// NewKVStore creates a KV store and starts its background sweeper.
// Call Close when done to stop the sweeper.
func NewKVStore() *KVStore {
	s := &KVStore{
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweep(defaultSweepInterval)
	return s
}

// Get returns the value under key, treating expired entries as absent.
func (s *KVStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set writes value under key with the given TTL.
func (s *KVStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{
		value:     append([]byte(nil), value...),
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Close stops the background sweeper.
func (s *KVStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// sweep periodically removes expired entries.
func (s *KVStore) sweep(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Compile-time check that KVStore implements ratelimit.Store.
var _ ratelimit.Store = (*KVStore)(nil)
