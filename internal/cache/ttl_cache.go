package cache

import (
	"sync"
	"time"

	"github.com/stellarwp/restrict-content-sub000/internal/clock"
)

// Cache is the TTL cache port used by aggregate queries. Correctness on
// those paths tolerates bounded staleness, so callers treat a hit as
// advisory and a miss as a signal to recompute.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
	Flush()
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLStore is an in-memory Cache with per-entry TTLs. Expiry is evaluated
// against an injected clock so tests can advance time instead of sleeping.
type TTLStore[K comparable, V any] struct {
	clk clock.Clock

	mu    sync.RWMutex
	items map[K]entry[V]
}

// NewTTLStore builds an empty store reading time from clk.
func NewTTLStore[K comparable, V any](clk clock.Clock) *TTLStore[K, V] {
	return &TTLStore[K, V]{
		clk:   clk,
		items: make(map[K]entry[V]),
	}
}

// Get returns the cached value unless it is absent or past its TTL.
// Expired entries are dropped on read.
func (s *TTLStore[K, V]) Get(key K) (V, bool) {
	var zero V
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if !item.expiresAt.IsZero() && s.clk.Now().After(item.expiresAt) {
		s.Delete(key)
		return zero, false
	}
	return item.value, true
}

// Set stores a value. A non-positive ttl stores it without expiry.
func (s *TTLStore[K, V]) Set(key K, value V, ttl time.Duration) {
	item := entry[V]{value: value}
	if ttl > 0 {
		item.expiresAt = s.clk.Now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = item
	s.mu.Unlock()
}

// Delete drops a single entry.
func (s *TTLStore[K, V]) Delete(key K) {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Flush drops every entry. Payment status changes call this so dashboards
// converge within one read instead of waiting out the TTL.
func (s *TTLStore[K, V]) Flush() {
	s.mu.Lock()
	s.items = make(map[K]entry[V])
	s.mu.Unlock()
}
