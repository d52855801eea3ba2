// Package cache memoizes expensive lookups for the lifetime of one pipeline
// run. Entries expire after a per-call TTL and the least recently used entry
// is evicted once the cache is full.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxEntries bounds a cache created with a non-positive size
const DefaultMaxEntries = 256

type entry struct {
	value     interface{}
	createdAt time.Time
}

// Cache is a bounded get-or-compute cache with per-entry TTL
type Cache struct {
	entries *lru.Cache[string, entry]
	group   singleflight.Group
	now     func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cache
type Option func(*Cache)

// WithClock replaces the time source used for expiry
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache holding at most maxEntries values
func New(maxEntries int, opts ...Option) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	entries, err := lru.New[string, entry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	c := &Cache{entries: entries, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Stats reports cache effectiveness
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// Stats returns a snapshot of hit and miss counters
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.entries.Len(),
	}
}

func (c *Cache) lookup(key string, ttl time.Duration) (interface{}, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.createdAt) > ttl {
		c.entries.Remove(key)
		return nil, false
	}
	return e.value, true
}

// GetOrCompute returns the value cached under key if it is younger than ttl.
// Otherwise compute runs and its result replaces the entry. Errors from
// compute are returned to the caller and never stored. Concurrent misses on
// the same key share a single compute call.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if v, ok := c.lookup(key, ttl); ok {
		if typed, ok := v.(T); ok {
			c.hits.Add(1)
			return typed, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.lookup(key, ttl); ok {
			if typed, ok := v.(T); ok {
				c.hits.Add(1)
				return typed, nil
			}
		}
		c.misses.Add(1)
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, entry{value: value, createdAt: c.now()})
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Key derives a stable cache key from an operation name and its parameters.
// Parameters are JSON encoded, so map keys are sorted and struct fields keep
// declaration order.
func Key(op string, params ...interface{}) string {
	payload, err := json.Marshal(append([]interface{}{op}, params...))
	if err != nil {
		payload = []byte(fmt.Sprintf("%s%#v", op, params))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
