// Package cache provides a small time-to-live cache keyed by string, backed
// by github.com/patrickmn/go-cache.
//
// Entries expire lazily: the underlying store runs no janitor, and an entry
// is never returned once its expiry instant has been reached. A Cache is
// scoped to the component that constructs it; there is no process-wide
// instance.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL is the time-to-live used when a Cache is created with a
// non-positive TTL.
const DefaultTTL = 30 * time.Second

// entry is replaced, never mutated, when a key is set again. go-cache keeps
// an item through its expiry nanosecond, so Get also checks expiresAt.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache maps keys to values for a fixed TTL. It is safe for concurrent use;
// concurrent misses on the same key are not coalesced here (see
// jwks.CachedKeySupplier for that).
type Cache[V any] struct {
	items *gocache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock sets the time source used to stamp and check expiry. The
// underlying store still drops items by wall-clock time, so a clock that
// runs behind time.Now cannot extend an entry's life.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates a Cache whose entries live for ttl. A ttl of zero or less
// selects [DefaultTTL].
func New[V any](ttl time.Duration, opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		// No cleanup interval: expired items are skipped on Get and
		// overwritten on Set.
		items: gocache.New(ttl, 0),
		ttl:   ttl,
		now:   o.now,
	}
}

// TTL returns the time-to-live applied by Set.
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the value stored under key if it is present and unexpired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	v, ok := c.items.Get(key)
	if !ok {
		return zero, false
	}
	e, ok := v.(entry[V])
	if !ok || !c.now().Before(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

// Set stores value under key until now+TTL and returns value unchanged, so
// callers can write `return c.Set(k, fetched)`.
func (c *Cache[V]) Set(key string, value V) V {
	c.items.SetDefault(key, entry[V]{value: value, expiresAt: c.now().Add(c.ttl)})
	return value
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.items.Delete(key)
}
