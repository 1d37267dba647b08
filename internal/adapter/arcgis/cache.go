package arcgis

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/observability"
)

// CachedQuerier wraps a Querier with an in-memory LRU cache whose entries
// expire after a TTL.
type CachedQuerier struct {
	inner   Querier
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedQuerier creates a cache decorator around a querier.
func NewCachedQuerier(inner Querier, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedQuerier {
	return &CachedQuerier{
		inner:   inner,
		cache:   newLRUCache(maxEntries, ttl, clock),
		metrics: metrics,
	}
}

func (c *CachedQuerier) Query(ctx context.Context, layerID int, opts QueryOptions) (*geojson.FeatureCollection, error) {
	key := opts.key(layerID)
	if fc, ok := c.cache.get(key); ok {
		c.metrics.QueryCache.WithLabelValues("hit").Inc()
		return fc, nil
	}
	c.metrics.QueryCache.WithLabelValues("miss").Inc()

	fc, err := c.inner.Query(ctx, layerID, opts)
	if err != nil {
		return nil, err
	}
	c.cache.put(key, fc)
	return fc, nil
}

// Len returns the number of cached entries, expired ones included.
func (c *CachedQuerier) Len() int {
	return c.cache.len()
}

// lruCache is a thread-safe LRU cache of query results with per-entry expiry.
type lruCache struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key     string
	value   *geojson.FeatureCollection
	expires time.Time
	prev    *entry
	next    *entry
}

func newLRUCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (*geojson.FeatureCollection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expires) {
		delete(c.entries, key)
		c.remove(e)
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value *geojson.FeatureCollection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expires = expires
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expires: expires}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
