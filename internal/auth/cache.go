package auth

import (
	"sync"
	"time"

	"github.com/cortexdb/cortexdb/internal/observability"
	"github.com/cortexdb/cortexdb/pkg/models"
)

// Cache holds authenticated keys for a TTL so the hot path skips the
// database. Expired entries are evicted lazily on read; whichever reader
// first notices a sweep interval has elapsed clears out the rest.
type Cache struct {
	ttl        time.Duration
	sweepEvery time.Duration
	metrics    *observability.Metrics

	mu        sync.Mutex
	entries   map[string]cacheEntry
	lastSweep time.Time

	// now is swapped in tests.
	now func() time.Time
}

type cacheEntry struct {
	key       *models.APIKey
	expiresAt time.Time
}

// NewCache builds a key cache. Non-positive durations fall back to 5m TTL
// and 1m sweeps.
func NewCache(ttl, sweepEvery time.Duration, metrics *observability.Metrics) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	return &Cache{
		ttl:        ttl,
		sweepEvery: sweepEvery,
		metrics:    metrics,
		entries:    make(map[string]cacheEntry),
		lastSweep:  time.Now(),
		now:        time.Now,
	}
}

// Get returns the cached key for a hash, if present and fresh.
func (c *Cache) Get(hash string) (*models.APIKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.maybeSweep(now)

	e, ok := c.entries[hash]
	if ok && now.Before(e.expiresAt) {
		c.observe(true)
		return e.key, true
	}
	if ok {
		delete(c.entries, hash)
	}
	c.observe(false)
	return nil, false
}

// Put caches a freshly authenticated key.
func (c *Cache) Put(hash string, key *models.APIKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hash] = cacheEntry{key: key, expiresAt: c.now().Add(c.ttl)}
}

// Remove drops one entry, used when a key is updated or deleted.
func (c *Cache) Remove(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, hash)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len reports the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// maybeSweep clears expired entries when a sweep interval has elapsed.
// Caller holds the lock.
func (c *Cache) maybeSweep(now time.Time) {
	if now.Sub(c.lastSweep) < c.sweepEvery {
		return
	}
	for hash, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, hash)
		}
	}
	c.lastSweep = now
}

func (c *Cache) observe(hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup("auth", hit)
	}
}
