// Package cache provides a TTL-bounded in-memory store for fetched price
// series, keyed by (symbol, window) with minute-granular window bucketing.
//
// Eviction is lazy: expired entries are removed by the sweep that runs on
// every insert, never by a background timer. Memory can therefore briefly
// hold dead entries between inserts, but a Get never returns one. A coarse
// mutex over the whole map is deliberate; population is bounded by the
// number of active symbols, tens rather than thousands.
package cache

import (
	"log/slog"
	"sync"
	"time"

	"marketfetch/internal/models"
)

// DefaultTTL is the maximum age of a cache entry before it is stale.
const DefaultTTL = 15 * time.Minute

type entry struct {
	series   models.PriceSeries
	inserted time.Time
}

// PriceCache maps fetch windows to previously fetched series.
type PriceCache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	logger  *slog.Logger

	// now is swappable for TTL tests.
	now func() time.Time
}

// New creates a cache with the given TTL. Non-positive values select
// DefaultTTL.
func New(ttl time.Duration, logger *slog.Logger) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PriceCache{
		entries: make(map[string]entry),
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the cached series for the window, or false when the key is
// absent or the entry's age has reached the TTL. Stale entries are removed
// on the spot so a refetch repopulates them.
func (c *PriceCache) Get(symbol string, start, end time.Time) (models.PriceSeries, bool) {
	key := models.NewFetchWindow(symbol, start, end).Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.inserted) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.series, true
}

// Put stores a series under the window's key and sweeps expired entries.
func (c *PriceCache) Put(symbol string, start, end time.Time, series models.PriceSeries) {
	key := models.NewFetchWindow(symbol, start, end).Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{series: series, inserted: c.now()}
	c.sweep()
}

// sweep removes every entry older than the TTL. Callers must hold the mutex.
// O(n) per insert is acceptable at this cardinality.
func (c *PriceCache) sweep() {
	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.inserted) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("swept expired cache entries", "removed", removed, "remaining", len(c.entries))
	}
}

// Len returns the number of entries currently held, expired or not.
func (c *PriceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
