// Package cache deduplicates and caches resolved series by (feed, window).
// Coalescing concurrent identical requests into one provider call is the
// primary defense against rate-limit violations when ad hoc queries and the
// rolling tick overlap.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gridkey/horizon/core/model"
)

// Loader resolves a series on a cache miss.
type Loader func(ctx context.Context, window model.Window) (model.TimeSeries, error)

type cacheKey struct {
	feed  model.FeedName
	start int64
	end   int64
}

func keyFor(feed model.FeedName, w model.Window) cacheKey {
	return cacheKey{feed: feed, start: w.Start.UnixNano(), end: w.End.UnixNano()}
}

func (k cacheKey) flightID() string {
	return fmt.Sprintf("%s/%d/%d", k.feed, k.start, k.end)
}

type cacheEntry struct {
	series  model.TimeSeries
	expires time.Time
	gen     uint64
}

// SeriesCache is a read-through cache with per-feed TTL, in-flight request
// coalescing and explicit invalidation.
type SeriesCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry
	gens    map[cacheKey]uint64
	flight  singleflight.Group
	now     func() time.Time
}

// New creates an empty SeriesCache.
func New() *SeriesCache {
	return &SeriesCache{
		entries: make(map[cacheKey]cacheEntry),
		gens:    make(map[cacheKey]uint64),
		now:     time.Now,
	}
}

// WithClock overrides the cache clock, for tests.
func (c *SeriesCache) WithClock(now func() time.Time) *SeriesCache {
	c.now = now
	return c
}

// GetOrFetch returns the cached series for (feed, window) if fresh,
// otherwise runs loader exactly once for all concurrent identical callers
// and stores the result with the feed's TTL. Cache hits are tagged with
// cache provenance unless the stored data is itself fallback-sourced, in
// which case the degraded tag is preserved.
//
// The second return value reports whether the call was served without a
// provider call of its own: a fresh entry, or a coalesced in-flight fetch.
func (c *SeriesCache) GetOrFetch(ctx context.Context, feed model.Feed, window model.Window, loader Loader) (model.TimeSeries, bool, error) {
	key := keyFor(feed.Name, window)
	if s, ok := c.lookup(key); ok {
		return s, true, nil
	}

	gen := c.generation(key)
	v, err, shared := c.flight.Do(key.flightID(), func() (any, error) {
		// Re-check under the flight: a racing caller may have populated
		// the entry between lookup and Do.
		if s, ok := c.lookup(key); ok {
			return s, nil
		}
		s, err := loader(ctx, window)
		if err != nil {
			return model.TimeSeries{}, err
		}
		c.store(key, s, feed.CacheTTL, gen)
		return s, nil
	})
	if err != nil {
		return model.TimeSeries{}, false, err
	}
	return v.(model.TimeSeries), shared, nil
}

// Invalidate drops the entry for (feed, window) and bumps its generation so
// an in-flight load for the stale window cannot resurrect it.
func (c *SeriesCache) Invalidate(feed model.FeedName, window model.Window) {
	key := keyFor(feed, window)
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()
}

// InvalidateFeed drops every cached window of the feed. Used when a caller
// requires guaranteed-live data.
func (c *SeriesCache) InvalidateFeed(feed model.FeedName) {
	c.mu.Lock()
	for k := range c.entries {
		if k.feed == feed {
			delete(c.entries, k)
			c.gens[k]++
		}
	}
	c.mu.Unlock()
}

// Len returns the number of live entries, expired ones included until their
// next lookup.
func (c *SeriesCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *SeriesCache) lookup(key cacheKey) (model.TimeSeries, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return model.TimeSeries{}, false
	}
	if c.now().After(e.expires) {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && cur.gen == e.gen {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return model.TimeSeries{}, false
	}
	return withCacheProvenance(e.series), true
}

func (c *SeriesCache) generation(key cacheKey) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[key]
}

func (c *SeriesCache) store(key cacheKey, s model.TimeSeries, ttl time.Duration, gen uint64) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		// Invalidated while the fetch was in flight.
		return
	}
	c.entries[key] = cacheEntry{series: s, expires: c.now().Add(ttl), gen: gen}
}

func withCacheProvenance(s model.TimeSeries) model.TimeSeries {
	out := s
	out.Provenance = make([]model.Provenance, len(s.Provenance))
	for i, p := range s.Provenance {
		if p.Mode == model.ProvenanceLive {
			p.Mode = model.ProvenanceCached
		}
		out.Provenance[i] = p
	}
	return out
}
