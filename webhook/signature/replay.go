package signature

import (
	"sort"
	"sync"
	"time"
)

const (
	// DefaultReplayWindow is how long a fingerprint is rejected as a duplicate
	DefaultReplayWindow = 10 * time.Minute

	// DefaultMaxEntries caps the in-memory cache size
	DefaultMaxEntries = 5000
)

/* ReplayCache stores recently-seen request fingerprints. Injectable so
 * multi-instance deployments can swap the default in-memory cache for
 * a distributed one; the verifier only depends on this interface.
 */
type ReplayCache interface {
	// Seen reports whether the fingerprint is present and unexpired
	Seen(fingerprint string, now time.Time) bool
	// Remember inserts the fingerprint with the cache's TTL
	Remember(fingerprint string, now time.Time)
	// Evict removes expired entries
	Evict(now time.Time)
}

/* MemoryReplayCache is the default size-and-TTL-bounded cache, shared
 * process-wide across verifier instances behind a single lock.
 *
 * Eviction is lazy: expired entries are dropped on each check, and when
 * the map exceeds the hard cap the oldest-expiring half is evicted.
 * That bounds memory under sustained load at the cost of a widened
 * replay window for the evicted fraction.
 */
type MemoryReplayCache struct {
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[string]time.Time // fingerprint -> expiry
}

// NewMemoryReplayCache creates the default replay cache. Non-positive
// arguments fall back to the package defaults.
func NewMemoryReplayCache(ttl time.Duration, maxEntries int) *MemoryReplayCache {
	if ttl <= 0 {
		ttl = DefaultReplayWindow
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryReplayCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]time.Time),
	}
}

// Seen reports whether the fingerprint is present and unexpired,
// lazily removing expired entries along the way
func (c *MemoryReplayCache) Seen(fingerprint string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpiredLocked(now)

	expiry, exists := c.entries[fingerprint]
	if !exists {
		return false
	}
	if now.After(expiry) {
		delete(c.entries, fingerprint)
		return false
	}
	return true
}

// Remember inserts the fingerprint, evicting the oldest-expiring half
// when the cache is over its hard cap
func (c *MemoryReplayCache) Remember(fingerprint string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fingerprint] = now.Add(c.ttl)

	if len(c.entries) > c.maxEntries {
		c.evictOldestHalfLocked()
	}
}

// Evict removes all expired entries
func (c *MemoryReplayCache) Evict(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpiredLocked(now)
}

// Len returns the number of cached fingerprints
func (c *MemoryReplayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryReplayCache) evictExpiredLocked(now time.Time) {
	for fp, expiry := range c.entries {
		if now.After(expiry) {
			delete(c.entries, fp)
		}
	}
}

func (c *MemoryReplayCache) evictOldestHalfLocked() {
	type entry struct {
		fp     string
		expiry time.Time
	}
	all := make([]entry, 0, len(c.entries))
	for fp, expiry := range c.entries {
		all = append(all, entry{fp: fp, expiry: expiry})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].expiry.Before(all[j].expiry)
	})
	for i := 0; i < len(all)/2; i++ {
		delete(c.entries, all[i].fp)
	}
}

var _ ReplayCache = (*MemoryReplayCache)(nil)
