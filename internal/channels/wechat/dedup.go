package wechat

import (
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	dedupWindow    = 30 * time.Minute
	dedupCapacity  = 1000
	dedupSweepEach = 5 * time.Minute
)

// DedupCache tracks recently seen message ids. The proxy redelivers
// callbacks on retries and reconnects, so every inbound message id is
// admitted at most once per window.
//
// Entries keep insertion order; capacity eviction removes the oldest
// insertion, which under a monotonic clock is also the oldest admit.
// Safe for concurrent use.
type DedupCache struct {
	mu        sync.Mutex
	entries   *orderedmap.OrderedMap[string, time.Time]
	capacity  int
	window    time.Duration
	sweepEach time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewDedupCache creates a cache with production defaults.
func NewDedupCache() *DedupCache {
	return newDedupCache(dedupCapacity, dedupWindow, dedupSweepEach, time.Now)
}

func newDedupCache(capacity int, window, sweepEach time.Duration, now func() time.Time) *DedupCache {
	return &DedupCache{
		entries:   orderedmap.New[string, time.Time](),
		capacity:  capacity,
		window:    window,
		sweepEach: sweepEach,
		lastSweep: now(),
		now:       now,
	}
}

// TryAdmit records the id and returns true if it has not been seen within
// the window. Returns false for duplicates, which the caller should drop.
func (c *DedupCache) TryAdmit(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	// Lazy sweep: expired entries are only reclaimed when enough time has
	// passed, keeping the common path a single map lookup.
	if now.Sub(c.lastSweep) > c.sweepEach {
		c.lastSweep = now
		for pair := c.entries.Oldest(); pair != nil; {
			next := pair.Next()
			if now.Sub(pair.Value) > c.window {
				c.entries.Delete(pair.Key)
			}
			pair = next
		}
	}

	// Evict oldest insertion when full
	if c.entries.Len() >= c.capacity {
		if oldest := c.entries.Oldest(); oldest != nil {
			c.entries.Delete(oldest.Key)
		}
	}

	if _, seen := c.entries.Get(id); seen {
		return false
	}
	c.entries.Set(id, now)
	return true
}

// Len returns the number of tracked ids.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
