package wechat

import (
	"fmt"
	"testing"
	"time"
)

// stepClock is a controllable clock for dedup tests.
type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time          { return c.t }
func (c *stepClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(capacity int) (*DedupCache, *stepClock) {
	clock := &stepClock{t: time.UnixMilli(1700000000000)}
	return newDedupCache(capacity, dedupWindow, dedupSweepEach, clock.now), clock
}

func TestTryAdmit_Duplicate(t *testing.T) {
	cache, _ := newTestCache(10)

	if !cache.TryAdmit("msg-1") {
		t.Fatal("first admit should succeed")
	}
	if cache.TryAdmit("msg-1") {
		t.Error("second admit of same id should fail")
	}
	if !cache.TryAdmit("msg-2") {
		t.Error("different id should be admitted")
	}
}

func TestTryAdmit_WindowExpiry(t *testing.T) {
	cache, clock := newTestCache(10)

	cache.TryAdmit("msg-1")

	// Still inside the window after a sweep interval
	clock.advance(dedupSweepEach + time.Second)
	if cache.TryAdmit("msg-1") {
		t.Error("id still in window should be rejected")
	}

	// Past the window and past a sweep boundary
	clock.advance(dedupWindow + time.Second)
	if !cache.TryAdmit("msg-1") {
		t.Error("expired id should be admitted again")
	}
}

func TestTryAdmit_CapacityEviction(t *testing.T) {
	cache, _ := newTestCache(3)

	for i := 0; i < 3; i++ {
		cache.TryAdmit(fmt.Sprintf("msg-%d", i))
	}
	if cache.Len() != 3 {
		t.Fatalf("Len = %d", cache.Len())
	}

	// Fourth insert evicts the oldest entry
	cache.TryAdmit("msg-3")
	if cache.Len() != 3 {
		t.Errorf("Len = %d, capacity should hold", cache.Len())
	}
	if !cache.TryAdmit("msg-0") {
		t.Error("evicted oldest id should be admittable again")
	}
	if cache.TryAdmit("msg-3") {
		t.Error("recent id should still be tracked")
	}
}

func TestTryAdmit_DuplicateOfEvictedHead(t *testing.T) {
	cache, _ := newTestCache(2)

	cache.TryAdmit("msg-a")
	cache.TryAdmit("msg-b")

	// At capacity the oldest insertion is evicted before the duplicate
	// check, so the oldest id itself re-admits as fresh.
	if !cache.TryAdmit("msg-a") {
		t.Error("oldest id at capacity should re-admit after its own eviction")
	}
	if cache.Len() != 2 {
		t.Errorf("Len = %d, capacity should hold", cache.Len())
	}
}

func TestTryAdmit_SweepReclaimsSpace(t *testing.T) {
	cache, clock := newTestCache(100)

	for i := 0; i < 50; i++ {
		cache.TryAdmit(fmt.Sprintf("old-%d", i))
	}
	clock.advance(dedupWindow + time.Minute)
	cache.TryAdmit("fresh")

	// The sweep during the "fresh" admit should have dropped the old ids
	if got := cache.Len(); got != 1 {
		t.Errorf("Len = %d after sweep, want 1", got)
	}
}

func TestTryAdmit_Concurrent(t *testing.T) {
	cache := NewDedupCache()
	const workers = 8

	admitted := make(chan int, workers)
	for w := 0; w < workers; w++ {
		go func() {
			n := 0
			if cache.TryAdmit("contested") {
				n = 1
			}
			admitted <- n
		}()
	}

	total := 0
	for w := 0; w < workers; w++ {
		total += <-admitted
	}
	if total != 1 {
		t.Errorf("admitted %d times, want exactly 1", total)
	}
}
