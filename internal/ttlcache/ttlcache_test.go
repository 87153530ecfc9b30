package ttlcache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock drives the cache's notion of time so TTL behavior is tested
// without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestCache_GetSet verifies that Set stores values and Get retrieves them
// while they are within the supplied TTL.
func TestCache_GetSet(t *testing.T) {
	c := New[string, int]()
	c.Set("a", 42)

	got, ok := c.Get("a", time.Minute)
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got != 42 {
		t.Errorf("Get() = %d, want 42", got)
	}
}

// TestCache_Get_Miss verifies that Get returns ok=false for keys that were
// never stored.
func TestCache_Get_Miss(t *testing.T) {
	c := New[string, int]()
	if _, ok := c.Get("nonexistent", time.Minute); ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestCache_Get_ReadTimeTTL verifies that TTL is a property of the read: the
// same entry is fresh under a long TTL and expired under a short one, and an
// expired read evicts the entry.
func TestCache_Get_ReadTimeTTL(t *testing.T) {
	clock := newFakeClock()
	c := New[string, string]()
	c.now = clock.Now

	c.Set("chicago", "sunny")
	clock.Advance(30 * time.Second)

	if _, ok := c.Get("chicago", time.Minute); !ok {
		t.Error("Get(ttl=1m) ok = false, want true at age 30s")
	}
	if _, ok := c.Get("chicago", 10*time.Second); ok {
		t.Error("Get(ttl=10s) ok = true, want false at age 30s")
	}
	// The short-TTL read evicted the entry, so even the long TTL misses now.
	if _, ok := c.Get("chicago", time.Minute); ok {
		t.Error("Get() ok = true, want false after eviction on expired read")
	}
}

// TestCache_Set_Overwrites verifies that Set unconditionally replaces prior
// entries and refreshes the write timestamp.
func TestCache_Set_Overwrites(t *testing.T) {
	clock := newFakeClock()
	c := New[string, string]()
	c.now = clock.Now

	c.Set("k", "old")
	clock.Advance(50 * time.Second)
	c.Set("k", "new")
	clock.Advance(30 * time.Second)

	got, ok := c.Get("k", time.Minute)
	if !ok {
		t.Fatal("Get() ok = false, want true for rewritten entry")
	}
	if got != "new" {
		t.Errorf("Get() = %q, want %q", got, "new")
	}
}

// TestCache_Len verifies that Len counts entries including expired ones that
// have not been swept.
func TestCache_Len(t *testing.T) {
	clock := newFakeClock()
	c := New[string, int]()
	c.now = clock.Now

	c.Set("a", 1)
	c.Set("b", 2)
	clock.Advance(time.Hour)

	if got := c.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2 (expired entries still counted)", got)
	}
}

// TestCache_Sweep verifies that Sweep removes only entries older than the
// supplied TTL and reports the eviction count.
func TestCache_Sweep(t *testing.T) {
	clock := newFakeClock()
	c := New[string, int]()
	c.now = clock.Now

	c.Set("old1", 1)
	c.Set("old2", 2)
	clock.Advance(2 * time.Minute)
	c.Set("fresh", 3)

	evicted := c.Sweep(time.Minute)
	if evicted != 2 {
		t.Errorf("Sweep() = %d, want 2", evicted)
	}
	if got := c.Len(); got != 1 {
		t.Errorf("Len() after sweep = %d, want 1", got)
	}
	if _, ok := c.Get("fresh", time.Minute); !ok {
		t.Error("fresh entry evicted by sweep, want kept")
	}
}

// TestCache_Clear verifies that Clear empties the cache.
func TestCache_Clear(t *testing.T) {
	c := New[string, int]()
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()
	if got := c.Len(); got != 0 {
		t.Errorf("Len() after Clear = %d, want 0", got)
	}
}

// TestCache_Concurrent exercises concurrent Get/Set/Sweep for map-corruption
// races; run with -race.
func TestCache_Concurrent(t *testing.T) {
	c := New[int, int]()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Set(j%32, n)
				c.Get(j%32, time.Minute)
				if j%50 == 0 {
					c.Sweep(time.Minute)
				}
			}
		}(i)
	}
	wg.Wait()
}

// TestMemoize_HitDoesNotInvoke verifies that a cache hit returns the stored
// result without calling the wrapped function again.
func TestMemoize_HitDoesNotInvoke(t *testing.T) {
	calls := 0
	f := Memoize("square", time.Minute, func(n int) (int, error) {
		calls++
		return n * n, nil
	})

	for i := 0; i < 3; i++ {
		got, err := f.Call(7)
		if err != nil {
			t.Fatalf("Call() error = %v", err)
		}
		if got != 49 {
			t.Errorf("Call(7) = %d, want 49", got)
		}
	}
	if calls != 1 {
		t.Errorf("wrapped function called %d times, want 1", calls)
	}

	if _, err := f.Call(8); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("wrapped function called %d times, want 2 after new argument", calls)
	}
	if f.Len() != 2 {
		t.Errorf("Len() = %d, want 2", f.Len())
	}
}

// TestMemoize_ErrorsNotCached verifies that failed calls are retried rather
// than served from cache.
func TestMemoize_ErrorsNotCached(t *testing.T) {
	calls := 0
	f := Memoize("flaky", time.Minute, func(s string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "ok:" + s, nil
	})

	if _, err := f.Call("x"); err == nil {
		t.Fatal("Call() error = nil, want transient error")
	}
	got, err := f.Call("x")
	if err != nil {
		t.Fatalf("Call() retry error = %v", err)
	}
	if got != "ok:x" {
		t.Errorf("Call() = %q, want %q", got, "ok:x")
	}
	if calls != 2 {
		t.Errorf("wrapped function called %d times, want 2", calls)
	}
}

// TestMemoize_Clear verifies that Clear forces recomputation.
func TestMemoize_Clear(t *testing.T) {
	calls := 0
	f := Memoize("count", time.Minute, func(n int) (string, error) {
		calls++
		return fmt.Sprintf("v%d", n), nil
	})
	f.Call(1)
	f.Clear()
	f.Call(1)
	if calls != 2 {
		t.Errorf("wrapped function called %d times, want 2 after Clear", calls)
	}
}
