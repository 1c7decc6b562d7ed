package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestCacheGetSet(t *testing.T) {
	c := New[string, int](4)

	c.Set("x", 7)
	if v, ok := c.Get("x"); !ok || v != 7 {
		t.Errorf("Get(x) = %d, %v; want 7, true", v, ok)
	}
	if _, ok := c.Get("absent"); ok {
		t.Error("Get(absent) = true; want false")
	}

	c.Set("x", 8)
	if v, _ := c.Get("x"); v != 8 {
		t.Errorf("Get(x) after update = %d; want 8", v)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d; want 1", c.Len())
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2)

	c.Set("old", 1)
	c.Set("kept", 2)
	c.Get("old") // now "kept" is the LRU entry
	c.Set("new", 3)

	if _, ok := c.Get("kept"); ok {
		t.Error("kept should have been evicted")
	}
	for _, key := range []string{"old", "new"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("Get(%s) = false; want true", key)
		}
	}
	if got := c.Stats().Evicts; got != 1 {
		t.Errorf("Evicts = %d; want 1", got)
	}
}

func TestCacheEvictionOrderFull(t *testing.T) {
	c := New[int, int](3)
	for i := 0; i < 6; i++ {
		c.Set(i, i)
	}

	// Only the last three survive.
	for i := 0; i < 3; i++ {
		if _, ok := c.Get(i); ok {
			t.Errorf("Get(%d) = true; want evicted", i)
		}
	}
	for i := 3; i < 6; i++ {
		if v, ok := c.Get(i); !ok || v != i {
			t.Errorf("Get(%d) = %d, %v; want %d, true", i, v, ok, i)
		}
	}
}

func TestCacheDelete(t *testing.T) {
	c := New[string, string](2)
	c.Set("a", "1")
	c.Delete("a")
	c.Delete("never-there")

	if _, ok := c.Get("a"); ok {
		t.Error("Get(a) after Delete = true; want false")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d; want 0", c.Len())
	}

	// The list must stay consistent after deleting the only entry.
	c.Set("b", "2")
	c.Set("c", "3")
	c.Set("d", "4")
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted after refill")
	}
}

func TestCacheStats(t *testing.T) {
	c := New[string, int](2)

	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("miss")

	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("Stats() = %+v; want 2 hits, 1 miss", stats)
	}
	if want := 2.0 / 3.0; stats.HitRate != want {
		t.Errorf("HitRate = %f; want %f", stats.HitRate, want)
	}
	if stats.Capacity != 2 || stats.Size != 1 {
		t.Errorf("Stats() = %+v; want capacity 2, size 1", stats)
	}
}

func TestCacheClear(t *testing.T) {
	c := New[string, int](4)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d; want 0", c.Len())
	}
	c.Set("c", 3)
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Errorf("Get(c) = %d, %v; want 3, true", v, ok)
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := New[string, int](64)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 300; i++ {
				key := fmt.Sprintf("k%d", i%80)
				c.Set(key, w)
				c.Get(key)
				if i%17 == 0 {
					c.Delete(key)
				}
			}
		}(w)
	}
	wg.Wait()

	if c.Len() > 64 {
		t.Errorf("Len() = %d; want <= 64", c.Len())
	}
}
