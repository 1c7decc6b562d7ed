package cache

import (
	"testing"
	"time"
)

func TestTTL_Basic(t *testing.T) {
	c := NewTTL[string, bool](time.Minute)

	c.Set("Patient/123", true)
	if v, ok := c.Get("Patient/123"); !ok || !v {
		t.Errorf("Get = %v, %v; want true, true", v, ok)
	}
	if _, ok := c.Get("Patient/999"); ok {
		t.Error("missing key should be a miss")
	}
}

func TestTTL_Expiry(t *testing.T) {
	c := NewTTL[string, int](time.Minute)

	now := time.Now()
	c.SetClock(func() time.Time { return now })

	c.Set("a", 1)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("entry should be live")
	}

	// Advance past the TTL; entry becomes a miss and is evicted.
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Error("expired entry should be a miss")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d; expired entry should have been evicted", c.Len())
	}
}

func TestTTL_RefreshOnSet(t *testing.T) {
	c := NewTTL[string, int](time.Minute)

	now := time.Now()
	c.SetClock(func() time.Time { return now })

	c.Set("a", 1)
	now = now.Add(45 * time.Second)
	c.Set("a", 2)
	now = now.Add(45 * time.Second)

	// 90s since first store, 45s since refresh: still live.
	if v, ok := c.Get("a"); !ok || v != 2 {
		t.Errorf("Get(a) = %d, %v; want 2, true", v, ok)
	}
}

func TestTTL_Prune(t *testing.T) {
	c := NewTTL[string, int](time.Minute)

	now := time.Now()
	c.SetClock(func() time.Time { return now })

	c.Set("old", 1)
	now = now.Add(2 * time.Minute)
	c.Set("fresh", 2)

	if removed := c.Prune(); removed != 1 {
		t.Errorf("Prune() = %d; want 1", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d; want 1", c.Len())
	}
}
