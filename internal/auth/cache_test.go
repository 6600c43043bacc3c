package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/pkg/models"
)

func testKey(name string) *models.APIKey {
	return &models.APIKey{ID: uuid.New(), Name: name, Enabled: true}
}

func TestCacheHitThenExpiry(t *testing.T) {
	now := time.Now()
	c := NewCache(5*time.Minute, time.Minute, nil)
	c.now = func() time.Time { return now }

	c.Put("hash-a", testKey("a"))

	if _, ok := c.Get("hash-a"); !ok {
		t.Fatal("fresh entry should hit")
	}

	now = now.Add(5*time.Minute + time.Second)
	if _, ok := c.Get("hash-a"); ok {
		t.Error("expired entry should miss")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be evicted on read, len = %d", c.Len())
	}
}

func TestCacheSweepClearsExpiredEntries(t *testing.T) {
	now := time.Now()
	c := NewCache(time.Minute, time.Minute, nil)
	c.now = func() time.Time { return now }
	c.lastSweep = now

	c.Put("a", testKey("a"))
	c.Put("b", testKey("b"))

	// Both entries expire; the next read after a sweep interval clears them
	// even though neither hash is read directly.
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("unrelated"); ok {
		t.Fatal("unexpected hit")
	}
	if c.Len() != 0 {
		t.Errorf("sweep should drop expired entries, len = %d", c.Len())
	}
}

func TestCacheSweepWaitsForInterval(t *testing.T) {
	now := time.Now()
	c := NewCache(time.Minute, time.Hour, nil)
	c.now = func() time.Time { return now }
	c.lastSweep = now

	c.Put("a", testKey("a"))

	// Expired but inside the sweep interval; only the read hash is evicted.
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("unrelated"); ok {
		t.Fatal("unexpected hit")
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1 (no sweep yet)", c.Len())
	}
}

func TestCacheRemoveAndClear(t *testing.T) {
	c := NewCache(time.Minute, time.Minute, nil)
	c.Put("a", testKey("a"))
	c.Put("b", testKey("b"))

	c.Remove("a")
	if _, ok := c.Get("a"); ok {
		t.Error("removed entry should miss")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("unrelated entry should survive Remove")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("len after Clear = %d, want 0", c.Len())
	}
}

func TestCacheDefaults(t *testing.T) {
	c := NewCache(0, 0, nil)
	if c.ttl != 5*time.Minute {
		t.Errorf("default ttl = %v, want 5m", c.ttl)
	}
	if c.sweepEvery != time.Minute {
		t.Errorf("default sweep = %v, want 1m", c.sweepEvery)
	}
}
