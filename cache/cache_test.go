package cache

import (
	"fmt"
	"testing"
	"time"
)

func newTestCache(capacity int) (*Cache, *time.Time) {
	c := New(capacity)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestSetGet(t *testing.T) {
	c, _ := newTestCache(4)
	c.Set("k", "v", time.Minute)

	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Fatalf("Get() = %v, %v; want v, true", got, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) reported a hit")
	}
}

func TestSetIsAlwaysObservable(t *testing.T) {
	// No admission policy: every Set must be visible to the next Get.
	c, _ := newTestCache(64)
	for i := 0; i < 64; i++ {
		key := fmt.Sprintf("k%d", i)
		c.Set(key, i, time.Minute)
		if _, ok := c.Get(key); !ok {
			t.Fatalf("Set(%s) not observable by immediate Get", key)
		}
	}
}

func TestTTLExpiry(t *testing.T) {
	c, now := newTestCache(4)
	c.Set("k", "v", time.Minute)

	*now = now.Add(59 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired before TTL")
	}

	*now = now.Add(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry survived past TTL")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after expiry cleanup, want 0", c.Len())
	}
}

func TestLRUEviction(t *testing.T) {
	c, _ := newTestCache(3)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute)

	// Touch "a" so "b" becomes the eviction candidate.
	c.Get("a")
	c.Set("d", 4, time.Minute)

	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry survived eviction")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("entry %q evicted unexpectedly", key)
		}
	}
}

func TestSetUpdatesExisting(t *testing.T) {
	c, _ := newTestCache(2)
	c.Set("k", "old", time.Minute)
	c.Set("k", "new", time.Minute)

	if got, _ := c.Get("k"); got != "new" {
		t.Errorf("Get() = %v, want new", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestInvalidate(t *testing.T) {
	c, _ := newTestCache(4)
	c.Set("k", "v", time.Minute)
	c.Invalidate("k")

	if _, ok := c.Get("k"); ok {
		t.Error("invalidated entry still present")
	}
	c.Invalidate("never-existed")
}

func TestInvalidatePrefix(t *testing.T) {
	c, _ := newTestCache(8)
	c.Set("history|c1|a", 1, time.Minute)
	c.Set("history|c1|b", 2, time.Minute)
	c.Set("history|c2|a", 3, time.Minute)
	c.Set("search|c1", 4, time.Minute)

	c.InvalidatePrefix("history|c1")

	if _, ok := c.Get("history|c1|a"); ok {
		t.Error("prefixed entry a survived")
	}
	if _, ok := c.Get("history|c1|b"); ok {
		t.Error("prefixed entry b survived")
	}
	if _, ok := c.Get("history|c2|a"); !ok {
		t.Error("other client's entry was dropped")
	}
	if _, ok := c.Get("search|c1"); !ok {
		t.Error("unrelated prefix was dropped")
	}
}
