package cache

import (
	"errors"
	"testing"
	"time"
)

// testClock replaces the cache's wall clock with a manual one.
func testClock(c *Cache[string], startMs int64) *int64 {
	now := startMs
	c.now = func() int64 { return now }
	return &now
}

func TestCache_SetGetHas(t *testing.T) {
	c := New[string](time.Minute)
	now := testClock(c, 1000)

	c.Set("a", "alpha")

	v, ok := c.Get("a")
	if !ok || v != "alpha" {
		t.Fatalf("Get = %q, %v; want alpha, true", v, ok)
	}
	if !c.Has("a") {
		t.Error("Has should report a live entry")
	}

	// Past expiry the entry is absent and evicted.
	*now = 1000 + time.Minute.Milliseconds() + 1
	if _, ok := c.Get("a"); ok {
		t.Error("Expired entry should miss")
	}
	if c.Has("a") {
		t.Error("Has should miss after expiry")
	}
	if c.Len() != 0 {
		t.Errorf("Expired entry not lazily evicted: len %d", c.Len())
	}
}

func TestCache_ExpiresExactlyAtTTL(t *testing.T) {
	c := New[string](time.Minute)
	now := testClock(c, 1000)

	c.Set("a", "alpha")

	// One tick before the boundary the entry is still live.
	*now = 1000 + time.Minute.Milliseconds() - 1
	if !c.Has("a") {
		t.Error("Entry should be live just before createdAt + ttl")
	}

	// At exactly createdAt + ttl the entry is gone.
	*now = 1000 + time.Minute.Milliseconds()
	if _, ok := c.Get("a"); ok {
		t.Error("Entry should miss at exactly createdAt + ttl")
	}

	c.SetTTL("b", "beta", time.Second)
	*now += time.Second.Milliseconds()
	if removed := c.Sweep(); removed != 1 {
		t.Errorf("Sweep at the boundary removed %d, want 1", removed)
	}
}

func TestCache_SetTTLOverridesDefault(t *testing.T) {
	c := New[string](time.Hour)
	now := testClock(c, 0)

	c.SetTTL("short", "v", time.Second)

	*now = time.Second.Milliseconds() + 1
	if _, ok := c.Get("short"); ok {
		t.Error("Entry should honor its explicit TTL")
	}
}

func TestCache_CachedFetch(t *testing.T) {
	c := New[string](time.Minute)
	testClock(c, 1000)

	calls := 0
	producer := func() (string, error) {
		calls++
		return "produced", nil
	}

	v, err := c.CachedFetch("k", time.Minute, producer)
	if err != nil || v != "produced" {
		t.Fatalf("CachedFetch = %q, %v", v, err)
	}
	v, err = c.CachedFetch("k", time.Minute, producer)
	if err != nil || v != "produced" {
		t.Fatalf("CachedFetch (cached) = %q, %v", v, err)
	}
	if calls != 1 {
		t.Errorf("Producer ran %d times, want 1", calls)
	}
}

func TestCache_CachedFetchErrorNotCached(t *testing.T) {
	c := New[string](time.Minute)
	testClock(c, 1000)

	boom := errors.New("upstream down")
	_, err := c.CachedFetch("k", time.Minute, func() (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Expected producer error, got %v", err)
	}
	if c.Has("k") {
		t.Error("Failed fetch should cache nothing")
	}

	v, err := c.CachedFetch("k", time.Minute, func() (string, error) { return "recovered", nil })
	if err != nil || v != "recovered" {
		t.Errorf("Retry after error = %q, %v", v, err)
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := New[string](time.Minute)
	testClock(c, 1000)

	c.Set("a", "1")
	if !c.Invalidate("a") {
		t.Error("Invalidate should report a removed live entry")
	}
	if c.Invalidate("a") {
		t.Error("Second invalidate should report nothing removed")
	}
}

func TestCache_InvalidatePattern(t *testing.T) {
	c := New[string](time.Minute)
	testClock(c, 1000)

	c.Set("value:p1:dynasty:E1", "a")
	c.Set("value:p1:redraft:E1", "b")
	c.Set("value:p2:dynasty:E1", "c")
	c.Set("value:p1:dynasty:E2", "d")

	removed := c.InvalidatePattern("value:p1:*:E1")
	if removed != 2 {
		t.Fatalf("Removed %d keys, want 2", removed)
	}
	if c.Has("value:p1:dynasty:E1") || c.Has("value:p1:redraft:E1") {
		t.Error("Matched keys should be gone")
	}
	if !c.Has("value:p2:dynasty:E1") || !c.Has("value:p1:dynasty:E2") {
		t.Error("Unmatched keys should survive")
	}
}

func TestCache_Sweep(t *testing.T) {
	c := New[string](time.Minute)
	now := testClock(c, 0)

	c.SetTTL("stale1", "a", time.Second)
	c.SetTTL("stale2", "b", time.Second)
	c.SetTTL("live", "c", time.Hour)

	*now = time.Second.Milliseconds() + 1
	if removed := c.Sweep(); removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
	if c.Len() != 1 || !c.Has("live") {
		t.Errorf("Sweep should keep live entries: len %d", c.Len())
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"exact", "exact", true},
		{"exact", "exactly", false},
		{"*", "anything", true},
		{"value:*", "value:p1:E1", true},
		{"value:*", "trade:p1:E1", false},
		{"*:E1", "value:p1:E1", true},
		{"*:E1", "value:p1:E2", false},
		{"value:*:E1", "value:p1:dynasty:E1", true},
		{"a*b*c", "aXbYc", true},
		{"a*b*c", "aXcYb", false},
	}
	for _, tt := range tests {
		if got := matchPattern(tt.pattern, tt.key); got != tt.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.key, got, tt.want)
		}
	}
}
