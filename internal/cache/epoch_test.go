package cache

import (
	"strings"
	"testing"
	"time"
)

func TestEpochManager_KeyCarriesEpoch(t *testing.T) {
	c := New[string](time.Minute)
	m := NewEpochManager(c)

	key := m.Key("value", "p1", "dynasty")
	if !strings.HasSuffix(key, ":"+m.Current()) {
		t.Errorf("Key %q should end with the current epoch", key)
	}
	if !strings.HasPrefix(key, "value:p1:dynasty:") {
		t.Errorf("Key %q has wrong prefix", key)
	}
}

func TestEpochManager_AdvancePurgesOldEpoch(t *testing.T) {
	c := New[string](time.Hour)
	testClock(c, 1000)
	m := NewEpochManager(c)

	// a and b cached under epoch one; after advancing, a recached under
	// epoch two while b's old entry must be unreachable and gone.
	e1 := m.Current()
	c.Set(m.Key("value", "a"), "a@e1")
	c.Set(m.Key("value", "b"), "b@e1")

	e2 := m.NewEpochID()
	retired := m.Advance(e2)
	if retired != e1 {
		t.Errorf("Advance returned %q, want %q", retired, e1)
	}
	if m.Current() != e2 {
		t.Errorf("Current = %q, want %q", m.Current(), e2)
	}

	c.Set(m.Key("value", "a"), "a@e2")

	if v, ok := c.Get(m.Key("value", "a")); !ok || v != "a@e2" {
		t.Errorf("New-epoch entry missing: %q, %v", v, ok)
	}
	if c.Has("value:b:" + e1) {
		t.Error("Old-epoch entry should be purged on advance")
	}
	if c.Has(m.Key("value", "b")) {
		t.Error("b was never cached under the new epoch")
	}
}

func TestEpochManager_InvalidateEpoch(t *testing.T) {
	c := New[string](time.Hour)
	testClock(c, 1000)
	m := NewEpochManager(c)

	c.Set(m.Key("value", "a"), "x")
	c.Set("value:a:some-other-epoch", "y")

	removed := m.InvalidateEpoch(m.Current())
	if removed != 1 {
		t.Errorf("InvalidateEpoch removed %d, want 1", removed)
	}
	if !c.Has("value:a:some-other-epoch") {
		t.Error("Other epochs should be unaffected")
	}
}
