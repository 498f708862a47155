package cache

import (
	"testing"
	"time"
)

func TestSetAndGet(t *testing.T) {
	c := New()

	c.Set("k", "value", time.Minute)

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.(string) != "value" {
		t.Errorf("Get = %q, want %q", got, "value")
	}
}

func TestExpiredEntryIsMiss(t *testing.T) {
	c := New()

	c.Set("k", "value", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestMissOnUnknownKey(t *testing.T) {
	c := New()

	if _, ok := c.Get("never-set"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestQueryKeyStable(t *testing.T) {
	a := QueryKey("global news", 5)
	b := QueryKey("global news", 5)
	if a != b {
		t.Error("same query must produce the same key")
	}

	if QueryKey("global news", 5) == QueryKey("global news", 10) {
		t.Error("different result counts must produce different keys")
	}
	if QueryKey("global news", 5) == QueryKey("local news", 5) {
		t.Error("different queries must produce different keys")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	c := New()

	c.Set("old", 1, time.Millisecond)
	c.Set("fresh", 2, time.Minute)
	time.Sleep(5 * time.Millisecond)

	c.sweep()

	if c.Len() != 1 {
		t.Errorf("Len = %d after sweep, want 1", c.Len())
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("sweep must keep unexpired entries")
	}
}
