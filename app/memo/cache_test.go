package memo

import (
	"fmt"
	"testing"
	"time"

	"github.com/ykarpov/inboxflow/app/taxonomy"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time {
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.t = f.t.Add(d)
}

func newResult(summary string) taxonomy.ClassificationResult {
	return taxonomy.ClassificationResult{
		Category: taxonomy.CategoryJob,
		Summary:  summary,
	}
}

func TestSetThenGet(t *testing.T) {
	c := NewCache()

	c.Set("k", newResult("s"))

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if got.Summary != "s" {
		t.Errorf("Expected summary 's', got %q", got.Summary)
	}
}

func TestGetMiss(t *testing.T) {
	c := NewCache()

	if _, ok := c.Get("absent"); ok {
		t.Error("Expected cache miss for absent key")
	}

	hits, misses := c.Stats()
	if hits != 0 || misses != 1 {
		t.Errorf("Expected 0 hits / 1 miss, got %d / %d", hits, misses)
	}
}

func TestTTLExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache(WithTTL(time.Hour), WithClock(clock.now))

	c.Set("k", newResult("s"))

	clock.advance(59 * time.Minute)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("Expected hit before TTL elapsed")
	}

	clock.advance(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("Expected miss after TTL elapsed")
	}

	// The expired read must also have evicted the entry.
	if c.Len() != 0 {
		t.Errorf("Expected empty cache after expired read, got %d entries", c.Len())
	}
}

func TestCapacityBound(t *testing.T) {
	c := NewCache(WithMaxEntries(3))

	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k%d", i), newResult("s"))
		if c.Len() > 3 {
			t.Fatalf("Cache exceeded capacity: %d entries after insert %d", c.Len(), i)
		}
	}

	// Oldest entries evicted first.
	if _, ok := c.Get("k0"); ok {
		t.Error("Expected k0 to be evicted")
	}
	if _, ok := c.Get("k9"); !ok {
		t.Error("Expected k9 to be retained")
	}
}

func TestLRUPromotion(t *testing.T) {
	c := NewCache(WithMaxEntries(2))

	c.Set("a", newResult("a"))
	c.Set("b", newResult("b"))

	// Touch a so that b becomes the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("Expected hit on a")
	}

	c.Set("c", newResult("c"))

	if _, ok := c.Get("b"); ok {
		t.Error("Expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("Expected a to survive")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("Expected c to be present")
	}
}

func TestUpdateRefreshesExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache(WithTTL(time.Hour), WithClock(clock.now))

	c.Set("k", newResult("old"))

	clock.advance(50 * time.Minute)
	c.Set("k", newResult("new"))

	// 50 + 30 minutes is past the original expiry but inside the refreshed one.
	clock.advance(30 * time.Minute)
	got, ok := c.Get("k")
	if !ok {
		t.Fatal("Expected hit after expiry refresh")
	}
	if got.Summary != "new" {
		t.Errorf("Expected updated value, got %q", got.Summary)
	}
}

func TestExpiredPrunedBeforeInsert(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache(WithMaxEntries(10), WithTTL(time.Hour), WithClock(clock.now))

	c.Set("old1", newResult("s"))
	c.Set("old2", newResult("s"))

	clock.advance(2 * time.Hour)
	c.Set("fresh", newResult("s"))

	if c.Len() != 1 {
		t.Errorf("Expected expired entries pruned on insert, got %d entries", c.Len())
	}
}

func TestPromotedEntryKeepsOriginalExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache(WithTTL(time.Hour), WithClock(clock.now))

	c.Set("old", newResult("s"))
	clock.advance(30 * time.Minute)
	c.Set("fresh", newResult("s"))

	// Promoting old puts the still-live fresh entry at the cold end, so the
	// insert-time prune stops before reaching old once it expires.
	if _, ok := c.Get("old"); !ok {
		t.Fatal("Expected hit on old before its TTL elapsed")
	}

	clock.advance(40 * time.Minute)
	c.Set("new", newResult("s"))

	// old expired 10 minutes ago; promotion must not have extended its life.
	if _, ok := c.Get("old"); ok {
		t.Error("Expected promoted entry to expire on its original schedule")
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("Expected fresh to still be live")
	}
}

func TestFingerprintDeterminism(t *testing.T) {
	params := map[string]string{"labelName": "jobs", "model": "m1"}

	a := Fingerprint("summarize", "hello", params)
	b := Fingerprint("summarize", "hello", map[string]string{"model": "m1", "labelName": "jobs"})
	if a != b {
		t.Error("Expected identical fingerprints for identical inputs")
	}

	if Fingerprint("summarize", "hello", nil) == Fingerprint("categorize", "hello", nil) {
		t.Error("Expected purpose tag to affect the fingerprint")
	}
	if Fingerprint("summarize", "hello", nil) == Fingerprint("summarize", "world", nil) {
		t.Error("Expected content to affect the fingerprint")
	}
}

func TestFingerprintUnicodeNormalization(t *testing.T) {
	// U+00E9 vs e + U+0301 are the same text after NFC.
	composed := "résumé"
	decomposed := "résumé"

	if Fingerprint("summarize", composed, nil) != Fingerprint("summarize", decomposed, nil) {
		t.Error("Expected NFC normalization to unify equivalent content")
	}
}
