package cache

import (
	"testing"
	"time"
)

func newTestSegment(maxSize, targetSize uint64, getsPerPromote uint32, clk Clock) *segment[string] {
	return newSegment[string](maxSize, targetSize, getsPerPromote, NoopMetrics{}, clk)
}

// S1: basic LRU fill. Inserting past capacity evicts the tail (LRU) entry.
func TestSegment_S1_BasicLRUFill(t *testing.T) {
	t.Parallel()

	s := newTestSegment(3, 2, 1, &fakeClock{})
	s.put("a", "1", time.Hour, 1)
	s.put("b", "2", time.Hour, 1)
	s.put("c", "3", time.Hour, 1)
	// size 3 == maxSize 3, no shrink triggered yet.
	if !s.contains("a") || !s.contains("b") || !s.contains("c") {
		t.Fatal("all three should be present")
	}

	s.put("d", "4", time.Hour, 1) // size 4 > maxSize 3 -> shrink to targetSize 2
	if s.contains("a") {
		t.Fatal("a (LRU) should have been evicted")
	}
	if s.contains("b") {
		t.Fatal("b should have been evicted to reach targetSize")
	}
	if !s.contains("c") || !s.contains("d") {
		t.Fatal("c and d (most recent) should survive")
	}
}

// S2: a heavily weighted insert can force multiple evictions in one shrink.
func TestSegment_S2_WeightedInsertMultiEvict(t *testing.T) {
	t.Parallel()

	s := newTestSegment(10, 4, 1, &fakeClock{})
	s.put("a", "1", time.Hour, 2)
	s.put("b", "2", time.Hour, 2)
	s.put("c", "3", time.Hour, 2)
	s.put("d", "4", time.Hour, 2) // size 8, under max

	s.put("e", "5", time.Hour, 4) // size 12 > 10 -> shrink to <= 4
	if s.contains("a") || s.contains("b") {
		t.Fatal("a and b (LRU) must be evicted to satisfy the weight budget")
	}
	if !s.contains("e") {
		t.Fatal("freshly inserted heavy entry must survive")
	}
}

// S3: promotion only happens every getsPerPromote-th hit, not on every Get.
func TestSegment_S3_PromotionCadence(t *testing.T) {
	t.Parallel()

	s := newTestSegment(2, 1, 3, &fakeClock{})
	s.put("a", "1", time.Hour, 1)
	s.put("b", "2", time.Hour, 1)

	// Two hits on "a" (below the cadence of 3) must NOT promote it.
	for i := 0; i < 2; i++ {
		e, ok := s.get("a")
		if !ok {
			t.Fatal("expected hit")
		}
		e.release()
	}
	s.put("c", "3", time.Hour, 1) // shrink: "a" should still be LRU and get evicted
	if s.contains("a") {
		t.Fatal("a should have been evicted: two sub-cadence hits must not promote it")
	}

	// Reset and verify the third hit DOES promote.
	s2 := newTestSegment(2, 2, 3, &fakeClock{})
	s2.put("x", "1", time.Hour, 1)
	s2.put("y", "2", time.Hour, 1)
	for i := 0; i < 3; i++ {
		e, ok := s2.get("x")
		if !ok {
			t.Fatal("expected hit")
		}
		e.release()
	}
	s2.put("z", "3", time.Hour, 1) // x was promoted on the 3rd hit; y is now LRU
	if !s2.contains("x") {
		t.Fatal("x should survive: it was promoted by the 3rd hit")
	}
	if s2.contains("y") {
		t.Fatal("y should have been evicted as the actual LRU")
	}
}

// S4: expiry semantics differ across contains/get/peek.
func TestSegment_S4_ExpirySemantics(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	s := newTestSegment(4, 2, 1, clk)
	s.put("k", "v", 10*time.Second, 1)

	clk.add(20 * time.Second) // now expired

	// contains does not check expiry: it's a raw index probe.
	if !s.contains("k") {
		t.Fatal("contains must report presence regardless of expiry")
	}

	// peek returns an expired entry as a hit and leaves it in place — it
	// never evicts, so it must not change what contains/get observe next.
	pe, ok := s.peek("k")
	if !ok || pe.value != "v" {
		t.Fatal("peek must return the stale value for an expired entry")
	}
	pe.release()
	if !s.contains("k") {
		t.Fatal("peek must not have evicted the expired entry")
	}

	// get must lazily evict the expired entry and report a miss.
	if _, ok := s.get("k"); ok {
		t.Fatal("get must treat an expired entry as a miss")
	}
	if s.contains("k") {
		t.Fatal("get must have evicted the expired entry from the index")
	}
}

// S5: fetch-equivalent behavior at the segment level is just get-then-put;
// segment itself has no loader concept, so this exercises that a miss
// followed by a put makes the key immediately visible (no staged state).
func TestSegment_S5_MissThenPutVisible(t *testing.T) {
	t.Parallel()

	s := newTestSegment(4, 2, 1, &fakeClock{})
	if _, ok := s.get("k"); ok {
		t.Fatal("expected miss on empty segment")
	}
	e := s.put("k", "v", time.Hour, 1)
	e.release()

	got, ok := s.get("k")
	if !ok || got.value != "v" {
		t.Fatal("expected hit with the freshly inserted value")
	}
	got.release()
}

// S6: destruction hook (Evictable) fires exactly once, at true destruction,
// not at unlink time, across the replace and delete paths.
func TestSegment_S6_DestructionFiresOnce(t *testing.T) {
	t.Parallel()

	s := newSegment[evictableVal](4, 2, 1, NoopMetrics{}, &fakeClock{})

	var notified int64
	// put hands back a borrowed reference; release it so only the cache's
	// own reference remains.
	s.put("k", evictableVal{notified: &notified}, time.Hour, 1).release()

	// Replacing the key must destroy the old value exactly once.
	s.put("k", evictableVal{notified: &notified}, time.Hour, 1).release()
	if notified != 1 {
		t.Fatalf("want 1 notification after replace, got %d", notified)
	}

	if !s.delete("k") {
		t.Fatal("delete must succeed")
	}
	if notified != 2 {
		t.Fatalf("want 2 notifications after delete, got %d", notified)
	}
}
