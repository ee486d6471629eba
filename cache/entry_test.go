package cache

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestEntry_TTLAndExpiry(t *testing.T) {
	t.Parallel()

	e := newEntry("k", "v", 100, 10*time.Second, 1)
	if e.expired(105) {
		t.Fatal("must not be expired 5s in")
	}
	if !e.expired(111) {
		t.Fatal("must be expired past the 10s TTL")
	}
}

func TestEntry_BorrowReleaseConservation(t *testing.T) {
	t.Parallel()

	e := newEntry("k", "v", 0, time.Hour, 1)
	// newEntry starts with one implicit reference (the cache's own).
	e.borrow()
	e.borrow()
	if got := e.refs.Load(); got != 3 {
		t.Fatalf("want refcount 3, got %d", got)
	}
	e.release()
	e.release()
	if got := e.refs.Load(); got != 1 {
		t.Fatalf("want refcount 1, got %d", got)
	}
	e.release() // drops to 0, triggers destruction path (no node attached -> no panic)
}

func TestEntry_ReleasePanicsOnOverRelease(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on over-release")
		}
	}()
	e := newEntry("k", "v", 0, time.Hour, 1)
	e.release()
	e.release() // refcount goes negative -> must panic
}

func TestEntry_ReleasePanicsIfNodeStillLinked(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic: entry destroyed while its node is still linked")
		}
	}()

	e := newEntry("k", "v", 0, time.Hour, 1)
	n := &listNode[string]{e: e}
	e.node = n
	l := &recencyList[string]{}
	l.insert(n)               // linked, but never unlinked before the final release
	l.insert(mkNode("other")) // a neighbour, so n.prev is set while n is linked

	e.release() // refcount 1 -> 0, node is still linked -> must panic
}

func TestEntry_EvictableHookFiresOnFinalRelease(t *testing.T) {
	t.Parallel()

	var notified int64
	e := newEntry("k", evictableVal{notified: &notified}, 0, time.Hour, 1)
	e.borrow()
	e.release()
	if atomic.LoadInt64(&notified) != 0 {
		t.Fatal("hook must not fire while references remain")
	}
	e.release()
	if atomic.LoadInt64(&notified) != 1 {
		t.Fatal("hook must fire exactly once on the final release")
	}
}

func TestWeightOf_FallbackAndCapability(t *testing.T) {
	t.Parallel()

	if w := weightOf("plain string", 7); w != 7 {
		t.Fatalf("non-Weighted value must use the fallback weight, got %d", w)
	}
	if w := weightOf(weightedVal{w: 42}, 7); w != 42 {
		t.Fatalf("Weighted value must report its own weight, got %d", w)
	}
}
