package cache

import (
	"sync/atomic"
	"time"
)

// Weighted lets a cached value override the caller-supplied weight with one
// derived from the value itself. Detection is a type assertion against
// any(value) at insertion time — the closest Go analogue to compile-time
// capability detection without adding a reflection dependency.
type Weighted interface {
	// CacheWeight reports the weight this value should count as in the
	// cache's aggregate size bound. Called once per Put/Fetch insertion.
	CacheWeight() uint32
}

// Evictable is notified exactly once, when the entry wrapping the value is
// finally destroyed (refcount reaches zero). The hook must not call back
// into the cache that owns it; doing so is undefined behavior.
type Evictable interface {
	OnCacheEvict()
}

// entry is a per-key cached record. It is reference counted: the cache
// itself holds one reference from creation until the key is removed from
// the segment's index, and every borrowed handle handed to a caller holds
// another. The entry and its list node are destroyed exactly once, when the
// refcount transitions to zero.
type entry[T any] struct {
	key       string
	value     T
	expiresAt int64 // absolute unix seconds; see ttl/expired
	weight    uint32

	hits atomic.Uint32
	refs atomic.Int32

	node *listNode[T]
}

// newEntry builds a fresh entry with refcount 1 (the cache's own
// reference). The key is expected to already be an owned copy. now is the
// segment's clock reading in unix seconds at insertion time.
func newEntry[T any](key string, value T, now int64, ttl time.Duration, weight uint32) *entry[T] {
	e := &entry[T]{
		key:       key,
		value:     value,
		expiresAt: now + int64(ttl/time.Second),
		weight:    weight,
	}
	e.refs.Store(1)
	return e
}

// ttl returns the signed number of seconds until expiry relative to now;
// negative or zero means expired.
func (e *entry[T]) ttl(now int64) int64 {
	return e.expiresAt - now
}

func (e *entry[T]) expired(now int64) bool {
	return e.ttl(now) <= 0
}

// hit increments the entry's hit counter and returns the post-increment
// value (wrapping is permitted and harmless — only used modulo
// getsPerPromote).
func (e *entry[T]) hit() uint32 {
	return e.hits.Add(1)
}

// borrow hands out one more reference. Every borrow must be matched by
// exactly one release.
func (e *entry[T]) borrow() {
	e.refs.Add(1)
}

// release drops one reference. When the refcount reaches zero the entry's
// list node must already be detached (prev == nil && next == nil); the
// value's eviction hook fires and the entry is considered destroyed.
//
// Calling release more times than borrow is a programming error; it is
// detected with a panic rather than left as silent corruption.
func (e *entry[T]) release() {
	switch n := e.refs.Add(-1); {
	case n == 0:
		if e.node != nil && (e.node.prev != nil || e.node.next != nil) {
			panic("cache: entry released while its list node is still linked")
		}
		if ev, ok := any(e.value).(Evictable); ok {
			ev.OnCacheEvict()
		}
	case n < 0:
		panic("cache: entry released more times than borrowed")
	}
}

// Entry is a borrowed handle to a cached value. Every operation that
// returns an Entry increments its refcount on the caller's behalf; the
// caller must call Release exactly once when done with it.
type Entry[T any] struct {
	e *entry[T]
}

// Value returns the cached value.
func (h Entry[T]) Value() T { return h.e.value }

// Weight returns the entry's effective weight.
func (h Entry[T]) Weight() uint32 { return h.e.weight }

// Hits returns the entry's current hit counter.
func (h Entry[T]) Hits() uint32 { return h.e.hits.Load() }

// Release drops this handle's reference. Must be called exactly once.
func (h Entry[T]) Release() { h.e.release() }

// weightOf resolves the effective weight for a value being inserted: the
// value's own CacheWeight() if it implements Weighted, else the
// caller-supplied fallback.
func weightOf[T any](v T, fallback uint32) uint32 {
	if w, ok := any(v).(Weighted); ok {
		return w.CacheWeight()
	}
	return fallback
}
