package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/dcache-go/expirycache/internal/util"
)

// segment is one shard of the cache: an independent index, its own recency
// list, its own lock, and a fixed share of the cache's size budget.
//
// Lock discipline: mu guards index and size. The recency list has its own
// mutex (see list.go). Most operations take the list mutex only after mu has
// been released; shrink takes it while holding mu (mu first). The list mutex
// is never held while mu is being acquired.
type segment[T any] struct {
	mu    sync.RWMutex
	index map[string]*entry[T]
	list  *recencyList[T]
	size  uint64

	maxSize        uint64
	targetSize     uint64
	getsPerPromote uint32

	metrics Metrics
	clock   Clock

	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicUint64
	evicts util.PaddedAtomicUint64
}

func newSegment[T any](maxSize, targetSize uint64, getsPerPromote uint32, metrics Metrics, clock Clock) *segment[T] {
	return &segment[T]{
		index:          make(map[string]*entry[T]),
		list:           &recencyList[T]{},
		maxSize:        maxSize,
		targetSize:     targetSize,
		getsPerPromote: getsPerPromote,
		metrics:        metrics,
		clock:          clock,
	}
}

func (s *segment[T]) now() int64 {
	if s.clock != nil {
		return s.clock.NowUnix()
	}
	return time.Now().Unix()
}

// contains probes the index without checking expiry.
func (s *segment[T]) contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[key]
	return ok
}

// get returns a borrowed entry, promoting it every getsPerPromote hits and
// evicting it lazily if it has expired.
func (s *segment[T]) get(key string) (*entry[T], bool) {
	s.mu.RLock()
	e, ok := s.index[key]
	if !ok {
		s.mu.RUnlock()
		s.misses.Add(1)
		s.metrics.Miss()
		return nil, false
	}
	// Borrow while still holding the shared lock: releasing first would let
	// a concurrent delete observe refcount 1 and destroy the entry out from
	// under this call.
	e.borrow()
	s.mu.RUnlock()

	now := s.now()
	if e.expired(now) {
		e.release() // drop this call's borrow
		s.evictExpiredLocked(key, e)
		s.misses.Add(1)
		s.metrics.Miss()
		return nil, false
	}

	if e.hit()%s.getsPerPromote == 0 {
		s.list.moveToFront(e.node)
	}
	s.hits.Add(1)
	s.metrics.Hit()
	return e, true
}

// evictExpiredLocked removes key from the index (if it still maps to e),
// unlinks its node, and releases the cache's own reference.
func (s *segment[T]) evictExpiredLocked(key string, e *entry[T]) {
	s.mu.Lock()
	removed := false
	if cur, ok := s.index[key]; ok && cur == e {
		delete(s.index, key)
		s.size -= uint64(e.weight)
		removed = true
	}
	s.mu.Unlock()
	if !removed {
		return
	}
	s.list.unlink(e.node)
	s.evicts.Add(1)
	s.metrics.Evict(EvictExpired)
	s.metrics.Size(len(s.index), s.size)
	e.release()
}

// peek returns a borrowed entry without evicting or promoting expired
// entries. Non-expired entries are still promoted on the same cadence as
// get.
func (s *segment[T]) peek(key string) (*entry[T], bool) {
	s.mu.RLock()
	e, ok := s.index[key]
	if !ok {
		s.mu.RUnlock()
		s.misses.Add(1)
		s.metrics.Miss()
		return nil, false
	}
	e.borrow()
	s.mu.RUnlock()

	now := s.now()
	if !e.expired(now) {
		if e.hit()%s.getsPerPromote == 0 {
			s.list.moveToFront(e.node)
		}
	}
	s.hits.Add(1)
	s.metrics.Hit()
	return e, true
}

// put inserts or replaces key, running the shrink protocol if the segment
// grows past maxSize. Returns a borrowed entry (the cache keeps one
// reference, the caller gets the returned one).
func (s *segment[T]) put(key string, value T, ttl time.Duration, weight uint32) *entry[T] {
	now := s.now()
	key = cloneKey(key)
	node := &listNode[T]{}
	e := newEntry(key, value, now, ttl, weight)
	e.node = node
	node.e = e

	// Link the node into the recency list before publishing e into the
	// index. A concurrent get/peek that finds e via the index must never
	// observe a node that isn't linked yet — moveToFront/popTail on a
	// not-yet-linked node would splice it into the list a second time
	// once this function's own s.list.insert below runs, corrupting the
	// list (a node can end up pointing to itself).
	s.list.insert(node)

	s.mu.Lock()
	old, hadOld := s.index[key]
	s.index[key] = e
	if hadOld {
		s.size = s.size - uint64(old.weight) + uint64(weight)
	} else {
		s.size += uint64(weight)
	}
	size := s.size
	s.mu.Unlock()

	if hadOld {
		s.list.unlink(old.node)
		s.evicts.Add(1)
		s.metrics.Evict(EvictReplaced)
		old.release()
	}

	// Take the caller's reference before shrinking: if shrink evicts e
	// itself, its release of the cache's reference must not be the final one.
	e.borrow() // the caller's reference; the map holds the other
	if size > s.maxSize {
		s.shrink()
	}

	s.metrics.Size(len(s.index), s.size)
	return e
}

// shrink evicts tail entries until size <= targetSize, or the list is
// empty. Entries are released while the segment's exclusive lock is held —
// acceptable because eviction hooks must never re-enter the cache. A
// popped node whose index entry was already removed or replaced by a
// concurrent delete/deletePrefix/put (which owns that entry's release) is
// skipped rather than released a second time.
func (s *segment[T]) shrink() {
	s.mu.Lock()
	for s.size > s.targetSize {
		node := s.list.popTail()
		if node == nil {
			break
		}
		e := node.e
		cur, ok := s.index[e.key]
		if !ok || cur != e {
			continue
		}
		delete(s.index, e.key)
		s.size -= uint64(e.weight)
		s.evicts.Add(1)
		s.metrics.Evict(EvictShrink)
		e.release()
	}
	s.mu.Unlock()
}

// delete removes key if present, releasing the cache's reference.
func (s *segment[T]) delete(key string) bool {
	s.mu.Lock()
	e, ok := s.index[key]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.index, key)
	s.size -= uint64(e.weight)
	s.mu.Unlock()

	s.list.unlink(e.node)
	s.evicts.Add(1)
	s.metrics.Evict(EvictDeleted)
	s.metrics.Size(len(s.index), s.size)
	e.release()
	return true
}

// deletePrefix removes every key starting with prefix, in two phases to
// minimize exclusive-lock duration. A key replaced between the two phases
// (so the index no longer points at the entry collected in phase one) is
// skipped rather than removed.
func (s *segment[T]) deletePrefix(prefix string) int {
	s.mu.RLock()
	var candidates []*entry[T]
	for k, e := range s.index {
		if strings.HasPrefix(k, prefix) {
			candidates = append(candidates, e)
		}
	}
	s.mu.RUnlock()

	if len(candidates) == 0 {
		return 0
	}

	var removed []*entry[T]
	s.mu.Lock()
	for _, e := range candidates {
		if cur, ok := s.index[e.key]; ok && cur == e {
			delete(s.index, e.key)
			s.size -= uint64(e.weight)
			removed = append(removed, e)
		}
	}
	size := s.size
	s.mu.Unlock()

	for _, e := range removed {
		s.list.unlink(e.node)
		s.evicts.Add(1)
		s.metrics.Evict(EvictDeleted)
		e.release()
	}
	s.metrics.Size(len(s.index), size)
	return len(removed)
}

// close tears the segment down: every resident entry is unlinked and its
// cache reference released, so eviction hooks fire exactly once per entry.
func (s *segment[T]) close() {
	s.mu.Lock()
	entries := make([]*entry[T], 0, len(s.index))
	for k, e := range s.index {
		entries = append(entries, e)
		delete(s.index, k)
	}
	s.size = 0
	s.mu.Unlock()

	for _, e := range entries {
		s.list.unlink(e.node)
		s.metrics.Evict(EvictTeardown)
		e.release()
	}
}

// cloneKey returns an owned copy of key's backing bytes, matching spec's
// "owned byte string, cloned from the caller on insert" — important
// because the caller's string may alias a larger buffer the caller later
// mutates-by-replacement (Go strings are immutable, but strings.Clone still
// guarantees the cache doesn't keep a much larger backing array alive).
func cloneKey(key string) string {
	return strings.Clone(key)
}
