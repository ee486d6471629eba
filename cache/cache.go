// Package cache implements a sharded, thread-safe, expiration-aware cache
// with an LRU-with-frequency-bias eviction policy, generic over a caller-
// supplied value type T. See doc.go for the full design overview.
package cache

import (
	"context"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/dcache-go/expirycache/internal/util"
)

// Loader fetches a value for key on a Fetch miss. A (zero, false, nil)
// return means "no value for this key"; a non-nil error is propagated to
// the caller verbatim.
type Loader[T any] func(ctx context.Context, key string) (value T, found bool, err error)

// Cache is a sharded, in-memory, expiration-aware key/value cache, generic
// over the stored value type T. All methods are safe for concurrent use.
type Cache[T any] struct {
	segments []*segment[T]
	mask     uint64

	defaultTTL       time.Duration
	maxSizeEffective uint64
}

// New constructs a Cache from cfg, applying defaults to zero fields and
// validating SegmentCount (must be a power of two) and ShrinkRatio (must
// satisfy 0 < ratio <= 1).
func New[T any](cfg Config) (*Cache[T], error) {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = defaultMaxSize
	}
	if cfg.SegmentCount == 0 {
		cfg.SegmentCount = defaultSegmentCount
	}
	if cfg.GetsPerPromote == 0 {
		cfg.GetsPerPromote = defaultGetsPerPromote
	}
	if cfg.ShrinkRatio == 0 {
		cfg.ShrinkRatio = defaultShrinkRatio
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = defaultTTL
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoopMetrics{}
	}

	if cfg.SegmentCount <= 0 || !util.IsPowerOfTwo(uint64(cfg.SegmentCount)) {
		return nil, errors.Wrapf(ErrSegmentCountNotPow2, "got %d", cfg.SegmentCount)
	}
	if cfg.ShrinkRatio <= 0 || cfg.ShrinkRatio > 1 {
		return nil, errors.Wrapf(ErrShrinkRatioInvalid, "got %v", cfg.ShrinkRatio)
	}

	perSegmentMax := cfg.MaxSize / uint64(cfg.SegmentCount)
	targetSize := perSegmentMax - uint64(math.Floor(float64(perSegmentMax)*cfg.ShrinkRatio))

	segments := make([]*segment[T], cfg.SegmentCount)
	for i := range segments {
		segments[i] = newSegment[T](perSegmentMax, targetSize, cfg.GetsPerPromote, cfg.Metrics, cfg.Clock)
	}

	return &Cache[T]{
		segments:         segments,
		mask:             uint64(cfg.SegmentCount) - 1,
		defaultTTL:       cfg.DefaultTTL,
		maxSizeEffective: perSegmentMax * uint64(cfg.SegmentCount),
	}, nil
}

// segmentFor picks the segment owning key by hashing it with xxhash and
// masking with segmentCount-1 (segmentCount is always a power of two).
func (c *Cache[T]) segmentFor(key string) *segment[T] {
	h := xxhash.Sum64String(key)
	return c.segments[h&c.mask]
}

// Contains reports whether key is present, without checking expiry.
func (c *Cache[T]) Contains(key string) bool {
	return c.segmentFor(key).contains(key)
}

// Get returns a borrowed Entry for key, promoting it on the configured
// cadence. An expired entry is evicted and reported as a miss. The caller
// must call Entry.Release exactly once on a hit.
func (c *Cache[T]) Get(key string) (Entry[T], bool) {
	e, ok := c.segmentFor(key).get(key)
	if !ok {
		return Entry[T]{}, false
	}
	return Entry[T]{e: e}, true
}

// Peek returns a borrowed Entry for key without evicting it if expired and
// without promoting an expired entry. The caller must call Entry.Release
// exactly once on a hit.
func (c *Cache[T]) Peek(key string) (Entry[T], bool) {
	e, ok := c.segmentFor(key).peek(key)
	if !ok {
		return Entry[T]{}, false
	}
	return Entry[T]{e: e}, true
}

// Put inserts or replaces key with value, using the cache's DefaultTTL and
// a weight of 1 (unless value implements Weighted).
func (c *Cache[T]) Put(key string, value T) {
	c.PutWith(key, value, PutOpts{TTL: UseDefaultTTL})
}

// PutWithTTL inserts or replaces key with value using a per-key TTL. A
// zero ttl is honored literally and produces an immediately-expired entry
// (spec.md §4.3: "ttl = 0 is valid and produces an immediately-expired
// entry"); a negative ttl requests the cache's configured DefaultTTL
// instead (see UseDefaultTTL).
func (c *Cache[T]) PutWithTTL(key string, value T, ttl time.Duration) {
	c.PutWith(key, value, PutOpts{TTL: ttl})
}

// PutWith inserts or replaces key with value using the given per-insert
// options. opts.TTL == UseDefaultTTL (any negative value) uses the
// cache's DefaultTTL; a literal zero TTL is honored as-is and produces an
// immediately-expired entry (spec.md §4.3). A zero Weight uses the
// default weight of 1, unless value implements Weighted (which always
// wins).
func (c *Cache[T]) PutWith(key string, value T, opts PutOpts) {
	ttl := opts.TTL
	if ttl < 0 {
		ttl = c.defaultTTL
	}
	weight := opts.Weight
	if weight == 0 {
		weight = defaultWeight
	}
	weight = weightOf(value, weight)

	e := c.segmentFor(key).put(key, value, ttl, weight)
	// Put does not hand a borrowed reference to the caller (spec.md §6:
	// put returns ()); release the extra borrow segment.put took for us.
	e.release()
}

// Delete removes key if present and returns whether it was.
func (c *Cache[T]) Delete(key string) bool {
	return c.segmentFor(key).delete(key)
}

// DeletePrefix removes every key starting with prefix across all segments
// and returns the total number removed.
func (c *Cache[T]) DeletePrefix(prefix string) int {
	total := 0
	for _, s := range c.segments {
		total += s.deletePrefix(prefix)
	}
	return total
}

// Fetch returns a borrowed Entry for key; on a miss it invokes load, and on
// success stores the loaded value before returning it. A (false, nil)
// return from load (no value) yields (Entry{}, false, nil) with nothing
// cached. Concurrent Fetch calls for the same missing key may each invoke
// load — there is no duplicate-call suppression (spec.md §1 Non-goals);
// the last Put wins. opts.TTL follows the same UseDefaultTTL convention as
// PutWith: a literal zero is honored as an immediately-expired entry, a
// negative value requests DefaultTTL.
func (c *Cache[T]) Fetch(ctx context.Context, key string, load Loader[T], opts PutOpts) (Entry[T], bool, error) {
	if h, ok := c.Get(key); ok {
		return h, true, nil
	}

	value, found, err := load(ctx, key)
	if err != nil {
		var zero Entry[T]
		return zero, false, err
	}
	if !found {
		return Entry[T]{}, false, nil
	}

	ttl := opts.TTL
	if ttl < 0 {
		ttl = c.defaultTTL
	}
	weight := opts.Weight
	if weight == 0 {
		weight = defaultWeight
	}
	weight = weightOf(value, weight)

	e := c.segmentFor(key).put(key, value, ttl, weight)
	return Entry[T]{e: e}, true, nil
}

// MaxSizeEffective returns perSegmentMaxSize * segmentCount, which may be
// less than Config.MaxSize because of floor division (spec.md §4.4).
func (c *Cache[T]) MaxSizeEffective() uint64 {
	return c.maxSizeEffective
}

// Close tears the cache down: every resident entry across every segment is
// unlinked and released, so eviction hooks fire exactly once per entry.
// Operations after Close are undefined.
func (c *Cache[T]) Close() error {
	for _, s := range c.segments {
		s.close()
	}
	return nil
}
