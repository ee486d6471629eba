// Package cache provides a fast, generic, sharded in-memory cache with an
// LRU-with-frequency-bias eviction policy, per-entry TTL and weight,
// explicit prefix deletion, and optional loader-backed Fetch.
//
// Design
//
//   - Concurrency: the cache is split into segments (shards), each with its
//     own index (map[string]*entry) guarded by an RWMutex, and its own
//     recency list guarded by an independent mutex. Splitting the recency
//     list's lock from the index lock lets list splicing (promote/evict)
//     happen without blocking readers of unrelated keys, at the cost of the
//     strict global LRU ordering a single-list cache would give you —
//     each segment keeps its own recency order (approximate, see
//     Promotion), and there is no order across segments. SegmentCount
//     defaults to 8 and must always be a power of two.
//
//   - Reference counting: every entry starts with one reference (the
//     cache's own), and every borrowed Entry handle returned to a caller
//     takes another. The entry and its list node are destroyed exactly once
//     — when the last reference is released — which is what lets deletion
//     (unlinking from the index) happen independently of destruction (freed
//     only once no borrower is still holding it).
//
//   - TTL: entries carry an absolute expiry. Get evicts an expired entry
//     lazily on read; Peek returns it without removing it, so an expired-
//     but-not-yet-evicted entry is still a valid shrink candidate.
//
//   - Weight: besides entry count, every value is given a weight (default
//     1) that counts toward Config.MaxSize. A value that implements
//     Weighted overrides the caller-supplied weight unconditionally.
//
//   - Promotion: an entry is moved to MRU every GetsPerPromote successful
//     hits (default 5), not on every hit — this amortizes list-lock
//     contention under read-heavy workloads at the cost of exact LRU
//     ordering (the "N-hit" cadence).
//
//   - Shrink: each segment's budget is MaxSize/SegmentCount, rounded down.
//     Once an insert pushes a segment's size over that budget, the segment
//     evicts LRU entries until size <= targetSize (the budget minus
//     ShrinkRatio's fraction of it, rounded down; default 20%). Shrink runs
//     only on insertion: Put, PutWithTTL, PutWith, or a Fetch that stores a
//     loaded value.
//
//   - Fetch: on a miss, invokes the caller's Loader and stores the result.
//     There is no duplicate-call suppression — concurrent Fetch calls for
//     the same missing key may each invoke the loader; the last Put wins.
//
//   - Metrics: Config.Metrics receives Hit/Miss/Evict/Size signals. By
//     default NoopMetrics is used; metrics/prom provides a Prometheus
//     adapter.
//
// Basic usage
//
//	c, err := cache.New[[]byte](cache.Config{MaxSize: 10_000})
//	if err != nil { ... }
//	defer c.Close()
//	c.Put("a", []byte("1"))
//	if h, ok := c.Get("a"); ok {
//	    _ = h.Value()
//	    h.Release()
//	}
//	c.Delete("a")
//
// With TTL
//
//	c, _ := cache.New[string](cache.Config{MaxSize: 1024})
//	c.PutWithTTL("tmp", "v", 200*time.Millisecond)
//	time.Sleep(300 * time.Millisecond)
//	_, ok := c.Get("tmp") // ok == false (expired, evicted)
//
// With Fetch
//
//	c, _ := cache.New[string](cache.Config{MaxSize: 1024})
//	h, found, err := c.Fetch(ctx, "key", func(ctx context.Context, k string) (string, bool, error) {
//	    return "v:" + k, true, nil
//	}, cache.PutOpts{TTL: cache.UseDefaultTTL})
//	if err == nil && found {
//	    defer h.Release()
//	}
//
// Exporting metrics (example Prometheus adapter)
//
//	m := prom.New(nil, "expirycache", "demo", nil)
//	c, _ := cache.New[[]byte](cache.Config{MaxSize: 10_000, Metrics: m})
//
// Thread-safety & complexity
//
// All methods on Cache are safe for concurrent use. Typical operation cost
// is amortized O(1): one map access plus a constant number of pointer
// fixes, and a constant number of list-lock acquisitions.
package cache
