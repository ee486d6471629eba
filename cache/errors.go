package cache

import "github.com/pkg/errors"

var (
	// ErrSegmentCountNotPow2 is returned by New when Config.SegmentCount is
	// not a power of two.
	ErrSegmentCountNotPow2 = errors.New("cache: segment count must be a power of two")

	// ErrShrinkRatioInvalid is returned by New when Config.ShrinkRatio is not
	// in (0, 1].
	ErrShrinkRatioInvalid = errors.New("cache: shrink ratio must satisfy 0 < ratio <= 1")

	// ErrAllocFail would be returned by an allocating operation (Put,
	// DeletePrefix, Fetch on miss) that could not allocate. Go's allocator
	// has no recoverable out-of-memory signal to surface it from, so this
	// implementation never returns it; it is defined for parity with the
	// spec's error taxonomy and to document that omission explicitly rather
	// than silently dropping it.
	ErrAllocFail = errors.New("cache: allocation failed")
)
