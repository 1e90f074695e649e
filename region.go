// Package vmregion tracks which sub-ranges of a bounded address space are
// free and serves fixed and first-fit allocations against it.
//
// A Region is not safe for concurrent use. The owner of an address space is
// expected to serialize every call, typically under its own mutex.
package vmregion

import (
	"math/bits"

	"github.com/cockroachdb/errors"

	"github.com/nnanto/vmregion/rangeset"
)

// State describes how much of a Region is free.
type State int

const (
	// Pristine regions have never been touched; the whole universe is free
	// and no range is materialized for it.
	Pristine State = iota
	// Partial regions hold at least one materialized free range.
	Partial
	// Exhausted regions have every address allocated.
	Exhausted
)

func (s State) String() string {
	switch s {
	case Pristine:
		return "pristine"
	case Partial:
		return "partial"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// Region manages the free space of [base, base+size).
type Region struct {
	base     uint64
	size     uint64
	pageSize uint64
	free     *rangeset.Set // address-ordered, never adjacent
	touched  bool          // false until the first successful Alloc or Free
}

type Option func(*Region)

// WithPageSize sets the alignment used when Alloc is called with alignment 0.
func WithPageSize(n uint64) Option {
	return func(r *Region) {
		r.pageSize = n
	}
}

// WithNodePool backs the free ranges with pool instead of unbounded storage.
func WithNodePool(pool rangeset.NodePool) Option {
	return func(r *Region) {
		r.free = rangeset.New(pool)
	}
}

// New creates a pristine Region covering [base, base+size).
func New(base, size uint64, opts ...Option) (*Region, error) {
	if size == 0 {
		return nil, errors.Wrap(ErrInvalidArgument, "empty region")
	}
	if _, carry := bits.Add64(base, size, 0); carry != 0 {
		return nil, errors.Wrapf(ErrOverflow, "region %#x+%#x", base, size)
	}
	r := &Region{
		base:     base,
		size:     size,
		pageSize: hostPageSize(),
		free:     rangeset.New(rangeset.Unbounded),
	}
	for _, opt := range opts {
		opt(r)
	}
	if !isPowerOfTwo(r.pageSize) {
		return nil, errors.Wrapf(ErrInvalidArgument, "page size %#x is not a power of two", r.pageSize)
	}
	return r, nil
}

func (r *Region) Base() uint64 {
	return r.base
}

func (r *Region) Size() uint64 {
	return r.size
}

func (r *Region) PageSize() uint64 {
	return r.pageSize
}

func (r *Region) State() State {
	switch {
	case !r.touched:
		return Pristine
	case r.free.Len() == 0:
		return Exhausted
	}
	return Partial
}

// Ranges returns the free ranges in address order. A pristine region
// reports its whole universe as a single range.
func (r *Region) Ranges() []rangeset.Range {
	if !r.touched {
		return []rangeset.Range{r.universe()}
	}
	return r.free.Ranges()
}

func (r *Region) universe() rangeset.Range {
	return rangeset.Range{Addr: r.base, Size: r.size}
}

func (r *Region) end() uint64 {
	return r.base + r.size
}

func isPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

// alignUp rounds x up to a multiple of align. ok is false if that wraps.
func alignUp(x, align uint64) (uint64, bool) {
	y, carry := bits.Add64(x, align-1, 0)
	if carry != 0 {
		return 0, false
	}
	return y &^ (align - 1), true
}
