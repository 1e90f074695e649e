package vmregion

import (
	"math"
	"math/bits"

	"github.com/cockroachdb/errors"
)

// Test reports whether [addr, addr+size) is fully allocated, that is, whether
// no free range overlaps it. An end that would wrap is clamped to the top of
// the address type; an empty interval is trivially allocated.
func (r *Region) Test(addr, size uint64) bool {
	if size == 0 {
		return true
	}
	end, carry := bits.Add64(addr, size, 0)
	if carry != 0 {
		end = math.MaxUint64
	}
	if !r.touched {
		return !r.universe().Overlaps(addr, end)
	}
	for i := 0; i < r.free.Len(); i++ {
		fr := r.free.At(i)
		if fr.Addr >= end {
			break
		}
		if fr.End() > addr {
			return false
		}
	}
	return true
}

// Duplicate returns an independent copy of the region, drawing node storage
// from the same pool. On failure nothing is left allocated.
func (r *Region) Duplicate() (*Region, error) {
	free, err := r.free.Clone()
	if err != nil {
		return nil, outOfMemory(err, "duplicate region %#x+%#x", r.base, r.size)
	}
	return &Region{
		base:     r.base,
		size:     r.size,
		pageSize: r.pageSize,
		free:     free,
		touched:  r.touched,
	}, nil
}

// Destroy returns every node to the pool. The region must not be used
// afterwards.
func (r *Region) Destroy() {
	r.free.Clear()
	r.touched = false
}

// Validate checks the ordering, coalescing and containment invariants of
// the free set.
func (r *Region) Validate() error {
	if !r.touched {
		if r.free.Len() != 0 {
			return errors.Newf("pristine region holds %d range(s)", r.free.Len())
		}
		return nil
	}
	for i := 0; i < r.free.Len(); i++ {
		fr := r.free.At(i)
		if fr.Size == 0 {
			return errors.Newf("range %d at %#x is empty", i, fr.Addr)
		}
		if fr.Addr < r.base || fr.End() > r.end() || fr.End() < fr.Addr {
			return errors.Newf("range %d %v lies outside region [%#x:%#x]", i, fr, r.base, r.end())
		}
		if i == 0 {
			continue
		}
		prev := r.free.At(i - 1)
		switch {
		case prev.End() > fr.Addr:
			return errors.Newf("range %d %v overlaps %v", i, fr, prev)
		case prev.End() == fr.Addr:
			return errors.Newf("range %d %v abuts %v and was not merged", i, fr, prev)
		}
	}
	return nil
}
