package vmregion

import (
	"math/bits"

	"github.com/cockroachdb/errors"

	"github.com/nnanto/vmregion/rangeset"
)

// Alloc reserves size bytes at the lowest free address that is a multiple of
// alignment. An alignment of 0 means the region's page size.
func (r *Region) Alloc(size, alignment uint64) (uint64, error) {
	return r.alloc(false, 0, size, alignment)
}

// AllocFixed reserves exactly [addr, addr+size). addr must already be a
// multiple of alignment (0 meaning the page size).
func (r *Region) AllocFixed(addr, size, alignment uint64) (uint64, error) {
	return r.alloc(true, addr, size, alignment)
}

func (r *Region) alloc(fixed bool, addr, size, alignment uint64) (uint64, error) {
	if size == 0 {
		return 0, errors.Wrap(ErrInvalidArgument, "zero size")
	}
	if alignment == 0 {
		alignment = r.pageSize
	}
	if !isPowerOfTwo(alignment) {
		return 0, errors.Wrapf(ErrInvalidArgument, "alignment %#x is not a power of two", alignment)
	}
	if !fixed {
		return r.allocFirstFit(size, alignment)
	}

	if addr&(alignment-1) != 0 {
		return 0, errors.Wrapf(ErrInvalidArgument, "address %#x is not aligned to %#x", addr, alignment)
	}
	end, carry := bits.Add64(addr, size, 0)
	if carry != 0 {
		return 0, errors.Wrapf(ErrOverflow, "%#x+%#x", addr, size)
	}
	if addr < r.base || end > r.end() {
		return 0, errors.Wrapf(ErrOutOfMemory, "[%#x:%#x] outside region", addr, end)
	}

	if !r.touched {
		return addr, r.carve(-1, r.universe(), addr, size)
	}
	// the only range that can contain addr is the last one starting at or before it
	i := r.free.Search(addr) - 1
	if i < 0 || !r.free.At(i).Contains(addr, end) {
		return 0, errors.Wrapf(ErrOutOfMemory, "[%#x:%#x] not free", addr, end)
	}
	return addr, r.carve(i, r.free.At(i), addr, size)
}

func (r *Region) allocFirstFit(size, alignment uint64) (uint64, error) {
	if !r.touched {
		u := r.universe()
		if at, ok := fit(u, size, alignment); ok {
			return at, r.carve(-1, u, at, size)
		}
		return 0, errors.Wrapf(ErrOutOfMemory, "no room for %#x bytes", size)
	}
	for i := 0; i < r.free.Len(); i++ {
		fr := r.free.At(i)
		if at, ok := fit(fr, size, alignment); ok {
			return at, r.carve(i, fr, at, size)
		}
	}
	return 0, errors.Wrapf(ErrOutOfMemory, "no room for %#x bytes aligned to %#x", size, alignment)
}

// fit returns the lowest address in fr that is aligned and leaves room for size bytes.
func fit(fr rangeset.Range, size, alignment uint64) (uint64, bool) {
	at, ok := alignUp(fr.Addr, alignment)
	if !ok {
		return 0, false
	}
	pad := at - fr.Addr
	if pad > fr.Size || size > fr.Size-pad {
		return 0, false
	}
	return at, true
}

// carve removes [at, at+size) from fr, which sits at index i of the free set
// (or is the implicit universe when i < 0). Node storage for any range it has
// to create is obtained before anything is modified.
func (r *Region) carve(i int, fr rangeset.Range, at, size uint64) error {
	before := rangeset.Range{Addr: fr.Addr, Size: at - fr.Addr}
	after := rangeset.Range{Addr: at + size, Size: fr.End() - (at + size)}

	if i < 0 {
		var rest []rangeset.Range
		if before.Size != 0 {
			rest = append(rest, before)
		}
		if after.Size != 0 {
			rest = append(rest, after)
		}
		if err := r.free.InsertAll(0, rest...); err != nil {
			return outOfMemory(err, "split region at %#x", at)
		}
		r.touched = true
		return nil
	}

	switch {
	case before.Size == 0 && after.Size == 0:
		r.free.Remove(i)
	case before.Size == 0:
		r.free.Replace(i, after)
	case after.Size == 0:
		r.free.Replace(i, before)
	default:
		if err := r.free.Insert(i+1, after); err != nil {
			return outOfMemory(err, "split %v at %#x", fr, at)
		}
		r.free.Replace(i, before)
	}
	return nil
}
