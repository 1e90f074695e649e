package vmregion

import (
	"math/bits"

	"github.com/cockroachdb/errors"

	"github.com/nnanto/vmregion/rangeset"
)

// Free returns [addr, addr+size) to the region, merging it with the free
// ranges on either side. The range must currently be allocated; freeing
// space that is already free is not detected.
//
// If a new range has to be stored and the node pool is exhausted, Free
// fails with ErrOutOfMemory and the region is left untouched.
func (r *Region) Free(addr, size uint64) error {
	if size == 0 {
		return errors.Wrap(ErrInvalidArgument, "zero size")
	}
	end, carry := bits.Add64(addr, size, 0)
	if carry != 0 {
		return errors.Wrapf(ErrOverflow, "%#x+%#x", addr, size)
	}
	nr := rangeset.Range{Addr: addr, Size: size}

	if !r.touched {
		if err := r.free.Insert(0, nr); err != nil {
			return outOfMemory(err, "free %v", nr)
		}
		r.touched = true
		return nil
	}

	i := r.free.Search(addr)
	mergePrev := i > 0 && r.free.At(i-1).End() == addr
	mergeNext := i < r.free.Len() && r.free.At(i).Addr == end

	switch {
	case mergePrev && mergeNext:
		prev, next := r.free.At(i-1), r.free.At(i)
		prev.Size += size + next.Size
		r.free.Replace(i-1, prev)
		r.free.Remove(i)
	case mergePrev:
		prev := r.free.At(i - 1)
		prev.Size += size
		r.free.Replace(i-1, prev)
	case mergeNext:
		next := r.free.At(i)
		next.Addr = addr
		next.Size += size
		r.free.Replace(i, next)
	default:
		if err := r.free.Insert(i, nr); err != nil {
			return outOfMemory(err, "free %v", nr)
		}
	}
	return nil
}
