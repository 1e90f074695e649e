package vmregion

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/nnanto/vmregion/rangeset"
)

const page = uint64(0x1000)

func newRegion(t testing.TB, base, size uint64, opts ...Option) *Region {
	t.Helper()
	opts = append([]Option{WithPageSize(page)}, opts...)
	r, err := New(base, size, opts...)
	require.NoError(t, err)
	return r
}

func verifyRegion(t testing.TB, r *Region) {
	t.Helper()
	require.NoError(t, r.Validate())
	ranges := r.Ranges()
	rangeset.VerifyCoalesced(t, ranges)
	rangeset.VerifyInside(t, ranges, r.Base(), r.Size())
}

func ranges(pairs ...uint64) []rangeset.Range {
	out := make([]rangeset.Range, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, rangeset.Range{Addr: pairs[i], Size: pairs[i+1]})
	}
	return out
}

func TestRegion_BoundaryScenarios(t *testing.T) {
	r := newRegion(t, 0x1000, 0x4000)

	addr, err := r.Alloc(0x1000, 0x1000)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1000), addr)
	require.Equal(t, ranges(0x2000, 0x3000), r.Ranges())

	addr, err = r.AllocFixed(0x3000, 0x1000, 0x1000)
	require.NoError(t, err)
	require.Equal(t, uint64(0x3000), addr)
	require.Equal(t, ranges(0x2000, 0x1000, 0x4000, 0x1000), r.Ranges())

	require.NoError(t, r.Free(0x1000, 0x1000))
	require.Equal(t, ranges(0x1000, 0x2000, 0x4000, 0x1000), r.Ranges())

	require.NoError(t, r.Free(0x3000, 0x1000))
	require.Equal(t, ranges(0x1000, 0x4000), r.Ranges())
	verifyRegion(t, r)

	_, err = r.Alloc(0x5000, 0x1000)
	require.True(t, errors.Is(err, ErrOutOfMemory))
	require.Equal(t, ranges(0x1000, 0x4000), r.Ranges())

	_, err = r.AllocFixed(0x1001, 0x1000, 0x1000)
	require.True(t, errors.Is(err, ErrInvalidArgument))
	require.Equal(t, ranges(0x1000, 0x4000), r.Ranges())
}

func TestRegion_New(t *testing.T) {
	_, err := New(0x1000, 0)
	require.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = New(^uint64(0)-0xfff, 0x2000)
	require.True(t, errors.Is(err, ErrOverflow))

	_, err = New(0x1000, 0x1000, WithPageSize(0x1800))
	require.True(t, errors.Is(err, ErrInvalidArgument))

	r, err := New(0x1000, 0x1000)
	require.NoError(t, err)
	require.True(t, isPowerOfTwo(r.PageSize()))
	require.Equal(t, Pristine, r.State())
	require.Equal(t, ranges(0x1000, 0x1000), r.Ranges())
}

func TestRegion_AllocArguments(t *testing.T) {
	wrapper := func(fixed bool, addr, size, align uint64, want error) func(t *testing.T) {
		return func(t *testing.T) {
			r := newRegion(t, 0x1000, 0x4000)
			var err error
			if fixed {
				_, err = r.AllocFixed(addr, size, align)
			} else {
				_, err = r.Alloc(size, align)
			}
			require.Error(t, err)
			require.True(t, errors.Is(err, want), "got %v", err)
			require.Equal(t, Pristine, r.State(), "failed alloc must not touch the region")
		}
	}

	t.Run("zero size", wrapper(false, 0, 0, 0, ErrInvalidArgument))
	t.Run("zero size fixed", wrapper(true, 0x1000, 0, 0, ErrInvalidArgument))
	t.Run("alignment not power of two", wrapper(false, 0, 0x1000, 0x3000, ErrInvalidArgument))
	t.Run("misaligned fixed", wrapper(true, 0x1800, 0x1000, 0, ErrInvalidArgument))
	t.Run("fixed overflow", wrapper(true, ^uint64(0)&^(page-1), 0x2000, 0, ErrOverflow))
	t.Run("fixed below base", wrapper(true, 0, 0x1000, 0, ErrOutOfMemory))
	t.Run("fixed past end", wrapper(true, 0x4000, 0x2000, 0, ErrOutOfMemory))
	t.Run("too large", wrapper(false, 0, 0x5000, 0, ErrOutOfMemory))
	t.Run("huge size", wrapper(false, 0, ^uint64(0), 1, ErrOutOfMemory))
}

func TestRegion_AllocCaseTable(t *testing.T) {
	// free set [(0x2000,0x4000)] inside region [0x1000,0x7000)
	setup := func(t *testing.T) *Region {
		r := newRegion(t, 0x1000, 0x6000)
		_, err := r.AllocFixed(0x1000, 0x1000, 0)
		require.NoError(t, err)
		_, err = r.AllocFixed(0x6000, 0x1000, 0)
		require.NoError(t, err)
		require.Equal(t, ranges(0x2000, 0x4000), r.Ranges())
		return r
	}

	wrapper := func(addr, size uint64, want []rangeset.Range) func(t *testing.T) {
		return func(t *testing.T) {
			r := setup(t)
			got, err := r.AllocFixed(addr, size, 0)
			require.NoError(t, err)
			require.Equal(t, addr, got)
			require.Equal(t, want, r.Ranges())
			verifyRegion(t, r)
		}
	}

	t.Run("exact fill", func(t *testing.T) {
		r := setup(t)
		_, err := r.AllocFixed(0x2000, 0x4000, 0)
		require.NoError(t, err)
		require.Empty(t, r.Ranges())
		require.Equal(t, Exhausted, r.State())
	})
	t.Run("at start", wrapper(0x2000, 0x1000, ranges(0x3000, 0x3000)))
	t.Run("at end", wrapper(0x5000, 0x1000, ranges(0x2000, 0x3000)))
	t.Run("interior", wrapper(0x3000, 0x1000, ranges(0x2000, 0x1000, 0x4000, 0x2000)))

	t.Run("straddles allocated space", func(t *testing.T) {
		r := setup(t)
		_, err := r.AllocFixed(0x5000, 0x2000, 0)
		require.True(t, errors.Is(err, ErrOutOfMemory))
		require.Equal(t, ranges(0x2000, 0x4000), r.Ranges())
	})

	t.Run("inside allocated space", func(t *testing.T) {
		r := setup(t)
		_, err := r.AllocFixed(0x1000, 0x1000, 0)
		require.True(t, errors.Is(err, ErrOutOfMemory))
	})
}

func TestRegion_AllocPristine(t *testing.T) {
	wrapper := func(fixed bool, addr, size uint64, want []rangeset.Range) func(t *testing.T) {
		return func(t *testing.T) {
			r := newRegion(t, 0x10000, 0x10000)
			var got uint64
			var err error
			if fixed {
				got, err = r.AllocFixed(addr, size, 0)
			} else {
				got, err = r.Alloc(size, 0)
			}
			require.NoError(t, err)
			require.Equal(t, addr, got)
			require.Equal(t, want, r.Ranges())
			verifyRegion(t, r)
		}
	}

	t.Run("first fit", wrapper(false, 0x10000, 0x3000, ranges(0x13000, 0xd000)))
	t.Run("fixed at base", wrapper(true, 0x10000, 0x3000, ranges(0x13000, 0xd000)))
	t.Run("fixed interior", wrapper(true, 0x14000, 0x3000, ranges(0x10000, 0x4000, 0x17000, 0x9000)))
	t.Run("fixed to end", wrapper(true, 0x1d000, 0x3000, ranges(0x10000, 0xd000)))
	t.Run("whole region", wrapper(true, 0x10000, 0x10000, []rangeset.Range{}))
}

func TestRegion_AllocAlignment(t *testing.T) {
	r := newRegion(t, 0x1000, 0x20000)

	// leave [0x1000,0x2000) allocated so the free set starts unaligned for 0x4000
	_, err := r.Alloc(0x1000, 0)
	require.NoError(t, err)

	addr, err := r.Alloc(0x1000, 0x4000)
	require.NoError(t, err)
	require.Equal(t, uint64(0x4000), addr)
	require.Equal(t, ranges(0x2000, 0x2000, 0x5000, 0x1c000), r.Ranges())

	// too large for the hole below 0x4000
	addr, err = r.Alloc(0x3000, 0x1000)
	require.NoError(t, err)
	require.Equal(t, uint64(0x5000), addr)

	// a small request still lands in the lowest hole
	addr, err = r.Alloc(0x1000, 0x2000)
	require.NoError(t, err)
	require.Equal(t, uint64(0x2000), addr)
	require.Equal(t, ranges(0x3000, 0x1000, 0x8000, 0x19000), r.Ranges())
	verifyRegion(t, r)
}

func TestRegion_AllocHighAddresses(t *testing.T) {
	// no 64 KiB boundary exists between base and the top of the address type
	r := newRegion(t, 0xffffffffffff1000, 0xe000)

	addr, err := r.Alloc(0x1000, 0x10000)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrOutOfMemory))
	require.Zero(t, addr)

	addr, err = r.Alloc(0x1000, 0)
	require.NoError(t, err)
	require.Equal(t, r.Base(), addr)
}
