package vmregion

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/nnanto/vmregion/rangeset"
)

// exhaust allocates the whole region and returns it with an empty free set.
func exhaust(t *testing.T, base, size uint64, opts ...Option) *Region {
	t.Helper()
	r := newRegion(t, base, size, opts...)
	_, err := r.AllocFixed(base, size, 0)
	require.NoError(t, err)
	require.Equal(t, Exhausted, r.State())
	return r
}

func TestRegion_FreeCoalesce(t *testing.T) {
	wrapper := func(frees [][2]uint64, want []rangeset.Range) func(t *testing.T) {
		return func(t *testing.T) {
			r := exhaust(t, 0, 0x10000)
			for _, f := range frees {
				require.NoError(t, r.Free(f[0], f[1]))
				verifyRegion(t, r)
			}
			require.Equal(t, want, r.Ranges())
		}
	}

	t.Run("no merge", wrapper(
		[][2]uint64{{0x3000, 0x1000}, {0x1000, 0x1000}, {0x7000, 0x1000}, {0x5000, 0x1000}},
		ranges(0x1000, 0x1000, 0x3000, 0x1000, 0x5000, 0x1000, 0x7000, 0x1000),
	))

	t.Run("merge next", wrapper(
		[][2]uint64{{0x3000, 0x1000}, {0x2000, 0x1000}},
		ranges(0x2000, 0x2000),
	))

	t.Run("merge prev", wrapper(
		[][2]uint64{{0x3000, 0x1000}, {0x4000, 0x1000}},
		ranges(0x3000, 0x2000),
	))

	t.Run("merge both", wrapper(
		[][2]uint64{{0x3000, 0x1000}, {0x5000, 0x1000}, {0x4000, 0x1000}},
		ranges(0x3000, 0x3000),
	))

	t.Run("merge all", wrapper(
		[][2]uint64{{0x2000, 0x2000}, {0x6000, 0x2000}, {0x0, 0x2000}, {0xc000, 0x4000}, {0x4000, 0x2000}, {0x8000, 0x4000}},
		ranges(0x0, 0x10000),
	))

	t.Run("linear descending", wrapper(
		[][2]uint64{{0xf000, 0x1000}, {0xe000, 0x1000}, {0xd000, 0x1000}, {0xc000, 0x1000}},
		ranges(0xc000, 0x4000),
	))

	t.Run("merge into edges", wrapper(
		[][2]uint64{{0x0, 0x1000}, {0xf000, 0x1000}, {0x1000, 0x1000}, {0xe000, 0x1000}},
		ranges(0x0, 0x2000, 0xe000, 0x2000),
	))
}

func TestRegion_FreePristine(t *testing.T) {
	r := newRegion(t, 0x1000, 0x4000)
	require.NoError(t, r.Free(0x2000, 0x1000))
	require.Equal(t, Partial, r.State())
	require.Equal(t, ranges(0x2000, 0x1000), r.Ranges())
}

func TestRegion_FreeArguments(t *testing.T) {
	r := exhaust(t, 0x1000, 0x4000)

	err := r.Free(0x1000, 0)
	require.True(t, errors.Is(err, ErrInvalidArgument))

	err = r.Free(^uint64(0)-0xfff, 0x2000)
	require.True(t, errors.Is(err, ErrOverflow))
	require.Equal(t, Exhausted, r.State())
}

func TestRegion_FreeAtomicity(t *testing.T) {
	pool := rangeset.NewFixedPool(2)
	r := exhaust(t, 0, 0x10000, WithNodePool(pool))

	require.NoError(t, r.Free(0x2000, 0x1000))
	require.NoError(t, r.Free(0x6000, 0x1000))
	require.Zero(t, pool.Available())
	before := r.Ranges()

	// a lone range needs a fresh node
	err := r.Free(0xa000, 0x1000)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrOutOfMemory))
	require.True(t, errors.Is(err, rangeset.ErrPoolExhausted))
	require.Equal(t, before, r.Ranges())
	require.Equal(t, 2, pool.InUse())

	// extending a neighbor needs none
	require.NoError(t, r.Free(0x3000, 0x1000))
	require.NoError(t, r.Free(0x5000, 0x1000))
	require.Equal(t, ranges(0x2000, 0x2000, 0x5000, 0x2000), r.Ranges())

	// merging both neighbors hands one node back
	require.NoError(t, r.Free(0x4000, 0x1000))
	require.Equal(t, ranges(0x2000, 0x5000), r.Ranges())
	require.Equal(t, 1, pool.InUse())

	require.NoError(t, r.Free(0xa000, 0x1000))
	verifyRegion(t, r)
}

func TestRegion_AllocSplitAtomicity(t *testing.T) {
	pool := rangeset.NewFixedPool(1)
	r := newRegion(t, 0, 0x10000, WithNodePool(pool))

	// pristine interior split needs two nodes
	_, err := r.AllocFixed(0x4000, 0x1000, 0)
	require.True(t, errors.Is(err, ErrOutOfMemory))
	require.Equal(t, Pristine, r.State())
	require.Zero(t, pool.InUse())

	addr, err := r.Alloc(0x1000, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), addr)
	require.Equal(t, 1, pool.InUse())

	// interior split of a materialized range needs one more
	before := r.Ranges()
	_, err = r.AllocFixed(0x8000, 0x1000, 0)
	require.True(t, errors.Is(err, ErrOutOfMemory))
	require.Equal(t, before, r.Ranges())

	// shrinking from either end does not
	_, err = r.AllocFixed(0xf000, 0x1000, 0)
	require.NoError(t, err)
	_, err = r.Alloc(0x1000, 0)
	require.NoError(t, err)
	require.Equal(t, ranges(0x2000, 0xd000), r.Ranges())
}
