package rangeset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// VerifySorted checks that ranges are non-empty, ascending and non-overlapping.
func VerifySorted(t testing.TB, ranges []Range) {
	t.Helper()

	for i, r := range ranges {
		require.NotZero(t, r.Size, "range %d is empty", i)
		require.Greater(t, r.End(), r.Addr, "range %d wraps", i)
		if i == 0 {
			continue
		}
		prev := ranges[i-1]
		require.LessOrEqual(t, prev.End(), r.Addr, "%v overlaps %v", prev, r)
	}
}

// VerifyCoalesced checks VerifySorted plus that no two ranges touch.
func VerifyCoalesced(t testing.TB, ranges []Range) {
	t.Helper()

	VerifySorted(t, ranges)
	for i := 1; i < len(ranges); i++ {
		require.Less(t, ranges[i-1].End(), ranges[i].Addr, "%v abuts %v", ranges[i-1], ranges[i])
	}
}

// VerifyInside checks that every range lies in [base, base+size).
func VerifyInside(t testing.TB, ranges []Range, base, size uint64) {
	t.Helper()

	for _, r := range ranges {
		require.GreaterOrEqual(t, r.Addr, base, "%v starts before %#x", r, base)
		require.LessOrEqual(t, r.End(), base+size, "%v ends after %#x", r, base+size)
	}
}

// SumSizes adds up the sizes of ranges.
func SumSizes(ranges []Range) uint64 {
	var s uint64
	for _, r := range ranges {
		s += r.Size
	}
	return s
}
