package rangeset

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// Set is an address-ordered sequence of ranges. Every stored range holds one
// node from the pool; a mutation that needs nodes acquires them before it
// touches the sequence, so a failed call leaves the set as it was.
//
// Set does not enforce ordering or coalescing on its own. Callers pick the
// index; Verify* helpers check the result.
type Set struct {
	ranges []Range
	pool   NodePool
}

func New(pool NodePool) *Set {
	if pool == nil {
		pool = Unbounded
	}
	return &Set{pool: pool}
}

func (s *Set) Pool() NodePool {
	return s.pool
}

func (s *Set) Len() int {
	return len(s.ranges)
}

func (s *Set) At(i int) Range {
	return s.ranges[i]
}

// Ranges returns a copy of the stored ranges.
func (s *Set) Ranges() []Range {
	out := make([]Range, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// Search returns the index of the first range starting after addr.
func (s *Set) Search(addr uint64) int {
	return sort.Search(len(s.ranges), func(i int) bool {
		return s.ranges[i].Addr > addr
	})
}

// Insert places r at index i.
func (s *Set) Insert(i int, r Range) error {
	return s.InsertAll(i, r)
}

// InsertAll places rs, in order, starting at index i. Nodes for all of them
// are acquired up front.
func (s *Set) InsertAll(i int, rs ...Range) error {
	if len(rs) == 0 {
		return nil
	}
	if err := s.pool.Acquire(len(rs)); err != nil {
		return errors.Wrapf(err, "insert %d range(s) at %d", len(rs), i)
	}
	s.ranges = append(s.ranges, rs...)
	copy(s.ranges[i+len(rs):], s.ranges[i:len(s.ranges)-len(rs)])
	copy(s.ranges[i:], rs)
	return nil
}

// Replace overwrites the range at index i. No node changes hands.
func (s *Set) Replace(i int, r Range) {
	s.ranges[i] = r
}

// Remove deletes the range at index i and returns its node to the pool.
func (s *Set) Remove(i int) {
	copy(s.ranges[i:], s.ranges[i+1:])
	s.ranges[len(s.ranges)-1] = Range{}
	s.ranges = s.ranges[:len(s.ranges)-1]
	s.pool.Release(1)
}

// Clone copies the set into fresh storage from the same pool.
func (s *Set) Clone() (*Set, error) {
	if err := s.pool.Acquire(len(s.ranges)); err != nil {
		return nil, errors.Wrapf(err, "clone %d range(s)", len(s.ranges))
	}
	return &Set{ranges: s.Ranges(), pool: s.pool}, nil
}

// Clear drops every range and returns their nodes.
func (s *Set) Clear() {
	n := len(s.ranges)
	s.ranges = nil
	s.pool.Release(n)
}

// Total is the sum of all range sizes.
func (s *Set) Total() uint64 {
	var t uint64
	for _, r := range s.ranges {
		t += r.Size
	}
	return t
}

// Each calls fn for every range in address order until fn returns false.
func (s *Set) Each(fn func(r Range) bool) {
	for _, r := range s.ranges {
		if !fn(r) {
			return
		}
	}
}
