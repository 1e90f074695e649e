package vmregion

// Stats is a snapshot of a region's free space.
type Stats struct {
	Base           uint64
	Size           uint64
	State          State
	FreeBytes      uint64 // Sum of all free ranges
	AllocatedBytes uint64 // Size - FreeBytes
	FreeRanges     int    // Number of free ranges
	LargestFree    uint64 // Size of the largest free range
}

// Fragmentation returns 1 - LargestFree/FreeBytes: 0 when all free space is
// one range, approaching 1 as it splinters. A region with no free space
// reports 0.
func (s Stats) Fragmentation() float64 {
	if s.FreeBytes == 0 {
		return 0
	}
	return 1 - float64(s.LargestFree)/float64(s.FreeBytes)
}

func (r *Region) Stats() Stats {
	s := Stats{Base: r.base, Size: r.size, State: r.State()}
	for _, fr := range r.Ranges() {
		s.FreeBytes += fr.Size
		s.FreeRanges++
		if fr.Size > s.LargestFree {
			s.LargestFree = fr.Size
		}
	}
	s.AllocatedBytes = r.size - s.FreeBytes
	return s
}
