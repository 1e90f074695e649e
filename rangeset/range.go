package rangeset

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

type Range struct {
	Addr uint64 // First address of the range
	Size uint64 // Length of the range in bytes
}

// End returns the first address past the range.
func (r Range) End() uint64 {
	return r.Addr + r.Size
}

// Contains reports whether [addr, end) lies inside the range.
func (r Range) Contains(addr, end uint64) bool {
	return addr >= r.Addr && end <= r.End()
}

// Overlaps reports whether the range shares at least one address with [addr, end).
func (r Range) Overlaps(addr, end uint64) bool {
	return r.Addr < end && addr < r.End()
}

// Abuts reports whether other starts exactly where r ends.
func (r Range) Abuts(other Range) bool {
	return r.End() == other.Addr
}

func (r Range) String() string {
	return fmt.Sprintf("[%#x:%#x] %s", r.Addr, r.End(), humanize.IBytes(r.Size))
}
