package space

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/btree"
)

// Prot is a set of page protection bits.
type Prot uint8

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec

	ProtNone Prot = 0
	ProtRW        = ProtRead | ProtWrite
	ProtRX        = ProtRead | ProtExec
)

func (p Prot) String() string {
	b := []byte("---")
	if p&ProtRead != 0 {
		b[0] = 'r'
	}
	if p&ProtWrite != 0 {
		b[1] = 'w'
	}
	if p&ProtExec != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// Zone is a mapped range of the space with a single protection.
type Zone struct {
	Addr uint64
	Size uint64
	Prot Prot
}

func (z Zone) End() uint64 {
	return z.Addr + z.Size
}

func (z Zone) String() string {
	return fmt.Sprintf("0x%016x - 0x%016x %s %s", z.Addr, z.End(), z.Prot, humanize.IBytes(z.Size))
}

const zoneDegree = 16

// zoneSet indexes zones by address. Zones never overlap.
type zoneSet struct {
	t *btree.BTreeG[Zone]
}

func newZoneSet() zoneSet {
	return zoneSet{t: btree.NewG[Zone](zoneDegree, func(a, b Zone) bool { return a.Addr < b.Addr })}
}

func (zs zoneSet) insert(z Zone) {
	zs.t.ReplaceOrInsert(z)
}

func (zs zoneSet) len() int {
	return zs.t.Len()
}

// clone is copy-on-write; either set may be modified afterwards.
func (zs zoneSet) clone() zoneSet {
	return zoneSet{t: zs.t.Clone()}
}

func (zs zoneSet) clear() {
	zs.t.Clear(false)
}

// all returns the zones in address order.
func (zs zoneSet) all() []Zone {
	out := make([]Zone, 0, zs.t.Len())
	zs.t.Ascend(func(z Zone) bool {
		out = append(out, z)
		return true
	})
	return out
}

// overlapping returns, in address order, the zones that intersect [addr, end).
func (zs zoneSet) overlapping(addr, end uint64) []Zone {
	var out []Zone
	// only the last zone starting at or before addr can straddle it
	zs.t.DescendLessOrEqual(Zone{Addr: addr}, func(z Zone) bool {
		if z.End() > addr {
			out = append(out, z)
		}
		return false
	})
	zs.t.AscendRange(Zone{Addr: addr + 1}, Zone{Addr: end}, func(z Zone) bool {
		out = append(out, z)
		return true
	})
	return out
}

// pieces returns the parts of the zones that fall inside [addr, end).
func (zs zoneSet) pieces(addr, end uint64) []Zone {
	out := zs.overlapping(addr, end)
	for i, z := range out {
		lo, hi := z.Addr, z.End()
		if lo < addr {
			lo = addr
		}
		if hi > end {
			hi = end
		}
		out[i] = Zone{Addr: lo, Size: hi - lo, Prot: z.Prot}
	}
	return out
}

// covered reports whether the zones leave no gap in [addr, end).
func (zs zoneSet) covered(addr, end uint64) bool {
	next := addr
	for _, p := range zs.pieces(addr, end) {
		if p.Addr != next {
			return false
		}
		next = p.End()
	}
	return next == end
}

// cut removes [addr, end) from every zone, trimming or splitting the ones
// that straddle an edge.
func (zs zoneSet) cut(addr, end uint64) {
	for _, z := range zs.overlapping(addr, end) {
		zs.t.Delete(z)
		if z.Addr < addr {
			zs.insert(Zone{Addr: z.Addr, Size: addr - z.Addr, Prot: z.Prot})
		}
		if z.End() > end {
			zs.insert(Zone{Addr: end, Size: z.End() - end, Prot: z.Prot})
		}
	}
}

// protect sets prot on [addr, end), splitting zones at both edges.
func (zs zoneSet) protect(addr, end uint64, prot Prot) {
	pieces := zs.pieces(addr, end)
	zs.cut(addr, end)
	for _, p := range pieces {
		p.Prot = prot
		zs.insert(p)
	}
}
