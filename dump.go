package vmregion

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Print writes one line per free range followed by a summary.
func (r *Region) Print(w io.Writer) {
	fmt.Fprintf(w, "region 0x%016x - 0x%016x (%s, %s)\n",
		r.base, r.end(), humanize.IBytes(r.size), r.State())
	for _, fr := range r.Ranges() {
		fmt.Fprintf(w, "  0x%016x - 0x%016x %s\n", fr.Addr, fr.End(), humanize.IBytes(fr.Size))
	}
	s := r.Stats()
	fmt.Fprintf(w, "  free: %s in %d range(s), allocated: %s\n",
		humanize.IBytes(s.FreeBytes), s.FreeRanges, humanize.IBytes(s.AllocatedBytes))
}

// PrintDetailedMap writes the region and its free ranges as a JSON object.
// Addresses and sizes are hex strings so they survive 64-bit values intact.
func (r *Region) PrintDetailedMap(w *jwriter.Writer) {
	s := r.Stats()
	obj := w.Object()
	obj.Name("base").String(hex(r.base))
	obj.Name("size").String(hex(r.size))
	obj.Name("pageSize").String(hex(r.pageSize))
	obj.Name("state").String(s.State.String())
	obj.Name("freeBytes").String(hex(s.FreeBytes))
	obj.Name("allocatedBytes").String(hex(s.AllocatedBytes))
	obj.Name("largestFree").String(hex(s.LargestFree))

	arr := obj.Name("ranges").Array()
	for _, fr := range r.Ranges() {
		ro := w.Object()
		ro.Name("addr").String(hex(fr.Addr))
		ro.Name("size").String(hex(fr.Size))
		ro.End()
	}
	arr.End()
	obj.End()
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}
