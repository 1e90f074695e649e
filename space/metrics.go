package space

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	freeBytesDesc = prometheus.NewDesc(
		"vmregion_free_bytes",
		"Bytes of the address space not allocated.",
		[]string{"space"},
		nil,
	)
	allocatedBytesDesc = prometheus.NewDesc(
		"vmregion_allocated_bytes",
		"Bytes of the address space allocated.",
		[]string{"space"},
		nil,
	)
	freeRangesDesc = prometheus.NewDesc(
		"vmregion_free_ranges",
		"The current number of free ranges tracked for the address space.",
		[]string{"space"},
		nil,
	)
	largestFreeDesc = prometheus.NewDesc(
		"vmregion_largest_free_bytes",
		"Size of the largest free range of the address space.",
		[]string{"space"},
		nil,
	)
	zonesDesc = prometheus.NewDesc(
		"vmregion_zones",
		"The current number of mapped zones in the address space.",
		[]string{"space"},
		nil,
	)
)

// Collector exports the stats of every space in a Registry, labelled by id.
type Collector struct {
	registry *Registry
}

func NewCollector(r *Registry) *Collector {
	return &Collector{registry: r}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- freeBytesDesc
	descs <- allocatedBytesDesc
	descs <- freeRangesDesc
	descs <- largestFreeDesc
	descs <- zonesDesc
}

func (c *Collector) Collect(m chan<- prometheus.Metric) {
	c.registry.Each(func(id uint64, s *Space) {
		st := s.Stats()
		label := strconv.FormatUint(id, 10)
		m <- prometheus.MustNewConstMetric(freeBytesDesc, prometheus.GaugeValue, float64(st.FreeBytes), label)
		m <- prometheus.MustNewConstMetric(allocatedBytesDesc, prometheus.GaugeValue, float64(st.AllocatedBytes), label)
		m <- prometheus.MustNewConstMetric(freeRangesDesc, prometheus.GaugeValue, float64(st.FreeRanges), label)
		m <- prometheus.MustNewConstMetric(largestFreeDesc, prometheus.GaugeValue, float64(st.LargestFree), label)
		m <- prometheus.MustNewConstMetric(zonesDesc, prometheus.GaugeValue, float64(st.Zones), label)
	})
}
