package memutils

import "github.com/prometheus/client_golang/prometheus"

var (
	allocationsDesc = prometheus.NewDesc("raidmem_allocations_total",
		"Requests granted by the page source", nil, nil)
	freesDesc = prometheus.NewDesc("raidmem_frees_total",
		"Requests whose pages were returned to the page source", nil, nil)
	allocatedBytesDesc = prometheus.NewDesc("raidmem_allocated_bytes_total",
		"Bytes granted by the page source", nil, nil)
	freedBytesDesc = prometheus.NewDesc("raidmem_freed_bytes_total",
		"Bytes returned to the page source", nil, nil)
	deferredDesc = prometheus.NewDesc("raidmem_deferred_allocations_total",
		"Requests granted asynchronously", nil, nil)
	pendingDesc = prometheus.NewDesc("raidmem_pending_allocations",
		"Requests waiting on an asynchronous grant", nil, nil)
	abortedDesc = prometheus.NewDesc("raidmem_aborted_allocations_total",
		"Requests aborted before they were granted", nil, nil)
	allocationErrorsDesc = prometheus.NewDesc("raidmem_allocation_errors_total",
		"Requests that failed or violated the allocation protocol", nil, nil)
	freeErrorsDesc = prometheus.NewDesc("raidmem_free_errors_total",
		"Frees that were refused", nil, nil)
)

// Collector exposes a Counters service to a prometheus registry
type Collector struct {
	counters *Counters
}

var _ prometheus.Collector = &Collector{}

func NewCollector(counters *Counters) *Collector {
	return &Collector{counters: counters}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- allocationsDesc
	descs <- freesDesc
	descs <- allocatedBytesDesc
	descs <- freedBytesDesc
	descs <- deferredDesc
	descs <- pendingDesc
	descs <- abortedDesc
	descs <- allocationErrorsDesc
	descs <- freeErrorsDesc
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	stats := c.counters.Snapshot()

	metrics <- prometheus.MustNewConstMetric(allocationsDesc, prometheus.CounterValue, float64(stats.Allocations))
	metrics <- prometheus.MustNewConstMetric(freesDesc, prometheus.CounterValue, float64(stats.Frees))
	metrics <- prometheus.MustNewConstMetric(allocatedBytesDesc, prometheus.CounterValue, float64(stats.AllocatedBytes))
	metrics <- prometheus.MustNewConstMetric(freedBytesDesc, prometheus.CounterValue, float64(stats.FreedBytes))
	metrics <- prometheus.MustNewConstMetric(deferredDesc, prometheus.CounterValue, float64(stats.DeferredAllocations))
	metrics <- prometheus.MustNewConstMetric(pendingDesc, prometheus.GaugeValue, float64(stats.PendingAllocations))
	metrics <- prometheus.MustNewConstMetric(abortedDesc, prometheus.CounterValue, float64(stats.AbortedAllocations))
	metrics <- prometheus.MustNewConstMetric(allocationErrorsDesc, prometheus.CounterValue, float64(stats.AllocationErrors))
	metrics <- prometheus.MustNewConstMetric(freeErrorsDesc, prometheus.CounterValue, float64(stats.FreeErrors))
}
