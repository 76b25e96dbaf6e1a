package memutils

import (
	"sync/atomic"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Statistics is a point-in-time copy of the counters kept by a Counters service
type Statistics struct {
	Allocations         int64
	Frees               int64
	AllocatedBytes      int64
	FreedBytes          int64
	DeferredAllocations int64
	PendingAllocations  int64
	AbortedAllocations  int64
	AllocationErrors    int64
	FreeErrors          int64
}

func (s *Statistics) Clear() {
	*s = Statistics{}
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.Allocations += other.Allocations
	s.Frees += other.Frees
	s.AllocatedBytes += other.AllocatedBytes
	s.FreedBytes += other.FreedBytes
	s.DeferredAllocations += other.DeferredAllocations
	s.PendingAllocations += other.PendingAllocations
	s.AbortedAllocations += other.AbortedAllocations
	s.AllocationErrors += other.AllocationErrors
	s.FreeErrors += other.FreeErrors
}

// OutstandingBytes is the number of granted bytes that have not been freed. A value that stays above
// zero after all owners have freed their requests indicates leaked pages.
func (s *Statistics) OutstandingBytes() int64 {
	return s.AllocatedBytes - s.FreedBytes
}

func (s *Statistics) PrintJson(json *jwriter.ObjectState) {
	json.Name("Allocations").Int(int(s.Allocations))
	json.Name("Frees").Int(int(s.Frees))
	json.Name("AllocatedBytes").Int(int(s.AllocatedBytes))
	json.Name("FreedBytes").Int(int(s.FreedBytes))
	json.Name("DeferredAllocations").Int(int(s.DeferredAllocations))
	json.Name("PendingAllocations").Int(int(s.PendingAllocations))
	json.Name("AbortedAllocations").Int(int(s.AbortedAllocations))
	json.Name("AllocationErrors").Int(int(s.AllocationErrors))
	json.Name("FreeErrors").Int(int(s.FreeErrors))
}

// Counters is the statistics service shared by everything created from a single engine. Every counter
// is updated with atomic operations, and no lock protects the set as a whole, so a Snapshot taken while
// requests are in flight is not guaranteed to be self-consistent.
type Counters struct {
	allocations         atomic.Int64
	frees               atomic.Int64
	allocatedBytes      atomic.Int64
	freedBytes          atomic.Int64
	deferredAllocations atomic.Int64
	pendingAllocations  atomic.Int64
	abortedAllocations  atomic.Int64
	allocationErrors    atomic.Int64
	freeErrors          atomic.Int64
}

func NewCounters() *Counters {
	return &Counters{}
}

// AllocationComplete records a successful grant of the provided number of bytes
func (c *Counters) AllocationComplete(bytes int) {
	c.allocations.Add(1)
	c.allocatedBytes.Add(int64(bytes))
}

// Freed records pages of the provided number of bytes being returned to the page source. It is only
// called when the free succeeded, so a leak shows up as a difference between allocated and freed bytes.
func (c *Counters) Freed(bytes int) {
	c.frees.Add(1)
	c.freedBytes.Add(int64(bytes))
}

// Pending records a request that the page source will complete asynchronously
func (c *Counters) Pending() {
	c.pendingAllocations.Add(1)
}

// Deferred records the completion of a request previously recorded with Pending
func (c *Counters) Deferred() {
	c.deferredAllocations.Add(1)
	c.pendingAllocations.Add(-1)
}

func (c *Counters) Aborted() {
	c.abortedAllocations.Add(1)
}

func (c *Counters) AllocationError() {
	c.allocationErrors.Add(1)
}

func (c *Counters) FreeError() {
	c.freeErrors.Add(1)
}

func (c *Counters) Snapshot() Statistics {
	return Statistics{
		Allocations:         c.allocations.Load(),
		Frees:               c.frees.Load(),
		AllocatedBytes:      c.allocatedBytes.Load(),
		FreedBytes:          c.freedBytes.Load(),
		DeferredAllocations: c.deferredAllocations.Load(),
		PendingAllocations:  c.pendingAllocations.Load(),
		AbortedAllocations:  c.abortedAllocations.Load(),
		AllocationErrors:    c.allocationErrors.Load(),
		FreeErrors:          c.freeErrors.Load(),
	}
}

// Reset zeroes every counter and returns the values they held. Each counter is swapped atomically but
// the set as a whole is not.
func (c *Counters) Reset() Statistics {
	return Statistics{
		Allocations:         c.allocations.Swap(0),
		Frees:               c.frees.Swap(0),
		AllocatedBytes:      c.allocatedBytes.Swap(0),
		FreedBytes:          c.freedBytes.Swap(0),
		DeferredAllocations: c.deferredAllocations.Swap(0),
		PendingAllocations:  c.pendingAllocations.Swap(0),
		AbortedAllocations:  c.abortedAllocations.Swap(0),
		AllocationErrors:    c.allocationErrors.Swap(0),
		FreeErrors:          c.freeErrors.Swap(0),
	}
}
