package ram

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fbestack/raidmem/memutils"
	"github.com/fbestack/raidmem/memutils/guard"
	"github.com/fbestack/raidmem/memutils/sizing"
	"golang.org/x/exp/slog"
)

// AllocationResult is the terminal state of a MemoryRequest. It is assigned exactly once.
type AllocationResult uint32

const (
	// AllocationPending means no result has been delivered yet
	AllocationPending AllocationResult = iota
	// AllocationGranted means the pages were granted and must eventually be freed. A request that was
	// aborted after the page source had already granted it is also AllocationGranted.
	AllocationGranted
	// AllocationAborted means the request was aborted before anything was granted
	AllocationAborted
	// AllocationFailed means the page source could not grant the request
	AllocationFailed
)

var allocationResultMapping = map[AllocationResult]string{
	AllocationPending: "AllocationPending",
	AllocationGranted: "AllocationGranted",
	AllocationAborted: "AllocationAborted",
	AllocationFailed:  "AllocationFailed",
}

func (r AllocationResult) String() string {
	str, ok := allocationResultMapping[r]
	if !ok {
		return "unknown AllocationResult"
	}

	return str
}

// resultCell is a single-assignment cell. A writer first claims the cell, then assigns it; only the
// first claim succeeds, and the assignment closes done.
type resultCell struct {
	claimed atomic.Bool
	result  atomic.Uint32
	done    chan struct{}
}

func (c *resultCell) init() {
	c.done = make(chan struct{})
}

func (c *resultCell) claim() bool {
	return c.claimed.CompareAndSwap(false, true)
}

func (c *resultCell) assign(result AllocationResult) bool {
	if !c.result.CompareAndSwap(uint32(AllocationPending), uint32(result)) {
		return false
	}

	close(c.done)
	return true
}

func (c *resultCell) load() AllocationResult {
	return AllocationResult(c.result.Load())
}

// delivery tracks whether a completion ran while Submit was still on the stack
type delivery uint32

const (
	deliverySubmitting delivery = iota
	deliveryInline
	deliveryDeferred
)

// MemoryRequest is the core's record of a single page request, from submission until it is freed
type MemoryRequest struct {
	id       uint64
	Priority Priority
	IOStamp  uint64
	Counts   sizing.ResourceCounts
	Pages    sizing.PageCount

	handle Request

	waiting   atomic.Bool
	deferred  atomic.Bool
	delivery  atomic.Uint32
	cell      resultCell
	abortOnce sync.Once

	control memutils.PageList
	data    memutils.PageList
	ledger  guard.Ledger
}

func (r *MemoryRequest) ID() uint64 {
	return r.id
}

// Handle returns the page source's handle for this request
func (r *MemoryRequest) Handle() Request {
	return r.handle
}

func (r *MemoryRequest) Result() AllocationResult {
	return r.cell.load()
}

// WaitingForMemory reports whether the request has been submitted and its completion has not yet run
func (r *MemoryRequest) WaitingForMemory() bool {
	return r.waiting.Load()
}

// Deferred reports whether the result was delivered after Submit returned
func (r *MemoryRequest) Deferred() bool {
	return r.deferred.Load()
}

// Done returns a channel that is closed when the result is assigned
func (r *MemoryRequest) Done() <-chan struct{} {
	return r.cell.done
}

// ControlPages returns the granted control pages, or nil before the request is granted
func (r *MemoryRequest) ControlPages() memutils.PageList {
	if r.Result() != AllocationGranted {
		return nil
	}

	return r.control
}

// DataPages returns the granted data pages, or nil before the request is granted
func (r *MemoryRequest) DataPages() memutils.PageList {
	if r.Result() != AllocationGranted {
		return nil
	}

	return r.data
}

func (r *MemoryRequest) logAttrs() []slog.Attr {
	return []slog.Attr{
		slog.Uint64("RequestID", r.id),
		slog.Uint64("IOStamp", r.IOStamp),
		slog.String("Tier", r.Pages.Tier.String()),
		slog.Int("ControlPages", r.Pages.ControlPages),
		slog.Int("DataPages", r.Pages.DataPages),
	}
}

// buildRequest sizes counts into a MemoryRequest and asks the page source for a matching handle.
// The completion passed to the page source is bound to the returned request.
func (e *Engine) buildRequest(ctx context.Context, owner *Owner, counts sizing.ResourceCounts, priority Priority) (*MemoryRequest, error) {
	pages, err := e.sizer.CalculatePages(counts)
	if err != nil {
		return nil, err
	}

	request := &MemoryRequest{
		id:       e.nextRequestID.Add(1),
		Priority: priority,
		IOStamp:  owner.ioStamp,
		Counts:   counts,
		Pages:    pages,
	}
	request.cell.init()

	e.logger.LogAttrs(ctx, slog.LevelDebug, "Engine::buildRequest", request.logAttrs()...)

	handle, err := e.source.BuildRequest(RequestParams{
		Tier:         pages.Tier,
		ControlPages: pages.ControlPages,
		DataPages:    pages.DataPages,
		Priority:     priority,
		IOStamp:      owner.ioStamp,
	}, func() {
		owner.complete(request)
	})
	if err != nil {
		return nil, err
	}

	request.handle = handle
	return request, nil
}
