package ram

import (
	"github.com/fbestack/raidmem/memutils"
	"github.com/fbestack/raidmem/memutils/sizing"
)

//go:generate mockgen -source ./page_source.go -destination ./mocks/page_source.go -package mock_ram

// SubmitStatus is the page source's answer to a submitted request. It only distinguishes a grant
// delivered before Submit returned from one that will be delivered later, never whether the grant
// succeeded.
type SubmitStatus uint32

const (
	// SubmitImmediate indicates the completion callback ran before Submit returned
	SubmitImmediate SubmitStatus = iota
	// SubmitDeferred indicates the completion callback will run later, on any goroutine
	SubmitDeferred
	// SubmitError indicates the request was not accepted
	SubmitError
)

var submitStatusMapping = map[SubmitStatus]string{
	SubmitImmediate: "SubmitImmediate",
	SubmitDeferred:  "SubmitDeferred",
	SubmitError:     "SubmitError",
}

func (s SubmitStatus) String() string {
	str, ok := submitStatusMapping[s]
	if !ok {
		return "unknown SubmitStatus"
	}

	return str
}

// Priority is passed through to the page source, which may use it to order deferred grants
type Priority uint32

const (
	PriorityNormal Priority = iota
	PriorityHigh
	// PriorityRecovery is used by requests made while recovering from a failed I/O
	PriorityRecovery
)

var priorityMapping = map[Priority]string{
	PriorityNormal:   "PriorityNormal",
	PriorityHigh:     "PriorityHigh",
	PriorityRecovery: "PriorityRecovery",
}

func (p Priority) String() string {
	str, ok := priorityMapping[p]
	if !ok {
		return "unknown Priority"
	}

	return str
}

// RequestParams describes the pages wanted from a page source
type RequestParams struct {
	Tier         sizing.PageTier
	ControlPages int
	DataPages    int
	Priority     Priority
	IOStamp      uint64
}

// CompletionFunc is invoked by the page source exactly once per submitted request, when the request
// has been granted, has failed, or has been aborted. It may be invoked inline from Submit or later from
// any goroutine.
type CompletionFunc func()

// Request is a page source's handle for a single page request
type Request interface {
	// Pages returns the granted control and data pages. Both are empty until the grant is complete.
	Pages() (control memutils.PageList, data memutils.PageList)
}

// PageSource is the external, possibly asynchronous, page allocator. Nothing is assumed about its
// internal layout beyond the requested tier.
type PageSource interface {
	BuildRequest(params RequestParams, completion CompletionFunc) (Request, error)
	Submit(request Request) (SubmitStatus, error)
	IsGrantComplete(request Request) bool
	IsAborted(request Request) bool
	// Free returns a request's pages, or releases a request that was never granted
	Free(request Request) error
	// Abort asks the page source to give up on a request. The completion callback still runs.
	Abort(request Request)
}
