package ram

import (
	"context"
	"sync/atomic"

	cerrors "github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/fbestack/raidmem/memutils"
	"github.com/fbestack/raidmem/memutils/carve"
	"github.com/fbestack/raidmem/memutils/sizing"
	"golang.org/x/exp/slog"
)

var closedChannel = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Owner is the allocation side of a single sub-transaction. It holds at most one MemoryRequest at a
// time: a request is in use from Submit until a successful Free.
//
// An owner is driven by one goroutine at a time. The only other goroutine that touches it is the one
// the page source delivers a deferred completion on, and that goroutine only touches the in-flight
// request.
type Owner struct {
	engine    *Engine
	logger    *slog.Logger
	ioStamp   uint64
	callbacks ownerCallbacks

	request      *MemoryRequest
	submitFailed bool
	// rejected is set when a Submit was refused because a request was already in use
	rejected  bool
	quiescing atomic.Bool
}

func (o *Owner) IOStamp() uint64 {
	return o.ioStamp
}

// Request returns the request currently in use, or nil
func (o *Owner) Request() *MemoryRequest {
	return o.request
}

// Submit sizes counts, builds a request and hands it to the page source. It never blocks on the
// page source.
//
// When it returns SubmitImmediate the result is already available. When it returns SubmitDeferred
// the owner is in flight until the result is delivered: the resume callback is invoked with it, and
// Wait and Done observe it. Cancelling ctx before then aborts the request.
//
// Errors wrap memutils.ValidationError when the request could not be built, memutils.InUseError
// additionally when the previous request has not been freed, and memutils.AllocationError when the
// page source refused it.
func (o *Owner) Submit(ctx context.Context, counts sizing.ResourceCounts, priority Priority) (SubmitStatus, error) {
	o.logger.Debug("Owner::Submit",
		slog.Uint64("IOStamp", o.ioStamp),
		slog.Int("BufferBlocks", counts.BufferBlocks),
		slog.Int("TransferDescriptors", counts.TransferDescriptors),
		slog.String("Priority", priority.String()),
	)

	if o.engine.destroyed.Load() {
		return SubmitError, cerrors.Wrap(memutils.ValidationError, "engine has been destroyed")
	}

	if o.request != nil {
		o.rejected = true
		o.engine.counters.AllocationError()
		err := cerrors.Wrapf(memutils.InUseError, "request %d has not been freed", redact.Safe(o.request.id))
		return SubmitError, cerrors.Mark(err, memutils.ValidationError)
	}

	request, err := o.engine.buildRequest(ctx, o, counts, priority)
	if err != nil {
		o.submitFailed = true
		o.engine.counters.AllocationError()
		if cerrors.Is(err, memutils.ValidationError) {
			return SubmitError, err
		}
		return SubmitError, cerrors.Mark(cerrors.Wrap(err, "building page request"), memutils.AllocationError)
	}

	if request.Pages.TotalPages() == 0 || request.Pages.TotalPages() >= sizing.MaxTotalPages {
		o.submitFailed = true
		o.engine.counters.AllocationError()
		o.releaseHandle(ctx, request)
		return SubmitError, cerrors.Wrapf(memutils.ValidationError, "request for %d pages is out of range",
			redact.Safe(request.Pages.TotalPages()))
	}

	o.submitFailed = false
	o.rejected = false
	o.quiescing.Store(false)
	o.request = request
	o.engine.track(request)

	request.delivery.Store(uint32(deliverySubmitting))
	request.waiting.Store(true)

	status, err := o.engine.source.Submit(request.handle)
	if err != nil || status == SubmitError {
		if err == nil {
			err = cerrors.New("page source refused the request")
		}

		request.waiting.Store(false)
		if request.cell.claim() {
			request.cell.assign(AllocationFailed)
		}
		o.request = nil
		o.submitFailed = true
		o.engine.untrack(request)
		o.engine.counters.AllocationError()

		o.logger.LogAttrs(ctx, slog.LevelError, "page source refused request",
			append(request.logAttrs(), slog.Any("error", err))...)
		o.releaseHandle(ctx, request)
		return SubmitError, cerrors.Mark(cerrors.Wrap(err, "submitting page request"), memutils.AllocationError)
	}

	if request.delivery.CompareAndSwap(uint32(deliverySubmitting), uint32(deliveryDeferred)) {
		if status == SubmitImmediate {
			o.logger.LogAttrs(ctx, slog.LevelWarn, "page source reported an immediate grant without completing the request",
				request.logAttrs()...)
		}

		o.engine.counters.Pending()
		o.watchContext(ctx, request)
		return SubmitDeferred, nil
	}

	// The completion ran before Submit returned, so the result is already available
	return SubmitImmediate, nil
}

// releaseHandle returns a request that was built but never accepted by the page source
func (o *Owner) releaseHandle(ctx context.Context, request *MemoryRequest) {
	err := o.engine.source.Free(request.handle)
	if err != nil {
		o.logger.LogAttrs(ctx, slog.LevelWarn, "page source could not release a refused request",
			append(request.logAttrs(), slog.Any("error", err))...)
	}
}

func (o *Owner) watchContext(ctx context.Context, request *MemoryRequest) {
	if ctx.Done() == nil {
		return
	}

	go func() {
		select {
		case <-ctx.Done():
			o.abort(request)
		case <-request.Done():
		}
	}()
}

// complete is the completion callback handed to the page source
func (o *Owner) complete(request *MemoryRequest) {
	ctx := context.Background()
	source := o.engine.source

	request.waiting.Store(false)

	if !request.cell.claim() {
		o.rejectCompletion(ctx, request)
		return
	}

	granted := source.IsGrantComplete(request.handle)
	aborted := source.IsAborted(request.handle)

	var result AllocationResult
	switch {
	case granted:
		if aborted {
			o.logger.LogAttrs(ctx, slog.LevelWarn, "request was aborted after it was granted, the pages must still be freed",
				request.logAttrs()...)
		}
		result = o.acceptGrant(ctx, request)
	case aborted:
		result = AllocationAborted
	default:
		o.logger.LogAttrs(ctx, slog.LevelError, "page source completed a request without granting or aborting it",
			request.logAttrs()...)
		result = AllocationFailed
	}

	request.cell.assign(result)

	switch result {
	case AllocationGranted:
		o.engine.counters.AllocationComplete(request.Pages.CapacityBytes())
	case AllocationAborted:
		o.engine.counters.Aborted()
	default:
		o.engine.counters.AllocationError()
	}

	o.logger.Debug("Owner::complete", slog.Uint64("RequestID", request.id), slog.String("Result", result.String()))

	if request.delivery.CompareAndSwap(uint32(deliverySubmitting), uint32(deliveryInline)) {
		return
	}

	request.deferred.Store(true)
	o.engine.counters.Deferred()

	if result == AllocationAborted && o.quiescing.Load() {
		return
	}

	o.callbacks.Resume(result)
}

func (o *Owner) rejectCompletion(ctx context.Context, request *MemoryRequest) {
	o.engine.counters.AllocationError()
	o.logger.LogAttrs(ctx, slog.LevelError, "duplicate completion for request",
		append(request.logAttrs(), slog.String("Result", request.cell.load().String()))...)
}

// acceptGrant checks the granted pages against the request and stamps them through the guard
func (o *Owner) acceptGrant(ctx context.Context, request *MemoryRequest) AllocationResult {
	control, data := request.handle.Pages()

	err := o.checkGrant(request, control, data)
	if err == nil {
		err = o.engine.guard.InitPages(control, request.Pages.Tier)
	}
	if err == nil {
		err = o.engine.guard.InitPages(data, request.Pages.Tier)
	}
	if err != nil {
		o.logger.LogAttrs(ctx, slog.LevelError, "page source granted pages that do not match the request",
			append(request.logAttrs(), slog.Any("error", err))...)
		return AllocationFailed
	}

	request.control = control
	request.data = data
	return AllocationGranted
}

func (o *Owner) checkGrant(request *MemoryRequest, control, data memutils.PageList) error {
	if len(control) != request.Pages.ControlPages || len(data) != request.Pages.DataPages {
		return cerrors.Wrapf(memutils.AllocationError, "granted %d control and %d data pages, requested %d and %d",
			redact.Safe(len(control)), redact.Safe(len(data)),
			redact.Safe(request.Pages.ControlPages), redact.Safe(request.Pages.DataPages))
	}

	tierBytes := request.Pages.Tier.Bytes()
	for _, pages := range []memutils.PageList{control, data} {
		for index, page := range pages {
			if len(page) != tierBytes {
				return cerrors.Wrapf(memutils.AllocationError, "page %d has %d bytes, expected %d for %s",
					redact.Safe(index), redact.Safe(len(page)), redact.Safe(tierBytes), request.Pages.Tier)
			}
		}
	}

	return nil
}

// Abort asks the page source to give up on the in-flight request. It is idempotent, and does nothing
// when there is no request or its result has already been delivered. The result is delivered as
// usual: AllocationAborted, or AllocationGranted if the page source had already granted the pages.
func (o *Owner) Abort() {
	if o.request == nil {
		return
	}

	o.abort(o.request)
}

func (o *Owner) abort(request *MemoryRequest) {
	request.abortOnce.Do(func() {
		if request.cell.load() != AllocationPending {
			return
		}

		o.logger.Debug("Owner::Abort", slog.Uint64("RequestID", request.id))
		o.engine.source.Abort(request.handle)
	})
}

// Quiesce aborts the in-flight request and suppresses the resume callback if the abort wins. It is
// used when the owner is being torn down and nothing should be resumed.
func (o *Owner) Quiesce() {
	o.quiescing.Store(true)
	o.Abort()
}

// Wait blocks until the in-flight request has a result or ctx ends. It returns nil for a grant, an
// error wrapping memutils.AbortedError or memutils.AllocationError otherwise, or the context's error.
func (o *Owner) Wait(ctx context.Context) (AllocationResult, error) {
	request := o.request
	if request == nil {
		return AllocationPending, cerrors.Wrap(memutils.ValidationError, "no request has been submitted")
	}

	select {
	case <-request.Done():
	case <-ctx.Done():
		return AllocationPending, ctx.Err()
	}

	result := request.Result()
	switch result {
	case AllocationGranted:
		return result, nil
	case AllocationAborted:
		return result, cerrors.Wrapf(memutils.AbortedError, "request %d", redact.Safe(request.id))
	default:
		return result, cerrors.Wrapf(memutils.AllocationError, "request %d", redact.Safe(request.id))
	}
}

// Done returns a channel that is closed once the in-flight request has a result. With no request in
// use the channel is already closed.
func (o *Owner) Done() <-chan struct{} {
	if o.request == nil {
		return closedChannel
	}

	return o.request.Done()
}

// Result returns the result of the request in use, or AllocationPending
func (o *Owner) Result() AllocationResult {
	if o.request == nil {
		return AllocationPending
	}

	return o.request.Result()
}

// IsAllocationSuccessful reports whether the request in use was granted
func (o *Owner) IsAllocationSuccessful() bool {
	return o.Result() == AllocationGranted
}

// IsDeferredAllocationSuccessful reports whether the request in use was granted after Submit returned
func (o *Owner) IsDeferredAllocationSuccessful() bool {
	return o.IsAllocationSuccessful() && o.request.Deferred()
}

// Flags derives the OwnerFlags view of the owner's state
func (o *Owner) Flags() OwnerFlags {
	var flags OwnerFlags

	if o.rejected {
		flags |= OwnerAllocationError
	}

	request := o.request
	if request == nil {
		if o.submitFailed {
			flags |= OwnerAllocationError
		}
		return flags
	}

	if request.WaitingForMemory() {
		flags |= OwnerWaitingForMemory
	}
	if request.Deferred() {
		flags |= OwnerDeferredAllocation
	}

	switch request.Result() {
	case AllocationGranted:
		flags |= OwnerAllocationComplete
		if o.engine.source.IsAborted(request.handle) {
			flags |= OwnerRequestAborted
		}
	case AllocationAborted:
		flags |= OwnerRequestAborted
	case AllocationFailed:
		flags |= OwnerAllocationError
	}

	return flags
}

// Cursors returns cursors over the granted pages. Structures carved from the control cursor are
// recorded on the request and validated by Free.
func (o *Owner) Cursors() (control *carve.Cursor, data *carve.Cursor, err error) {
	request := o.request
	if request == nil || request.Result() != AllocationGranted {
		return nil, nil, cerrors.Wrap(memutils.ValidationError, "no granted request to carve")
	}

	control, err = carve.NewCursor(request.control, o.engine.guard, &request.ledger)
	if err != nil {
		return nil, nil, err
	}

	data, err = carve.NewBufferCursor(request.data, o.engine.guard, o.engine.sizer.BufferBytes(&request.Counts))
	if err != nil {
		return nil, nil, err
	}

	return control, data, nil
}

// Carve places every structure and buffer the request was sized for
func (o *Owner) Carve() (*carve.Carving, error) {
	control, data, err := o.Cursors()
	if err != nil {
		return nil, err
	}

	carving, err := carve.Carve(o.engine.sizer, o.request.Counts, control, data)
	if cerrors.Is(err, memutils.EmptyError) {
		o.logger.LogAttrs(context.Background(), slog.LevelError, "granted pages ran out while carving",
			append(o.request.logAttrs(), slog.Any("error", err))...)
	}

	return carving, err
}
