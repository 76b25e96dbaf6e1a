package ram

import (
	"context"

	cerrors "github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/fbestack/raidmem/memutils"
	"golang.org/x/exp/slog"
)

// Free returns the pages of the request in use to the page source, so the owner may submit again.
//
// Freeing an owner with no request in use succeeds and does nothing. Freeing while the request is
// still waiting for memory fails with memutils.ValidationError; abort it and wait for the result
// first. If the guard finds that any granted page or carved structure was overwritten, the pages are
// not returned: the failure is logged at LevelCritical, the request stays in use, and the error wraps
// memutils.CorruptionDetectedError.
func (o *Owner) Free(ctx context.Context) error {
	request := o.request
	if request == nil {
		return nil
	}

	o.logger.Debug("Owner::Free", slog.Uint64("RequestID", request.id), slog.String("Result", request.Result().String()))

	if request.WaitingForMemory() || request.Result() == AllocationPending {
		o.engine.counters.FreeError()
		return cerrors.Wrapf(memutils.ValidationError, "request %d is still waiting for memory", redact.Safe(request.id))
	}

	if request.Result() != AllocationGranted {
		// Nothing was granted, but the page source still holds the request
		err := o.engine.source.Free(request.handle)
		if err != nil {
			o.engine.counters.FreeError()
			return cerrors.Mark(cerrors.Wrapf(err, "releasing request %d", redact.Safe(request.id)), memutils.AllocationError)
		}

		o.release(request)
		return nil
	}

	err := o.validate(request)
	if err != nil {
		o.engine.counters.FreeError()
		o.logger.LogAttrs(ctx, LevelCritical, "granted memory was overwritten, leaking the request's pages",
			append(request.logAttrs(), slog.Any("error", err))...)
		return err
	}

	err = o.engine.source.Free(request.handle)
	if err != nil {
		o.engine.counters.FreeError()
		return cerrors.Mark(cerrors.Wrapf(err, "freeing request %d", redact.Safe(request.id)), memutils.AllocationError)
	}

	o.engine.counters.Freed(request.Pages.CapacityBytes())
	o.release(request)
	return nil
}

func (o *Owner) validate(request *MemoryRequest) error {
	g := o.engine.guard

	err := g.ValidatePages(request.control, request.Pages.Tier)
	if err != nil {
		return cerrors.Wrap(err, "control pages")
	}

	err = g.ValidatePages(request.data, request.Pages.Tier)
	if err != nil {
		return cerrors.Wrap(err, "data pages")
	}

	err = request.ledger.Validate()
	if err != nil {
		return cerrors.Wrap(err, "carved structures")
	}

	return nil
}

func (o *Owner) release(request *MemoryRequest) {
	o.engine.untrack(request)
	request.ledger.Reset()
	request.control = nil
	request.data = nil
	o.request = nil
	o.rejected = false
	o.quiescing.Store(false)
}
