package ram

import (
	"context"
	"sync/atomic"

	cerrors "github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/fbestack/raidmem/memutils"
	"github.com/fbestack/raidmem/memutils/guard"
	"github.com/fbestack/raidmem/memutils/sizing"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/slog"
)

// LevelCritical is the log level used when a guard detects that granted memory was overwritten
const LevelCritical = slog.LevelError + 4

// Engine owns everything shared by the owners created from it: the page source, the guard, the
// page sizer and the statistics service. An engine is safe to use from many goroutines.
type Engine struct {
	useMutex bool
	logger   *slog.Logger
	source   PageSource
	guard    *guard.Guard
	sizer    *sizing.PageSizer

	counters   *memutils.Counters
	collector  *memutils.Collector
	registerer prometheus.Registerer

	createFlags   CreateFlags
	nextRequestID atomic.Uint64
	tracker       *requestTracker
	destroyed     atomic.Bool
}

// NewOwner creates an owner for the sub-transaction identified by ioStamp. callbacks may be nil, in
// which case deferred results are only observable through Wait and Done.
func (e *Engine) NewOwner(ioStamp uint64, callbacks *OwnerCallbackOptions) *Owner {
	owner := &Owner{
		engine:  e,
		logger:  e.logger,
		ioStamp: ioStamp,
	}
	owner.callbacks = ownerCallbacks{Callbacks: callbacks, Owner: owner}

	return owner
}

func (e *Engine) Guard() *guard.Guard {
	return e.guard
}

func (e *Engine) Sizer() *sizing.PageSizer {
	return e.sizer
}

// Statistics returns a snapshot of the engine's counters
func (e *Engine) Statistics() memutils.Statistics {
	return e.counters.Snapshot()
}

// ResetStatistics zeroes the engine's counters and returns the values they held
func (e *Engine) ResetStatistics() memutils.Statistics {
	return e.counters.Reset()
}

// Outstanding returns every request that has been submitted and not yet freed, in submission order.
// It is always empty unless the engine was created with EngineCreateTrackRequests.
func (e *Engine) Outstanding() []*MemoryRequest {
	if e.tracker == nil {
		return nil
	}

	return e.tracker.Requests()
}

// BuildStatsString returns a JSON document describing the engine's statistics. When detailedMap is
// true and requests are tracked, every outstanding request is listed as well.
func (e *Engine) BuildStatsString(detailedMap bool) string {
	writer := jwriter.NewWriter()
	objState := writer.Object()

	stats := e.counters.Snapshot()
	objState.Name("GuardMode").String(e.guard.Mode().String())
	objState.Name("Flags").String(e.createFlags.String())

	statsObj := objState.Name("Total").Object()
	stats.PrintJson(&statsObj)
	statsObj.End()
	objState.Name("OutstandingBytes").Int(int(stats.OutstandingBytes()))

	if detailedMap && e.tracker != nil {
		e.tracker.BuildStatsString(objState.Name("Outstanding"))
	}

	objState.End()

	return string(writer.Bytes())
}

// Destroy releases the engine. It fails if any tracked request was never freed or, without tracking,
// if the statistics show pending requests or granted bytes that were never returned. The failure is
// reported but the engine is destroyed either way.
func (e *Engine) Destroy() error {
	if !e.destroyed.CompareAndSwap(false, true) {
		return cerrors.Wrap(memutils.ValidationError, "engine already destroyed")
	}

	e.logger.Debug("Engine::Destroy")

	if e.registerer != nil {
		e.registerer.Unregister(e.collector)
	}

	if e.tracker != nil {
		err := e.tracker.Validate()
		if err != nil {
			return err
		}

		outstanding := e.tracker.Requests()
		for _, request := range outstanding {
			attrs := append(request.logAttrs(), slog.String("Result", request.Result().String()))
			e.logger.LogAttrs(context.Background(), slog.LevelError, "request was never freed", attrs...)
		}

		if len(outstanding) > 0 {
			return cerrors.Newf("engine destroyed with %d unreleased requests", redact.Safe(len(outstanding)))
		}

		return nil
	}

	stats := e.counters.Snapshot()
	if stats.PendingAllocations > 0 || stats.OutstandingBytes() > 0 {
		e.logger.LogAttrs(context.Background(), slog.LevelError, "engine destroyed with unreleased requests",
			slog.Int64("PendingAllocations", stats.PendingAllocations),
			slog.Int64("OutstandingBytes", stats.OutstandingBytes()),
		)
		return cerrors.Newf("engine destroyed with %d pending requests and %d unreleased bytes",
			redact.Safe(stats.PendingAllocations), redact.Safe(stats.OutstandingBytes()))
	}

	return nil
}

func (e *Engine) track(request *MemoryRequest) {
	if e.tracker != nil {
		e.tracker.Register(request)
	}
}

func (e *Engine) untrack(request *MemoryRequest) {
	if e.tracker != nil {
		e.tracker.Unregister(request)
	}
}
