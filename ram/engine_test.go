package ram_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/fbestack/raidmem/memutils"
	"github.com/fbestack/raidmem/memutils/carve"
	"github.com/fbestack/raidmem/memutils/guard"
	"github.com/fbestack/raidmem/memutils/sizing"
	"github.com/fbestack/raidmem/ram"
	"github.com/fbestack/raidmem/ram/pagesource"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newEngine(t require.TestingT, source ram.PageSource, mode guard.Mode, flags ram.CreateFlags) *ram.Engine {
	engine, err := ram.New(testLogger(), source, ram.CreateOptions{
		Flags:     flags,
		GuardMode: &mode,
	})
	require.NoError(t, err)
	return engine
}

func TestNewValidation(t *testing.T) {
	_, err := ram.New(testLogger(), nil, ram.CreateOptions{})
	require.True(t, errors.Is(err, memutils.ValidationError))

	source := pagesource.New(testLogger(), pagesource.Options{})
	badMode := guard.Mode(12)
	_, err = ram.New(testLogger(), source, ram.CreateOptions{GuardMode: &badMode})
	require.True(t, errors.Is(err, memutils.ValidationError))

	engine, err := ram.New(testLogger(), source, ram.CreateOptions{})
	require.NoError(t, err)
	require.Equal(t, guard.DefaultMode(), engine.Guard().Mode())
}

func TestExampleRequestEndToEnd(t *testing.T) {
	for _, mode := range []guard.Mode{guard.ModeOff, guard.ModeMagic, guard.ModeChecksum} {
		t.Run(mode.String(), func(t *testing.T) {
			source := pagesource.New(testLogger(), pagesource.Options{Delivery: pagesource.DeliverImmediate})
			engine := newEngine(t, source, mode, 0)
			owner := engine.NewOwner(100, nil)

			status, err := owner.Submit(context.Background(), exampleCounts(t), ram.PriorityNormal)
			require.NoError(t, err)
			require.Equal(t, ram.SubmitImmediate, status)

			request := owner.Request()
			require.Equal(t, sizing.PageCount{Tier: sizing.PageTierStandard, ControlPages: 1, DataPages: 1}, request.Pages)
			require.Len(t, request.ControlPages(), 1)
			require.Len(t, request.DataPages(), 1)

			control, data, err := owner.Cursors()
			require.NoError(t, err)

			counts := exampleCounts(t)
			carving, err := carve.Carve(engine.Sizer(), counts, control, data)
			require.NoError(t, err)
			require.Equal(t, 4096, carving.BufferBytes())
			require.Len(t, carving.SGLists, 1)

			_, err = carve.Carve(engine.Sizer(), counts, control, data)
			require.True(t, errors.Is(err, memutils.EmptyError))

			require.NoError(t, owner.Free(context.Background()))
			require.Equal(t, 0, source.Outstanding())
			require.Equal(t, 0, source.LivePages())
			require.NoError(t, engine.Destroy())
		})
	}
}

func TestFooterOverwriteLeaksPages(t *testing.T) {
	source := pagesource.New(testLogger(), pagesource.Options{Delivery: pagesource.DeliverImmediate})
	engine := newEngine(t, source, guard.ModeMagic, 0)
	owner := engine.NewOwner(1, nil)

	_, err := owner.Submit(context.Background(), exampleCounts(t), ram.PriorityNormal)
	require.NoError(t, err)

	page := owner.Request().DataPages()[0]
	page[len(page)-1] ^= 0x01

	err = owner.Free(context.Background())
	require.True(t, errors.Is(err, memutils.CorruptionDetectedError))
	require.NotNil(t, owner.Request())
	require.Equal(t, 2, source.LivePages())
	require.Equal(t, int64(1), engine.Statistics().FreeErrors)
	require.Equal(t, int64(0), engine.Statistics().Frees)

	// Once the footer is intact again the pages are returned
	page[len(page)-1] ^= 0x01
	require.NoError(t, owner.Free(context.Background()))
	require.Equal(t, 0, source.LivePages())
}

func TestStructureOverwriteLeaksPages(t *testing.T) {
	source := pagesource.New(testLogger(), pagesource.Options{Delivery: pagesource.DeliverImmediate})
	engine := newEngine(t, source, guard.ModeChecksum, 0)
	owner := engine.NewOwner(1, nil)

	_, err := owner.Submit(context.Background(), exampleCounts(t), ram.PriorityNormal)
	require.NoError(t, err)

	carving, err := owner.Carve()
	require.NoError(t, err)

	// Writing past the last usable entry of a list lands on its terminator
	payload := carving.SGLists[0].Structure().Payload()
	payload[len(payload)-1] = 0xFF

	err = owner.Free(context.Background())
	require.True(t, errors.Is(err, memutils.CorruptionDetectedError))
	require.Equal(t, 1, source.Outstanding())
}

func TestUnguardedFreeIgnoresOverwrites(t *testing.T) {
	source := pagesource.New(testLogger(), pagesource.Options{Delivery: pagesource.DeliverImmediate})
	engine := newEngine(t, source, guard.ModeOff, 0)
	owner := engine.NewOwner(1, nil)

	_, err := owner.Submit(context.Background(), exampleCounts(t), ram.PriorityNormal)
	require.NoError(t, err)

	page := owner.Request().ControlPages()[0]
	page[len(page)-1] = 0xFF

	require.NoError(t, owner.Free(context.Background()))
}

func TestDeferredDelivery(t *testing.T) {
	source := pagesource.New(testLogger(), pagesource.Options{Delivery: pagesource.DeliverDeferred})
	engine := newEngine(t, source, guard.ModeMagic, ram.EngineCreateTrackRequests)

	resumed := make(chan ram.AllocationResult, 1)
	owner := engine.NewOwner(55, &ram.OwnerCallbackOptions{
		Resume: func(_ *ram.Owner, result ram.AllocationResult, _ interface{}) { resumed <- result },
	})

	status, err := owner.Submit(context.Background(), exampleCounts(t), ram.PriorityHigh)
	require.NoError(t, err)

	result, err := owner.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, ram.AllocationGranted, result)
	require.NoError(t, source.Wait())

	if status == ram.SubmitDeferred {
		require.Equal(t, ram.AllocationGranted, <-resumed)
		require.True(t, owner.IsDeferredAllocationSuccessful())
		require.Equal(t, int64(1), engine.Statistics().DeferredAllocations)
	} else {
		// The grant raced ahead of Submit returning, so it was reported as immediate
		require.Equal(t, ram.SubmitImmediate, status)
		require.Empty(t, resumed)
	}
	require.Equal(t, int64(0), engine.Statistics().PendingAllocations)

	_, err = owner.Carve()
	require.NoError(t, err)
	require.NoError(t, owner.Free(context.Background()))
	require.NoError(t, engine.Destroy())
}

func TestHeldRequestAborted(t *testing.T) {
	source := pagesource.New(testLogger(), pagesource.Options{Delivery: pagesource.DeliverHeld})
	engine := newEngine(t, source, guard.ModeMagic, 0)
	owner := engine.NewOwner(8, nil)

	status, err := owner.Submit(context.Background(), exampleCounts(t), ram.PriorityNormal)
	require.NoError(t, err)
	require.Equal(t, ram.SubmitDeferred, status)
	require.Equal(t, ram.OwnerWaitingForMemory, owner.Flags())

	owner.Abort()

	result, err := owner.Wait(context.Background())
	require.True(t, errors.Is(err, memutils.AbortedError))
	require.Equal(t, ram.AllocationAborted, result)
	require.NoError(t, source.Wait())

	require.NoError(t, owner.Free(context.Background()))
	require.Equal(t, 0, source.Outstanding())

	stats := engine.Statistics()
	require.Equal(t, int64(1), stats.AbortedAllocations)
	require.Equal(t, int64(0), stats.PendingAllocations)
	require.NoError(t, engine.Destroy())
}

func TestPageLimitFailsRequest(t *testing.T) {
	source := pagesource.New(testLogger(), pagesource.Options{Delivery: pagesource.DeliverImmediate, PageLimit: 1})
	engine := newEngine(t, source, guard.ModeOff, 0)
	owner := engine.NewOwner(8, nil)

	status, err := owner.Submit(context.Background(), exampleCounts(t), ram.PriorityNormal)
	require.NoError(t, err)
	require.Equal(t, ram.SubmitImmediate, status)
	require.Equal(t, ram.AllocationFailed, owner.Result())
	require.Equal(t, ram.OwnerAllocationError, owner.Flags())

	require.NoError(t, owner.Free(context.Background()))
	require.Equal(t, int64(1), engine.Statistics().AllocationErrors)
}

func TestRefusedSubmit(t *testing.T) {
	source := pagesource.New(testLogger(), pagesource.Options{RefuseSubmit: true})
	engine := newEngine(t, source, guard.ModeOff, ram.EngineCreateTrackRequests)
	owner := engine.NewOwner(8, nil)

	status, err := owner.Submit(context.Background(), exampleCounts(t), ram.PriorityNormal)
	require.Equal(t, ram.SubmitError, status)
	require.True(t, errors.Is(err, memutils.AllocationError))
	require.Empty(t, engine.Outstanding())
	require.Equal(t, 0, source.Outstanding())
	require.NoError(t, engine.Destroy())
}

func TestTrackingAndDestroy(t *testing.T) {
	source := pagesource.New(testLogger(), pagesource.Options{Delivery: pagesource.DeliverHeld})
	engine := newEngine(t, source, guard.ModeOff, ram.EngineCreateTrackRequests)

	first := engine.NewOwner(1001, nil)
	second := engine.NewOwner(1002, nil)

	_, err := first.Submit(context.Background(), exampleCounts(t), ram.PriorityNormal)
	require.NoError(t, err)
	_, err = second.Submit(context.Background(), sizing.ResourceCounts{TransferDescriptors: 2}, ram.PriorityRecovery)
	require.NoError(t, err)

	outstanding := engine.Outstanding()
	require.Len(t, outstanding, 2)
	require.Equal(t, uint64(1001), outstanding[0].IOStamp)
	require.Equal(t, uint64(1002), outstanding[1].IOStamp)

	stats := engine.BuildStatsString(true)
	require.Contains(t, stats, `"IOStamp":1001`)
	require.Contains(t, stats, `"Priority":"PriorityRecovery"`)
	require.Contains(t, stats, `"PendingAllocations":2`)
	require.Contains(t, stats, `"Flags":"EngineCreateTrackRequests"`)
	require.NotContains(t, engine.BuildStatsString(false), "Outstanding\":[")

	source.Release()
	_, err = first.Wait(context.Background())
	require.NoError(t, err)
	_, err = second.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, source.Wait())

	require.NoError(t, first.Free(context.Background()))
	require.Len(t, engine.Outstanding(), 1)

	require.Error(t, engine.Destroy())
	require.True(t, errors.Is(engine.Destroy(), memutils.ValidationError))

	_, err = first.Submit(context.Background(), exampleCounts(t), ram.PriorityNormal)
	require.True(t, errors.Is(err, memutils.ValidationError))
}

func TestDestroyWithoutTrackingUsesStatistics(t *testing.T) {
	source := pagesource.New(testLogger(), pagesource.Options{Delivery: pagesource.DeliverImmediate})
	engine := newEngine(t, source, guard.ModeOff, ram.EngineCreateExternallySynchronized)
	owner := engine.NewOwner(1, nil)

	_, err := owner.Submit(context.Background(), exampleCounts(t), ram.PriorityNormal)
	require.NoError(t, err)
	require.Nil(t, engine.Outstanding())

	require.Error(t, engine.Destroy())
}

func TestResetStatistics(t *testing.T) {
	source := pagesource.New(testLogger(), pagesource.Options{Delivery: pagesource.DeliverImmediate})
	engine := newEngine(t, source, guard.ModeOff, 0)
	owner := engine.NewOwner(1, nil)

	_, err := owner.Submit(context.Background(), exampleCounts(t), ram.PriorityNormal)
	require.NoError(t, err)
	require.NoError(t, owner.Free(context.Background()))

	previous := engine.ResetStatistics()
	require.Equal(t, int64(1), previous.Allocations)
	require.Equal(t, int64(1), previous.Frees)
	require.Equal(t, memutils.Statistics{}, engine.Statistics())
}

func TestEngineRegistersCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	source := pagesource.New(testLogger(), pagesource.Options{Delivery: pagesource.DeliverImmediate})
	mode := guard.ModeOff

	engine, err := ram.New(testLogger(), source, ram.CreateOptions{GuardMode: &mode, Registerer: registry})
	require.NoError(t, err)

	owner := engine.NewOwner(1, nil)
	_, err = owner.Submit(context.Background(), exampleCounts(t), ram.PriorityNormal)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(registry, "raidmem_allocations_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, owner.Free(context.Background()))
	require.NoError(t, engine.Destroy())

	count, err = testutil.GatherAndCount(registry)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

// Racing an abort against the grant always leaves exactly one terminal state, and whatever was
// granted can be freed.
func TestAbortCompletionRace(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("abort and grant resolve to one result", prop.ForAll(
		func(abortFirst bool, descriptors int) bool {
			source := pagesource.New(testLogger(), pagesource.Options{Delivery: pagesource.DeliverHeld})
			engine := newEngine(t, source, guard.ModeMagic, ram.EngineCreateTrackRequests)

			resumed := make(chan ram.AllocationResult, 2)
			owner := engine.NewOwner(uint64(descriptors), &ram.OwnerCallbackOptions{
				Resume: func(_ *ram.Owner, result ram.AllocationResult, _ interface{}) { resumed <- result },
			})

			status, err := owner.Submit(context.Background(), sizing.ResourceCounts{TransferDescriptors: descriptors}, ram.PriorityNormal)
			if err != nil || status != ram.SubmitDeferred {
				return false
			}

			var group errgroup.Group
			group.Go(func() error {
				if abortFirst {
					owner.Abort()
				}
				return nil
			})
			group.Go(func() error {
				source.Release()
				return nil
			})
			if !abortFirst {
				owner.Abort()
			}
			if group.Wait() != nil {
				return false
			}

			result, err := owner.Wait(context.Background())
			if source.Wait() != nil {
				return false
			}

			flags := owner.Flags()
			complete := flags&ram.OwnerAllocationComplete != 0
			aborted := flags&ram.OwnerRequestAborted != 0

			switch result {
			case ram.AllocationGranted:
				if err != nil || !complete {
					return false
				}
			case ram.AllocationAborted:
				if !errors.Is(err, memutils.AbortedError) || complete || !aborted {
					return false
				}
			default:
				return false
			}

			if <-resumed != result || len(resumed) != 0 {
				return false
			}

			if owner.Free(context.Background()) != nil {
				return false
			}

			return source.Outstanding() == 0 && source.LivePages() == 0 && engine.Destroy() == nil
		},
		gen.Bool(),
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}
