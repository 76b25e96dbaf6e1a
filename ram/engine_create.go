package ram

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/fbestack/raidmem/memutils"
	"github.com/fbestack/raidmem/memutils/guard"
	"github.com/fbestack/raidmem/memutils/sizing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vkngwrapper/core/v2/common"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific engine behaviors to activate or deactivate
type CreateFlags int32

var engineCreateFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	engineCreateFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return engineCreateFlagsMapping.FlagsToString(f)
}

const (
	// EngineCreateExternallySynchronized ensures that the engine's request tracking is not synchronized
	// internally. The consumer must guarantee that owners created from the engine are submitted and
	// freed from one goroutine at a time. Completion callbacks delivered by the page source on other
	// goroutines never touch the tracking.
	EngineCreateExternallySynchronized CreateFlags = 1 << iota
	// EngineCreateTrackRequests records every request from submission until it is freed, so that
	// Outstanding, BuildStatsString and Destroy can report requests that were never released
	EngineCreateTrackRequests
)

func init() {
	EngineCreateExternallySynchronized.Register("EngineCreateExternallySynchronized")
	EngineCreateTrackRequests.Register("EngineCreateTrackRequests")
}

// CreateOptions contains optional settings when creating an engine
type CreateOptions struct {
	// Flags indicates specific engine behaviors to activate or deactivate
	Flags CreateFlags

	// GuardMode selects how granted pages and carved structures are protected. When nil,
	// guard.DefaultMode is used: guarded in debug_raid_memory builds, unguarded otherwise.
	GuardMode *guard.Mode

	// Registerer is an optional prometheus registry. When provided, the engine's statistics are
	// registered with it on creation and unregistered on Destroy.
	Registerer prometheus.Registerer
}

// New creates a new Engine
//
// logger - Receives debug output for every request and reports protocol violations and corruption
//
// source - The page source that requests will be submitted to
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, source PageSource, options CreateOptions) (*Engine, error) {
	if logger == nil {
		return nil, cerrors.Wrap(memutils.ValidationError, "an engine requires a logger")
	}
	if source == nil {
		return nil, cerrors.Wrap(memutils.ValidationError, "an engine requires a page source")
	}

	mode := guard.DefaultMode()
	if options.GuardMode != nil {
		mode = *options.GuardMode
	}

	g, err := guard.New(mode)
	if err != nil {
		return nil, err
	}

	useMutex := options.Flags&EngineCreateExternallySynchronized == 0
	counters := memutils.NewCounters()

	engine := &Engine{
		useMutex:    useMutex,
		logger:      logger,
		source:      source,
		guard:       g,
		sizer:       sizing.NewPageSizer(g.Catalog()),
		counters:    counters,
		collector:   memutils.NewCollector(counters),
		registerer:  options.Registerer,
		createFlags: options.Flags,
	}

	if options.Flags&EngineCreateTrackRequests != 0 {
		engine.tracker = &requestTracker{}
		engine.tracker.Init(useMutex)
	}

	if engine.registerer != nil {
		err = engine.registerer.Register(engine.collector)
		if err != nil {
			return nil, cerrors.Wrap(err, "registering engine statistics")
		}
	}

	logger.Debug("Engine::New", slog.String("GuardMode", mode.String()), slog.String("Flags", options.Flags.String()))

	return engine, nil
}
