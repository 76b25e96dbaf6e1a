// Package pagesource provides an in-memory ram.PageSource. Pages are plain byte slices. Grants can be
// delivered inline, from a background goroutine, or held until released, which makes the source
// useful for exercising the allocation protocol without a real page allocator.
package pagesource

import (
	"sync"

	cerrors "github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/dolthub/swiss"
	"github.com/fbestack/raidmem/memutils"
	"github.com/fbestack/raidmem/ram"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

// Delivery selects how the source completes submitted requests
type Delivery uint32

const (
	// DeliverImmediate grants every request inside Submit
	DeliverImmediate Delivery = iota
	// DeliverDeferred grants every request from a background goroutine after Submit returns
	DeliverDeferred
	// DeliverHeld queues every request until Release is called or the request is aborted
	DeliverHeld
)

var deliveryMapping = map[Delivery]string{
	DeliverImmediate: "DeliverImmediate",
	DeliverDeferred:  "DeliverDeferred",
	DeliverHeld:      "DeliverHeld",
}

func (d Delivery) String() string {
	str, ok := deliveryMapping[d]
	if !ok {
		return "unknown Delivery"
	}

	return str
}

// Options contains optional settings when creating a Source
type Options struct {
	Delivery Delivery
	// PageLimit is the number of pages that may be granted and not yet freed. Requests beyond it
	// complete without a grant. Zero means no limit.
	PageLimit int
	// RefuseSubmit makes every Submit fail, as a page source that cannot accept requests would
	RefuseSubmit bool
}

type request struct {
	id         uint64
	params     ram.RequestParams
	completion ram.CompletionFunc

	mutex     sync.Mutex
	submitted bool
	granted   bool
	aborted   bool
	delivered bool
	control   memutils.PageList
	data      memutils.PageList
}

func (r *request) Pages() (memutils.PageList, memutils.PageList) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.control, r.data
}

// Source is an in-memory ram.PageSource
type Source struct {
	logger  *slog.Logger
	options Options

	mutex       sync.Mutex
	nextID      uint64
	livePages   int
	outstanding *swiss.Map[uint64, *request]
	held        []*request

	deliveries errgroup.Group
}

var _ ram.PageSource = &Source{}

func New(logger *slog.Logger, options Options) *Source {
	return &Source{
		logger:      logger,
		options:     options,
		outstanding: swiss.NewMap[uint64, *request](42),
	}
}

func (s *Source) lookup(handle ram.Request) (*request, error) {
	r, ok := handle.(*request)
	if !ok {
		return nil, cerrors.Newf("request of type %T was not built by this source", handle)
	}

	return r, nil
}

func (s *Source) BuildRequest(params ram.RequestParams, completion ram.CompletionFunc) (ram.Request, error) {
	if params.ControlPages < 0 || params.DataPages < 0 || params.Tier.Bytes() == 0 {
		return nil, cerrors.Wrapf(memutils.ValidationError, "cannot build a request for %d control and %d data pages of %s",
			redact.Safe(params.ControlPages), redact.Safe(params.DataPages), params.Tier)
	}
	if completion == nil {
		return nil, cerrors.Wrap(memutils.ValidationError, "a request requires a completion")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.nextID++
	r := &request{id: s.nextID, params: params, completion: completion}
	s.outstanding.Put(r.id, r)
	return r, nil
}

func (s *Source) Submit(handle ram.Request) (ram.SubmitStatus, error) {
	r, err := s.lookup(handle)
	if err != nil {
		return ram.SubmitError, err
	}

	if s.options.RefuseSubmit {
		return ram.SubmitError, cerrors.Newf("page source refused request %d", redact.Safe(r.id))
	}

	s.mutex.Lock()
	known := s.outstanding.Has(r.id)
	s.mutex.Unlock()
	if !known {
		return ram.SubmitError, cerrors.Newf("request %d has been freed", redact.Safe(r.id))
	}

	r.mutex.Lock()
	if r.submitted {
		r.mutex.Unlock()
		return ram.SubmitError, cerrors.Newf("request %d was already submitted", redact.Safe(r.id))
	}
	r.submitted = true
	r.mutex.Unlock()

	s.logger.Debug("Source::Submit", slog.Uint64("RequestID", r.id), slog.String("Delivery", s.options.Delivery.String()))

	switch s.options.Delivery {
	case DeliverImmediate:
		s.deliver(r)
		return ram.SubmitImmediate, nil
	case DeliverDeferred:
		s.deliveries.Go(func() error {
			s.deliver(r)
			return nil
		})
		return ram.SubmitDeferred, nil
	default:
		s.mutex.Lock()
		s.held = append(s.held, r)
		s.mutex.Unlock()
		return ram.SubmitDeferred, nil
	}
}

// grant allocates pages for a request unless it has been aborted or the page limit would be exceeded
func (s *Source) grant(r *request) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.aborted || r.granted {
		return
	}

	pageCount := r.params.ControlPages + r.params.DataPages

	s.mutex.Lock()
	if s.options.PageLimit > 0 && s.livePages+pageCount > s.options.PageLimit {
		s.mutex.Unlock()
		return
	}
	s.livePages += pageCount
	s.mutex.Unlock()

	pageBytes := r.params.Tier.Bytes()
	r.control = make(memutils.PageList, r.params.ControlPages)
	for i := range r.control {
		r.control[i] = make(memutils.Page, pageBytes)
	}
	r.data = make(memutils.PageList, r.params.DataPages)
	for i := range r.data {
		r.data[i] = make(memutils.Page, pageBytes)
	}
	r.granted = true
}

// deliver grants a request and invokes its completion, once
func (s *Source) deliver(r *request) {
	s.grant(r)

	r.mutex.Lock()
	if r.delivered {
		r.mutex.Unlock()
		return
	}
	r.delivered = true
	r.mutex.Unlock()

	r.completion()
}

// Release delivers every held request from background goroutines
func (s *Source) Release() {
	s.mutex.Lock()
	held := s.held
	s.held = nil
	s.mutex.Unlock()

	for _, r := range held {
		r := r
		s.deliveries.Go(func() error {
			s.deliver(r)
			return nil
		})
	}
}

// Wait blocks until every background delivery has finished
func (s *Source) Wait() error {
	return s.deliveries.Wait()
}

func (s *Source) IsGrantComplete(handle ram.Request) bool {
	r, err := s.lookup(handle)
	if err != nil {
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.granted
}

func (s *Source) IsAborted(handle ram.Request) bool {
	r, err := s.lookup(handle)
	if err != nil {
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.aborted
}

// Abort marks a request aborted. A request that has not been granted yet is completed from a
// background goroutine without a grant; a request that has is left alone.
func (s *Source) Abort(handle ram.Request) {
	r, err := s.lookup(handle)
	if err != nil {
		s.logger.Error("cannot abort request", slog.Any("error", err))
		return
	}

	r.mutex.Lock()
	r.aborted = true
	pending := !r.delivered
	r.mutex.Unlock()

	if !pending {
		return
	}

	s.mutex.Lock()
	for i, heldRequest := range s.held {
		if heldRequest == r {
			s.held = append(s.held[:i], s.held[i+1:]...)
			break
		}
	}
	s.mutex.Unlock()

	s.deliveries.Go(func() error {
		s.deliver(r)
		return nil
	})
}

func (s *Source) Free(handle ram.Request) error {
	r, err := s.lookup(handle)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	deleted := s.outstanding.Delete(r.id)
	s.mutex.Unlock()

	if !deleted {
		return cerrors.Newf("request %d is not outstanding", redact.Safe(r.id))
	}

	r.mutex.Lock()
	granted := r.granted
	r.control = nil
	r.data = nil
	r.mutex.Unlock()

	if granted {
		s.mutex.Lock()
		s.livePages -= r.params.ControlPages + r.params.DataPages
		s.mutex.Unlock()
	}

	return nil
}

// Outstanding is the number of built requests that have not been freed
func (s *Source) Outstanding() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.outstanding.Count()
}

// LivePages is the number of granted pages that have not been freed
func (s *Source) LivePages() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.livePages
}
