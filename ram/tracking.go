package ram

import (
	"sort"

	"github.com/dolthub/swiss"
	"github.com/fbestack/raidmem/ram/internal/utils"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
)

// requestTracker holds every request between submission and free, so that requests stuck waiting on
// the page source or never freed by their owner can be reported
type requestTracker struct {
	mutex utils.OptionalRWMutex

	count    int
	requests *swiss.Map[uint64, *MemoryRequest]
}

func (t *requestTracker) Init(useMutex bool) {
	t.mutex = utils.OptionalRWMutex{UseMutex: useMutex}
	t.requests = swiss.NewMap[uint64, *MemoryRequest](42)
}

func (t *requestTracker) Validate() error {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	declaredCount := t.count
	actualCount := t.requests.Count()

	if declaredCount != actualCount {
		return errors.Errorf("the listed number of tracked requests (%d) does not match the actual number of requests (%d)", declaredCount, actualCount)
	}

	return nil
}

func (t *requestTracker) Register(request *MemoryRequest) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.requests.Has(request.id) {
		t.count++
	}
	t.requests.Put(request.id, request)
}

func (t *requestTracker) Unregister(request *MemoryRequest) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.requests.Delete(request.id) {
		t.count--
	}
}

func (t *requestTracker) IsEmpty() bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.count == 0
}

// Requests returns the tracked requests in submission order
func (t *requestTracker) Requests() []*MemoryRequest {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	requests := make([]*MemoryRequest, 0, t.count)
	t.requests.Iter(func(_ uint64, request *MemoryRequest) bool {
		requests = append(requests, request)
		return false
	})

	sort.Slice(requests, func(i, j int) bool {
		return requests[i].id < requests[j].id
	})

	return requests
}

func (t *requestTracker) BuildStatsString(writer *jwriter.Writer) {
	s := writer.Array()
	defer s.End()

	for _, request := range t.Requests() {
		o := s.Object()
		request.printParameters(&o)
		o.End()
	}
}

func (r *MemoryRequest) printParameters(json *jwriter.ObjectState) {
	json.Name("RequestID").Int(int(r.id))
	json.Name("IOStamp").Int(int(r.IOStamp))
	json.Name("Priority").String(r.Priority.String())
	json.Name("Tier").String(r.Pages.Tier.String())
	json.Name("ControlPages").Int(r.Pages.ControlPages)
	json.Name("DataPages").Int(r.Pages.DataPages)
	json.Name("Result").String(r.Result().String())
	json.Name("WaitingForMemory").Bool(r.WaitingForMemory())
	json.Name("Deferred").Bool(r.Deferred())
}
