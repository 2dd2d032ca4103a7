package browser

import "sync"

// subscribers fans page responses out to OnResponse handlers.
type subscribers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Response)
}

func (s *subscribers) add(fn func(Response)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(Response))
	}
	id := s.next
	s.next++
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

func (s *subscribers) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns) == 0
}

// dispatch delivers r to every current handler on a fresh goroutine. Driver
// event loops must not block on body retrieval, which is itself a protocol
// round trip.
func (s *subscribers) dispatch(r Response) {
	s.mu.Lock()
	fns := make([]func(Response), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	if len(fns) == 0 {
		return
	}
	go func() {
		for _, fn := range fns {
			fn(r)
		}
	}()
}

type pendingResponse struct {
	url    string
	status int
	method string
}

// DefaultTrackedRequests bounds the requests a page tracks at once.
const DefaultTrackedRequests = 1024

type trackedRequest struct {
	seq      uint64
	method   string
	response pendingResponse
	received bool
}

// requestTracker joins request, response and loading-finished events that
// arrive separately for the same request id. Requests that never finish,
// such as long polls or ones a navigation abandoned, are dropped oldest
// first once limit is reached.
type requestTracker[K comparable] struct {
	mu      sync.Mutex
	limit   int
	seq     uint64
	entries map[K]*trackedRequest
}

func newRequestTracker[K comparable](limit int) *requestTracker[K] {
	if limit <= 0 {
		limit = DefaultTrackedRequests
	}
	return &requestTracker[K]{
		limit:   limit,
		entries: make(map[K]*trackedRequest),
	}
}

// entry returns the record for id, creating it and evicting the oldest
// record when the tracker is full. The caller holds mu.
func (t *requestTracker[K]) entry(id K) *trackedRequest {
	if e, ok := t.entries[id]; ok {
		return e
	}
	if len(t.entries) >= t.limit {
		t.evictOldest()
	}
	t.seq++
	e := &trackedRequest{seq: t.seq}
	t.entries[id] = e
	return e
}

func (t *requestTracker[K]) evictOldest() {
	var (
		oldest K
		seq    uint64
		found  bool
	)
	for id, e := range t.entries {
		if !found || e.seq < seq {
			oldest, seq, found = id, e.seq, true
		}
	}
	if found {
		delete(t.entries, oldest)
	}
}

func (t *requestTracker[K]) request(id K, method string) {
	t.mu.Lock()
	t.entry(id).method = method
	t.mu.Unlock()
}

func (t *requestTracker[K]) response(id K, url string, status int) {
	t.mu.Lock()
	e := t.entry(id)
	e.response = pendingResponse{url: url, status: status, method: e.method}
	e.received = true
	t.mu.Unlock()
}

// finish removes and returns the response recorded for id.
func (t *requestTracker[K]) finish(id K) (pendingResponse, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return pendingResponse{}, false
	}
	delete(t.entries, id)
	return e.response, e.received
}

// reset forgets every tracked request. Drivers call it before navigating
// away, since the old document's requests will never finish.
func (t *requestTracker[K]) reset() {
	t.mu.Lock()
	clear(t.entries)
	t.mu.Unlock()
}

func (t *requestTracker[K]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
