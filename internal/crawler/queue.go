package crawler

import (
	"net/url"
	"sync"

	"github.com/jmylchreest/mediacrawl/internal/dispatch"
)

// TargetQueue collects comment targets for a run, dropping any target whose
// id or page URL was already queued.
type TargetQueue struct {
	mu      sync.Mutex
	queue   []dispatch.Target
	visited map[string]bool
}

// NewTargetQueue creates an empty queue.
func NewTargetQueue() *TargetQueue {
	return &TargetQueue{
		visited: make(map[string]bool),
	}
}

// Add queues t unless it was seen before. Targets without an id or a
// parseable URL are rejected.
func (q *TargetQueue) Add(t dispatch.Target) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	normalized := normalizeURL(t.URL)
	if t.ID == "" || normalized == "" {
		return false
	}

	idKey, urlKey := "id:"+t.ID, "url:"+normalized
	if q.visited[idKey] || q.visited[urlKey] {
		return false
	}

	q.visited[idKey] = true
	q.visited[urlKey] = true
	q.queue = append(q.queue, t)
	return true
}

// Drain removes and returns every queued target in insertion order. Targets
// drained once are still remembered as seen.
func (q *TargetQueue) Drain() []dispatch.Target {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.queue
	q.queue = nil
	return out
}

// Len returns the number of queued targets.
func (q *TargetQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// normalizeURL normalizes a URL for comparison.
func normalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}

	// Share links carry tracking parameters; the path identifies the page.
	parsed.RawQuery = ""
	parsed.Fragment = ""

	// Remove trailing slash from path (unless it's just "/")
	if len(parsed.Path) > 1 && parsed.Path[len(parsed.Path)-1] == '/' {
		parsed.Path = parsed.Path[:len(parsed.Path)-1]
	}

	return parsed.String()
}
