// Package capture records JSON items from the responses a page issues while
// it is being driven, and drives pages until they stop producing new items.
package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/jmylchreest/mediacrawl/internal/browser"
	"github.com/jmylchreest/mediacrawl/internal/logger"
)

// Item is one captured JSON object. Numbers are json.Number.
type Item = map[string]any

// ListFields are the payload fields checked, in order, for the item list.
var ListFields = []string{"itemList", "item_list", "comments", "items"}

// IDFields are the item fields checked, in order, for the item identifier.
var IDFields = []string{"id", "cid"}

// Window is a scoped subscription to a page's responses that accumulates
// every distinct item found in responses whose URL contains a pattern.
// It is safe for concurrent use.
type Window struct {
	pattern string
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	items  []Item
	seen   map[string]struct{}
	idle   int
	closed bool

	unsubscribe func()
	closeOnce   sync.Once
}

// OpenWindow subscribes to page responses matching pattern. Bodies are read
// under ctx. The caller must Close the window.
func OpenWindow(ctx context.Context, page browser.Page, pattern string) *Window {
	wctx, cancel := context.WithCancel(ctx)
	w := &Window{
		pattern: pattern,
		ctx:     wctx,
		cancel:  cancel,
		seen:    make(map[string]struct{}),
	}
	w.unsubscribe = page.OnResponse(w.handle)
	return w
}

// Close unsubscribes from the page. It is idempotent, and responses
// delivered after Close are ignored.
func (w *Window) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		w.unsubscribe()
		w.cancel()
	})
}

// Items returns the accumulated items in first-seen order.
func (w *Window) Items() []Item {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Item(nil), w.items...)
}

// Len returns the number of accumulated items.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// Idle returns the number of actions since new items were last recorded.
func (w *Window) Idle() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.idle
}

// Advanced notes that one advance action was performed and returns the
// updated idle count.
func (w *Window) Advanced() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.idle++
	return w.idle
}

func (w *Window) handle(r browser.Response) {
	if r.Status != http.StatusOK || !strings.Contains(r.URL, w.pattern) {
		return
	}
	if w.isClosed() {
		return
	}

	body, err := r.Body(w.ctx)
	if err != nil {
		if w.ctx.Err() == nil {
			logger.Warn("failed to read response body", "url", r.URL, "error", err)
		}
		return
	}

	payload, err := decodePayload(body)
	if err != nil {
		logger.Warn("failed to parse JSON response", "url", r.URL, "error", err)
		return
	}

	list := ExtractItems(payload)
	added := w.record(list)
	if added < 0 {
		return
	}
	if added > 0 {
		logger.Info("captured new items", "url", r.URL, "new", added, "total", w.Len())
	} else {
		logger.Debug("captured response without new items", "url", r.URL, "items", len(list))
	}
}

// record appends unseen items and returns how many were added, or -1 when
// the window is already closed.
func (w *Window) record(list []Item) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return -1
	}

	added := 0
	for _, item := range list {
		id, ok := ItemID(item)
		if !ok {
			continue
		}
		if _, dup := w.seen[id]; dup {
			continue
		}
		w.seen[id] = struct{}{}
		w.items = append(w.items, item)
		added++
	}
	if added > 0 {
		w.idle = 0
	}
	return added
}

func (w *Window) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func decodePayload(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ExtractItems returns the objects under the first ListFields entry holding
// a non-empty array. Non-object elements are dropped.
func ExtractItems(payload map[string]any) []Item {
	for _, field := range ListFields {
		arr, ok := payload[field].([]any)
		if !ok || len(arr) == 0 {
			continue
		}
		items := make([]Item, 0, len(arr))
		for _, v := range arr {
			if item, ok := v.(map[string]any); ok {
				items = append(items, item)
			}
		}
		return items
	}
	return nil
}

// ItemID returns the first non-empty identifier found under IDFields.
func ItemID(item Item) (string, bool) {
	for _, field := range IDFields {
		if id := idString(item[field]); id != "" {
			return id, true
		}
	}
	return "", false
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(id, 10)
	case int:
		return strconv.Itoa(id)
	default:
		return ""
	}
}
