package capture

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jmylchreest/mediacrawl/internal/browser"
	"github.com/jmylchreest/mediacrawl/internal/logger"
)

const (
	// DefaultAwaitTimeout bounds the wait for a matching response once
	// navigation has completed.
	DefaultAwaitTimeout = 15 * time.Second

	awaitNavigateTimeout = 30 * time.Second
)

// Matcher inspects a response and returns the item it carries, if any.
// It may be called concurrently.
type Matcher func(ctx context.Context, r browser.Response) (Item, bool)

// JSONMatcher matches 200 responses whose URL contains pattern and whose
// method equals method (any method when empty), passing the decoded body to
// pick.
func JSONMatcher(pattern, method string, pick func(payload map[string]any) (Item, bool)) Matcher {
	return func(ctx context.Context, r browser.Response) (Item, bool) {
		if r.Status != http.StatusOK || !strings.Contains(r.URL, pattern) {
			return nil, false
		}
		if method != "" && !strings.EqualFold(r.Method, method) {
			return nil, false
		}
		body, err := r.Body(ctx)
		if err != nil {
			logger.DebugContext(ctx, "failed to read response body", "url", r.URL, "error", err)
			return nil, false
		}
		payload, err := decodePayload(body)
		if err != nil {
			logger.WarnContext(ctx, "failed to parse JSON response", "url", r.URL, "error", err)
			return nil, false
		}
		return pick(payload)
	}
}

// slot holds a single result and is resolved at most once.
type slot struct {
	once sync.Once
	done chan struct{}
	item Item
}

func newSlot() *slot {
	return &slot{done: make(chan struct{})}
}

func (s *slot) resolve(item Item) {
	s.once.Do(func() {
		s.item = item
		close(s.done)
	})
}

func (s *slot) resolved() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Pending is a subscription waiting for the first response accepted by a
// Matcher. Create it with Expect before triggering the request and Close it
// when done.
type Pending struct {
	result      *slot
	cancel      context.CancelFunc
	unsubscribe func()
}

// Expect subscribes to page's responses and holds the first item produced
// by match. Matching stops once the Pending is resolved or closed.
func Expect(ctx context.Context, page browser.Page, match Matcher) *Pending {
	matchCtx, cancel := context.WithCancel(ctx)
	p := &Pending{result: newSlot(), cancel: cancel}
	p.unsubscribe = page.OnResponse(func(r browser.Response) {
		if p.result.resolved() || matchCtx.Err() != nil {
			return
		}
		if item, ok := match(matchCtx, r); ok {
			p.result.resolve(item)
		}
	})
	return p
}

// Resolved returns the matched item without waiting.
func (p *Pending) Resolved() (Item, bool) {
	if !p.result.resolved() {
		return nil, false
	}
	return p.result.item, true
}

// Wait blocks until an item matches, timeout elapses or ctx ends.
func (p *Pending) Wait(ctx context.Context, timeout time.Duration) (Item, bool) {
	if timeout <= 0 {
		timeout = DefaultAwaitTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.result.done:
		return p.result.item, true
	case <-timer.C:
	case <-ctx.Done():
	}
	return p.Resolved()
}

// Close unsubscribes from the page. It is safe to call more than once.
func (p *Pending) Close() {
	p.unsubscribe()
	p.cancel()
}

// AwaitOption configures Await.
type AwaitOption func(*awaitConfig)

type awaitConfig struct {
	fallback func(ctx context.Context) (Item, bool)
}

// WithFallback sets a lookup Await tries once navigation completes and no
// response has matched yet, before waiting out the timeout.
func WithFallback(fn func(ctx context.Context) (Item, bool)) AwaitOption {
	return func(c *awaitConfig) { c.fallback = fn }
}

// Await navigates page to url and returns the first item produced by match
// from the page's responses, or by the fallback if one is set. It gives up
// timeout after navigation completes (DefaultAwaitTimeout when timeout is
// zero), or when navigation fails and nothing matched, returning false.
func Await(ctx context.Context, page browser.Page, url string, match Matcher, timeout time.Duration, opts ...AwaitOption) (Item, bool) {
	ctx, span := tracer.Start(ctx, "capture.Await", trace.WithAttributes(
		attribute.String("capture.url", url),
	))
	defer span.End()

	var cfg awaitConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	pending := Expect(ctx, page, match)
	defer pending.Close()

	navCtx, navCancel := context.WithTimeout(ctx, awaitNavigateTimeout)
	err := page.Navigate(navCtx, url)
	navCancel()
	if item, ok := pending.Resolved(); ok {
		span.SetAttributes(attribute.Bool("capture.found", true))
		return item, true
	}
	if err != nil {
		logger.WarnContext(ctx, "navigation failed while awaiting response", "url", url, "error", err)
		span.RecordError(err)
		return nil, false
	}

	if cfg.fallback != nil {
		if item, ok := cfg.fallback(ctx); ok {
			span.SetAttributes(
				attribute.Bool("capture.found", true),
				attribute.Bool("capture.fallback", true),
			)
			return item, true
		}
	}

	item, ok := pending.Wait(ctx, timeout)
	if !ok && ctx.Err() == nil {
		logger.WarnContext(ctx, "timed out waiting for response", "url", url, "timeout", timeout)
	}
	span.SetAttributes(attribute.Bool("capture.found", ok))
	return item, ok
}
