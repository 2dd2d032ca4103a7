package capture

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/jmylchreest/mediacrawl/internal/browser"
	"github.com/jmylchreest/mediacrawl/internal/logger"
)

var tracer = otel.Tracer("github.com/jmylchreest/mediacrawl/internal/capture")

// Mode selects how the page is advanced between checks.
type Mode string

const (
	// ModeVideo scrolls the page body.
	ModeVideo Mode = "video"
	// ModeComment scrolls the comment list container, or the body when the
	// container is not on the page.
	ModeComment Mode = "comment"
)

// CommentContainerSelector matches the scrollable comment list.
const CommentContainerSelector = `div[class*="DivCommentListContainer"]`

const (
	scrollBodyJS     = `window.scrollTo(0, document.body.scrollHeight)`
	scrollCommentsJS = `document.querySelector('` + CommentContainerSelector + `').scrollTop = ` +
		`document.querySelector('` + CommentContainerSelector + `').scrollHeight`
)

// Request describes one collection run.
type Request struct {
	URL        string
	Pattern    string // substring of the API URLs to capture
	MaxActions int
	Mode       Mode
}

// Pacing holds the timings of a collection run.
type Pacing struct {
	NavigateTimeout time.Duration
	Settle          time.Duration
	MinPause        time.Duration
	MaxPause        time.Duration
	// QuietActions is the number of consecutive advance actions without new
	// items after which a run stops early.
	QuietActions int
}

// DefaultPacing returns the pacing used against the live site.
func DefaultPacing() Pacing {
	return Pacing{
		NavigateTimeout: 60 * time.Second,
		Settle:          3 * time.Second,
		MinPause:        2500 * time.Millisecond,
		MaxPause:        4 * time.Second,
		QuietActions:    3,
	}
}

func (p Pacing) pause() time.Duration {
	if p.MaxPause <= p.MinPause {
		return p.MinPause
	}
	return p.MinPause + rand.N(p.MaxPause-p.MinPause+1)
}

// Collector drives a single page through collection runs. Runs on the same
// Collector must not overlap.
type Collector struct {
	page    browser.Page
	pacing  Pacing
	limiter *rate.Limiter
}

// Option configures a Collector.
type Option func(*Collector)

// WithPacing overrides DefaultPacing.
func WithPacing(p Pacing) Option {
	return func(c *Collector) { c.pacing = p }
}

// WithLimiter spaces navigations through l. A limiter may be shared by
// collectors on different pages.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Collector) { c.limiter = l }
}

// NewCollector returns a Collector driving page.
func NewCollector(page browser.Page, opts ...Option) *Collector {
	c := &Collector{page: page, pacing: DefaultPacing()}
	for _, opt := range opts {
		opt(c)
	}
	if c.pacing.QuietActions <= 0 {
		c.pacing.QuietActions = DefaultPacing().QuietActions
	}
	return c
}

// Page returns the driven page.
func (c *Collector) Page() browser.Page {
	return c.page
}

// Collect navigates to req.URL and advances the page up to req.MaxActions
// times, returning every distinct item captured from responses matching
// req.Pattern in first-seen order. It stops early once QuietActions
// consecutive actions produced nothing new. Navigation and evaluation
// failures end the run; whatever was captured until then is returned.
func (c *Collector) Collect(ctx context.Context, req Request) []Item {
	ctx, span := tracer.Start(ctx, "capture.Collect", trace.WithAttributes(
		attribute.String("capture.url", req.URL),
		attribute.String("capture.pattern", req.Pattern),
		attribute.String("capture.mode", string(req.Mode)),
		attribute.Int("capture.max_actions", req.MaxActions),
	))
	defer span.End()

	w := OpenWindow(ctx, c.page, req.Pattern)
	defer w.Close()

	actions, err := c.drive(ctx, w, req)
	w.Close()
	items := w.Items()

	span.SetAttributes(
		attribute.Int("capture.actions", actions),
		attribute.Int("capture.items", len(items)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "collection aborted",
			"url", req.URL,
			"actions", actions,
			"items", len(items),
			"error", err)
		return items
	}

	logger.InfoContext(ctx, "collection finished",
		"url", req.URL,
		"actions", actions,
		"items", len(items))
	return items
}

func (c *Collector) drive(ctx context.Context, w *Window, req Request) (int, error) {
	if err := c.navigate(ctx, req.URL); err != nil {
		return 0, err
	}
	if err := sleep(ctx, c.pacing.Settle); err != nil {
		return 0, err
	}

	actions := 0
	for actions < req.MaxActions {
		if w.Idle() >= c.pacing.QuietActions {
			logger.DebugContext(ctx, "no new items, stopping", "url", req.URL, "quiet_actions", c.pacing.QuietActions)
			break
		}
		if err := c.advance(ctx, req.Mode); err != nil {
			return actions, fmt.Errorf("advance: %w", err)
		}
		actions++
		w.Advanced()
		logger.DebugContext(ctx, "advanced page", "url", req.URL, "action", actions, "max", req.MaxActions)

		if err := sleep(ctx, c.pacing.pause()); err != nil {
			return actions, err
		}
	}
	return actions, nil
}

func (c *Collector) navigate(ctx context.Context, url string) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if c.pacing.NavigateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.pacing.NavigateTimeout)
		defer cancel()
	}
	if err := c.page.Navigate(ctx, url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (c *Collector) advance(ctx context.Context, mode Mode) error {
	if mode == ModeComment {
		n, err := c.page.Count(ctx, CommentContainerSelector)
		if err != nil {
			return err
		}
		if n > 0 {
			return c.page.Evaluate(ctx, scrollCommentsJS, nil)
		}
	}
	return c.page.Evaluate(ctx, scrollBodyJS, nil)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
