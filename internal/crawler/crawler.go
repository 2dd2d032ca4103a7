// Package crawler runs a crawl in one of the search, detail or creator modes,
// wiring the capture loop, the normalizer, the comment dispatcher and the
// sink together.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/jmylchreest/mediacrawl/internal/browser"
	"github.com/jmylchreest/mediacrawl/internal/capture"
	"github.com/jmylchreest/mediacrawl/internal/dispatch"
	"github.com/jmylchreest/mediacrawl/internal/logger"
	"github.com/jmylchreest/mediacrawl/internal/model"
	"github.com/jmylchreest/mediacrawl/internal/normalize"
	"github.com/jmylchreest/mediacrawl/internal/pagedata"
	"github.com/jmylchreest/mediacrawl/internal/store"
)

var tracer = otel.Tracer("github.com/jmylchreest/mediacrawl/internal/crawler")

// API paths whose responses carry the captured lists.
const (
	SearchAPIPattern      = "/api/search/item/full/"
	CreatorAPIPattern     = "/api/post/item_list/"
	CommentAPIPattern     = "/api/comment/list/"
	VideoDetailAPIPattern = "/api/video/detail/"
)

// Items delivered per scroll, used to turn item limits into scroll counts.
const (
	videosPerScroll   = 12
	commentsPerScroll = 20
)

// ErrUnknownCrawlerType is returned by Run for an unsupported mode.
var ErrUnknownCrawlerType = errors.New("unknown crawler type")

// Config holds the inputs and limits of a crawl.
type Config struct {
	BaseURL    string
	Keywords   []string
	VideoURLs  []string
	CreatorIDs []string

	MaxItems    int
	MaxComments int

	// Comments controls the per-video comment fan-out.
	Comments dispatch.Dispatcher

	// AwaitTimeout bounds the wait for a video detail response.
	AwaitTimeout time.Duration
}

// Stats summarizes a run. Counters are safe for concurrent use.
type Stats struct {
	Contents       atomic.Int64
	Comments       atomic.Int64
	Creators       atomic.Int64
	Skipped        atomic.Int64
	StoreErrors    atomic.Int64
	FailedTargets  atomic.Int64
	CommentTargets atomic.Int64
}

// String renders the counters for the end-of-run log line.
func (s *Stats) String() string {
	return fmt.Sprintf("%s contents, %s comments, %s creators stored; %s skipped, %s store errors, %s/%s comment targets failed",
		humanize.Comma(s.Contents.Load()),
		humanize.Comma(s.Comments.Load()),
		humanize.Comma(s.Creators.Load()),
		humanize.Comma(s.Skipped.Load()),
		humanize.Comma(s.StoreErrors.Load()),
		humanize.Comma(s.FailedTargets.Load()),
		humanize.Comma(s.CommentTargets.Load()),
	)
}

// Crawler runs crawls against one main page. Comment workers open extra
// pages from the same browser when the fan-out limit exceeds one.
type Crawler struct {
	browser browser.Browser
	page    browser.Page
	sink    store.Sink
	cfg     Config

	pacing  capture.Pacing
	limiter *rate.Limiter
	main    *capture.Collector
	queue   *TargetQueue
	stats   *Stats
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithPacing overrides the capture pacing.
func WithPacing(p capture.Pacing) Option {
	return func(c *Crawler) { c.pacing = p }
}

// WithInterval spaces navigations across every page by at least d.
func WithInterval(d time.Duration) Option {
	return func(c *Crawler) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// New returns a Crawler driving page and storing into sink.
func New(b browser.Browser, page browser.Page, sink store.Sink, cfg Config, opts ...Option) *Crawler {
	if cfg.BaseURL == "" {
		cfg.BaseURL = normalize.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxItems < 0 {
		cfg.MaxItems = 0
	}
	if cfg.MaxComments < 0 {
		cfg.MaxComments = 0
	}

	c := &Crawler{
		browser: b,
		page:    page,
		sink:    sink,
		cfg:     cfg,
		pacing:  capture.DefaultPacing(),
		queue:   NewTargetQueue(),
		stats:   &Stats{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.main = c.collector(page)
	return c
}

func (c *Crawler) collector(page browser.Page) *capture.Collector {
	opts := []capture.Option{capture.WithPacing(c.pacing)}
	if c.limiter != nil {
		opts = append(opts, capture.WithLimiter(c.limiter))
	}
	return capture.NewCollector(page, opts...)
}

// Stats returns the run counters.
func (c *Crawler) Stats() *Stats {
	return c.stats
}

// Run crawls in rc.CrawlerType mode. Individual target failures are logged
// and skipped; Run only fails for an unknown mode or a cancelled context.
func (c *Crawler) Run(ctx context.Context, rc model.RunContext) error {
	start := time.Now()
	logger.InfoContext(ctx, "crawl started", "type", rc.CrawlerType)

	switch rc.CrawlerType {
	case model.CrawlerSearch:
		c.search(ctx, rc)
	case model.CrawlerDetail:
		c.detail(ctx, rc)
	case model.CrawlerCreator:
		c.creators(ctx, rc)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCrawlerType, rc.CrawlerType)
	}

	logger.InfoContext(ctx, "crawl finished",
		"type", rc.CrawlerType,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"summary", c.stats.String())
	return ctx.Err()
}

// SearchURL returns the video search page for keyword.
func SearchURL(baseURL, keyword string) string {
	return baseURL + "/search/video?q=" + strings.ReplaceAll(url.QueryEscape(keyword), "+", "%20")
}

// CreatorURL returns the profile page of uniqueID.
func CreatorURL(baseURL, uniqueID string) string {
	return baseURL + "/@" + uniqueID
}

// VideoID extracts the id from a /@user/video/<id> URL.
func VideoID(videoURL string) (string, bool) {
	u, err := url.Parse(videoURL)
	if err != nil {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 3 || parts[1] != "video" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

func (c *Crawler) videoActions() int {
	return c.cfg.MaxItems/videosPerScroll + 1
}

func (c *Crawler) commentActions() int {
	return c.cfg.MaxComments/commentsPerScroll + 1
}

func (c *Crawler) search(ctx context.Context, rc model.RunContext) {
	for _, keyword := range c.cfg.Keywords {
		if ctx.Err() != nil {
			return
		}
		krc := rc.WithKeyword(keyword)
		c.target(ctx, "crawler.search", attribute.String("crawler.keyword", keyword), func(ctx context.Context) {
			logger.InfoContext(ctx, "searching", "keyword", keyword)
			items := c.main.Collect(ctx, capture.Request{
				URL:        SearchURL(c.cfg.BaseURL, keyword),
				Pattern:    SearchAPIPattern,
				MaxActions: c.videoActions(),
				Mode:       capture.ModeVideo,
			})
			if len(items) == 0 {
				logger.WarnContext(ctx, "no videos found", "keyword", keyword)
				return
			}
			c.storeContents(ctx, items, krc)
			c.fetchComments(ctx)
		})
	}
}

func (c *Crawler) detail(ctx context.Context, rc model.RunContext) {
	for _, videoURL := range c.cfg.VideoURLs {
		if ctx.Err() != nil {
			return
		}
		id, ok := VideoID(videoURL)
		if !ok {
			logger.Warn("invalid video url", "url", videoURL)
			c.stats.Skipped.Add(1)
			continue
		}
		c.target(ctx, "crawler.detail", attribute.String("crawler.video_id", id), func(ctx context.Context) {
			raw, ok := c.videoDetail(ctx, videoURL, id)
			if !ok {
				logger.WarnContext(ctx, "failed to get video details", "url", videoURL)
				c.stats.Skipped.Add(1)
				return
			}
			rec := normalize.Content(raw, rc)
			if c.storeContent(ctx, rec) {
				c.queue.Add(dispatch.Target{ID: id, URL: videoURL})
			}
		})
	}
	c.fetchComments(ctx)
	c.flush()
}

// videoDetail navigates to videoURL and returns the video item, taken from
// the detail API response or, failing that, from the embedded page data.
func (c *Crawler) videoDetail(ctx context.Context, videoURL, id string) (map[string]any, bool) {
	if err := c.wait(ctx); err != nil {
		return nil, false
	}

	match := capture.JSONMatcher(VideoDetailAPIPattern, "POST", func(payload map[string]any) (capture.Item, bool) {
		if status, ok := payload["statusCode"]; ok && fmt.Sprint(status) != "0" {
			return nil, false
		}
		info, _ := payload["itemInfo"].(map[string]any)
		item, ok := info["itemStruct"].(map[string]any)
		if !ok {
			return nil, false
		}
		if got, _ := capture.ItemID(item); got != id {
			return nil, false
		}
		return item, true
	})
	// Most page variants embed the item in the document and never call the
	// detail API, so read it before waiting on a response.
	embedded := capture.WithFallback(func(ctx context.Context) (capture.Item, bool) {
		html, err := c.page.HTML(ctx)
		if err != nil {
			logger.Debug("read page html", "url", videoURL, "error", err)
			return nil, false
		}
		item, err := pagedata.VideoDetail(html, id)
		if err != nil {
			logger.Debug("no embedded video data", "url", videoURL, "error", err)
			return nil, false
		}
		logger.Debug("video detail read from embedded page data", "id", id)
		return item, true
	})
	return capture.Await(ctx, c.page, videoURL, match, c.cfg.AwaitTimeout, embedded)
}

func (c *Crawler) creators(ctx context.Context, rc model.RunContext) {
	for _, uniqueID := range c.cfg.CreatorIDs {
		if ctx.Err() != nil {
			return
		}
		c.target(ctx, "crawler.creator", attribute.String("crawler.creator_id", uniqueID), func(ctx context.Context) {
			logger.InfoContext(ctx, "processing creator", "creator", uniqueID)
			items := c.main.Collect(ctx, capture.Request{
				URL:        CreatorURL(c.cfg.BaseURL, uniqueID),
				Pattern:    CreatorAPIPattern,
				MaxActions: c.videoActions(),
				Mode:       capture.ModeVideo,
			})

			// The profile page is still loaded after collection.
			c.storeCreatorFromPage(ctx, uniqueID)

			if len(items) == 0 {
				logger.WarnContext(ctx, "no videos found", "creator", uniqueID)
				return
			}
			c.storeContents(ctx, items, rc)
			c.fetchComments(ctx)
		})
	}
}

func (c *Crawler) storeCreatorFromPage(ctx context.Context, uniqueID string) {
	log := logger.With("creator", uniqueID)
	html, err := c.page.HTML(ctx)
	if err != nil {
		log.WarnContext(ctx, "could not read creator page", "error", err)
		return
	}
	info, err := pagedata.UserDetail(html, uniqueID)
	if err != nil {
		log.WarnContext(ctx, "could not fetch creator info", "error", err)
		return
	}
	rec, ok := normalize.Creator(info)
	if !ok || !rec.Valid() {
		log.WarnContext(ctx, "creator info has no user")
		c.stats.Skipped.Add(1)
		return
	}
	if err := c.sink.StoreCreator(ctx, rec); err != nil {
		log.ErrorContext(ctx, "failed to store creator", "error", err)
		c.stats.StoreErrors.Add(1)
		return
	}
	c.stats.Creators.Add(1)
}

// storeContents normalizes and stores items, queueing comment targets for
// every stored video whose page URL is known.
func (c *Crawler) storeContents(ctx context.Context, items []capture.Item, rc model.RunContext) {
	for _, item := range items {
		rec := normalize.Content(item, rc)
		if !c.storeContent(ctx, rec) {
			continue
		}
		if rec.VideoURL != "" {
			c.queue.Add(dispatch.Target{ID: rec.VideoID, URL: rec.VideoURL})
		}
	}
}

func (c *Crawler) storeContent(ctx context.Context, rec model.ContentRecord) bool {
	if !rec.Valid() {
		logger.Warn("skipping video without id")
		c.stats.Skipped.Add(1)
		return false
	}
	if err := c.sink.StoreContent(ctx, rec); err != nil {
		logger.ErrorContext(ctx, "failed to store video", "video_id", rec.VideoID, "error", err)
		c.stats.StoreErrors.Add(1)
		return false
	}
	c.stats.Contents.Add(1)
	return true
}

// fetchComments fans out over the queued targets.
func (c *Crawler) fetchComments(ctx context.Context) {
	targets := c.queue.Drain()
	if !c.cfg.Comments.Enabled || len(targets) == 0 {
		return
	}
	c.stats.CommentTargets.Add(int64(len(targets)))
	failed := c.cfg.Comments.FanOut(ctx, targets, c.commentWorker)
	c.stats.FailedTargets.Add(int64(failed))
}

func (c *Crawler) commentWorker(ctx context.Context, t dispatch.Target) error {
	col := c.main
	if c.cfg.Comments.Limit > 1 && c.browser != nil {
		page, err := c.browser.NewPage(ctx)
		if err != nil {
			return fmt.Errorf("open comment page: %w", err)
		}
		defer page.Close()
		col = c.collector(page)
	}

	log := logger.With("video_id", t.ID)
	log.InfoContext(ctx, "fetching comments")
	items := col.Collect(ctx, capture.Request{
		URL:        t.URL,
		Pattern:    CommentAPIPattern,
		MaxActions: c.commentActions(),
		Mode:       capture.ModeComment,
	})

	var errs []error
	for _, item := range items {
		rec := normalize.Comment(t.ID, item)
		if !rec.Valid() {
			log.WarnContext(ctx, "skipping comment without id")
			c.stats.Skipped.Add(1)
			continue
		}
		if err := c.sink.StoreComment(ctx, rec); err != nil {
			c.stats.StoreErrors.Add(1)
			errs = append(errs, err)
			continue
		}
		c.stats.Comments.Add(1)
	}
	return errors.Join(errs...)
}

// target runs fn inside a span and flushes buffered sinks afterwards.
func (c *Crawler) target(ctx context.Context, name string, attr attribute.KeyValue, fn func(ctx context.Context)) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attr))
	defer span.End()
	fn(ctx)
	c.flush()
}

func (c *Crawler) flush() {
	f, ok := c.sink.(store.Flusher)
	if !ok {
		return
	}
	if err := f.Flush(); err != nil {
		logger.Error("failed to flush sink", "error", err)
	}
}

func (c *Crawler) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}
