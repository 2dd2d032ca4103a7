package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"

	"github.com/jmylchreest/mediacrawl/internal/logger"
)

// chromedpBrowser drives Chrome through chromedp.
type chromedpBrowser struct {
	cfg           Config
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
}

func newChromedpBrowser(ctx context.Context, cfg Config) (*chromedpBrowser, error) {
	var (
		allocCtx    context.Context
		cancelAlloc context.CancelFunc
	)

	if cfg.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		logger.Info("attaching to running browser", "driver", DriverChromedp, "url", cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.WindowSize(1920, 1080),
			chromedp.UserAgent(cfg.UserAgent),
		)
		if chromePath := FindChromePath(); chromePath != "" {
			opts = append(opts, chromedp.ExecPath(chromePath))
		}
		if cfg.UserDataDir != "" {
			opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
		}
		if cfg.Proxy.Server != "" {
			opts = append(opts, chromedp.ProxyServer(cfg.Proxy.Server))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
	)

	// The first Run allocates the browser and binds its lifetime to
	// browserCtx, so it must not run under a shorter-lived context.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	select {
	case err := <-started:
		if err != nil {
			cancelBrowser()
			cancelAlloc()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-ctx.Done():
		cancelBrowser()
		cancelAlloc()
		return nil, ctx.Err()
	case <-time.After(cfg.Timeout):
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: timed out after %s", cfg.Timeout)
	}

	logger.Debug("browser started",
		"driver", DriverChromedp,
		"headless", cfg.Headless,
		"user_data_dir", cfg.UserDataDir,
		"proxy", cfg.Proxy.Server != "")

	return &chromedpBrowser{
		cfg:           cfg,
		browserCtx:    browserCtx,
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
	}, nil
}

// NewPage opens a new tab in the shared browser.
func (b *chromedpBrowser) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	p := &chromedpPage{
		ctx:      tabCtx,
		cancel:   cancel,
		proxy:    b.cfg.Proxy,
		requests: newRequestTracker[network.RequestID](DefaultTrackedRequests),
	}
	chromedp.ListenTarget(tabCtx, p.onEvent)

	actions := []chromedp.Action{network.Enable(), injectStealth()}
	if b.cfg.Proxy.User != "" {
		actions = append(actions, fetch.Enable().WithHandleAuthRequests(true))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return p, nil
}

// injectStealth registers the evasion bundle shared with the rod driver so
// it runs before any page script.
func injectStealth() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealth.JS).Do(ctx)
		return err
	})
}

// Close shuts the browser down.
func (b *chromedpBrowser) Close() error {
	b.cancelBrowser()
	b.cancelAlloc()
	return nil
}

type chromedpPage struct {
	ctx    context.Context
	cancel context.CancelFunc
	proxy  ProxyConfig

	subs     subscribers
	requests *requestTracker[network.RequestID]
}

// run executes actions on the tab, aborting when either the tab or ctx ends.
func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p *chromedpPage) onEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.requests.request(e.RequestID, e.Request.Method)
	case *network.EventResponseReceived:
		p.requests.response(e.RequestID, e.Response.URL, int(e.Response.Status))
	case *network.EventLoadingFailed:
		p.requests.finish(e.RequestID)
	case *network.EventLoadingFinished:
		r, ok := p.requests.finish(e.RequestID)
		if !ok || p.subs.empty() {
			return
		}
		id := e.RequestID
		p.subs.dispatch(NewResponse(r.url, r.status, r.method, func(ctx context.Context) ([]byte, error) {
			return p.responseBody(ctx, id)
		}))
	case *fetch.EventAuthRequired:
		go p.continueWithAuth(e.RequestID)
	case *fetch.EventRequestPaused:
		go func() {
			if err := chromedp.Run(p.ctx, fetch.ContinueRequest(e.RequestID)); err != nil {
				logger.Debug("continue paused request failed", "error", err)
			}
		}()
	}
}

func (p *chromedpPage) continueWithAuth(id fetch.RequestID) {
	err := chromedp.Run(p.ctx, fetch.ContinueWithAuth(id, &fetch.AuthChallengeResponse{
		Response: fetch.AuthChallengeResponseResponseProvideCredentials,
		Username: p.proxy.User,
		Password: p.proxy.Password,
	}))
	if err != nil {
		logger.Debug("proxy auth failed", "error", err)
	}
}

func (p *chromedpPage) responseBody(ctx context.Context, id network.RequestID) ([]byte, error) {
	var body []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoBody, err)
	}
	return body, nil
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	p.requests.reset()
	return p.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (p *chromedpPage) Evaluate(ctx context.Context, expression string, out any) error {
	return p.run(ctx, chromedp.Evaluate(expression, out))
}

func (p *chromedpPage) Count(ctx context.Context, selector string) (int, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return 0, err
	}
	var n int
	err = p.Evaluate(ctx, fmt.Sprintf("document.querySelectorAll(%s).length", quoted), &n)
	return n, err
}

func (p *chromedpPage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromedpPage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *chromedpPage) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.Screenshot(selector, &buf, chromedp.ByQuery, chromedp.NodeVisible))
	return buf, err
}

func (p *chromedpPage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromedpPage) OnResponse(fn func(Response)) func() {
	return p.subs.add(fn)
}

func (p *chromedpPage) Cookies(ctx context.Context) ([]Cookie, error) {
	var cookies []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	return out, nil
}

func (p *chromedpPage) SetCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		params = append(params, &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	return p.run(ctx, network.SetCookies(params))
}

func (p *chromedpPage) Close() error {
	p.cancel()
	return nil
}
