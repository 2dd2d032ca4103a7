package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/jmylchreest/mediacrawl/internal/logger"
)

// rodBrowser drives Chrome through go-rod with stealth pages.
type rodBrowser struct {
	cfg     Config
	browser *rod.Browser
	lnch    *launcher.Launcher
	cancel  context.CancelFunc
}

type rodLaunch struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
	err     error
}

func newRodBrowser(ctx context.Context, cfg Config) (*rodBrowser, error) {
	done := make(chan rodLaunch, 1)
	go func() { done <- launchRod(cfg) }()

	var res rodLaunch
	select {
	case res = <-done:
	case <-ctx.Done():
		go discardLaunch(done)
		return nil, ctx.Err()
	case <-time.After(cfg.Timeout):
		go discardLaunch(done)
		return nil, fmt.Errorf("start browser: timed out after %s", cfg.Timeout)
	}
	if res.err != nil {
		return nil, res.err
	}

	authCtx, cancel := context.WithCancel(context.Background())
	rb := &rodBrowser{cfg: cfg, browser: res.browser, lnch: res.lnch, cancel: cancel}
	if cfg.Proxy.User != "" {
		go rb.handleAuth(authCtx)
	}

	logger.Debug("browser started",
		"driver", DriverRod,
		"headless", cfg.Headless,
		"user_data_dir", cfg.UserDataDir,
		"proxy", cfg.Proxy.Server != "")
	return rb, nil
}

func launchRod(cfg Config) rodLaunch {
	var (
		wsURL string
		lnch  *launcher.Launcher
	)

	if cfg.RemoteURL != "" {
		u, err := launcher.ResolveURL(cfg.RemoteURL)
		if err != nil {
			return rodLaunch{err: fmt.Errorf("resolve remote browser: %w", err)}
		}
		wsURL = u
		logger.Info("attaching to running browser", "driver", DriverRod, "url", wsURL)
	} else {
		lnch = launcher.New().
			Headless(cfg.Headless).
			Set("disable-blink-features", "AutomationControlled").
			Set("disable-dev-shm-usage").
			Set("window-size", "1920,1080")
		if chromePath := FindChromePath(); chromePath != "" {
			lnch = lnch.Bin(chromePath)
		}
		if cfg.UserDataDir != "" {
			lnch = lnch.UserDataDir(cfg.UserDataDir)
		}
		if cfg.Proxy.Server != "" {
			lnch = lnch.Proxy(cfg.Proxy.Server)
		}

		u, err := lnch.Launch()
		if err != nil {
			return rodLaunch{err: fmt.Errorf("launch browser: %w", err)}
		}
		wsURL = u
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return rodLaunch{err: fmt.Errorf("connect browser: %w", err)}
	}
	return rodLaunch{browser: b, lnch: lnch}
}

func discardLaunch(done <-chan rodLaunch) {
	res := <-done
	if res.browser != nil {
		_ = res.browser.Close()
	}
	if res.lnch != nil {
		res.lnch.Cleanup()
	}
}

// handleAuth answers proxy authentication challenges until the browser closes.
func (b *rodBrowser) handleAuth(ctx context.Context) {
	for ctx.Err() == nil {
		wait := b.browser.HandleAuth(b.cfg.Proxy.User, b.cfg.Proxy.Password)
		if err := wait(); err != nil {
			if ctx.Err() == nil {
				logger.Debug("proxy auth handler stopped", "error", err)
			}
			return
		}
	}
}

// NewPage opens a stealth tab.
func (b *rodBrowser) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := stealth.Page(b.browser)
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	if b.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.cfg.UserAgent}); err != nil {
			logger.Warn("set user agent failed", "error", err)
		}
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("enable network events: %w", err)
	}

	pageCtx, cancel := context.WithCancel(context.Background())
	p := &rodPage{
		page:     page,
		ctx:      pageCtx,
		cancel:   cancel,
		requests: newRequestTracker[proto.NetworkRequestID](DefaultTrackedRequests),
	}
	p.listen()
	return p, nil
}

// Close shuts the browser down.
func (b *rodBrowser) Close() error {
	b.cancel()
	err := b.browser.Close()
	if b.lnch != nil {
		b.lnch.Cleanup()
	}
	return err
}

type rodPage struct {
	page   *rod.Page
	ctx    context.Context
	cancel context.CancelFunc

	subs     subscribers
	requests *requestTracker[proto.NetworkRequestID]
}

func (p *rodPage) listen() {
	wait := p.page.Context(p.ctx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			method := ""
			if e.Request != nil {
				method = e.Request.Method
			}
			p.requests.request(e.RequestID, method)
		},
		func(e *proto.NetworkResponseReceived) {
			if e.Response != nil {
				p.requests.response(e.RequestID, e.Response.URL, e.Response.Status)
			}
		},
		func(e *proto.NetworkLoadingFailed) {
			p.requests.finish(e.RequestID)
		},
		func(e *proto.NetworkLoadingFinished) {
			r, ok := p.requests.finish(e.RequestID)
			if !ok || p.subs.empty() {
				return
			}
			id := e.RequestID
			p.subs.dispatch(NewResponse(r.url, r.status, r.method, func(ctx context.Context) ([]byte, error) {
				return p.responseBody(ctx, id)
			}))
		},
	)
	go wait()
}

func (p *rodPage) responseBody(ctx context.Context, id proto.NetworkRequestID) ([]byte, error) {
	res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(p.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoBody, err)
	}
	if !res.Base64Encoded {
		return []byte(res.Body), nil
	}
	body, err := base64.StdEncoding.DecodeString(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoBody, err)
	}
	return body, nil
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	p.requests.reset()
	page := p.page.Context(ctx)
	wait := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Navigate(url); err != nil {
		return err
	}
	wait()
	return ctx.Err()
}

func (p *rodPage) Evaluate(ctx context.Context, expression string, out any) error {
	// Eval takes a function; wrap the expression so its value is returned.
	res, err := p.page.Context(ctx).Eval("() => (" + expression + ")")
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(res.Value.JSON("", "")), out)
}

func (p *rodPage) Count(ctx context.Context, selector string) (int, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

func (p *rodPage) WaitVisible(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	return el.WaitVisible()
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return nil, err
	}
	if err := el.WaitVisible(); err != nil {
		return nil, err
	}
	return el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) OnResponse(fn func(Response)) func() {
	return p.subs.add(fn)
}

func (p *rodPage) Cookies(ctx context.Context) ([]Cookie, error) {
	cookies, err := p.page.Browser().Context(ctx).GetCookies()
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

func (p *rodPage) SetCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	return p.page.Context(ctx).SetCookies(params)
}

func (p *rodPage) Close() error {
	p.cancel()
	return p.page.Close()
}
