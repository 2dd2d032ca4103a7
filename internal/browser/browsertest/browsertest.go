// Package browsertest provides scriptable in-memory implementations of
// browser.Browser and browser.Page for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmylchreest/mediacrawl/internal/browser"
)

// ErrNotFound is returned for selectors the fake page does not know about.
var ErrNotFound = errors.New("element not found")

// Page is a fake browser.Page. Hooks run synchronously on the calling
// goroutine, so a hook may call Emit to simulate responses triggered by
// navigation or scrolling.
type Page struct {
	// OnNavigate is called for every Navigate. Nil means success.
	OnNavigate func(ctx context.Context, p *Page, url string) error

	// OnEvaluate is called for every Evaluate. Nil means success.
	OnEvaluate func(ctx context.Context, p *Page, expression string, out any) error

	// Blocking makes WaitVisible, Click and Screenshot wait for ctx to end
	// on a selector that is not visible, like a real browser, instead of
	// failing with ErrNotFound.
	Blocking bool

	mu          sync.Mutex
	navigations []string
	evaluations []string
	clicks      []string
	counts      map[string]int
	visible     map[string]bool
	screenshots map[string][]byte
	document    string
	cookies     []browser.Cookie
	handlers    map[int]func(browser.Response)
	nextHandler int
	closed      bool
}

// NewPage returns an empty fake page.
func NewPage() *Page {
	return &Page{
		counts:      make(map[string]int),
		visible:     make(map[string]bool),
		screenshots: make(map[string][]byte),
		handlers:    make(map[int]func(browser.Response)),
	}
}

// SetCount makes Count return n for selector.
func (p *Page) SetCount(selector string, n int) {
	p.mu.Lock()
	p.counts[selector] = n
	p.mu.Unlock()
}

// SetVisible controls whether WaitVisible and Click succeed for selector.
func (p *Page) SetVisible(selector string, visible bool) {
	p.mu.Lock()
	p.visible[selector] = visible
	p.mu.Unlock()
}

// SetScreenshot makes Screenshot return png for selector.
func (p *Page) SetScreenshot(selector string, png []byte) {
	p.mu.Lock()
	p.screenshots[selector] = png
	p.visible[selector] = true
	p.mu.Unlock()
}

// SetHTML sets the document returned by HTML.
func (p *Page) SetHTML(html string) {
	p.mu.Lock()
	p.document = html
	p.mu.Unlock()
}

// Emit delivers a GET response with the given body to every subscriber,
// synchronously and in subscription order.
func (p *Page) Emit(url string, status int, body string) {
	p.EmitMethod("GET", url, status, body)
}

// EmitMethod is Emit for a request made with method.
func (p *Page) EmitMethod(method, url string, status int, body string) {
	p.mu.Lock()
	fns := make([]func(browser.Response), 0, len(p.handlers))
	for i := 0; i < p.nextHandler; i++ {
		if fn, ok := p.handlers[i]; ok {
			fns = append(fns, fn)
		}
	}
	p.mu.Unlock()

	resp := browser.NewResponse(url, status, method, func(context.Context) ([]byte, error) {
		return []byte(body), nil
	})
	for _, fn := range fns {
		fn(resp)
	}
}

// Navigations returns every URL passed to Navigate.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Evaluations returns every expression passed to Evaluate.
func (p *Page) Evaluations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.evaluations...)
}

// Clicks returns every selector clicked.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Subscribers returns the number of active OnResponse handlers.
func (p *Page) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers)
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	hook := p.OnNavigate
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if hook != nil {
		return hook(ctx, p, url)
	}
	return nil
}

func (p *Page) Evaluate(ctx context.Context, expression string, out any) error {
	p.mu.Lock()
	p.evaluations = append(p.evaluations, expression)
	hook := p.OnEvaluate
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if hook != nil {
		return hook(ctx, p, expression, out)
	}
	return nil
}

func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[selector], nil
}

func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	visible := p.visible[selector]
	p.mu.Unlock()
	if visible {
		return nil
	}
	if p.Blocking {
		<-ctx.Done()
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s", ErrNotFound, selector)
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.WaitVisible(ctx, selector); err != nil {
		return err
	}
	p.mu.Lock()
	p.clicks = append(p.clicks, selector)
	p.mu.Unlock()
	return nil
}

func (p *Page) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	if err := p.WaitVisible(ctx, selector); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.screenshots[selector], nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.document, nil
}

func (p *Page) OnResponse(fn func(browser.Response)) func() {
	p.mu.Lock()
	id := p.nextHandler
	p.nextHandler++
	p.handlers[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.handlers, id)
		p.mu.Unlock()
	}
}

func (p *Page) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Cookie(nil), p.cookies...), nil
}

// SetCookies replaces cookies with the same name and appends the rest.
func (p *Page) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range cookies {
		replaced := false
		for i := range p.cookies {
			if p.cookies[i].Name == c.Name {
				p.cookies[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			p.cookies = append(p.cookies, c)
		}
	}
	return nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Browser is a fake browser.Browser handing out pages built by NewPageFunc.
type Browser struct {
	// NewPageFunc builds each page. Nil yields NewPage().
	NewPageFunc func() *Page

	mu     sync.Mutex
	pages  []*Page
	closed bool
}

func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var p *Page
	if b.NewPageFunc != nil {
		p = b.NewPageFunc()
	} else {
		p = NewPage()
	}
	b.mu.Lock()
	b.pages = append(b.pages, p)
	b.mu.Unlock()
	return p, nil
}

// Pages returns every page opened so far.
func (b *Browser) Pages() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Page(nil), b.pages...)
}

func (b *Browser) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

var (
	_ browser.Page    = (*Page)(nil)
	_ browser.Browser = (*Browser)(nil)
)
