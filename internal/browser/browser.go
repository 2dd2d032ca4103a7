// Package browser defines the browser-control surface driven by the capture
// engine and provides chromedp and rod implementations of it.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Driver names accepted by New.
const (
	DriverChromedp = "chromedp"
	DriverRod      = "rod"
)

// DefaultUserAgent is a desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"

var (
	// ErrUnknownDriver is returned by New for an unsupported driver name.
	ErrUnknownDriver = errors.New("unknown browser driver")
	// ErrNoBody is returned when a response body is not retrievable.
	ErrNoBody = errors.New("response body unavailable")
)

// Cookie is a browser cookie.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
}

// Response is a network response observed on a page.
type Response struct {
	URL    string
	Status int
	Method string

	body func(ctx context.Context) ([]byte, error)
}

// NewResponse builds a Response whose body is loaded lazily by fetch.
func NewResponse(url string, status int, method string, fetch func(ctx context.Context) ([]byte, error)) Response {
	return Response{URL: url, Status: status, Method: method, body: fetch}
}

// Body loads the response body.
func (r Response) Body(ctx context.Context) ([]byte, error) {
	if r.body == nil {
		return nil, ErrNoBody
	}
	return r.body(ctx)
}

// Page is a single browser tab.
type Page interface {
	// Navigate loads url and returns once the document has been parsed.
	Navigate(ctx context.Context, url string) error

	// Evaluate runs a JavaScript expression. out may be nil.
	Evaluate(ctx context.Context, expression string, out any) error

	// Count returns the number of elements matching a CSS selector.
	Count(ctx context.Context, selector string) (int, error)

	WaitVisible(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error

	// Screenshot captures the first element matching selector as PNG.
	Screenshot(ctx context.Context, selector string) ([]byte, error)

	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)

	// OnResponse registers fn for every response on the page until the
	// returned function is called. fn may be invoked concurrently.
	OnResponse(fn func(Response)) (unsubscribe func())

	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error

	Close() error
}

// Browser opens pages that share one cookie jar.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// ProxyConfig routes browser traffic through an upstream proxy.
type ProxyConfig struct {
	Server   string // scheme://host:port
	User     string
	Password string
}

// Config configures a Browser.
type Config struct {
	Driver      string
	Headless    bool
	RemoteURL   string // attach to an already running browser instead of launching
	UserDataDir string // persistent profile, keeps the login across runs
	UserAgent   string
	Proxy       ProxyConfig
	Timeout     time.Duration // startup timeout
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:    DriverChromedp,
		Headless:  true,
		UserAgent: DefaultUserAgent,
		Timeout:   30 * time.Second,
	}
}

// New starts (or attaches to) a browser using the configured driver.
func New(ctx context.Context, cfg Config) (Browser, error) {
	defaults := DefaultConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}

	switch cfg.Driver {
	case DriverChromedp, "":
		return newChromedpBrowser(ctx, cfg)
	case DriverRod:
		return newRodBrowser(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}
