// Package login establishes an authenticated browser session, either by
// injecting a saved cookie header or by waiting for a QR code scan.
package login

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/jmylchreest/mediacrawl/internal/browser"
	"github.com/jmylchreest/mediacrawl/internal/logger"
	"github.com/jmylchreest/mediacrawl/internal/session"
)

// Login types.
const (
	TypeCookie = "cookie"
	TypeQRCode = "qrcode"
)

// Page elements used by the QR code flow.
const (
	LoginButtonSelector = `[data-testid="header-login-button"]`
	LoginFrameSelector  = `iframe[data-tt="LoginIframe"]`
)

// Defaults for the QR code flow.
const (
	DefaultPollInterval = time.Second
	DefaultMaxAttempts  = 600
	DefaultFrameTimeout = 15 * time.Second
)

var (
	// ErrLoginFailed is returned when the session never became valid.
	ErrLoginFailed = errors.New("login failed")
	// ErrUnknownType is returned for an unsupported login type.
	ErrUnknownType = errors.New("unknown login type")
)

// Flow logs page's browser in.
type Flow struct {
	Type    string
	Page    browser.Page
	BaseURL string // cookie domain source

	// Cookies is a "name=value; ..." header for TypeCookie.
	Cookies string

	// QRCodePath receives the QR code screenshot for TypeQRCode.
	QRCodePath   string
	Gate         session.Gate
	PollInterval time.Duration
	MaxAttempts  int

	// FrameTimeout bounds opening the login dialog and capturing the QR code.
	FrameTimeout time.Duration
}

// Authenticated reports whether page's cookies pass gate.
func Authenticated(ctx context.Context, page browser.Page, gate session.Gate) (bool, error) {
	cookies, err := page.Cookies(ctx)
	if err != nil {
		return false, fmt.Errorf("read cookies: %w", err)
	}
	return gate.IsAuthenticated(session.SnapshotFromCookies(cookies)), nil
}

// Ensure opens the base URL and runs the login flow unless the session is
// already valid.
func (f *Flow) Ensure(ctx context.Context) error {
	if err := f.Page.Navigate(ctx, f.BaseURL); err != nil {
		return fmt.Errorf("open %s: %w", f.BaseURL, err)
	}
	ok, err := Authenticated(ctx, f.Page, f.Gate)
	if err != nil {
		return err
	}
	if ok {
		logger.Info("session already valid")
		return nil
	}
	return f.Begin(ctx)
}

// Begin runs the configured login method.
func (f *Flow) Begin(ctx context.Context) error {
	logger.Info("begin login", "type", f.Type)
	switch f.Type {
	case TypeCookie:
		return f.withCookies(ctx)
	case TypeQRCode:
		return f.withQRCode(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
}

func (f *Flow) withCookies(ctx context.Context) error {
	snapshot := session.ParseCookieHeader(f.Cookies)
	if len(snapshot) == 0 {
		logger.Warn("cookie login requested but no cookies configured")
		return nil
	}

	domain, err := CookieDomain(f.BaseURL)
	if err != nil {
		return err
	}
	if err := f.Page.SetCookies(ctx, snapshot.Cookies(domain)); err != nil {
		return fmt.Errorf("inject cookies: %w", err)
	}
	logger.Info("injected cookies", "count", len(snapshot), "domain", domain)
	return nil
}

func (f *Flow) withQRCode(ctx context.Context) error {
	png, err := f.captureQRCode(ctx)
	if err != nil {
		return fmt.Errorf("%w: capture qr code: %v", ErrLoginFailed, err)
	}

	path := f.QRCodePath
	if path == "" {
		path = "qrcode.png"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create qr code dir: %w", err)
		}
	}
	if err := os.WriteFile(path, png, 0o600); err != nil {
		return fmt.Errorf("write qr code: %w", err)
	}
	logger.Info("scan the QR code to log in", "path", path)

	return f.waitForSession(ctx)
}

// captureQRCode opens the login dialog if the page shows a login button and
// screenshots the QR code frame. Selector waits block until the element
// appears, so the whole step runs under FrameTimeout.
func (f *Flow) captureQRCode(ctx context.Context) ([]byte, error) {
	timeout := f.FrameTimeout
	if timeout <= 0 {
		timeout = DefaultFrameTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	n, err := f.Page.Count(ctx, LoginButtonSelector)
	if err != nil {
		logger.Debug("count login button", "error", err)
	}
	if n > 0 {
		if err := f.Page.Click(ctx, LoginButtonSelector); err != nil {
			logger.Warn("click login button", "error", err)
		}
	}
	return f.Page.Screenshot(ctx, LoginFrameSelector)
}

// waitForSession polls the gate until it passes or attempts run out.
func (f *Flow) waitForSession(ctx context.Context) error {
	interval := f.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	attempts := f.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < attempts; i++ {
		ok, err := Authenticated(ctx, f.Page, f.Gate)
		if err != nil {
			logger.Debug("login poll", "attempt", i+1, "error", err)
		}
		if ok {
			logger.Info("login successful", "attempts", i+1)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrLoginFailed, ctx.Err())
		case <-ticker.C:
		}
	}
	return fmt.Errorf("%w: session not established after %d attempts", ErrLoginFailed, attempts)
}

// CookieDomain returns "." plus the registrable domain of rawURL, so cookies
// apply to every subdomain.
func CookieDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("parse base url %q: no host", rawURL)
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("cookie domain for %s: %w", host, err)
	}
	return "." + etld1, nil
}
