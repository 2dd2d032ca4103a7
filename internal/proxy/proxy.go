// Package proxy supplies the upstream proxy a crawl's browser is launched
// behind.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jmylchreest/mediacrawl/internal/browser"
	"github.com/jmylchreest/mediacrawl/internal/logger"
	"github.com/jmylchreest/mediacrawl/internal/telemetry"
	"github.com/jmylchreest/mediacrawl/internal/version"
)

// ErrNoProxy is returned when a provider has no usable proxy.
var ErrNoProxy = errors.New("no proxy available")

// Info describes one proxy endpoint.
type Info struct {
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// Server returns protocol://ip:port. The protocol defaults to http and may
// be given with or without its "://" suffix.
func (i Info) Server() string {
	protocol := strings.TrimSuffix(strings.ToLower(i.Protocol), "://")
	if protocol == "" {
		protocol = "http"
	}
	return protocol + "://" + net.JoinHostPort(i.IP, strconv.Itoa(i.Port))
}

func (i Info) valid() bool {
	return i.IP != "" && i.Port > 0
}

// Browser converts i into the browser's proxy settings.
func (i Info) Browser() browser.ProxyConfig {
	return browser.ProxyConfig{Server: i.Server(), User: i.User, Password: i.Password}
}

// Provider hands out proxies.
type Provider interface {
	GetProxy(ctx context.Context) (Info, error)
}

// Static always returns the same proxy.
type Static struct {
	Info Info
}

// ParseServer builds a Static provider from "scheme://host:port".
func ParseServer(server, user, password string) (Static, error) {
	protocol, hostport, ok := strings.Cut(server, "://")
	if !ok {
		protocol, hostport = "http", server
	}
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Static{}, fmt.Errorf("parse proxy server %q: %w", server, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return Static{}, fmt.Errorf("parse proxy server %q: invalid port", server)
	}
	return Static{Info: Info{IP: host, Port: port, Protocol: protocol, User: user, Password: password}}, nil
}

func (s Static) GetProxy(context.Context) (Info, error) {
	if !s.Info.valid() {
		return Info{}, ErrNoProxy
	}
	return s.Info, nil
}

// HTTPProvider fetches a JSON list of proxies from a provider API and hands
// them out round-robin. The list is fetched once and refetched when
// exhausted.
type HTTPProvider struct {
	url    string
	client *resty.Client

	mu   sync.Mutex
	pool []Info
	next int
}

// NewHTTPProvider returns a provider backed by the API at url.
func NewHTTPProvider(url string) *HTTPProvider {
	client := resty.New()
	client.SetHeader("User-Agent", version.UserAgent())
	client.SetHeader("Accept", "application/json")
	client.SetTimeout(30 * time.Second)
	client.SetRetryCount(2)
	telemetry.InstrumentResty(client, "github.com/jmylchreest/mediacrawl/internal/proxy")

	return &HTTPProvider{url: url, client: client}
}

func (p *HTTPProvider) GetProxy(ctx context.Context) (Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.next >= len(p.pool) {
		pool, err := p.fetch(ctx)
		if err != nil {
			return Info{}, err
		}
		p.pool, p.next = pool, 0
	}
	info := p.pool[p.next]
	p.next++
	return info, nil
}

func (p *HTTPProvider) fetch(ctx context.Context) ([]Info, error) {
	var list []Info
	res, err := p.client.R().
		SetContext(ctx).
		SetResult(&list).
		Get(p.url)
	if err != nil {
		return nil, fmt.Errorf("fetch proxies: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("fetch proxies: status %d", res.StatusCode())
	}

	pool := list[:0]
	for _, info := range list {
		if info.valid() {
			pool = append(pool, info)
		}
	}
	if len(pool) == 0 {
		return nil, ErrNoProxy
	}
	logger.Debug("fetched proxies", "count", len(pool), "url", p.url)
	return pool, nil
}

var (
	_ Provider = Static{}
	_ Provider = (*HTTPProvider)(nil)
)
