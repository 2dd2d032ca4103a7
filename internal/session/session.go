// Package session decides whether the browser holds an authenticated
// identity, based on a snapshot of its cookies.
package session

import (
	"sort"
	"strings"

	"github.com/jmylchreest/mediacrawl/internal/browser"
)

// DefaultMarkers are the cookies present only for a logged-in identity.
var DefaultMarkers = []string{"sessionid_ss", "tt_chain_token"}

// Snapshot is a point-in-time read of cookie name to value.
type Snapshot map[string]string

// Gate checks a Snapshot for a fixed set of marker cookies.
type Gate struct {
	Markers []string
}

// NewGate returns a Gate using DefaultMarkers.
func NewGate() Gate {
	return Gate{Markers: DefaultMarkers}
}

// IsAuthenticated reports whether every marker is present in s.
// A Gate with no markers never authenticates.
func (g Gate) IsAuthenticated(s Snapshot) bool {
	if len(g.Markers) == 0 {
		return false
	}
	for _, m := range g.Markers {
		if _, ok := s[m]; !ok {
			return false
		}
	}
	return true
}

// SnapshotFromCookies builds a Snapshot from browser cookies. Later cookies
// with the same name win.
func SnapshotFromCookies(cookies []browser.Cookie) Snapshot {
	s := make(Snapshot, len(cookies))
	for _, c := range cookies {
		s[c.Name] = c.Value
	}
	return s
}

// ParseCookieHeader parses a "name=value; name2=value2" cookie string as
// copied from a browser's developer tools. Malformed pairs are skipped.
func ParseCookieHeader(header string) Snapshot {
	s := make(Snapshot)
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s[name] = strings.TrimSpace(value)
	}
	return s
}

// Header renders s as a Cookie header value with names in sorted order.
func (s Snapshot) Header() string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(s[name])
	}
	return b.String()
}

// Cookies converts s into browser cookies scoped to domain.
func (s Snapshot) Cookies(domain string) []browser.Cookie {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	cookies := make([]browser.Cookie, 0, len(names))
	for _, name := range names {
		cookies = append(cookies, browser.Cookie{
			Name:   name,
			Value:  s[name],
			Domain: domain,
			Path:   "/",
		})
	}
	return cookies
}
