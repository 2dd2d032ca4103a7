// Package pagedata reads the state blob a page embeds for client-side
// rehydration.
package pagedata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ScriptSelector locates the embedded state.
const ScriptSelector = "script#__UNIVERSAL_DATA_FOR_REHYDRATION__"

var (
	// ErrNoData is returned when the page carries no embedded state.
	ErrNoData = errors.New("no embedded page data")
	// ErrMismatch is returned when the embedded state describes a different
	// video or user than the one asked for.
	ErrMismatch = errors.New("embedded page data does not match")
)

// Scope is the decoded "__DEFAULT_SCOPE__" object, keyed by webapp module.
type Scope map[string]any

// Parse extracts the default scope from page HTML. Numbers are kept as
// json.Number.
func Parse(html string) (Scope, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	raw := strings.TrimSpace(doc.Find(ScriptSelector).First().Text())
	if raw == "" {
		return nil, ErrNoData
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var data struct {
		Scope Scope `json:"__DEFAULT_SCOPE__"`
	}
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode embedded page data: %w", err)
	}
	if data.Scope == nil {
		return nil, ErrNoData
	}
	return data.Scope, nil
}

// VideoDetail returns the item struct of video id from a video page.
func VideoDetail(html, id string) (map[string]any, error) {
	scope, err := Parse(html)
	if err != nil {
		return nil, err
	}
	item, ok := dig(scope, "webapp.video-detail", "itemInfo", "itemStruct")
	if !ok {
		return nil, ErrNoData
	}
	if got := str(item["id"]); got != id {
		return nil, fmt.Errorf("%w: video %q, page has %q", ErrMismatch, id, got)
	}
	return item, nil
}

// UserDetail returns the userInfo object (user plus stats) of uniqueID from
// a creator page.
func UserDetail(html, uniqueID string) (map[string]any, error) {
	scope, err := Parse(html)
	if err != nil {
		return nil, err
	}
	info, ok := dig(scope, "webapp.user-detail", "userInfo")
	if !ok {
		return nil, ErrNoData
	}
	user, _ := info["user"].(map[string]any)
	if got := str(user["uniqueId"]); got != uniqueID {
		return nil, fmt.Errorf("%w: user %q, page has %q", ErrMismatch, uniqueID, got)
	}
	return info, nil
}

func dig(m map[string]any, keys ...string) (map[string]any, bool) {
	for _, k := range keys {
		next, ok := m[k].(map[string]any)
		if !ok {
			return nil, false
		}
		m = next
	}
	return m, true
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}
	return ""
}
