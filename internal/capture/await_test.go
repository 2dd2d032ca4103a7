package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/mediacrawl/internal/browser"
	"github.com/jmylchreest/mediacrawl/internal/browser/browsertest"
)

const detailURL = "https://www.tiktok.com/api/item/detail/?itemId=1"

func itemStruct(payload map[string]any) (Item, bool) {
	info, ok := payload["itemInfo"].(map[string]any)
	if !ok {
		return nil, false
	}
	item, ok := info["itemStruct"].(map[string]any)
	return item, ok
}

func TestAwait_FirstMatchWins(t *testing.T) {
	page := browsertest.NewPage()
	page.OnNavigate = func(_ context.Context, p *browsertest.Page, _ string) error {
		p.Emit(detailURL, 200, `{"statusCode":0}`)
		p.Emit(detailURL, 200, `{"itemInfo":{"itemStruct":{"id":"first"}}}`)
		p.Emit(detailURL, 200, `{"itemInfo":{"itemStruct":{"id":"second"}}}`)
		return nil
	}

	item, ok := Await(context.Background(), page, "https://www.tiktok.com/@a/video/1",
		JSONMatcher("/api/item/detail/", "", itemStruct), time.Second)
	require.True(t, ok)
	assert.Equal(t, "first", item["id"])
	assert.Zero(t, page.Subscribers())
}

func TestAwait_MethodFilter(t *testing.T) {
	page := browsertest.NewPage()
	page.OnNavigate = func(_ context.Context, p *browsertest.Page, _ string) error {
		// browsertest responses are GET requests.
		p.Emit(detailURL, 200, `{"itemInfo":{"itemStruct":{"id":"1"}}}`)
		return nil
	}

	_, ok := Await(context.Background(), page, "u", JSONMatcher("/api/item/detail/", "POST", itemStruct), 20*time.Millisecond)
	assert.False(t, ok)
}

func TestAwait_LateResponse(t *testing.T) {
	page := browsertest.NewPage()
	page.OnNavigate = func(_ context.Context, p *browsertest.Page, _ string) error {
		go func() {
			time.Sleep(10 * time.Millisecond)
			p.Emit(detailURL, 200, `{"itemInfo":{"itemStruct":{"id":"late"}}}`)
		}()
		return nil
	}

	item, ok := Await(context.Background(), page, "u", JSONMatcher("/api/item/detail/", "", itemStruct), time.Second)
	require.True(t, ok)
	assert.Equal(t, "late", item["id"])
}

func TestAwait_Timeout(t *testing.T) {
	page := browsertest.NewPage()
	start := time.Now()
	item, ok := Await(context.Background(), page, "u", JSONMatcher("/api/", "", itemStruct), 20*time.Millisecond)
	assert.False(t, ok)
	assert.Nil(t, item)
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, page.Subscribers())
}

func TestAwait_NavigationFailure(t *testing.T) {
	page := browsertest.NewPage()
	page.OnNavigate = func(context.Context, *browsertest.Page, string) error {
		return errors.New("timeout")
	}
	_, ok := Await(context.Background(), page, "u", JSONMatcher("/api/", "", itemStruct), time.Second)
	assert.False(t, ok)
}

func TestAwait_MatchBeforeNavigationError(t *testing.T) {
	page := browsertest.NewPage()
	page.OnNavigate = func(_ context.Context, p *browsertest.Page, _ string) error {
		p.Emit(detailURL, 200, `{"itemInfo":{"itemStruct":{"id":"got-it"}}}`)
		return errors.New("navigation interrupted")
	}
	item, ok := Await(context.Background(), page, "u", JSONMatcher("/api/", "", itemStruct), time.Second)
	require.True(t, ok)
	assert.Equal(t, "got-it", item["id"])
}

func TestAwait_FallbackSkipsWait(t *testing.T) {
	page := browsertest.NewPage()
	calls := 0
	fallback := WithFallback(func(context.Context) (Item, bool) {
		calls++
		return Item{"id": "embedded"}, true
	})

	start := time.Now()
	item, ok := Await(context.Background(), page, "u", JSONMatcher("/api/", "", itemStruct), time.Hour, fallback)
	require.True(t, ok)
	assert.Equal(t, "embedded", item["id"])
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAwait_ResponseBeatsFallback(t *testing.T) {
	page := browsertest.NewPage()
	page.OnNavigate = func(_ context.Context, p *browsertest.Page, _ string) error {
		p.Emit(detailURL, 200, `{"itemInfo":{"itemStruct":{"id":"api"}}}`)
		return nil
	}
	fallback := WithFallback(func(context.Context) (Item, bool) {
		t.Error("fallback should not run once a response matched")
		return nil, false
	})

	item, ok := Await(context.Background(), page, "u", JSONMatcher("/api/", "", itemStruct), time.Second, fallback)
	require.True(t, ok)
	assert.Equal(t, "api", item["id"])
}

func TestAwait_FallbackMissThenResponse(t *testing.T) {
	page := browsertest.NewPage()
	page.OnNavigate = func(_ context.Context, p *browsertest.Page, _ string) error {
		go func() {
			time.Sleep(10 * time.Millisecond)
			p.Emit(detailURL, 200, `{"itemInfo":{"itemStruct":{"id":"late"}}}`)
		}()
		return nil
	}
	fallback := WithFallback(func(context.Context) (Item, bool) { return nil, false })

	item, ok := Await(context.Background(), page, "u", JSONMatcher("/api/", "", itemStruct), time.Second, fallback)
	require.True(t, ok)
	assert.Equal(t, "late", item["id"])
}

func TestExpect_ResolvedWithoutWaiting(t *testing.T) {
	page := browsertest.NewPage()
	pending := Expect(context.Background(), page, JSONMatcher("/api/", "", itemStruct))
	defer pending.Close()

	_, ok := pending.Resolved()
	assert.False(t, ok)

	page.Emit(detailURL, 200, `{"itemInfo":{"itemStruct":{"id":"now"}}}`)
	item, ok := pending.Resolved()
	require.True(t, ok)
	assert.Equal(t, "now", item["id"])
}

func TestExpect_WaitTimeout(t *testing.T) {
	page := browsertest.NewPage()
	pending := Expect(context.Background(), page, JSONMatcher("/api/", "", itemStruct))
	defer pending.Close()

	start := time.Now()
	_, ok := pending.Wait(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExpect_WaitCancelled(t *testing.T) {
	page := browsertest.NewPage()
	pending := Expect(context.Background(), page, JSONMatcher("/api/", "", itemStruct))
	defer pending.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := pending.Wait(ctx, time.Hour)
	assert.False(t, ok)
}

func TestExpect_CloseUnsubscribes(t *testing.T) {
	page := browsertest.NewPage()
	pending := Expect(context.Background(), page, JSONMatcher("/api/", "", itemStruct))
	assert.Equal(t, 1, page.Subscribers())

	pending.Close()
	pending.Close()
	assert.Zero(t, page.Subscribers())

	page.Emit(detailURL, 200, `{"itemInfo":{"itemStruct":{"id":"late"}}}`)
	_, ok := pending.Resolved()
	assert.False(t, ok)
}

func TestSlot_ResolvesOnce(t *testing.T) {
	s := newSlot()
	assert.False(t, s.resolved())
	s.resolve(Item{"id": "a"})
	s.resolve(Item{"id": "b"})
	assert.True(t, s.resolved())
	assert.Equal(t, "a", s.item["id"])
}

func TestJSONMatcher_SkipsWithoutBody(t *testing.T) {
	m := JSONMatcher("/api/", "", itemStruct)
	_, ok := m(context.Background(), browser.Response{URL: "https://x/api/", Status: 200})
	assert.False(t, ok)
}
