package capture

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/mediacrawl/internal/browser/browsertest"
)

const listURL = "https://www.tiktok.com/api/post/item_list/?count=30"

func ids(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		id, _ := ItemID(item)
		out = append(out, id)
	}
	return out
}

func TestWindow_DedupAcrossResponses(t *testing.T) {
	page := browsertest.NewPage()
	w := OpenWindow(context.Background(), page, "/api/post/item_list/")
	defer w.Close()

	page.Emit(listURL, 200, `{"itemList":[{"id":"a"},{"id":"b"}]}`)
	assert.Equal(t, 1, w.Advanced())
	assert.Equal(t, 2, w.Advanced())

	// Only "c" is new, which still counts as new items found.
	page.Emit(listURL, 200, `{"itemList":[{"id":"b"},{"id":"c"}]}`)
	assert.Equal(t, 0, w.Idle())
	assert.Equal(t, []string{"a", "b", "c"}, ids(w.Items()))

	w.Advanced()
	page.Emit(listURL, 200, `{"itemList":[{"id":"a"},{"id":"c"}]}`)
	assert.Equal(t, 1, w.Idle(), "a response with only seen items must not reset the counter")
	assert.Equal(t, 3, w.Len())
}

func TestWindow_PreservesFirstSeenOrder(t *testing.T) {
	page := browsertest.NewPage()
	w := OpenWindow(context.Background(), page, "/api/")
	defer w.Close()

	page.Emit(listURL, 200, `{"itemList":[{"id":"z"},{"id":"m"}]}`)
	page.Emit(listURL, 200, `{"itemList":[{"id":"a"},{"id":"z"},{"id":"b"}]}`)
	assert.Equal(t, []string{"z", "m", "a", "b"}, ids(w.Items()))
}

func TestWindow_IgnoresUnrelatedResponses(t *testing.T) {
	page := browsertest.NewPage()
	w := OpenWindow(context.Background(), page, "/api/comment/list/")
	defer w.Close()

	page.Emit("https://www.tiktok.com/api/comment/list/", 404, `{"comments":[{"cid":"1"}]}`)
	page.Emit("https://www.tiktok.com/api/other/", 200, `{"comments":[{"cid":"2"}]}`)
	page.Emit("https://www.tiktok.com/api/comment/list/", 200, `not json`)
	page.Emit("https://www.tiktok.com/api/comment/list/", 200, `[{"cid":"3"}]`)
	page.Emit("https://www.tiktok.com/api/comment/list/", 200, `{"comments":[{"text":"no id"}, 7, {"cid":""}]}`)
	page.Emit("https://www.tiktok.com/api/comment/list/", 200, `{"status_code":0}`)
	assert.Zero(t, w.Len())

	page.Emit("https://www.tiktok.com/api/comment/list/?cursor=20", 200, `{"comments":[{"cid":"4"}]}`)
	assert.Equal(t, []string{"4"}, ids(w.Items()))
}

func TestWindow_Close(t *testing.T) {
	page := browsertest.NewPage()
	w := OpenWindow(context.Background(), page, "/api/")
	require.Equal(t, 1, page.Subscribers())

	page.Emit(listURL, 200, `{"itemList":[{"id":"a"}]}`)
	w.Close()
	w.Close()
	assert.Equal(t, 0, page.Subscribers())

	page.Emit(listURL, 200, `{"itemList":[{"id":"b"}]}`)
	assert.Equal(t, []string{"a"}, ids(w.Items()))
}

func TestWindow_RecordAfterClose(t *testing.T) {
	w := OpenWindow(context.Background(), browsertest.NewPage(), "/api/")
	w.Close()
	assert.Equal(t, -1, w.record([]Item{{"id": "late"}}))
	assert.Zero(t, w.Len())
}

func TestExtractItems(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{"itemList", `{"itemList":[{"id":"1"}]}`, []string{"1"}},
		{"item_list", `{"item_list":[{"id":"2"}]}`, []string{"2"}},
		{"comments", `{"comments":[{"cid":"3"}]}`, []string{"3"}},
		{"items", `{"items":[{"id":"4"}]}`, []string{"4"}},
		{"empty list falls through", `{"itemList":[],"comments":[{"cid":"5"}]}`, []string{"5"}},
		{"null falls through", `{"itemList":null,"items":[{"id":"6"}]}`, []string{"6"}},
		{"first non-empty wins", `{"items":[{"id":"8"}],"itemList":[{"id":"7"}]}`, []string{"7"}},
		{"none", `{"data":[{"id":"9"}]}`, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := decodePayload([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(ExtractItems(payload)))
		})
	}
}

func TestItemID(t *testing.T) {
	payload, err := decodePayload([]byte(`{"itemList":[{"id":7234567890123456789},{"cid":"c1"},{"id":"","cid":"c2"},{"id":null}]}`))
	require.NoError(t, err)
	items := ExtractItems(payload)
	require.Len(t, items, 4)

	id, ok := ItemID(items[0])
	assert.True(t, ok)
	assert.Equal(t, "7234567890123456789", id, "large numeric ids keep their digits")
	assert.IsType(t, json.Number(""), items[0]["id"])

	id, _ = ItemID(items[1])
	assert.Equal(t, "c1", id)

	id, _ = ItemID(items[2])
	assert.Equal(t, "c2", id)

	_, ok = ItemID(items[3])
	assert.False(t, ok)
}
