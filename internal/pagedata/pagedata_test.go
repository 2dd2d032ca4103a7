package pagedata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func page(state string) string {
	return `<!DOCTYPE html><html><head><title>x</title></head><body>
<div id="app"></div>
<script id="__UNIVERSAL_DATA_FOR_REHYDRATION__" type="application/json">` + state + `</script>
</body></html>`
}

const videoState = `{"__DEFAULT_SCOPE__":{"webapp.video-detail":{"itemInfo":{"itemStruct":{
	"id":"7301234567890123456","desc":"hello <b>world</b>","stats":{"diggCount":12}}}}}}`

const userState = `{"__DEFAULT_SCOPE__":{"webapp.user-detail":{"userInfo":{
	"user":{"id":"42","uniqueId":"alice","nickname":"Alice"},"stats":{"followerCount":7}}}}}`

func TestVideoDetail(t *testing.T) {
	item, err := VideoDetail(page(videoState), "7301234567890123456")
	require.NoError(t, err)

	assert.Equal(t, "hello <b>world</b>", item["desc"])
	stats := item["stats"].(map[string]any)
	assert.Equal(t, json.Number("12"), stats["diggCount"])
}

func TestVideoDetail_Mismatch(t *testing.T) {
	_, err := VideoDetail(page(videoState), "1")
	assert.ErrorIs(t, err, ErrMismatch)
}

func TestVideoDetail_WrongModule(t *testing.T) {
	_, err := VideoDetail(page(userState), "42")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestUserDetail(t *testing.T) {
	info, err := UserDetail(page(userState), "alice")
	require.NoError(t, err)

	user := info["user"].(map[string]any)
	assert.Equal(t, "Alice", user["nickname"])
	assert.Contains(t, info, "stats")
}

func TestUserDetail_Mismatch(t *testing.T) {
	_, err := UserDetail(page(userState), "bob")
	assert.ErrorIs(t, err, ErrMismatch)
}

func TestParse_NoScript(t *testing.T) {
	_, err := Parse(`<html><body><p>nothing</p></body></html>`)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestParse_NoScope(t *testing.T) {
	_, err := Parse(page(`{"other":{}}`))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestParse_BadJSON(t *testing.T) {
	_, err := Parse(page(`{"__DEFAULT_SCOPE__":`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoData)
}
