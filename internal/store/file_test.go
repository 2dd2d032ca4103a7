package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/mediacrawl/internal/model"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func readJSON[T any](t *testing.T, path string) []T {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []T
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestFileSink_Path(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink(dir, model.CrawlerDetail, FormatJSONL, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "detail_comments_2026-03-14.jsonl"), s.Path(KindComment))
	assert.Equal(t, filepath.Join(dir, "detail_contents_2026-03-14.jsonl"), s.Path(KindContent))
}

func TestFileSink_UpsertLastWriteWins(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink(dir, model.CrawlerSearch, FormatJSON, fixedNow)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.StoreContent(ctx, model.ContentRecord{VideoID: "1", Title: "first"}))
	require.NoError(t, s.StoreContent(ctx, model.ContentRecord{VideoID: "2", Title: "second"}))
	require.NoError(t, s.StoreContent(ctx, model.ContentRecord{VideoID: "1", Title: "updated"}))
	require.NoError(t, s.Close())

	got := readJSON[model.ContentRecord](t, s.Path(KindContent))
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].VideoID)
	assert.Equal(t, "updated", got[0].Title)
	assert.Equal(t, "2", got[1].VideoID)
}

func TestFileSink_OnlyDirtyKindsWritten(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink(dir, model.CrawlerCreator, FormatJSON, fixedNow)
	require.NoError(t, err)

	require.NoError(t, s.StoreCreator(context.Background(), model.CreatorRecord{UserID: "u1"}))
	require.NoError(t, s.Flush())

	assert.FileExists(t, s.Path(KindCreator))
	assert.NoFileExists(t, s.Path(KindContent))
	assert.NoFileExists(t, s.Path(KindComment))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileSink_FlushAccumulates(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink(dir, model.CrawlerSearch, FormatJSON, fixedNow)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.StoreComment(ctx, model.CommentRecord{CommentID: "c1", VideoID: "v"}))
	require.NoError(t, s.Flush())
	require.NoError(t, s.StoreComment(ctx, model.CommentRecord{CommentID: "c2", VideoID: "v"}))
	require.NoError(t, s.Flush())

	got := readJSON[model.CommentRecord](t, s.Path(KindComment))
	require.Len(t, got, 2)
	assert.Equal(t, "c2", got[1].CommentID)
}

func TestFileSink_ConcurrentStores(t *testing.T) {
	s, err := NewFileSink(t.TempDir(), model.CrawlerSearch, FormatJSON, fixedNow)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.StoreComment(context.Background(), model.CommentRecord{CommentID: string(rune('a' + i))})
		}()
	}
	wg.Wait()
	require.NoError(t, s.Close())

	got := readJSON[model.CommentRecord](t, s.Path(KindComment))
	assert.Len(t, got, 20)
}

func TestFileSink_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	_, err := NewFileSink(dir, "", FormatCSV, fixedNow)
	require.NoError(t, err)
	assert.DirExists(t, dir)
}

func TestFileSink_RejectsFormat(t *testing.T) {
	_, err := NewFileSink(t.TempDir(), model.CrawlerSearch, Format("xml"), fixedNow)
	assert.Error(t, err)
}
