package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/mediacrawl/internal/model"
)

func TestNew_FileOptions(t *testing.T) {
	for _, opt := range []string{"json", "JSONL", " yaml ", "csv"} {
		t.Run(opt, func(t *testing.T) {
			sink, err := New(context.Background(), Options{Option: opt, Dir: t.TempDir(), CrawlerType: "search", Now: nil})
			require.NoError(t, err)
			_, ok := sink.(*FileSink)
			assert.True(t, ok, "expected *FileSink, got %T", sink)
			assert.NoError(t, sink.Close())
		})
	}
}

func TestNew_JSONLayout(t *testing.T) {
	now := func() time.Time { return fixedNow }
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"pretty by default", Options{}, "[\n  {\n    \"video_id\": \"1\""},
		{"custom indent", Options{Indent: "\t"}, "[\n\t{\n\t\t\"video_id\": \"1\""},
		{"compact", Options{Compact: true}, `[{"video_id":"1"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.Option, opts.Dir, opts.CrawlerType, opts.Now = OptionJSON, t.TempDir(), "search", now

			sink, err := New(context.Background(), opts)
			require.NoError(t, err)
			require.NoError(t, sink.StoreContent(context.Background(), model.ContentRecord{VideoID: "1"}))
			require.NoError(t, sink.Close())

			b, err := os.ReadFile(sink.(*FileSink).Path(KindContent))
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(string(b), tt.want), "got %q", b)
		})
	}
}

func TestNew_SQLite(t *testing.T) {
	sink, err := New(context.Background(), Options{
		Option:     OptionSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "x.db"),
	})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteSink{}, sink)
	assert.NoError(t, sink.Close())
}

func TestNew_UnknownOption(t *testing.T) {
	sink, err := New(context.Background(), Options{Option: "mongo"})
	assert.ErrorIs(t, err, ErrUnknownOption)
	assert.Nil(t, sink)
}

func TestNew_PostgresRequiresDSN(t *testing.T) {
	sink, err := New(context.Background(), Options{Option: OptionDB})
	assert.Error(t, err)
	assert.Nil(t, sink, "a failed constructor must not yield a typed nil sink")
}
