package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/mediacrawl/internal/logger"
	"github.com/jmylchreest/mediacrawl/internal/model"
)

// records is an insertion-ordered upsert map.
type records[R model.Record] struct {
	order []string
	rows  map[string]R
}

func newRecords[R model.Record]() *records[R] {
	return &records[R]{rows: make(map[string]R)}
}

func (t *records[R]) upsert(r R) {
	k := r.Key()
	if _, ok := t.rows[k]; !ok {
		t.order = append(t.order, k)
	}
	t.rows[k] = r
}

func (t *records[R]) list() []any {
	out := make([]any, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.rows[k])
	}
	return out
}

// FileSink keeps records in memory and writes one file per kind to
// <dir>/<crawler>_<kind>_<date><ext>, rewriting the whole file on Flush.
type FileSink struct {
	dir     string
	crawler string
	format  Format
	date    string
	writer  []WriterOption

	mu       sync.Mutex
	contents *records[model.ContentRecord]
	comments *records[model.CommentRecord]
	creators *records[model.CreatorRecord]
	dirty    map[Kind]bool
}

// NewFileSink creates dir if needed and returns a sink writing format files.
// opts control JSON layout.
func NewFileSink(dir, crawlerType string, format Format, now time.Time, opts ...WriterOption) (*FileSink, error) {
	if !format.valid() {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	if dir == "" {
		dir = "."
	}
	if crawlerType == "" {
		crawlerType = model.CrawlerSearch
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}

	return &FileSink{
		dir:      dir,
		crawler:  crawlerType,
		format:   format,
		date:     now.Format(time.DateOnly),
		writer:   opts,
		contents: newRecords[model.ContentRecord](),
		comments: newRecords[model.CommentRecord](),
		creators: newRecords[model.CreatorRecord](),
		dirty:    make(map[Kind]bool),
	}, nil
}

// Path returns the file written for kind.
func (s *FileSink) Path(kind Kind) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s_%s%s", s.crawler, kind, s.date, s.format.Ext()))
}

func (s *FileSink) StoreContent(_ context.Context, r model.ContentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents.upsert(r)
	s.dirty[KindContent] = true
	return nil
}

func (s *FileSink) StoreComment(_ context.Context, r model.CommentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments.upsert(r)
	s.dirty[KindComment] = true
	return nil
}

func (s *FileSink) StoreCreator(_ context.Context, r model.CreatorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creators.upsert(r)
	s.dirty[KindCreator] = true
	return nil
}

// Flush rewrites the file of every kind changed since the last Flush.
func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := map[Kind][]any{}
	if s.dirty[KindContent] {
		pending[KindContent] = s.contents.list()
	}
	if s.dirty[KindComment] {
		pending[KindComment] = s.comments.list()
	}
	if s.dirty[KindCreator] {
		pending[KindCreator] = s.creators.list()
	}

	for kind, rows := range pending {
		if err := s.write(s.Path(kind), rows); err != nil {
			return err
		}
		delete(s.dirty, kind)
		logger.Debug("wrote records", "kind", kind, "count", len(rows), "path", s.Path(kind))
	}
	return nil
}

// Close flushes pending records.
func (s *FileSink) Close() error {
	return s.Flush()
}

// write replaces path atomically.
func (s *FileSink) write(path string, rows []any) error {
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w, err := NewWriter(tmp, s.format, s.writer...)
	if err != nil {
		tmp.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

var (
	_ Sink    = (*FileSink)(nil)
	_ Flusher = (*FileSink)(nil)
)
