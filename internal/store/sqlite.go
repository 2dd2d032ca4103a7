package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jmylchreest/mediacrawl/internal/model"
)

// SQLiteSink upserts records into an embedded SQLite database.
type SQLiteSink struct {
	db    *sql.DB
	stmts statements
	now   func() time.Time
}

// NewSQLiteSink opens (or creates) the database at path and applies the
// schema.
func NewSQLiteSink(ctx context.Context, path string, now func() time.Time) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if now == nil {
		now = time.Now
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	schema, err := dialectSQLite.schema()
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}

	return &SQLiteSink{db: db, stmts: newStatements(dialectSQLite), now: now}, nil
}

func (s *SQLiteSink) upsert(ctx context.Context, kind Kind, r model.Record) error {
	if _, err := s.db.ExecContext(ctx, s.stmts[kind], args(r, s.now().UnixMilli())...); err != nil {
		return fmt.Errorf("sqlite: upsert %s %s: %w", kind, r.Key(), err)
	}
	return nil
}

func (s *SQLiteSink) StoreContent(ctx context.Context, r model.ContentRecord) error {
	return s.upsert(ctx, KindContent, r)
}

func (s *SQLiteSink) StoreComment(ctx context.Context, r model.CommentRecord) error {
	return s.upsert(ctx, KindComment, r)
}

func (s *SQLiteSink) StoreCreator(ctx context.Context, r model.CreatorRecord) error {
	return s.upsert(ctx, KindCreator, r)
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

var _ Sink = (*SQLiteSink)(nil)
