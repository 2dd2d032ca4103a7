package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmylchreest/mediacrawl/internal/logger"
	"github.com/jmylchreest/mediacrawl/internal/model"
)

// PostgresSink upserts records into PostgreSQL through a pgx pool.
type PostgresSink struct {
	pool  *pgxpool.Pool
	stmts statements
	now   func() time.Time
}

// NewPostgresSink connects to dsn and applies the schema.
func NewPostgresSink(ctx context.Context, dsn string, now func() time.Time) (*PostgresSink, error) {
	if dsn == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	if now == nil {
		now = time.Now
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	schema, err := dialectPostgres.schema()
	if err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: init schema: %w", err)
	}

	logger.Info("postgres connected", "host", config.ConnConfig.Host, "database", config.ConnConfig.Database)
	return &PostgresSink{pool: pool, stmts: newStatements(dialectPostgres), now: now}, nil
}

func (s *PostgresSink) upsert(ctx context.Context, kind Kind, r model.Record) error {
	if _, err := s.pool.Exec(ctx, s.stmts[kind], args(r, s.now().UnixMilli())...); err != nil {
		return fmt.Errorf("postgres: upsert %s %s: %w", kind, r.Key(), err)
	}
	return nil
}

func (s *PostgresSink) StoreContent(ctx context.Context, r model.ContentRecord) error {
	return s.upsert(ctx, KindContent, r)
}

func (s *PostgresSink) StoreComment(ctx context.Context, r model.CommentRecord) error {
	return s.upsert(ctx, KindComment, r)
}

func (s *PostgresSink) StoreCreator(ctx context.Context, r model.CreatorRecord) error {
	return s.upsert(ctx, KindCreator, r)
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

var _ Sink = (*PostgresSink)(nil)
