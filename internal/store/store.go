// Package store persists canonical records. Every Sink variant upserts by
// the record's primary key and is safe for concurrent use.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmylchreest/mediacrawl/internal/model"
)

// Save options accepted by New.
const (
	OptionJSON     = "json"
	OptionJSONL    = "jsonl"
	OptionYAML     = "yaml"
	OptionCSV      = "csv"
	OptionSQLite   = "sqlite"
	OptionPostgres = "postgres"
	OptionDB       = "db" // alias of OptionPostgres
	OptionNATS     = "nats"
)

// ErrUnknownOption is returned by New for an unsupported save option.
var ErrUnknownOption = errors.New("unknown save option")

// Sink receives canonical records.
type Sink interface {
	StoreContent(ctx context.Context, r model.ContentRecord) error
	StoreComment(ctx context.Context, r model.CommentRecord) error
	StoreCreator(ctx context.Context, r model.CreatorRecord) error
	Close() error
}

// Flusher is implemented by sinks that buffer records and can persist them
// before Close.
type Flusher interface {
	Flush() error
}

// Kind names a record collection.
type Kind string

const (
	KindContent Kind = "contents"
	KindComment Kind = "comments"
	KindCreator Kind = "creators"
)

// table maps a Kind onto its relational table.
type table struct {
	name string
	key  string
}

var tables = map[Kind]table{
	KindContent: {name: "tiktok_video", key: "video_id"},
	KindComment: {name: "tiktok_video_comment", key: "comment_id"},
	KindCreator: {name: "tiktok_creator", key: "user_id"},
}

// Options selects and configures a Sink.
type Options struct {
	Option      string
	CrawlerType string // file name prefix for file sinks

	Dir         string // file sinks
	Compact     bool   // single-line JSON files
	Indent      string // JSON indentation, two spaces when empty
	SQLitePath  string
	PostgresDSN string
	NATSURL     string
	NATSSubject string

	// Now stamps file names and insert times. Defaults to time.Now.
	Now func() time.Time
}

// New returns the Sink selected by opts.Option.
func New(ctx context.Context, opts Options) (Sink, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var (
		sink Sink
		err  error
	)
	switch option := strings.ToLower(strings.TrimSpace(opts.Option)); option {
	case OptionJSON, OptionJSONL, OptionYAML, OptionCSV:
		writer := []WriterOption{WithPretty(!opts.Compact)}
		if opts.Indent != "" {
			writer = append(writer, WithIndent(opts.Indent))
		}
		sink, err = NewFileSink(opts.Dir, opts.CrawlerType, Format(option), opts.Now(), writer...)
	case OptionSQLite:
		sink, err = NewSQLiteSink(ctx, opts.SQLitePath, opts.Now)
	case OptionPostgres, OptionDB:
		sink, err = NewPostgresSink(ctx, opts.PostgresDSN, opts.Now)
	case OptionNATS:
		sink, err = NewNATSSink(opts.NATSURL, opts.NATSSubject)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOption, opts.Option)
	}
	if err != nil {
		return nil, err
	}
	return sink, nil
}
