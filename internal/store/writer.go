package store

import (
	"fmt"
	"io"
)

// Format is a flat-file encoding.
type Format string

const (
	FormatJSON  Format = OptionJSON
	FormatJSONL Format = OptionJSONL
	FormatYAML  Format = OptionYAML
	FormatCSV   Format = OptionCSV
)

// Ext returns the file extension for f.
func (f Format) Ext() string {
	return "." + string(f)
}

func (f Format) valid() bool {
	switch f {
	case FormatJSON, FormatJSONL, FormatYAML, FormatCSV:
		return true
	}
	return false
}

// Writer serializes records to a stream.
type Writer interface {
	// Write outputs a single record.
	Write(record any) error

	// WriteAll outputs multiple records.
	WriteAll(records []any) error

	// Flush ensures all data is written.
	Flush() error

	// Close releases resources.
	Close() error
}

// WriterOption configures a writer.
type WriterOption func(*writerConfig)

type writerConfig struct {
	pretty bool
	indent string
}

// WithPretty enables pretty-printing.
func WithPretty(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.pretty = enabled
	}
}

// WithIndent sets the indentation string.
func WithIndent(indent string) WriterOption {
	return func(c *writerConfig) {
		c.indent = indent
	}
}

// NewWriter creates a writer for the specified format.
func NewWriter(w io.Writer, format Format, opts ...WriterOption) (Writer, error) {
	cfg := &writerConfig{
		pretty: true,
		indent: "  ",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch format {
	case FormatJSON:
		return NewJSONWriter(w, cfg.pretty, cfg.indent), nil
	case FormatJSONL:
		return NewJSONLWriter(w), nil
	case FormatYAML:
		return NewYAMLWriter(w), nil
	case FormatCSV:
		return NewCSVWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
