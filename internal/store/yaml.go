package store

import (
	"bufio"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLWriter writes records as one YAML sequence.
type YAMLWriter struct {
	w       *bufio.Writer
	records []any
}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	return &YAMLWriter{
		w:       bufio.NewWriter(w),
		records: make([]any, 0),
	}
}

// Write buffers a single record.
func (w *YAMLWriter) Write(record any) error {
	w.records = append(w.records, record)
	return nil
}

// WriteAll buffers multiple records.
func (w *YAMLWriter) WriteAll(records []any) error {
	w.records = append(w.records, records...)
	return nil
}

// Flush writes the buffered records as a YAML sequence.
func (w *YAMLWriter) Flush() error {
	encoder := yaml.NewEncoder(w.w)
	encoder.SetIndent(2)

	if err := encoder.Encode(w.records); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}
	w.records = w.records[:0]
	return w.w.Flush()
}

// Close flushes the writer.
func (w *YAMLWriter) Close() error {
	return w.Flush()
}
