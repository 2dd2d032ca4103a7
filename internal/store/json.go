package store

import (
	"bufio"
	"encoding/json"
	"io"
)

// JSONWriter writes records as one JSON array.
type JSONWriter struct {
	w       *bufio.Writer
	pretty  bool
	indent  string
	records []any
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(w io.Writer, pretty bool, indent string) *JSONWriter {
	return &JSONWriter{
		w:       bufio.NewWriter(w),
		pretty:  pretty,
		indent:  indent,
		records: make([]any, 0),
	}
}

// Write buffers a single record.
func (w *JSONWriter) Write(record any) error {
	w.records = append(w.records, record)
	return nil
}

// WriteAll buffers multiple records.
func (w *JSONWriter) WriteAll(records []any) error {
	w.records = append(w.records, records...)
	return nil
}

// Flush writes the buffered records as a JSON array, which is empty rather
// than null when nothing was written.
func (w *JSONWriter) Flush() error {
	var (
		output []byte
		err    error
	)
	if w.pretty {
		output, err = json.MarshalIndent(w.records, "", w.indent)
	} else {
		output, err = json.Marshal(w.records)
	}
	if err != nil {
		return err
	}

	if _, err := w.w.Write(output); err != nil {
		return err
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}
	w.records = w.records[:0]
	return w.w.Flush()
}

// Close flushes the writer.
func (w *JSONWriter) Close() error {
	return w.Flush()
}

// JSONLWriter writes newline-delimited JSON, one record per line.
type JSONLWriter struct {
	w *bufio.Writer
}

// NewJSONLWriter creates a JSONL writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{
		w: bufio.NewWriter(w),
	}
}

// Write writes a single record as a JSON line.
func (w *JSONLWriter) Write(record any) error {
	output, err := json.Marshal(record)
	if err != nil {
		return err
	}

	if _, err := w.w.Write(output); err != nil {
		return err
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}

	return w.w.Flush()
}

// WriteAll writes multiple records as JSON lines.
func (w *JSONLWriter) WriteAll(records []any) error {
	for _, r := range records {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the buffer.
func (w *JSONLWriter) Flush() error {
	return w.w.Flush()
}

// Close flushes the writer.
func (w *JSONLWriter) Close() error {
	return w.Flush()
}
