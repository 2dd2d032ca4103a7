package store

import (
	"encoding/csv"
	"fmt"
	"io"
)

// CSVWriter writes records as CSV with a header row taken from the first
// record's columns. All records must share one type.
type CSVWriter struct {
	w       *csv.Writer
	records []any
}

// NewCSVWriter creates a CSV writer.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// Write buffers a single record.
func (w *CSVWriter) Write(record any) error {
	w.records = append(w.records, record)
	return nil
}

// WriteAll buffers multiple records.
func (w *CSVWriter) WriteAll(records []any) error {
	w.records = append(w.records, records...)
	return nil
}

// Flush writes the header and every buffered record.
func (w *CSVWriter) Flush() error {
	if len(w.records) == 0 {
		return nil
	}

	if err := w.w.Write(Columns(w.records[0])); err != nil {
		return err
	}
	for _, r := range w.records {
		vals := Values(r)
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = fmt.Sprint(v)
		}
		if err := w.w.Write(row); err != nil {
			return err
		}
	}
	w.records = w.records[:0]

	w.w.Flush()
	return w.w.Error()
}

// Close flushes the writer.
func (w *CSVWriter) Close() error {
	return w.Flush()
}
