package store

import (
	"reflect"
	"strings"
	"sync"
)

type column struct {
	name  string
	index int
}

var columnCache sync.Map // reflect.Type -> []column

// columnsOf returns the json-tagged fields of struct type t in declaration
// order.
func columnsOf(t reflect.Type) []column {
	if cached, ok := columnCache.Load(t); ok {
		return cached.([]column)
	}

	var cols []column
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		cols = append(cols, column{name: name, index: i})
	}
	columnCache.Store(t, cols)
	return cols
}

// Columns returns the column names of record v.
func Columns(v any) []string {
	cols := columnsOf(reflect.TypeOf(v))
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

// Values returns the column values of record v, in Columns order.
func Values(v any) []any {
	rv := reflect.ValueOf(v)
	cols := columnsOf(rv.Type())
	vals := make([]any, len(cols))
	for i, c := range cols {
		vals[i] = rv.Field(c.index).Interface()
	}
	return vals
}
