package store

import (
	"embed"
	"fmt"
	"strings"

	"github.com/jmylchreest/mediacrawl/internal/model"
)

//go:embed schema/*.sql
var schemaFS embed.FS

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) placeholder(n int) string {
	if d == dialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d dialect) schema() (string, error) {
	name := "schema/sqlite.sql"
	if d == dialectPostgres {
		name = "schema/postgres.sql"
	}
	b, err := schemaFS.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// upsertSQL builds an insert of cols plus add_ts that, on a key conflict,
// overwrites every column except add_ts.
func upsertSQL(d dialect, t table, cols []string) string {
	names := make([]string, 0, len(cols)+1)
	params := make([]string, 0, len(cols)+1)
	updates := make([]string, 0, len(cols))
	for i, c := range cols {
		names = append(names, quoteIdent(c))
		params = append(params, d.placeholder(i+1))
		if c != t.key {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", quoteIdent(c), quoteIdent(c)))
		}
	}
	names = append(names, quoteIdent("add_ts"))
	params = append(params, d.placeholder(len(cols)+1))

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		quoteIdent(t.name),
		strings.Join(names, ", "),
		strings.Join(params, ", "),
		quoteIdent(t.key),
		strings.Join(updates, ", "),
	)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// statements holds the prepared upsert text for every kind.
type statements map[Kind]string

func newStatements(d dialect) statements {
	return statements{
		KindContent: upsertSQL(d, tables[KindContent], Columns(model.ContentRecord{})),
		KindComment: upsertSQL(d, tables[KindComment], Columns(model.CommentRecord{})),
		KindCreator: upsertSQL(d, tables[KindCreator], Columns(model.CreatorRecord{})),
	}
}

// args returns the statement arguments for r inserted at addTS.
func args(r model.Record, addTS int64) []any {
	return append(Values(r), addTS)
}
