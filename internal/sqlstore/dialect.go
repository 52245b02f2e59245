package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect names accepted by Open.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

type dialect struct {
	name   string
	driver string
	types  map[kind]string
	blob   string
}

var dialects = map[string]dialect{
	DialectSQLite: {
		name:   DialectSQLite,
		driver: "sqlite",
		types: map[kind]string{
			kindText: "TEXT",
			kindInt:  "INTEGER",
			kindReal: "REAL",
			kindBool: "INTEGER",
			kindJSON: "TEXT",
			kindTime: "TEXT",
		},
		blob: "BLOB",
	},
	DialectPostgres: {
		name:   DialectPostgres,
		driver: "postgres",
		types: map[kind]string{
			kindText: "TEXT",
			kindInt:  "BIGINT",
			kindReal: "DOUBLE PRECISION",
			kindBool: "BOOLEAN",
			kindJSON: "JSONB",
			kindTime: "TIMESTAMPTZ",
		},
		blob: "BYTEA",
	},
}

func dialectFor(name string) (dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return dialect{}, fmt.Errorf("unknown sql dialect %q", name)
	}
	return d, nil
}

func (d dialect) columnType(k kind) string {
	return d.types[k]
}

// rebind rewrites ? placeholders for the dialect. Queries are built with ?
// and never contain literal question marks.
func (d dialect) rebind(query string) string {
	if d.name != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
