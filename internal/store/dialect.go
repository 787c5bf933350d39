package store

import (
	"strconv"
	"strings"
)

// Dialect captures the differences between the SQL engines the comment
// store runs on.
type Dialect struct {
	Name            string
	DriverName      string
	appliedAtColumn string
	positional      bool
}

var (
	Postgres = Dialect{
		Name:            "postgres",
		DriverName:      "pgx",
		appliedAtColumn: "TIMESTAMPTZ NOT NULL DEFAULT NOW()",
	}
	SQLite = Dialect{
		Name:            "sqlite",
		DriverName:      "sqlite",
		appliedAtColumn: "TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP",
		positional:      true,
	}
)

// Rebind rewrites $N placeholders into the dialect's form. Queries in this
// package never carry '$' inside string literals.
func (d Dialect) Rebind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' {
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			if j > i+1 {
				if _, err := strconv.Atoi(query[i+1 : j]); err == nil {
					b.WriteByte('?')
					i = j - 1
					continue
				}
			}
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
