package sqlstore

import (
	"fmt"
	"strings"

	"github.com/poiesic/steamset/storage"
)

// Driver names accepted by Open.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// dialect captures the differences between PostgreSQL and SQLite that the
// queries in this package care about.
type dialect struct {
	name       string
	driver     string
	serial     string
	json       string
	timestamp  string
	vector     func(dimension int) string
	preamble   []string
	qmarkParam bool
}

var postgresDialect = dialect{
	name:      "postgres",
	driver:    DriverPostgres,
	serial:    "BIGSERIAL PRIMARY KEY",
	json:      "JSONB",
	timestamp: "TIMESTAMPTZ",
	vector:    func(dimension int) string { return fmt.Sprintf("vector(%d)", dimension) },
	preamble:  []string{"CREATE EXTENSION IF NOT EXISTS vector"},
}

var sqliteDialect = dialect{
	name:       "sqlite",
	driver:     DriverSQLite,
	serial:     "INTEGER PRIMARY KEY",
	json:       "TEXT",
	timestamp:  "TIMESTAMP",
	vector:     func(int) string { return "TEXT" },
	qmarkParam: true,
}

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(driver) {
	case "pgx", "postgres", "postgresql":
		return postgresDialect, nil
	case "sqlite", "sqlite3":
		return sqliteDialect, nil
	}
	return dialect{}, fmt.Errorf("%w: %q", storage.ErrUnsupportedDriver, driver)
}

// rebind rewrites $N placeholders to ?N for SQLite. Queries in this package
// never contain a literal '$' followed by a digit.
func (d dialect) rebind(query string) string {
	if !d.qmarkParam {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// placeholders returns "$from, $from+1, ..., $from+n-1".
func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ", ")
}
