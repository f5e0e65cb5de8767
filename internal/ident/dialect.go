package ident

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect identifies the SQL flavour of a database handle.
// Its value is the database/sql driver name.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "pgx"
	MySQL    Dialect = "mysql"
)

// ParseDialect maps a driver name (or common alias) to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	default:
		return "", fmt.Errorf("unsupported driver %q: must be one of sqlite3, pgx, mysql", driver)
	}
}

// Driver returns the database/sql driver name.
func (d Dialect) Driver() string {
	return string(d)
}

// Quote safely quotes a single identifier part.
func (d Dialect) Quote(part string) string {
	if d == MySQL {
		return "`" + strings.ReplaceAll(part, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
}

// QuoteQualified quotes every part of a possibly schema-qualified name.
func (d Dialect) QuoteQualified(name string) string {
	parts := SplitQualified(name)
	if len(parts) == 0 {
		return ""
	}
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = d.Quote(p)
	}
	return strings.Join(quoted, ".")
}

// Placeholder returns the n-th (1-based) bind parameter marker.
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Rebind rewrites "?" markers for dialects that number their parameters.
// Question marks inside single-quoted literals, double-quoted identifiers
// and backtick-quoted identifiers are left alone.
func (d Dialect) Rebind(query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	var quote rune
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == '?':
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SupportsReturning reports whether INSERT ... RETURNING is available.
func (d Dialect) SupportsReturning() bool {
	return d == SQLite || d == Postgres
}
