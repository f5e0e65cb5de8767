// Package querysql compiles queryir statements to parameterized SQL.
package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/rowsync/internal/ident"
	"github.com/roach88/rowsync/internal/queryir"
)

// Compiler compiles statement IR to SQL text for one dialect.
//
// CRITICAL: All values are parameterized (never interpolated).
// CRITICAL: All identifiers are quoted for the target dialect.
type Compiler struct {
	Dialect ident.Dialect
}

// New creates a Compiler for the given dialect.
func New(d ident.Dialect) *Compiler {
	return &Compiler{Dialect: d}
}

// Compile validates and converts a statement to SQL.
// Returns (sql, params, error).
func (c *Compiler) Compile(stmt queryir.Statement) (string, []any, error) {
	if err := queryir.Validate(stmt); err != nil {
		return "", nil, err
	}
	if ins, ok := asInsert(stmt); ok && ins.Returning != "" && !c.Dialect.SupportsReturning() {
		return "", nil, fmt.Errorf("%s does not support INSERT ... RETURNING", c.Dialect)
	}

	b := &builder{dialect: c.Dialect}
	switch s := stmt.(type) {
	case queryir.Select:
		b.selectStmt(s)
	case *queryir.Select:
		b.selectStmt(*s)
	case queryir.Update:
		b.updateStmt(s)
	case *queryir.Update:
		b.updateStmt(*s)
	case queryir.Insert:
		b.insertStmt(s)
	case *queryir.Insert:
		b.insertStmt(*s)
	default:
		return "", nil, fmt.Errorf("unsupported statement type: %T", stmt)
	}
	return b.sql.String(), b.params, nil
}

// builder accumulates SQL text and bind parameters for one statement.
// Placeholders are numbered in the order parameters are appended.
type builder struct {
	dialect ident.Dialect
	sql     strings.Builder
	params  []any
}

func (b *builder) bind(v any) string {
	b.params = append(b.params, v)
	return b.dialect.Placeholder(len(b.params))
}

func (b *builder) quoteList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = b.dialect.Quote(c)
	}
	return strings.Join(quoted, ", ")
}

func (b *builder) selectStmt(s queryir.Select) {
	b.sql.WriteString("SELECT ")
	b.sql.WriteString(b.quoteList(s.Columns))
	b.sql.WriteString(" FROM ")
	b.sql.WriteString(b.dialect.QuoteQualified(s.From))
	if s.Filter != nil {
		b.sql.WriteString(" WHERE ")
		b.predicate(s.Filter)
	}
	if s.Limit > 0 {
		b.sql.WriteString(" LIMIT ")
		b.sql.WriteString(strconv.Itoa(s.Limit))
	}
}

func (b *builder) updateStmt(u queryir.Update) {
	b.sql.WriteString("UPDATE ")
	b.sql.WriteString(b.dialect.QuoteQualified(u.Table))
	b.sql.WriteString(" SET ")
	for i, a := range u.Set {
		if i > 0 {
			b.sql.WriteString(", ")
		}
		b.sql.WriteString(b.dialect.Quote(a.Column))
		b.sql.WriteString(" = ")
		b.sql.WriteString(b.bind(a.Value))
	}
	b.sql.WriteString(" WHERE ")
	b.predicate(u.Filter)
}

func (b *builder) insertStmt(i queryir.Insert) {
	b.sql.WriteString("INSERT INTO ")
	b.sql.WriteString(b.dialect.QuoteQualified(i.Table))
	b.sql.WriteString(" (")
	b.sql.WriteString(b.quoteList(i.Columns))
	b.sql.WriteString(") VALUES (")
	for n, v := range i.Values {
		if n > 0 {
			b.sql.WriteString(", ")
		}
		b.sql.WriteString(b.bind(v))
	}
	b.sql.WriteString(")")
	if i.Returning != "" {
		b.sql.WriteString(" RETURNING ")
		b.sql.WriteString(b.dialect.Quote(i.Returning))
	}
}

// predicate writes a WHERE fragment. Validate has already rejected
// unknown predicate types and empty conjunctions.
func (b *builder) predicate(p queryir.Predicate) {
	switch pred := p.(type) {
	case queryir.Equals:
		b.equals(pred)
	case *queryir.Equals:
		b.equals(*pred)
	case queryir.And:
		b.and(pred)
	case *queryir.And:
		b.and(*pred)
	}
}

// equals compiles "col = ?"; a nil value compiles to "col IS NULL" because
// NULL never compares equal.
func (b *builder) equals(eq queryir.Equals) {
	b.sql.WriteString(b.dialect.Quote(eq.Column))
	if eq.Value == nil {
		b.sql.WriteString(" IS NULL")
		return
	}
	b.sql.WriteString(" = ")
	b.sql.WriteString(b.bind(eq.Value))
}

func (b *builder) and(a queryir.And) {
	for i, p := range a.Predicates {
		if i > 0 {
			b.sql.WriteString(" AND ")
		}
		if isAnd(p) {
			b.sql.WriteString("(")
			b.predicate(p)
			b.sql.WriteString(")")
			continue
		}
		b.predicate(p)
	}
}

func asInsert(stmt queryir.Statement) (queryir.Insert, bool) {
	switch s := stmt.(type) {
	case queryir.Insert:
		return s, true
	case *queryir.Insert:
		return *s, true
	}
	return queryir.Insert{}, false
}

func isAnd(p queryir.Predicate) bool {
	switch p.(type) {
	case queryir.And, *queryir.And:
		return true
	}
	return false
}
