// Package source reads rows changed since a watermark from the source table.
package source

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/roach88/rowsync/internal/cursor"
	"github.com/roach88/rowsync/internal/ident"
	"github.com/roach88/rowsync/internal/row"
	"github.com/roach88/rowsync/internal/store"
	"github.com/roach88/rowsync/internal/tmpl"
)

// DefaultSelectTemplate selects rows strictly newer than the bound
// watermark, oldest first.
const DefaultSelectTemplate = "select * from {{table}} where {{lastUpdated}} > ? order by {{lastUpdated}} asc"

// sqliteTimeSelectTemplate replaces DefaultSelectTemplate on SQLite when
// the bound watermark is a time. SQLite stores timestamps as text in
// whatever layout the writer chose, and go-sqlite3 binds times in its own
// layout, so both sides are normalized before comparing.
const sqliteTimeSelectTemplate = "select * from {{table}}" +
	" where strftime('%Y-%m-%d %H:%M:%f', {{lastUpdated}}) > ?" +
	" order by strftime('%Y-%m-%d %H:%M:%f', {{lastUpdated}}) asc"

// sqliteTimeLayout matches strftime('%Y-%m-%d %H:%M:%f') in UTC.
const sqliteTimeLayout = "2006-01-02 15:04:05.000"

// DefaultMinLastUpdated is the floor used when no watermark exists.
var DefaultMinLastUpdated = cursor.New(time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC))

// Config describes the source table.
type Config struct {
	Table       string
	PrimaryKey  string
	LastUpdated string

	// SelectTemplate receives {{table}}, {{lastUpdated}} and {{primaryKey}}
	// as quoted identifiers and must bind exactly one parameter, the
	// watermark. Empty selects DefaultSelectTemplate.
	SelectTemplate string

	// MinLastUpdated is bound when no watermark has been recorded.
	// Zero selects DefaultMinLastUpdated.
	MinLastUpdated cursor.Watermark
}

// Source reads changed rows from one table.
type Source struct {
	q     store.Querier
	cfg   Config
	query string

	// timeQuery is set on SQLite with the default template and is used
	// whenever the bound watermark is a time.
	timeQuery string
}

// New renders the select template and returns a Source bound to q.
func New(q store.Querier, dialect ident.Dialect, cfg Config) (*Source, error) {
	for _, f := range []struct{ name, value string }{
		{"table", cfg.Table},
		{"primary_key", cfg.PrimaryKey},
		{"last_updated", cfg.LastUpdated},
	} {
		if err := ident.Validate(f.value); err != nil {
			return nil, fmt.Errorf("source %s: %w", f.name, err)
		}
	}
	if cfg.SelectTemplate == "" {
		cfg.SelectTemplate = DefaultSelectTemplate
	}
	if cfg.MinLastUpdated.IsZero() {
		cfg.MinLastUpdated = DefaultMinLastUpdated
	}

	names := map[string]string{
		"table":       dialect.QuoteQualified(cfg.Table),
		"lastUpdated": dialect.Quote(cfg.LastUpdated),
		"primaryKey":  dialect.Quote(cfg.PrimaryKey),
	}
	query, err := tmpl.Render(cfg.SelectTemplate, names)
	if err != nil {
		return nil, fmt.Errorf("source select template: %w", err)
	}
	s := &Source{q: q, cfg: cfg, query: dialect.Rebind(query)}

	if dialect == ident.SQLite && cfg.SelectTemplate == DefaultSelectTemplate {
		timeQuery, err := tmpl.Render(sqliteTimeSelectTemplate, names)
		if err != nil {
			return nil, fmt.Errorf("source select template: %w", err)
		}
		s.timeQuery = dialect.Rebind(timeQuery)
	}
	return s, nil
}

// Table returns the source table name, which keys the cursor.
func (s *Source) Table() string { return s.cfg.Table }

// LastUpdatedField returns the column that carries the change timestamp.
func (s *Source) LastUpdatedField() string { return s.cfg.LastUpdated }

// Query returns the rendered select statement.
func (s *Source) Query() string { return s.query }

// FetchSince returns a stream over rows whose last-updated value is
// strictly greater than wm, in ascending last-updated order. When ok is
// false the configured floor is used instead, and rows equal to the floor
// are included.
//
// The result set is read completely before FetchSince returns, so a query
// or scan error is reported here and the source connection is released
// before the first row is reconciled.
func (s *Source) FetchSince(ctx context.Context, wm cursor.Watermark, ok bool) (*Stream, error) {
	step := time.Nanosecond
	if s.timeQuery != "" {
		step = time.Millisecond
	}
	bound := wm
	if !ok || wm.IsZero() {
		bound = justBelow(s.cfg.MinLastUpdated, step)
	}

	query, arg := s.query, bound.Value()
	if t, isTime := arg.(time.Time); isTime && s.timeQuery != "" {
		query, arg = s.timeQuery, t.UTC().Round(time.Millisecond).Format(sqliteTimeLayout)
	}

	rows, err := s.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("fetch %s since %s: %w", s.cfg.Table, bound, err)
	}
	all, err := row.ScanAll(rows)
	if err != nil {
		return nil, fmt.Errorf("fetch %s since %s: %w", s.cfg.Table, bound, err)
	}
	return NewStream(all), nil
}

// justBelow returns the greatest value strictly less than floor where one
// exists, so a strict "greater than" template still includes the floor.
// Times step back by step, the comparison's precision. Strings have no
// predecessor and are returned unchanged.
func justBelow(floor cursor.Watermark, step time.Duration) cursor.Watermark {
	switch v := floor.Value().(type) {
	case time.Time:
		return cursor.New(v.Add(-step))
	case int64:
		if v == math.MinInt64 {
			return floor
		}
		return cursor.New(v - 1)
	case float64:
		return cursor.New(math.Nextafter(v, math.Inf(-1)))
	}
	return floor
}

// Stream yields source rows one at a time. It is single-pass and cannot be
// restarted: each row is produced once and released after it is returned.
type Stream struct {
	rows []row.Row
	next int
}

// NewStream wraps already-read rows.
func NewStream(rows []row.Row) *Stream {
	return &Stream{rows: rows}
}

// Len returns the number of rows not yet consumed.
func (s *Stream) Len() int { return len(s.rows) - s.next }

// Next returns the next row, or io.EOF once the stream is exhausted.
// Calling Next after io.EOF keeps returning io.EOF.
func (s *Stream) Next() (row.Row, error) {
	if s.next >= len(s.rows) {
		s.rows = nil
		s.next = 0
		return nil, io.EOF
	}
	r := s.rows[s.next]
	s.rows[s.next] = nil
	s.next++
	return r, nil
}
