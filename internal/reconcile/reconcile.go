// Package reconcile writes one source row to the destination table.
//
// For each row the natural key is looked up in the destination. No match
// inserts a new row; exactly one match updates every mapped field of that
// row by primary key. More than one match is refused with
// ErrAmbiguousMatch and nothing is written.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/rowsync/internal/ident"
	"github.com/roach88/rowsync/internal/mapping"
	"github.com/roach88/rowsync/internal/queryir"
	"github.com/roach88/rowsync/internal/querysql"
	"github.com/roach88/rowsync/internal/row"
	"github.com/roach88/rowsync/internal/store"
)

// ErrAmbiguousMatch is returned when a natural key matches more than one
// destination row.
var ErrAmbiguousMatch = errors.New("natural key matches more than one destination row")

// Target names the destination table and its primary key column.
type Target struct {
	Table      string
	PrimaryKey string
}

// Outcome records which write a reconcile performed.
type Outcome int

const (
	Inserted Outcome = iota + 1
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// Result identifies the destination row a reconcile wrote.
type Result struct {
	PrimaryKey any
	Outcome    Outcome
}

// Reconciler applies source rows to one destination table.
// It holds no per-row state and may be reused across passes.
type Reconciler struct {
	q        store.Querier
	compiler *querysql.Compiler
	target   Target
	mapping  *mapping.Mapping
	logger   *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger for write events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// New returns a Reconciler writing to target through q.
func New(q store.Querier, dialect ident.Dialect, target Target, m *mapping.Mapping, opts ...Option) (*Reconciler, error) {
	if m == nil {
		return nil, errors.New("reconciler: nil mapping")
	}
	if err := ident.Validate(target.Table); err != nil {
		return nil, fmt.Errorf("reconciler table: %w", err)
	}
	if err := ident.Validate(target.PrimaryKey); err != nil {
		return nil, fmt.Errorf("reconciler primary key: %w", err)
	}

	r := &Reconciler{
		q:        q,
		compiler: querysql.New(dialect),
		target:   target,
		mapping:  m,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Target returns the destination table and key.
func (r *Reconciler) Target() Target { return r.target }

// Reconcile writes src to the destination and returns the primary key of
// the written row. At most one write statement is issued.
//
// Mapping errors are returned before any statement runs. Store errors are
// wrapped; the driver error stays reachable with errors.Is/As.
func (r *Reconciler) Reconcile(ctx context.Context, src row.Row) (Result, error) {
	key, err := r.mapping.NaturalKeyOf(src)
	if err != nil {
		return Result{}, err
	}
	fields, err := r.mapping.Project(src)
	if err != nil {
		return Result{}, err
	}

	pk, found, err := r.lookup(ctx, key)
	if err != nil {
		return Result{}, err
	}

	if found {
		if err := r.update(ctx, pk, fields); err != nil {
			return Result{}, err
		}
		r.logger.Info("row updated",
			"table", r.target.Table,
			"pk", pk,
			"source", row.CanonicalString(src))
		return Result{PrimaryKey: pk, Outcome: Updated}, nil
	}

	pk, err = r.insert(ctx, fields)
	if err != nil {
		return Result{}, err
	}
	r.logger.Info("row inserted",
		"table", r.target.Table,
		"pk", pk,
		"source", row.CanonicalString(src))
	return Result{PrimaryKey: pk, Outcome: Inserted}, nil
}

// lookup finds the primary key of the destination row matching key.
func (r *Reconciler) lookup(ctx context.Context, key row.Row) (any, bool, error) {
	query, params, err := r.compiler.Compile(queryir.Select{
		From:    r.target.Table,
		Columns: []string{r.target.PrimaryKey},
		Filter:  queryir.AllEqual(key.Names(), key.Values()),
		Limit:   2,
	})
	if err != nil {
		return nil, false, fmt.Errorf("compile lookup: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s by %s: %w", r.target.Table, key, err)
	}
	matches, err := row.ScanAll(rows)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s by %s: %w", r.target.Table, key, err)
	}

	switch len(matches) {
	case 0:
		return nil, false, nil
	case 1:
		return matches[0][0].Value, true, nil
	default:
		return nil, false, fmt.Errorf("%w: %s in %s", ErrAmbiguousMatch, key, r.target.Table)
	}
}

func (r *Reconciler) update(ctx context.Context, pk any, fields row.Row) error {
	set := make([]queryir.Assignment, len(fields))
	for i, f := range fields {
		set[i] = queryir.Assignment{Column: f.Name, Value: f.Value}
	}

	query, params, err := r.compiler.Compile(queryir.Update{
		Table:  r.target.Table,
		Set:    set,
		Filter: queryir.Equals{Column: r.target.PrimaryKey, Value: pk},
	})
	if err != nil {
		return fmt.Errorf("compile update: %w", err)
	}

	if _, err := r.q.ExecContext(ctx, query, params...); err != nil {
		return fmt.Errorf("update %s where %s = %v: %w", r.target.Table, r.target.PrimaryKey, pk, err)
	}
	return nil
}

// insert creates the destination row and returns its primary key.
// Dialects with RETURNING read the key back in the same statement; MySQL
// uses the mapped key value when present, else LAST_INSERT_ID().
func (r *Reconciler) insert(ctx context.Context, fields row.Row) (any, error) {
	stmt := queryir.Insert{
		Table:   r.target.Table,
		Columns: fields.Names(),
		Values:  fields.Values(),
	}
	if r.compiler.Dialect.SupportsReturning() {
		stmt.Returning = r.target.PrimaryKey
	}

	query, params, err := r.compiler.Compile(stmt)
	if err != nil {
		return nil, fmt.Errorf("compile insert: %w", err)
	}

	if stmt.Returning != "" {
		var pk any
		if err := r.q.QueryRowContext(ctx, query, params...).Scan(&pk); err != nil {
			return nil, fmt.Errorf("insert into %s: %w", r.target.Table, err)
		}
		if b, ok := pk.([]byte); ok {
			pk = string(b)
		}
		return pk, nil
	}

	res, err := r.q.ExecContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", r.target.Table, err)
	}
	if pk, ok := fields.Get(r.target.PrimaryKey); ok {
		return pk, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert into %s: read generated key: %w", r.target.Table, err)
	}
	return id, nil
}
