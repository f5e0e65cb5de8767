package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/rowsync/internal/ident"
)

// Querier is the subset of *sql.DB and *sql.Tx the sync core needs.
// Components depend on this interface, never on a concrete handle.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Options selects a driver and data source.
type Options struct {
	// Driver is a database/sql driver name or alias: sqlite3, pgx, mysql.
	Driver string

	// DSN is the driver-specific data source name.
	// For sqlite3 this is a file path or ":memory:".
	DSN string
}

// Store is a database handle bound to its SQL dialect.
type Store struct {
	db      *sql.DB
	dialect ident.Dialect
}

var _ Querier = (*Store)(nil)

// Open connects to a database and verifies the connection.
//
// SQLite handles are configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - a single connection (SQLite supports one writer at a time)
//
// Connection failures are returned wrapped; the original driver error stays
// reachable with errors.Is/As. No retry is attempted.
func Open(ctx context.Context, opts Options) (*Store, error) {
	dialect, err := ident.ParseDialect(opts.Driver)
	if err != nil {
		return nil, err
	}
	if opts.DSN == "" {
		return nil, errors.New("open database: empty dsn")
	}

	db, err := sql.Open(dialect.Driver(), opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if dialect == ident.SQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragmas: %w", err)
		}
	}

	return &Store{db: db, dialect: dialect}, nil
}

// New wraps an already-open handle.
func New(db *sql.DB, dialect ident.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of this handle.
func (s *Store) Dialect() ident.Dialect {
	return s.dialect
}

// QueryContext executes a query that returns rows.
// Callers are responsible for closing the returned rows.
func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query expected to return at most one row.
func (s *Store) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// ExecContext executes a statement without returning rows.
func (s *Store) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

// Columns returns the column names of a table in declaration order.
func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	if err := ident.Validate(table); err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+s.dialect.QuoteQualified(table)+" WHERE 1 = 0")
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	return cols, nil
}

// DetectPrimaryKey guesses a table's primary key column from its columns.
// See ident.GuessPrimaryKey for the heuristics.
func (s *Store) DetectPrimaryKey(ctx context.Context, table string) (string, error) {
	cols, err := s.Columns(ctx, table)
	if err != nil {
		return "", err
	}
	pk := ident.GuessPrimaryKey(table, cols)
	if pk == "" {
		return "", fmt.Errorf("cannot detect primary key of %s: no id or <singular>_id column among %v", table, cols)
	}
	return pk, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
