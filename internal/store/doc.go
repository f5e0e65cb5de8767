// Package store opens the relational databases rowsync reads from and
// writes to.
//
// The store is deliberately thin: connection management, SQL execution and
// transactions belong to database/sql and its drivers. This package adds
//   - driver selection by name (sqlite3, pgx, mysql) bound to an ident.Dialect
//   - SQLite pragmas suited to a single-writer sync job
//   - the Querier interface every sync component is written against
//   - creation of the cursor table that holds per-table watermarks
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - MaxOpenConns=1: One writer, no SQLITE_BUSY between pooled connections
//
// Drivers registered: github.com/mattn/go-sqlite3,
// github.com/jackc/pgx/v5/stdlib and github.com/go-sql-driver/mysql.
package store
