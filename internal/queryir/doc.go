// Package queryir provides the statement intermediate representation used
// by the reconciler.
//
// The IR is the boundary between reconciliation logic and SQL text. The
// reconciler describes WHAT it wants (find the row whose natural key is K,
// update these columns, insert this row) and the querysql backend decides
// HOW that is spelled for a given dialect.
//
//	[reconcile] → [Statement IR] → [querysql (sqlite3 | pgx | mysql)]
//
// STATEMENTS:
//   - Select(from, columns, filter, limit) - primary key lookup
//   - Update(table, set, filter) - overwrite mapped columns of one row
//   - Insert(table, columns, values, returning) - create one row
//
// PREDICATES:
//   - Equals: column = value (IS NULL when value is nil)
//   - And: conjunction of predicates
//
// There is no OR, no join and no subquery; the reconciler never needs them.
//
// SEALED INTERFACES:
//
// Statement and Predicate are sealed interfaces using the marker method
// pattern. Only types in this package implement them, so backend compilers
// can switch over them exhaustively.
//
// VALUES:
//
// Values are carried as driver values (any) and are always emitted as bind
// parameters. Identifiers are static configuration and are quoted by the
// backend.
package queryir
