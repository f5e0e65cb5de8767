// Package cursor persists the per-table watermark of an incremental sync.
//
// A watermark is the value of the source table's last-updated column on the
// last row that was successfully written to the destination. The next pass
// reads only rows strictly newer than it.
//
// Two backends implement Store:
//   - SQLStore keeps one row per synced table in a relational cursor table,
//     using configurable select/update/insert statement templates.
//   - BadgerStore keeps one key per synced table in an embedded Badger
//     database, msgpack-encoded.
//
// Both are keyed by the source table name.
package cursor
