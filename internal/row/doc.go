// Package row provides the row model shared by every rowsync component.
//
// A Row is an ordered list of named fields. Order is the column order the
// database driver returned, so a row logged or compared twice always
// renders the same way.
//
// This package imports nothing internal. Every other internal package may
// import row; row must stay the foundational layer.
//
// Key design constraints:
//   - Rows are read-only once scanned; use Clone before mutating.
//   - Text columns are surfaced as string, never []byte.
//   - Canonical JSON (MarshalCanonical) is the only encoding used in logs
//     and golden traces.
package row
