// Package engine runs sync passes.
//
// A pass copies every source row changed since the table's watermark into
// the destination, one row at a time, through the Reconciler.
//
// ARCHITECTURE:
//
// Sequential Pipeline:
// A pass is a single goroutine pulling rows from the source stream and
// handing each to the reconciler. Row N+1 is not read until row N's
// reconcile has returned. This ensures:
// - Destination write history follows source order
// - A natural key seen twice in one pass ends with the later row's values
// - The last written row is always well defined
//
// Pass Lifecycle:
// 1. Idle: pass created, ID assigned
// 2. Reading: watermark read, source queried since watermark (or floor)
// 3. Reconciling: rows reconciled in ascending last-updated order
// 4. Finished: stream exhausted with no error
// 5. Failed: first error stops the pass; earlier writes stay committed
//
// The watermark is never advanced by Run. Commit is a separate call that
// derives the new watermark from the pass's last written row.
//
// CRITICAL PATTERNS:
//
// Passes are independent values. Nothing mutable is shared between two
// passes; the Engine itself only holds configuration and collaborators.
//
// Two passes over the same table pair must not overlap: both could see
// "no match" for the same key and insert twice. Engine rejects a second
// concurrent Run with ErrPassInProgress; callers running several
// processes must serialize passes themselves.
package engine
