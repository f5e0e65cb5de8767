package cursor

import "context"

// Store reads and writes one watermark per source table.
//
// Get reports ok=false when no watermark has been recorded. Set is durable
// once it returns nil: a later Get, from this or another process, sees it.
type Store interface {
	Get(ctx context.Context, table string) (wm Watermark, ok bool, err error)
	Set(ctx context.Context, table string, wm Watermark) error
}
