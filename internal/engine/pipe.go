package engine

import (
	"context"
	"errors"
	"io"

	"github.com/roach88/rowsync/internal/row"
)

// RowReader is the readable end of a pass: a finite, one-shot row stream
// that returns io.EOF when exhausted.
type RowReader interface {
	Next() (row.Row, error)
}

// RowWriter is the writable end of a pass.
type RowWriter interface {
	Write(ctx context.Context, r row.Row) error
}

// WriterFunc adapts a function to RowWriter.
type WriterFunc func(ctx context.Context, r row.Row) error

// Write calls f.
func (f WriterFunc) Write(ctx context.Context, r row.Row) error {
	return f(ctx, r)
}

// Pipe moves rows from r to w until r is exhausted or either end fails.
//
// Rows are handed over strictly one at a time: the next row is not read
// until the previous Write has returned. Pipe returns the number of rows
// written and the first error; io.EOF from r is a clean finish, not an
// error.
func Pipe(ctx context.Context, r RowReader, w RowWriter) (int, error) {
	n := 0
	for {
		next, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := w.Write(ctx, next); err != nil {
			return n, err
		}
		n++
	}
}
