package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/rowsync/internal/cursor"
	"github.com/roach88/rowsync/internal/reconcile"
	"github.com/roach88/rowsync/internal/row"
	"github.com/roach88/rowsync/internal/source"
)

// Source is the row source a pass reads from.
// Implemented by *source.Source.
type Source interface {
	Table() string
	LastUpdatedField() string
	FetchSince(ctx context.Context, wm cursor.Watermark, ok bool) (*source.Stream, error)
}

// Reconciler writes one source row to the destination.
// Implemented by *reconcile.Reconciler.
type Reconciler interface {
	Reconcile(ctx context.Context, src row.Row) (reconcile.Result, error)
}

// RowHook is called after each successfully reconciled row.
type RowHook func(p *Pass, index int, src row.Row, res reconcile.Result)

// Engine runs passes for one source table into one destination table.
//
// Thread-safety model:
//   - Run() and Commit() may be called from any goroutine, but only one
//     of them executes at a time; an overlapping call returns
//     ErrPassInProgress
//   - Pass values returned by Run are owned by the caller
type Engine struct {
	cursors    cursor.Store
	source     Source
	reconciler Reconciler
	ids        IDGenerator
	clock      Clock
	logger     *slog.Logger
	hook       RowHook

	busy atomic.Bool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithIDGenerator sets the pass ID generator.
//
// Default: UUIDv7Generator
// Use NewFixedGenerator("pass-1") for golden traces.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithClock sets the clock used for pass start and finish times.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger for pass events.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithRowHook registers a callback invoked after every written row.
func WithRowHook(h RowHook) EngineOption {
	return func(e *Engine) {
		e.hook = h
	}
}

// New creates an Engine from its collaborators.
func New(cursors cursor.Store, src Source, rec Reconciler, opts ...EngineOption) *Engine {
	e := &Engine{
		cursors:    cursors,
		source:     src,
		reconciler: rec,
		ids:        UUIDv7Generator{},
		clock:      SystemClock{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one pass and returns its record.
//
// The returned Pass is never nil. On failure it is in state Failed, its
// Err is set, and the same error is returned; rows reconciled before the
// failure remain written. Run does not advance the watermark.
func (e *Engine) Run(ctx context.Context) (*Pass, error) {
	p := &Pass{
		ID:        e.ids.Generate(),
		Table:     e.source.Table(),
		State:     Idle,
		StartedAt: e.clock.Now(),
	}
	if !e.busy.CompareAndSwap(false, true) {
		return e.fail(p, ErrPassInProgress)
	}
	defer e.busy.Store(false)

	log := e.logger.With("pass", p.ID, "table", p.Table)

	p.State = Reading
	wm, ok, err := e.cursors.Get(ctx, p.Table)
	if err != nil {
		return e.fail(p, fmt.Errorf("read watermark: %w", err))
	}
	p.Start, p.HadWatermark = wm, ok
	log.Info("pass starting", "watermark", wm, "had_watermark", ok)

	stream, err := e.source.FetchSince(ctx, wm, ok)
	if err != nil {
		return e.fail(p, err)
	}
	log.Debug("source read", "rows", stream.Len())

	p.State = Reconciling
	w := WriterFunc(func(ctx context.Context, src row.Row) error {
		idx := p.Rows
		res, err := e.reconciler.Reconcile(ctx, src)
		if err != nil {
			return &PassError{PassID: p.ID, Table: p.Table, RowIndex: idx, Row: src, Err: err}
		}
		p.record(src, res)
		log.Debug("row reconciled", "index", idx, "pk", res.PrimaryKey, "outcome", res.Outcome)
		if e.hook != nil {
			e.hook(p, idx, src, res)
		}
		return nil
	})
	if _, err := Pipe(ctx, stream, w); err != nil {
		return e.fail(p, err)
	}

	p.State = Finished
	p.FinishedAt = e.clock.Now()
	log.Info("pass finished",
		"rows", p.Rows,
		"inserted", p.Inserted,
		"updated", p.Updated,
		"duration", p.Duration())
	return p, nil
}

func (e *Engine) fail(p *Pass, err error) (*Pass, error) {
	p.State = Failed
	p.Err = err
	p.FinishedAt = e.clock.Now()
	e.logger.Error("pass failed",
		"pass", p.ID,
		"table", p.Table,
		"rows", p.Rows,
		"error", err)
	return p, err
}

// NextWatermark returns the watermark a finished pass would commit: the
// last written row's last-updated value. ok is false when the pass wrote
// no rows.
func (e *Engine) NextWatermark(p *Pass) (wm cursor.Watermark, ok bool, err error) {
	if p == nil || p.State != Finished {
		return cursor.Watermark{}, false, ErrPassNotFinished
	}
	if p.LastWritten == nil {
		return cursor.Watermark{}, false, nil
	}
	field := e.source.LastUpdatedField()
	v, found := p.LastWritten.Get(field)
	if !found || v == nil {
		return cursor.Watermark{}, false, fmt.Errorf("last written row has no %q value", field)
	}
	return cursor.New(v), true, nil
}

// Commit advances the table's watermark to the last-updated value of the
// pass's last written row.
//
// Only finished passes can be committed. A pass that wrote nothing leaves
// the watermark as it was and returns the start watermark. Committing a
// value older than the start watermark is refused; an equal value is
// stored again.
func (e *Engine) Commit(ctx context.Context, p *Pass) (cursor.Watermark, error) {
	next, ok, err := e.NextWatermark(p)
	if err != nil {
		return cursor.Watermark{}, err
	}
	if !ok {
		return p.Start, nil
	}

	if p.HadWatermark {
		c, err := next.Compare(p.Start)
		if err != nil {
			return cursor.Watermark{}, fmt.Errorf("compare watermarks: %w", err)
		}
		if c < 0 {
			return cursor.Watermark{}, fmt.Errorf("%w: %s < %s", ErrWatermarkRegression, next, p.Start)
		}
	}

	if !e.busy.CompareAndSwap(false, true) {
		return cursor.Watermark{}, ErrPassInProgress
	}
	defer e.busy.Store(false)

	if err := e.cursors.Set(ctx, p.Table, next); err != nil {
		return cursor.Watermark{}, fmt.Errorf("commit watermark: %w", err)
	}
	p.Committed = next
	e.logger.Info("watermark committed", "pass", p.ID, "table", p.Table, "watermark", next)
	return next, nil
}

// SetWatermark overwrites the table's watermark outside of a pass.
// Used by operators to rewind or skip ahead.
func (e *Engine) SetWatermark(ctx context.Context, wm cursor.Watermark) error {
	if wm.IsZero() {
		return errors.New("set watermark: empty value")
	}
	if !e.busy.CompareAndSwap(false, true) {
		return ErrPassInProgress
	}
	defer e.busy.Store(false)
	return e.cursors.Set(ctx, e.source.Table(), wm)
}

// Watermark returns the table's current watermark.
func (e *Engine) Watermark(ctx context.Context) (cursor.Watermark, bool, error) {
	return e.cursors.Get(ctx, e.source.Table())
}
