// Package job wires a loaded config into a runnable sync engine.
//
// A Job owns every database handle it opens: the source, the destination,
// and the cursor store when it does not share the source database.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/rowsync/internal/config"
	"github.com/roach88/rowsync/internal/cursor"
	"github.com/roach88/rowsync/internal/engine"
	"github.com/roach88/rowsync/internal/mapping"
	"github.com/roach88/rowsync/internal/reconcile"
	"github.com/roach88/rowsync/internal/source"
	"github.com/roach88/rowsync/internal/store"
)

// Job is an opened sync job.
type Job struct {
	cfg config.Job

	source   *store.Store
	dest     *store.Store
	cursorDB *store.Store // nil when the cursor lives in the source database
	badger   *cursor.BadgerStore

	cursors cursor.Store
	mapping *mapping.Mapping
	reader  *source.Source
	engine  *engine.Engine
	logger  *slog.Logger
}

type options struct {
	logger     *slog.Logger
	engineOpts []engine.EngineOption
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger shared by the engine and reconciler.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithEngineOptions passes extra options to the engine.
func WithEngineOptions(opts ...engine.EngineOption) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

// Open connects to every database named by cfg and builds the engine.
// cfg is copied; later changes to it do not affect the job.
func Open(ctx context.Context, cfg *config.Job, opts ...Option) (_ *Job, err error) {
	if cfg == nil {
		return nil, errors.New("open job: nil config")
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	j := &Job{cfg: *cfg, logger: o.logger}
	j.cfg.Mapping = slices.Clone(cfg.Mapping)
	defer func() {
		if err != nil {
			j.Close()
		}
	}()

	if j.source, err = store.Open(ctx, j.cfg.SourceOptions()); err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	if j.dest, err = store.Open(ctx, j.cfg.DestinationOptions()); err != nil {
		return nil, fmt.Errorf("open destination: %w", err)
	}
	if err = j.openCursors(ctx); err != nil {
		return nil, err
	}
	if err = j.detectPrimaryKeys(ctx); err != nil {
		return nil, err
	}

	if j.mapping, err = mapping.New(j.cfg.Mapping); err != nil {
		return nil, err
	}
	if j.reader, err = source.New(j.source, j.source.Dialect(), j.cfg.SourceConfig()); err != nil {
		return nil, err
	}
	rec, err := reconcile.New(j.dest, j.dest.Dialect(),
		reconcile.Target{Table: j.cfg.Destination.Table, PrimaryKey: j.cfg.Destination.PrimaryKey},
		j.mapping,
		reconcile.WithLogger(o.logger.With("job", j.cfg.Name)),
	)
	if err != nil {
		return nil, err
	}

	engineOpts := append([]engine.EngineOption{engine.WithLogger(o.logger.With("job", j.cfg.Name))}, o.engineOpts...)
	j.engine = engine.New(j.cursors, j.reader, rec, engineOpts...)
	return j, nil
}

func (j *Job) openCursors(ctx context.Context) error {
	if j.cfg.Cursor.Backend == config.BackendBadger {
		b, err := cursor.OpenBadger(j.cfg.Cursor.Path)
		if err != nil {
			return err
		}
		j.badger = b
		j.cursors = b
		return nil
	}

	db := j.source
	if !j.cfg.CursorSharesSource() {
		var err error
		if j.cursorDB, err = store.Open(ctx, j.cfg.CursorOptions()); err != nil {
			return fmt.Errorf("open cursor database: %w", err)
		}
		db = j.cursorDB
	}
	s, err := cursor.NewSQLStore(db, db.Dialect(), j.cfg.CursorSQLConfig())
	if err != nil {
		return err
	}
	j.cursors = s
	return nil
}

// detectPrimaryKeys fills primary keys the config leaves out from the
// live table columns.
func (j *Job) detectPrimaryKeys(ctx context.Context) error {
	if j.cfg.Source.PrimaryKey == "" {
		pk, err := j.source.DetectPrimaryKey(ctx, j.cfg.Source.Table)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		j.logger.Debug("detected primary key", "table", j.cfg.Source.Table, "column", pk)
		j.cfg.Source.PrimaryKey = pk
	}
	if j.cfg.Destination.PrimaryKey == "" {
		pk, err := j.dest.DetectPrimaryKey(ctx, j.cfg.Destination.Table)
		if err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		j.logger.Debug("detected primary key", "table", j.cfg.Destination.Table, "column", pk)
		j.cfg.Destination.PrimaryKey = pk
	}
	return nil
}

// Close releases every handle the job opened.
func (j *Job) Close() error {
	var errs []error
	if j.badger != nil {
		errs = append(errs, j.badger.Close())
	}
	for _, s := range []*store.Store{j.cursorDB, j.dest, j.source} {
		if s != nil {
			errs = append(errs, s.Close())
		}
	}
	return errors.Join(errs...)
}

// Name returns the job name.
func (j *Job) Name() string { return j.cfg.Name }

// Config returns a copy of the job's config.
func (j *Job) Config() config.Job {
	c := j.cfg
	c.Mapping = slices.Clone(j.cfg.Mapping)
	return c
}

// Engine returns the job's engine.
func (j *Job) Engine() *engine.Engine { return j.engine }

// Source returns the job's row source.
func (j *Job) Source() *source.Source { return j.reader }

// SourceDB returns the source database handle.
func (j *Job) SourceDB() *store.Store { return j.source }

// DestinationDB returns the destination database handle.
func (j *Job) DestinationDB() *store.Store { return j.dest }

// Cursors returns the job's watermark store.
func (j *Job) Cursors() cursor.Store { return j.cursors }

// Run executes one pass and, when commit is set and the pass finished,
// advances the watermark.
//
// The returned pass is never nil. A commit failure leaves the pass in
// state Finished with Committed unset and returns the commit error.
func (j *Job) Run(ctx context.Context, commit bool) (*engine.Pass, error) {
	p, err := j.engine.Run(ctx)
	if err != nil || !commit {
		return p, err
	}
	if _, err := j.engine.Commit(ctx, p); err != nil {
		return p, err
	}
	return p, nil
}

// EnsureCursorTable creates the SQL cursor table if it is missing.
// It is a no-op for the badger backend.
func (j *Job) EnsureCursorTable(ctx context.Context) error {
	if j.cfg.Cursor.Backend == config.BackendBadger {
		return nil
	}
	db := j.source
	if j.cursorDB != nil {
		db = j.cursorDB
	}
	return db.EnsureCursorTable(ctx, j.cfg.CursorTable())
}

// CheckSchema compares the mapping and key columns against the live
// source and destination tables.
func (j *Job) CheckSchema(ctx context.Context) error {
	var errs []error

	srcCols, err := j.source.Columns(ctx, j.cfg.Source.Table)
	if err != nil {
		return fmt.Errorf("source table: %w", err)
	}
	if err := j.mapping.Check(srcCols); err != nil {
		errs = append(errs, err)
	}
	for _, col := range []string{j.cfg.Source.PrimaryKey, j.cfg.Source.LastUpdated} {
		if !slices.Contains(srcCols, col) {
			errs = append(errs, fmt.Errorf("source table %s has no column %q", j.cfg.Source.Table, col))
		}
	}

	destCols, err := j.dest.Columns(ctx, j.cfg.Destination.Table)
	if err != nil {
		return fmt.Errorf("destination table: %w", err)
	}
	if err := j.mapping.CheckDest(destCols); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains(destCols, j.cfg.Destination.PrimaryKey) {
		errs = append(errs, fmt.Errorf("destination table %s has no column %q", j.cfg.Destination.Table, j.cfg.Destination.PrimaryKey))
	}
	return errors.Join(errs...)
}
