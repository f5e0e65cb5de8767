package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rowsync/internal/cursor"
	"github.com/roach88/rowsync/internal/mapping"
	"github.com/roach88/rowsync/internal/reconcile"
	"github.com/roach88/rowsync/internal/row"
	"github.com/roach88/rowsync/internal/source"
	"github.com/roach88/rowsync/internal/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	dbs     testutil.SyncDBs
	clock   *testutil.DeterministicClock
	cursors *cursor.SQLStore
	source  *source.Source
	rec     *reconcile.Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dbs := testutil.NewSyncDBs(t)

	cs, err := cursor.NewSQLStore(dbs.Source, dbs.Source.Dialect(), cursor.DefaultSQLConfig())
	require.NoError(t, err)

	src, err := source.New(dbs.Source, dbs.Source.Dialect(), source.Config{
		Table:       "tbl1",
		PrimaryKey:  "id",
		LastUpdated: "lastUpdated",
	})
	require.NoError(t, err)

	m, err := mapping.New([]mapping.Entry{
		{Dest: "dasData", Src: "data_1", NaturalKey: true},
		{Dest: "dasData1", Src: "data_2"},
		{Dest: "dasData2", Src: "data_3"},
	})
	require.NoError(t, err)

	rec, err := reconcile.New(dbs.Dest, dbs.Dest.Dialect(), reconcile.Target{Table: "tbl2", PrimaryKey: "id"}, m,
		reconcile.WithLogger(discard))
	require.NoError(t, err)

	return &fixture{
		dbs:     dbs,
		clock:   testutil.NewDeterministicClock(),
		cursors: cs,
		source:  src,
		rec:     rec,
	}
}

func (f *fixture) engine(opts ...EngineOption) *Engine {
	opts = append([]EngineOption{WithLogger(discard), WithClock(testutil.NewDeterministicClock())}, opts...)
	return New(f.cursors, f.source, f.rec, opts...)
}

// failingReconciler fails on rows whose data_1 equals trigger.
type failingReconciler struct {
	Reconciler
	trigger string
	err     error
}

func (r failingReconciler) Reconcile(ctx context.Context, src row.Row) (reconcile.Result, error) {
	if v, _ := src.Get("data_1"); v == r.trigger {
		return reconcile.Result{}, r.err
	}
	return r.Reconciler.Reconcile(ctx, src)
}

func TestEngine_New(t *testing.T) {
	f := newFixture(t)
	e := New(f.cursors, f.source, f.rec)

	assert.NotNil(t, e.logger)
	assert.IsType(t, UUIDv7Generator{}, e.ids)
	assert.IsType(t, SystemClock{}, e.clock)
}

func TestEngine_RoundTripMapping(t *testing.T) {
	f := newFixture(t)
	f.dbs.InsertSource(t, 1, "Dan", 1, 2, f.clock.Now())
	e := f.engine(WithIDGenerator(NewFixedGenerator("pass-1")))

	p, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "pass-1", p.ID)
	assert.Equal(t, Finished, p.State)
	assert.False(t, p.HadWatermark)
	assert.Equal(t, 1, p.Rows)
	assert.Equal(t, 1, p.Inserted)
	assert.Equal(t, int64(1), p.LastKey)
	assert.Equal(t, [][3]any{{"Dan", "1", "2"}}, f.dbs.DestRows(t))
}

func TestEngine_UpdateNotDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.dbs.InsertSource(t, 1, "Dan", 1, 2, f.clock.Now())
	e := f.engine()

	p, err := e.Run(ctx)
	require.NoError(t, err)
	_, err = e.Commit(ctx, p)
	require.NoError(t, err)

	f.dbs.UpdateSource(t, 1, "Dan", 666, 2, f.clock.Now())
	p, err = e.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, p.Rows)
	assert.Equal(t, 1, p.Updated)
	assert.Equal(t, [][3]any{{"Dan", "666", "2"}}, f.dbs.DestRows(t))
}

func TestEngine_RepeatedPassWithoutAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.dbs.InsertSource(t, 1, "Dan", 1, 2, f.clock.Now())
	e := f.engine()

	for i := 0; i < 3; i++ {
		p, err := e.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, p.Rows, "pass %d re-reads the row", i)
	}

	assert.Equal(t, 1, f.dbs.CountDest(t))
	_, ok, err := f.cursors.Get(ctx, "tbl1")
	require.NoError(t, err)
	assert.False(t, ok, "Run must not advance the watermark")
}

func TestEngine_NoOpPassAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.dbs.InsertSource(t, 1, "a", "b", "c", f.clock.Now())
	f.dbs.InsertSource(t, 2, "d", "e", "f", f.clock.Now())
	e := f.engine()

	p, err := e.Run(ctx)
	require.NoError(t, err)
	wm, err := e.Commit(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Current(), wm.Value())

	before := f.dbs.DestRows(t)
	p, err = e.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, Finished, p.State)
	assert.True(t, p.HadWatermark)
	assert.Equal(t, 0, p.Rows)
	assert.Nil(t, p.LastWritten)
	assert.Equal(t, before, f.dbs.DestRows(t))
}

func TestEngine_NoOpPassAfterCommitISOText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.Exec(t, f.dbs.Source,
		`INSERT INTO tbl1 (id, data_1, data_2, data_3, lastUpdated) VALUES
			(1, 'a', 'b', 'c', '2024-03-01T09:00:00Z'),
			(2, 'd', 'e', 'f', '2024-03-01T12:00:00Z')`)
	e := f.engine()

	p, err := e.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, p.Rows)
	wm, err := e.Commit(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), wm.Value())

	p, err = e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Rows)
	assert.Equal(t, 0, p.Updated)

	testutil.Exec(t, f.dbs.Source,
		`UPDATE tbl1 SET data_2 = 'x', lastUpdated = '2024-03-01T12:00:01Z' WHERE id = 1`)
	p, err = e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Rows)
	assert.Equal(t, 1, p.Updated)
}

func TestEngine_OrderingLaterDuplicateWins(t *testing.T) {
	f := newFixture(t)
	t1, t2, t3 := f.clock.Now(), f.clock.Now(), f.clock.Now()
	// Inserted out of order; the pass must apply them by lastUpdated.
	f.dbs.InsertSource(t, 3, "key", "third", "z", t3)
	f.dbs.InsertSource(t, 1, "key", "first", "x", t1)
	f.dbs.InsertSource(t, 2, "other", "second", "y", t2)

	var order []int64
	e := f.engine(WithRowHook(func(_ *Pass, _ int, src row.Row, _ reconcile.Result) {
		id, _ := src.Get("id")
		order = append(order, id.(int64))
	}))

	p, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3}, order)
	assert.Equal(t, 2, p.Inserted)
	assert.Equal(t, 1, p.Updated)
	assert.Equal(t, [][3]any{{"key", "third", "z"}, {"other", "second", "y"}}, f.dbs.DestRows(t))
}

func TestEngine_FailureLeavesEarlierRowsAndWatermark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.dbs.InsertSource(t, 1, "a", "1", "1", f.clock.Now())
	f.dbs.InsertSource(t, 2, "boom", "2", "2", f.clock.Now())
	f.dbs.InsertSource(t, 3, "c", "3", "3", f.clock.Now())

	boom := errors.New("destination rejected row")
	e := New(f.cursors, f.source, failingReconciler{Reconciler: f.rec, trigger: "boom", err: boom},
		WithLogger(discard), WithIDGenerator(NewFixedGenerator("pass-1")))

	p, err := e.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var pe *PassError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "pass-1", pe.PassID)
	assert.Equal(t, 1, pe.RowIndex)
	failed, ok := FailedRow(err)
	require.True(t, ok)
	v, _ := failed.Get("id")
	assert.Equal(t, int64(2), v)

	assert.Equal(t, Failed, p.State)
	assert.Equal(t, err, p.Err)
	assert.Equal(t, 1, p.Rows)
	id, _ := p.LastWritten.Get("id")
	assert.Equal(t, int64(1), id)
	assert.Equal(t, [][3]any{{"a", "1", "1"}}, f.dbs.DestRows(t))

	_, err = e.Commit(ctx, p)
	assert.ErrorIs(t, err, ErrPassNotFinished)
	_, ok, err = f.cursors.Get(ctx, "tbl1")
	require.NoError(t, err)
	assert.False(t, ok)

	// The next pass reprocesses from the old watermark.
	p, err = f.engine().Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Rows)
	assert.Equal(t, 1, p.Updated)
	assert.Equal(t, 3, f.dbs.CountDest(t))
}

func TestEngine_AmbiguousMatchFailsPass(t *testing.T) {
	f := newFixture(t)
	f.dbs.InsertDest(t, "dup", "x", "x")
	f.dbs.InsertDest(t, "dup", "y", "y")
	f.dbs.InsertSource(t, 1, "dup", "z", "z", f.clock.Now())

	p, err := f.engine().Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, reconcile.ErrAmbiguousMatch)
	assert.Equal(t, Failed, p.State)
}

func TestEngine_MappingErrorFailsPass(t *testing.T) {
	f := newFixture(t)
	f.dbs.InsertSource(t, 1, "a", "b", "c", f.clock.Now())

	m, err := mapping.New([]mapping.Entry{{Dest: "dasData", Src: "no_such_column", NaturalKey: true}})
	require.NoError(t, err)
	rec, err := reconcile.New(f.dbs.Dest, f.dbs.Dest.Dialect(), reconcile.Target{Table: "tbl2", PrimaryKey: "id"}, m)
	require.NoError(t, err)

	_, err = New(f.cursors, f.source, rec, WithLogger(discard)).Run(context.Background())
	var mfe *mapping.MissingFieldError
	require.ErrorAs(t, err, &mfe)
	assert.Equal(t, 0, f.dbs.CountDest(t))
}

func TestEngine_SourceErrorFailsPass(t *testing.T) {
	f := newFixture(t)
	testutil.Exec(t, f.dbs.Source, `DROP TABLE tbl1`)

	p, err := f.engine().Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, Failed, p.State)
	assert.Equal(t, 0, p.Rows)
}

func TestEngine_CursorErrorFailsPass(t *testing.T) {
	f := newFixture(t)
	testutil.Exec(t, f.dbs.Source, `DROP TABLE lastSync`)

	p, err := f.engine().Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read watermark")
	assert.Equal(t, Failed, p.State)
}

func TestEngine_CommitNothingWritten(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.engine()

	p, err := e.Run(ctx)
	require.NoError(t, err)
	wm, err := e.Commit(ctx, p)
	require.NoError(t, err)
	assert.True(t, wm.IsZero())

	_, ok, err := f.cursors.Get(ctx, "tbl1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_CommitRejectsRegression(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	p := &Pass{
		Table:        "tbl1",
		State:        Finished,
		Start:        cursor.New(start),
		HadWatermark: true,
		LastWritten:  row.New("id", int64(1), "lastUpdated", start.Add(-time.Hour)),
	}
	_, err := e.Commit(context.Background(), p)
	assert.ErrorIs(t, err, ErrWatermarkRegression)
}

func TestEngine_CommitEqualIsAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.engine()
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.cursors.Set(ctx, "tbl1", cursor.New(start)))

	p := &Pass{
		Table:        "tbl1",
		State:        Finished,
		Start:        cursor.New(start),
		HadWatermark: true,
		LastWritten:  row.New("lastUpdated", start),
	}
	wm, err := e.Commit(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, start, wm.Value())
	assert.Equal(t, wm, p.Committed)
}

func TestEngine_CommitMissingLastUpdated(t *testing.T) {
	f := newFixture(t)
	p := &Pass{Table: "tbl1", State: Finished, LastWritten: row.New("id", int64(1))}

	_, err := f.engine().Commit(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lastUpdated")
}

func TestEngine_CommitNilPass(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine().Commit(context.Background(), nil)
	assert.ErrorIs(t, err, ErrPassNotFinished)
}

func TestEngine_RejectsOverlappingPass(t *testing.T) {
	f := newFixture(t)
	f.dbs.InsertSource(t, 1, "a", "b", "c", f.clock.Now())

	var inner error
	var e *Engine
	e = f.engine(
		WithIDGenerator(NewFixedGenerator("outer", "inner")),
		WithRowHook(func(*Pass, int, row.Row, reconcile.Result) {
			_, inner = e.Run(context.Background())
		}))

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrPassInProgress)
}

func TestEngine_SetWatermarkAndWatermark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.engine()
	ts := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, e.SetWatermark(ctx, cursor.New(ts)))
	wm, ok, err := e.Watermark(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ts, wm.Value())

	assert.Error(t, e.SetWatermark(ctx, cursor.Watermark{}))
}

func TestEngine_PassTimes(t *testing.T) {
	f := newFixture(t)
	clock := testutil.NewDeterministicClock()
	p, err := New(f.cursors, f.source, f.rec, WithLogger(discard), WithClock(clock)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, testutil.DefaultEpoch.Add(time.Second), p.StartedAt)
	assert.Equal(t, testutil.DefaultEpoch.Add(2*time.Second), p.FinishedAt)
	assert.Equal(t, time.Second, p.Duration())
}

func TestEngine_BadgerCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bs, err := cursor.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })

	f.dbs.InsertSource(t, 1, "a", "b", "c", f.clock.Now())
	e := New(bs, f.source, f.rec, WithLogger(discard))

	p, err := e.Run(ctx)
	require.NoError(t, err)
	wm, err := e.Commit(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Current(), wm.Value())

	p, err = e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Rows)
}

func TestPass_Summary(t *testing.T) {
	p := &Pass{
		ID:       "pass-1",
		Table:    "tbl1",
		State:    Failed,
		Rows:     2,
		Inserted: 1,
		Updated:  1,
		LastKey:  int64(4),
		Err:      errors.New("boom"),
	}
	s := p.Summary()

	assert.Equal(t, "failed", s.State)
	assert.Equal(t, "<none>", s.Start)
	assert.Equal(t, "boom", s.Error)
	assert.Empty(t, s.Committed)
	assert.Equal(t, int64(4), s.LastKey)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "reading", Reading.String())
	assert.Equal(t, "reconciling", Reconciling.String())
	assert.Equal(t, "finished", Finished.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", State(99).String())
}
