package cursor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rowsync/internal/ident"
	"github.com/roach88/rowsync/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{
		Driver: "sqlite3",
		DSN:    filepath.Join(t.TempDir(), "cursor.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureCursorTable(context.Background(), store.DefaultCursorTable()))
	return s
}

func TestSQLStore_GetMissing(t *testing.T) {
	s := openStore(t)
	cs, err := NewSQLStore(s, s.Dialect(), SQLConfig{})
	require.NoError(t, err)

	wm, ok, err := cs.Get(context.Background(), "tbl1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, wm.IsZero())
}

func TestSQLStore_SetThenGet(t *testing.T) {
	s := openStore(t)
	cs, err := NewSQLStore(s, s.Dialect(), SQLConfig{})
	require.NoError(t, err)
	ctx := context.Background()

	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, cs.Set(ctx, "tbl1", New(ts)))

	wm, ok, err := cs.Get(ctx, "tbl1")
	require.NoError(t, err)
	require.True(t, ok)
	c, err := wm.Compare(New(ts))
	require.NoError(t, err)
	assert.Equal(t, 0, c)
}

func TestSQLStore_SetUpdatesExistingRow(t *testing.T) {
	s := openStore(t)
	cs, err := NewSQLStore(s, s.Dialect(), SQLConfig{})
	require.NoError(t, err)
	ctx := context.Background()

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	require.NoError(t, cs.Set(ctx, "tbl1", New(t1)))
	require.NoError(t, cs.Set(ctx, "tbl1", New(t2)))

	var n int
	require.NoError(t, s.QueryRowContext(ctx, `SELECT COUNT(*) FROM lastSync WHERE tableName = 'tbl1'`).Scan(&n))
	assert.Equal(t, 1, n)

	wm, ok, err := cs.Get(ctx, "tbl1")
	require.NoError(t, err)
	require.True(t, ok)
	c, err := wm.Compare(New(t2))
	require.NoError(t, err)
	assert.Equal(t, 0, c)
}

func TestSQLStore_KeyedPerTable(t *testing.T) {
	s := openStore(t)
	cs, err := NewSQLStore(s, s.Dialect(), SQLConfig{})
	require.NoError(t, err)
	ctx := context.Background()

	ta := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tb := ta.AddDate(0, 1, 0)
	require.NoError(t, cs.Set(ctx, "a", New(ta)))
	require.NoError(t, cs.Set(ctx, "b", New(tb)))

	wm, ok, err := cs.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ta, wm.Value())
}

func TestSQLStore_NullValueIsAbsent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	_, err := s.ExecContext(ctx, `INSERT INTO lastSync (tableName, lastSync) VALUES ('tbl1', NULL)`)
	require.NoError(t, err)

	cs, err := NewSQLStore(s, s.Dialect(), SQLConfig{})
	require.NoError(t, err)

	_, ok, err := cs.Get(ctx, "tbl1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cs.Set(ctx, "tbl1", New(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	var n int
	require.NoError(t, s.QueryRowContext(ctx, `SELECT COUNT(*) FROM lastSync`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLStore_CustomNamesAndTemplates(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	ct := store.CursorTable{Table: "sync_state", ValueField: "mark", TableNameField: "src", ValueType: "INTEGER"}
	require.NoError(t, s.EnsureCursorTable(ctx, ct))

	cs, err := NewSQLStore(s, s.Dialect(), SQLConfig{
		Table:          ct.Table,
		ValueField:     ct.ValueField,
		TableNameField: ct.TableNameField,
		Templates: Templates{
			Select: "select {{.valueField}} from {{.table}} where {{.tableNameField}} = ? limit 1",
		},
	})
	require.NoError(t, err)

	require.NoError(t, cs.Set(ctx, "orders", New(int64(100))))
	wm, ok, err := cs.Get(ctx, "orders")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), wm.Value())
}

func TestSQLStore_RejectsEmptyWatermark(t *testing.T) {
	s := openStore(t)
	cs, err := NewSQLStore(s, s.Dialect(), SQLConfig{})
	require.NoError(t, err)

	assert.Error(t, cs.Set(context.Background(), "tbl1", Watermark{}))
}

func TestNewSQLStore_BadTemplate(t *testing.T) {
	_, err := NewSQLStore(nil, ident.SQLite, SQLConfig{
		Templates: Templates{Select: "select {{nope}} from {{table}}"},
	})
	assert.Error(t, err)
}

func TestNewSQLStore_RebindsForPostgres(t *testing.T) {
	cs, err := NewSQLStore(nil, ident.Postgres, SQLConfig{})
	require.NoError(t, err)

	assert.Equal(t, `select "lastSync" from "lastSync" where "tableName" = $1`, cs.selectSQL)
	assert.Equal(t, `update "lastSync" set "lastSync" = $1 where "tableName" = $2`, cs.updateSQL)
	assert.Equal(t, `insert into "lastSync" ("lastSync", "tableName") values ($1, $2)`, cs.insertSQL)
}

func TestNewSQLStore_MySQLQuoting(t *testing.T) {
	cs, err := NewSQLStore(nil, ident.MySQL, SQLConfig{})
	require.NoError(t, err)

	assert.Equal(t, "select `lastSync` from `lastSync` where `tableName` = ?", cs.selectSQL)
}
