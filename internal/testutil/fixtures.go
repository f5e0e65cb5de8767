package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rowsync/internal/store"
)

// SourceDDL creates the source table used across tests.
const SourceDDL = `CREATE TABLE tbl1 (
    id INTEGER PRIMARY KEY,
    data_1 TEXT,
    data_2 TEXT,
    data_3 TEXT,
    lastUpdated DATETIME
)`

// DestDDL creates the destination table used across tests.
const DestDDL = `CREATE TABLE tbl2 (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    dasData TEXT,
    dasData1 TEXT,
    dasData2 TEXT
)`

// OpenSQLite opens a fresh SQLite database in t.TempDir().
// The store is closed when the test ends.
func OpenSQLite(t testing.TB, name string) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{
		Driver: "sqlite3",
		DSN:    filepath.Join(t.TempDir(), name+".db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// Exec runs statements against s, failing the test on error.
func Exec(t testing.TB, s *store.Store, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		_, err := s.ExecContext(context.Background(), stmt)
		require.NoError(t, err, "exec %q", stmt)
	}
}

// SyncDBs holds a source database (with its cursor table) and a
// destination database, both created with the standard fixture tables.
type SyncDBs struct {
	Source *store.Store
	Dest   *store.Store
}

// NewSyncDBs creates the standard tbl1 -> tbl2 fixture.
func NewSyncDBs(t testing.TB) SyncDBs {
	t.Helper()
	dbs := SyncDBs{
		Source: OpenSQLite(t, "source"),
		Dest:   OpenSQLite(t, "dest"),
	}
	Exec(t, dbs.Source, SourceDDL)
	Exec(t, dbs.Dest, DestDDL)
	require.NoError(t, dbs.Source.EnsureCursorTable(context.Background(), store.DefaultCursorTable()))
	return dbs
}

// InsertSource adds a tbl1 row.
func (d SyncDBs) InsertSource(t testing.TB, id int64, d1, d2, d3 any, lastUpdated time.Time) {
	t.Helper()
	_, err := d.Source.ExecContext(context.Background(),
		`INSERT INTO tbl1 (id, data_1, data_2, data_3, lastUpdated) VALUES (?, ?, ?, ?, ?)`,
		id, d1, d2, d3, lastUpdated.UTC())
	require.NoError(t, err)
}

// UpdateSource changes a tbl1 row's data and last-updated value.
func (d SyncDBs) UpdateSource(t testing.TB, id int64, d1, d2, d3 any, lastUpdated time.Time) {
	t.Helper()
	_, err := d.Source.ExecContext(context.Background(),
		`UPDATE tbl1 SET data_1 = ?, data_2 = ?, data_3 = ?, lastUpdated = ? WHERE id = ?`,
		d1, d2, d3, lastUpdated.UTC(), id)
	require.NoError(t, err)
}

// InsertDest adds a tbl2 row and returns its id.
func (d SyncDBs) InsertDest(t testing.TB, dasData, dasData1, dasData2 any) int64 {
	t.Helper()
	res, err := d.Dest.ExecContext(context.Background(),
		`INSERT INTO tbl2 (dasData, dasData1, dasData2) VALUES (?, ?, ?)`,
		dasData, dasData1, dasData2)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// DestRows returns every tbl2 row ordered by id as string triples.
func (d SyncDBs) DestRows(t testing.TB) [][3]any {
	t.Helper()
	rows, err := d.Dest.QueryContext(context.Background(),
		`SELECT dasData, dasData1, dasData2 FROM tbl2 ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var out [][3]any
	for rows.Next() {
		var r [3]any
		require.NoError(t, rows.Scan(&r[0], &r[1], &r[2]))
		for i, v := range r {
			if b, ok := v.([]byte); ok {
				r[i] = string(b)
			}
		}
		out = append(out, r)
	}
	require.NoError(t, rows.Err())
	return out
}

// CountDest returns the number of tbl2 rows.
func (d SyncDBs) CountDest(t testing.TB) int {
	t.Helper()
	var n int
	require.NoError(t, d.Dest.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM tbl2`).Scan(&n))
	return n
}
