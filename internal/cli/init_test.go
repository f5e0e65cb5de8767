package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCreatesCursorTable(t *testing.T) {
	f := newJobFixture(t)
	path := f.writeConfig(t, "", "")
	rootOpts := &RootOptions{Format: "text"}

	out, _, err := execute(NewInitCommand(rootOpts), "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "✓ cursor table lastSync ready\n", out)

	// Running it again is harmless.
	_, _, err = execute(NewInitCommand(rootOpts), "--config", path)
	require.NoError(t, err)

	out, _, err = execute(NewCursorCommand(rootOpts), "get", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "tbl1: no watermark\n", out)
}

func TestInitCustomCursorTable(t *testing.T) {
	f := newJobFixture(t)
	path := f.writeConfig(t, "", `cursor:
  dsn: `+filepath.Join(f.dir, "state.db")+`
  driver: sqlite3
  table: sync_state
`)

	out, _, err := execute(NewInitCommand(&RootOptions{Format: "text"}), "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "✓ cursor table sync_state ready\n", out)

	_, err = os.Stat(filepath.Join(f.dir, "state.db"))
	assert.NoError(t, err)
}

func TestInitBadgerBackend(t *testing.T) {
	f := newJobFixture(t)
	dir := filepath.Join(f.dir, "cursors")
	path := f.writeConfig(t, "", "cursor:\n  backend: badger\n  path: "+dir+"\n")

	out, _, err := execute(NewInitCommand(&RootOptions{Format: "text"}), "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "✓ cursor store ready at "+dir+"\n", out)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestInitMissingConfigFlag(t *testing.T) {
	_, _, err := execute(NewInitCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}
