package serverconf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolveDataDirFromConfig(t *testing.T) {
	path := writeConfig(t, "[options]\ndata_dir = /srv/instance/data\ndb_host = localhost\n")

	dataDir, err := ResolveDataDir(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/instance/data", dataDir)
}

func TestResolveDataDirDefaultWhenKeyAbsent(t *testing.T) {
	path := writeConfig(t, "[options]\ndb_host = localhost\n")

	dataDir, err := ResolveDataDir(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultDataDir, dataDir)
}

func TestResolveDataDirDefaultWhenFileMissing(t *testing.T) {
	dataDir, err := ResolveDataDir(filepath.Join(t.TempDir(), "nope.conf"))
	require.NoError(t, err)
	assert.Equal(t, DefaultDataDir, dataDir)
}

func TestResolveDataDirSkipsCommentsAndBlanks(t *testing.T) {
	path := writeConfig(t, "# data_dir = /wrong\n; data_dir = /also/wrong\n\ndata_dir=/right\n")

	dataDir, err := ResolveDataDir(path)
	require.NoError(t, err)
	assert.Equal(t, "/right", dataDir)
}

func TestResolveDataDirFirstKeyWins(t *testing.T) {
	path := writeConfig(t, "data_dir = /first\ndata_dir = /second\n")

	dataDir, err := ResolveDataDir(path)
	require.NoError(t, err)
	assert.Equal(t, "/first", dataDir)
}
