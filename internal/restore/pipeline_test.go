package restore

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"rehome.io/rehome-cli/internal/filestore"
)

// fakeDB records collaborator calls in order and can be told to fail at a
// given call.
type fakeDB struct {
	calls          []string
	failOn         string
	sequences      []string
	scriptContents string
	passwordsSeen  []string
}

func (f *fakeDB) call(name string) error {
	f.calls = append(f.calls, name)
	if f.failOn == name {
		return fmt.Errorf("induced %s failure", name)
	}
	return nil
}

func (f *fakeDB) DeleteRoleAndDatabase(ctx context.Context, user, dbname string) error {
	return f.call("delete-role-db")
}

func (f *fakeDB) CreateRoleAndDatabase(ctx context.Context, user, dbname, password string) error {
	f.passwordsSeen = append(f.passwordsSeen, password)
	return f.call("create-role-db")
}

func (f *fakeDB) RunStatementsAsElevatedRole(ctx context.Context, dbname string, statements []string) error {
	return f.call("elevated:" + strings.Join(statements, "|"))
}

func (f *fakeDB) RunStatementsAsRole(ctx context.Context, role, dbname, password string, statements []string) error {
	f.passwordsSeen = append(f.passwordsSeen, password)
	return f.call("as-role:" + strings.Join(statements, "|"))
}

func (f *fakeDB) RestoreScriptAsRole(ctx context.Context, role, dbname, password, scriptPath string) error {
	f.passwordsSeen = append(f.passwordsSeen, password)
	data, err := os.ReadFile(scriptPath)
	if err != nil {
		return err
	}
	f.scriptContents = string(data)
	return f.call("restore-script")
}

func (f *fakeDB) ListSignalingSequences(ctx context.Context, role, dbname, password string) ([]string, error) {
	if err := f.call("list-sequences"); err != nil {
		return nil, err
	}
	return f.sequences, nil
}

func (f *fakeDB) DropSequencesCascade(ctx context.Context, role, dbname, password string, names []string) error {
	return f.call("drop-sequences:" + strings.Join(names, "|"))
}

const testDump = `SET statement_timeout = 0;
CREATE EXTENSION IF NOT EXISTS unaccent WITH SCHEMA public;
COMMENT ON EXTENSION unaccent IS 'dictionary';
CREATE TABLE t (id int);
ALTER TABLE t OWNER TO olduser;
GRANT ALL ON t TO olduser;
COPY t (id) FROM stdin;
1
\.
`

func buildArchive(t *testing.T, members map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backup.zip")
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	w := zip.NewWriter(file)
	for name, content := range members {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func testOptions(t *testing.T, archivePath string) Options {
	t.Helper()
	dataDir := t.TempDir()
	confPath := filepath.Join(t.TempDir(), "server.conf")
	require.NoError(t, os.WriteFile(confPath,
		[]byte("[options]\ndata_dir = "+dataDir+"\n"), 0o644))
	return Options{ArchivePath: archivePath, ConfigPath: confPath}
}

func testIdentity() Identity {
	return Identity{User: "u1", Database: "d1", Password: "p1"}
}

func TestPipelineSuccess(t *testing.T) {
	archivePath := buildArchive(t, map[string]string{
		"dump.sql":             testDump,
		"filestore/ab/abcdef0": "blob",
	})
	opts := testOptions(t, archivePath)

	db := &fakeDB{sequences: []string{"base_cache_signaling", "base_registry_signaling"}}
	result, err := New(db, io.Discard).Run(context.Background(), testIdentity(), opts)
	require.NoError(t, err)

	assert.Equal(t, StageDone, result.FinalStage)
	assert.Equal(t, filestore.LayoutBucketHash, result.Layout)
	assert.Equal(t, []string{"unaccent"}, result.Extensions)
	assert.Equal(t, []string{"base_cache_signaling", "base_registry_signaling"}, result.SequencesDropped)
	assert.Equal(t, 1, result.FilestoreFiles)

	assert.Equal(t, []string{
		"delete-role-db",
		"create-role-db",
		`elevated:CREATE EXTENSION IF NOT EXISTS "unaccent"`,
		"restore-script",
		"list-sequences",
		`drop-sequences:base_cache_signaling|base_registry_signaling`,
	}, db.calls)

	// The blob landed under the resolved data dir.
	assert.FileExists(t, filepath.Join(result.FilestorePath, "ab", "abcdef0"))
}

func TestPipelineSanitizesScript(t *testing.T) {
	archivePath := buildArchive(t, map[string]string{
		"dump.sql":             testDump,
		"filestore/ab/abcdef0": "blob",
	})

	db := &fakeDB{}
	_, err := New(db, io.Discard).Run(context.Background(), testIdentity(), testOptions(t, archivePath))
	require.NoError(t, err)

	assert.NotContains(t, db.scriptContents, "OWNER TO")
	assert.NotContains(t, db.scriptContents, "GRANT")
	assert.NotContains(t, db.scriptContents, "EXTENSION")
	assert.Contains(t, db.scriptContents, "CREATE TABLE t (id int);")
	assert.Contains(t, db.scriptContents, "COPY t (id) FROM stdin;\n1\n\\.")
}

func TestPipelineNestedLegacyLayout(t *testing.T) {
	archivePath := buildArchive(t, map[string]string{
		"dump.sql":                       testDump,
		"filestore/mycompany/ab/abcdef0": "blob",
	})

	db := &fakeDB{}
	result, err := New(db, io.Discard).Run(context.Background(), testIdentity(), testOptions(t, archivePath))
	require.NoError(t, err)

	assert.Equal(t, filestore.LayoutNestedLegacy, result.Layout)
	// The legacy wrapper directory is not reproduced at the destination.
	assert.FileExists(t, filepath.Join(result.FilestorePath, "ab", "abcdef0"))
}

func TestPipelineMissingMember(t *testing.T) {
	archivePath := buildArchive(t, map[string]string{
		"dump.sql": testDump,
	})

	db := &fakeDB{}
	_, err := New(db, io.Discard).Run(context.Background(), testIdentity(), testOptions(t, archivePath))

	require.ErrorIs(t, err, ErrMissingArchiveMember)
	assert.Empty(t, db.calls)
}

func TestPipelineProvisioningFailureAborts(t *testing.T) {
	archivePath := buildArchive(t, map[string]string{
		"dump.sql":             testDump,
		"filestore/ab/abcdef0": "blob",
	})

	db := &fakeDB{failOn: "create-role-db"}
	result, err := New(db, io.Discard).Run(context.Background(), testIdentity(), testOptions(t, archivePath))

	require.ErrorIs(t, err, ErrProvisioningFailure)
	assert.Equal(t, StageFailed, result.FinalStage)
	assert.Equal(t, []string{"delete-role-db", "create-role-db"}, db.calls)
}

func TestPipelineRestoreFailureSurfacesDiagnostic(t *testing.T) {
	archivePath := buildArchive(t, map[string]string{
		"dump.sql":             testDump,
		"filestore/ab/abcdef0": "blob",
	})

	db := &fakeDB{failOn: "restore-script"}
	_, err := New(db, io.Discard).Run(context.Background(), testIdentity(), testOptions(t, archivePath))

	require.ErrorIs(t, err, ErrSqlRestoreFailure)
	assert.ErrorContains(t, err, "induced restore-script failure")
}

func TestPipelineSequenceCleanupFailure(t *testing.T) {
	archivePath := buildArchive(t, map[string]string{
		"dump.sql":             testDump,
		"filestore/ab/abcdef0": "blob",
	})

	db := &fakeDB{failOn: "list-sequences"}
	_, err := New(db, io.Discard).Run(context.Background(), testIdentity(), testOptions(t, archivePath))

	require.ErrorIs(t, err, ErrSequenceCleanupFailure)
}

func TestPipelinePassesNewPasswordOnly(t *testing.T) {
	archivePath := buildArchive(t, map[string]string{
		"dump.sql":             testDump,
		"filestore/ab/abcdef0": "blob",
	})

	db := &fakeDB{}
	_, err := New(db, io.Discard).Run(context.Background(), testIdentity(), testOptions(t, archivePath))
	require.NoError(t, err)

	for _, pw := range db.passwordsSeen {
		assert.Equal(t, "p1", pw)
	}
	assert.NotEmpty(t, db.passwordsSeen)
}
