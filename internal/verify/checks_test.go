package verify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInspector struct {
	pingErr    error
	tableCount int
	sequences  []string
}

func (f *fakeInspector) PingAsRole(ctx context.Context, role, dbname, password string) error {
	return f.pingErr
}

func (f *fakeInspector) CountUserTables(ctx context.Context, role, dbname, password string) (int, error) {
	return f.tableCount, nil
}

func (f *fakeInspector) ListSignalingSequences(ctx context.Context, role, dbname, password string) ([]string, error) {
	return f.sequences, nil
}

func TestConnectivityChecker(t *testing.T) {
	ctx := context.Background()

	ok := &ConnectivityChecker{DB: &fakeInspector{}, Role: "u1", Database: "d1", Password: "p1"}
	assert.True(t, ok.Check(ctx).Passed)

	bad := &ConnectivityChecker{DB: &fakeInspector{pingErr: fmt.Errorf("refused")}, Role: "u1", Database: "d1"}
	result := bad.Check(ctx)
	assert.False(t, result.Passed)
	assert.Equal(t, LevelCritical, result.Level)
}

func TestTablesPresentChecker(t *testing.T) {
	ctx := context.Background()

	empty := &TablesPresentChecker{DB: &fakeInspector{tableCount: 0}}
	assert.False(t, empty.Check(ctx).Passed)

	populated := &TablesPresentChecker{DB: &fakeInspector{tableCount: 120}}
	assert.True(t, populated.Check(ctx).Passed)
}

func TestSequencesGoneChecker(t *testing.T) {
	ctx := context.Background()

	clean := &SequencesGoneChecker{DB: &fakeInspector{}}
	assert.True(t, clean.Check(ctx).Passed)

	stale := &SequencesGoneChecker{DB: &fakeInspector{sequences: []string{"base_cache_signaling"}}}
	result := stale.Check(ctx)
	assert.False(t, result.Passed)
	assert.Contains(t, result.Message, "base_cache_signaling")
}

func TestFilestoreIntactChecker(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "ab"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ab", "blob"), []byte("12345"), 0o644))

	intact := &FilestoreIntactChecker{Path: dir, ExpectedFiles: 1, ExpectedBytes: 5}
	assert.True(t, intact.Check(ctx).Passed)

	drifted := &FilestoreIntactChecker{Path: dir, ExpectedFiles: 2, ExpectedBytes: 10}
	assert.False(t, drifted.Check(ctx).Passed)
}

func TestRunChecksAndCounting(t *testing.T) {
	ctx := context.Background()
	checkers := []Checker{
		&ConnectivityChecker{DB: &fakeInspector{}},
		&TablesPresentChecker{DB: &fakeInspector{tableCount: 0}},
	}

	results := RunChecks(ctx, checkers)
	require.Len(t, results, 2)

	assert.True(t, HasCriticalFailure(results))
	critical, warning, info := CountFailures(results)
	assert.Equal(t, 1, critical)
	assert.Zero(t, warning)
	assert.Zero(t, info)
}
