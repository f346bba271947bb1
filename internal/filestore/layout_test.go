package filestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdirs(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name), 0o755))
	}
}

func TestDetectBucketHash(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "ab", "cd")

	trueRoot, layout, err := Detect(root)
	require.NoError(t, err)

	assert.Equal(t, LayoutBucketHash, layout)
	assert.Equal(t, root, trueRoot)
}

func TestDetectNestedLegacy(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "mycompany/ab")

	trueRoot, layout, err := Detect(root)
	require.NoError(t, err)

	assert.Equal(t, LayoutNestedLegacy, layout)
	assert.Equal(t, filepath.Join(root, "mycompany"), trueRoot)
}

func TestDetectSingleHexLookalike(t *testing.T) {
	// A single subdirectory whose name looks like a shard is taken as
	// bucket-hash, per the documented tie-break.
	root := t.TempDir()
	mkdirs(t, root, "ab")

	trueRoot, layout, err := Detect(root)
	require.NoError(t, err)

	assert.Equal(t, LayoutBucketHash, layout)
	assert.Equal(t, root, trueRoot)
}

func TestDetectMultipleNonHexFallsThrough(t *testing.T) {
	// Multiple non-shard subdirectories are not specially handled; the root
	// is used as-is.
	root := t.TempDir()
	mkdirs(t, root, "companya", "companyb")

	trueRoot, layout, err := Detect(root)
	require.NoError(t, err)

	assert.Equal(t, LayoutBucketHash, layout)
	assert.Equal(t, root, trueRoot)
}

func TestDetectIgnoresFiles(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "mycompany")
	require.NoError(t, os.WriteFile(filepath.Join(root, "manifest.json"), []byte("{}"), 0o644))

	trueRoot, layout, err := Detect(root)
	require.NoError(t, err)

	assert.Equal(t, LayoutNestedLegacy, layout)
	assert.Equal(t, filepath.Join(root, "mycompany"), trueRoot)
}

func TestDetectMissingRoot(t *testing.T) {
	_, _, err := Detect(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestShardNameCase(t *testing.T) {
	// Shard names are lowercase hex; "AB" is not a shard.
	root := t.TempDir()
	mkdirs(t, root, "AB")

	trueRoot, layout, err := Detect(root)
	require.NoError(t, err)

	assert.Equal(t, LayoutNestedLegacy, layout)
	assert.Equal(t, filepath.Join(root, "AB"), trueRoot)
}
