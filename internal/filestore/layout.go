package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Layout identifies the directory convention of a filestore tree.
type Layout string

const (
	// LayoutBucketHash is the modern convention: top-level directories are
	// two-hex-character shards ("ab", "cd", ...).
	LayoutBucketHash Layout = "bucket-hash"
	// LayoutNestedLegacy is the historical convention: the whole bucket-hash
	// tree sits one level beneath a directory named after the source
	// database.
	LayoutNestedLegacy Layout = "nested-legacy"
)

var shardName = regexp.MustCompile(`^[0-9a-f]{2}$`)

// Detect classifies the filestore tree rooted at root and returns the true
// filestore root to copy from. A single non-shard subdirectory marks the
// nested-legacy convention and becomes the true root. Everything else,
// including a single subdirectory whose name happens to look like a shard,
// is treated as bucket-hash. Multiple non-shard subdirectories also fall
// through to bucket-hash; that case is a documented limitation, not
// something to second-guess here.
func Detect(root string) (string, Layout, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", "", fmt.Errorf("could not enumerate filestore root %s: %w", root, err)
	}

	var subdirs []string
	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, e.Name())
		}
	}

	if len(subdirs) == 1 && !shardName.MatchString(subdirs[0]) {
		return filepath.Join(root, subdirs[0]), LayoutNestedLegacy, nil
	}
	return root, LayoutBucketHash, nil
}
