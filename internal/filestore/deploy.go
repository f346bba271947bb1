package filestore

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// Deployment describes a completed filestore relocation.
type Deployment struct {
	Dest       string
	FileCount  int
	TotalBytes int64
	UID        int
	GID        int
}

// Deploy replaces the per-database filestore subtree under dataDir with the
// contents of src. The destination is <dataDir>/filestore/<dbName>; any
// pre-existing content there is removed, not merged. The ownership of
// <dataDir>/filestore is read first and applied recursively to the deployed
// tree, so the new subtree blends in with whatever user the application
// server runs as. Stale per-instance caches (<dataDir>/sessions and
// <dataDir>/addons) are removed as well.
//
// The copy is verified (file count and total bytes against src) before
// returning, so a caller may safely discard the source afterwards.
func Deploy(src, dataDir, dbName string) (*Deployment, error) {
	parent := filepath.Join(dataDir, "filestore")
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("could not create filestore parent %s: %w", parent, err)
	}

	uid, gid, err := ownerOf(parent)
	if err != nil {
		return nil, fmt.Errorf("could not read ownership template from %s: %w", parent, err)
	}

	dest := filepath.Join(parent, dbName)
	if err := os.RemoveAll(dest); err != nil {
		return nil, fmt.Errorf("could not remove previous filestore at %s: %w", dest, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("could not create filestore destination %s: %w", dest, err)
	}

	if err := copyTree(src, dest); err != nil {
		return nil, fmt.Errorf("filestore copy to %s failed: %w", dest, err)
	}

	srcCount, srcBytes, err := Measure(src)
	if err != nil {
		return nil, fmt.Errorf("could not measure filestore source: %w", err)
	}
	destCount, destBytes, err := Measure(dest)
	if err != nil {
		return nil, fmt.Errorf("could not measure deployed filestore: %w", err)
	}
	if srcCount != destCount || srcBytes != destBytes {
		return nil, fmt.Errorf("filestore copy verification failed: source has %d files (%d bytes), destination has %d files (%d bytes)",
			srcCount, srcBytes, destCount, destBytes)
	}

	if err := chownTree(dest, uid, gid); err != nil {
		return nil, fmt.Errorf("could not apply ownership %d:%d to %s: %w", uid, gid, dest, err)
	}

	for _, stale := range []string{"sessions", "addons"} {
		path := filepath.Join(dataDir, stale)
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("could not remove stale %s directory: %w", stale, err)
		}
	}

	return &Deployment{
		Dest:       dest,
		FileCount:  destCount,
		TotalBytes: destBytes,
		UID:        uid,
		GID:        gid,
	}, nil
}

// Measure walks a tree and returns the number of regular files and their
// total size in bytes.
func Measure(root string) (int, int64, error) {
	var count int
	var bytes int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			count++
			bytes += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return count, bytes, nil
}

func ownerOf(path string) (int, int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, fmt.Errorf("no unix ownership information for %s", path)
	}
	return int(stat.Uid), int(stat.Gid), nil
}

func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			// Filestore trees hold only directories and blobs; anything
			// else in the archive is skipped.
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func chownTree(root string, uid, gid int) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Chown(path, uid, gid)
	})
}
