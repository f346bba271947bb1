package archive

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/pgzip"
)

// DumpMember is the required SQL dump member at the archive top level.
const DumpMember = "dump.sql"

// FilestoreMember is the required filestore directory member at the archive
// top level.
const FilestoreMember = "filestore"

// MissingMemberError reports a well-formed archive that lacks one of the two
// required members.
type MissingMemberError struct {
	Member string
}

func (e *MissingMemberError) Error() string {
	return fmt.Sprintf("backup archive is missing required member %q", e.Member)
}

// Extraction is an archive unpacked into a private scratch directory.
type Extraction struct {
	ScratchDir   string
	DumpPath     string
	FilestoreDir string
}

// Extract unpacks the backup archive at path into a freshly created scratch
// directory and validates that both required members are present. Zip and
// (optionally gzip-compressed) tar containers are accepted; the format is
// sniffed from the file's leading bytes. The caller owns the scratch
// directory and must call Cleanup when done, on every exit path.
func Extract(path string) (*Extraction, error) {
	scratch := filepath.Join(os.TempDir(), "rehome-"+uuid.NewString())
	if err := os.MkdirAll(scratch, 0o700); err != nil {
		return nil, fmt.Errorf("could not create scratch directory: %w", err)
	}

	if err := unpack(path, scratch); err != nil {
		os.RemoveAll(scratch)
		return nil, err
	}

	ex := &Extraction{
		ScratchDir:   scratch,
		DumpPath:     filepath.Join(scratch, DumpMember),
		FilestoreDir: filepath.Join(scratch, FilestoreMember),
	}

	if info, err := os.Stat(ex.DumpPath); err != nil || info.IsDir() {
		os.RemoveAll(scratch)
		return nil, &MissingMemberError{Member: DumpMember}
	}
	if info, err := os.Stat(ex.FilestoreDir); err != nil || !info.IsDir() {
		os.RemoveAll(scratch)
		return nil, &MissingMemberError{Member: FilestoreMember}
	}

	return ex, nil
}

// Cleanup removes the scratch directory and everything under it.
func (e *Extraction) Cleanup() error {
	return os.RemoveAll(e.ScratchDir)
}

func unpack(path, dest string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open backup archive %s: %w", path, err)
	}
	defer file.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(file, magic); err != nil {
		return fmt.Errorf("could not read backup archive %s: %w", path, err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("could not rewind backup archive: %w", err)
	}

	switch {
	case magic[0] == 'P' && magic[1] == 'K':
		return unpackZip(path, dest)
	case magic[0] == 0x1f && magic[1] == 0x8b:
		gz, err := pgzip.NewReader(bufio.NewReader(file))
		if err != nil {
			return fmt.Errorf("could not decompress backup archive: %w", err)
		}
		defer gz.Close()
		return unpackTar(gz, dest)
	default:
		// Assume an uncompressed tar; the tar reader surfaces a clear
		// error on anything else.
		return unpackTar(bufio.NewReader(file), dest)
	}
}

func unpackZip(path, dest string) error {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("could not read zip archive %s: %w", path, err)
	}
	defer reader.Close()

	for _, member := range reader.File {
		target, err := safeJoin(dest, member.Name)
		if err != nil {
			return err
		}
		if member.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o700); err != nil {
				return fmt.Errorf("could not create %s: %w", target, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
			return fmt.Errorf("could not create %s: %w", filepath.Dir(target), err)
		}
		src, err := member.Open()
		if err != nil {
			return fmt.Errorf("could not read archive member %s: %w", member.Name, err)
		}
		err = writeMember(target, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("could not extract archive member %s: %w", member.Name, err)
		}
	}
	return nil
}

func unpackTar(r io.Reader, dest string) error {
	reader := tar.NewReader(r)
	for {
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not read tar archive: %w", err)
		}

		target, err := safeJoin(dest, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o700); err != nil {
				return fmt.Errorf("could not create %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
				return fmt.Errorf("could not create %s: %w", filepath.Dir(target), err)
			}
			if err := writeMember(target, reader); err != nil {
				return fmt.Errorf("could not extract archive member %s: %w", header.Name, err)
			}
		default:
			// Symlinks and special files have no business in a backup
			// archive; skip them.
		}
	}
}

// safeJoin joins an archive member name onto dest, rejecting names that
// would escape the scratch directory.
func safeJoin(dest, name string) (string, error) {
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive member %q has an unsafe path", name)
	}
	return filepath.Join(dest, cleaned), nil
}

func writeMember(target string, src io.Reader) error {
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
