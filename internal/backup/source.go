package backup

import (
	"context"
	"fmt"
	"io"
	"strings"

	"rehome.io/rehome-cli/internal/config"
)

// Source is where a backup archive comes from.
type Source interface {
	// Acquire retrieves the archive and returns it as a stream.
	Acquire(ctx context.Context) (io.ReadCloser, error)
	// Identifier returns a string identifying this source for reporting.
	Identifier() string
}

// Resolve maps a CLI archive argument to a Source. Three forms are
// understood: an s3:// URI, a command:<shell> spec producing the archive on
// stdout, and a plain local path.
func Resolve(arg string, s3cfg *config.S3) (Source, error) {
	switch {
	case strings.HasPrefix(arg, "s3://"):
		if s3cfg == nil {
			return nil, fmt.Errorf("archive %s requires an s3 section in the config file", arg)
		}
		return NewS3Source(arg, s3cfg)

	case strings.HasPrefix(arg, "command:"):
		exec := strings.TrimPrefix(arg, "command:")
		if exec == "" {
			return nil, fmt.Errorf("empty command archive source")
		}
		return &CommandSource{Exec: exec}, nil

	default:
		return &LocalSource{Path: arg}, nil
	}
}
