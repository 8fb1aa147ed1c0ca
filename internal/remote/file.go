// Package remote fetches the logger's published files for the trader:
// from a local directory or over SSH. Object storage is served by
// s3blob.Mirror.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// FileSource reads files from a local directory, for a trader running on
// the logger's host.
type FileSource struct {
	dir string
}

// NewFileSource creates a FileSource rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// Fetch returns the contents of name. A missing file yields an error
// wrapping domain.ErrNotFound.
func (s *FileSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("remote: %s: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("remote: read %s: %w", name, err)
	}
	return data, nil
}
