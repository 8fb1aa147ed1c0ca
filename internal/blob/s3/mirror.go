package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// multipartThreshold is the payload size above which uploads go through
// the multipart manager.
const multipartThreshold = 64 * 1024 * 1024

// Mirror copies dataset logs to object storage under a key prefix. It
// satisfies buffer.Mirror for the logger and domain.RemoteSource for the
// trader.
type Mirror struct {
	reader domain.BlobReader
	writer domain.BlobWriter
	prefix string
}

// NewMirror creates a Mirror over the given reader and writer.
func NewMirror(reader domain.BlobReader, writer domain.BlobWriter, prefix string) *Mirror {
	return &Mirror{reader: reader, writer: writer, prefix: prefix}
}

// NewClientMirror creates a Mirror backed by c's bucket and prefix.
func NewClientMirror(c *Client) *Mirror {
	return NewMirror(c, c, c.Prefix())
}

// Key returns the object key for a log file name.
func (m *Mirror) Key(name string) string {
	return path.Join(m.prefix, path.Base(name))
}

// Upload stores data under name, replacing any previous copy.
func (m *Mirror) Upload(ctx context.Context, name string, data []byte) error {
	key := m.Key(name)
	if len(data) > multipartThreshold {
		if err := m.writer.PutMultipart(ctx, key, bytes.NewReader(data), 0); err != nil {
			return fmt.Errorf("s3blob: mirror upload %s: %w", name, err)
		}
		return nil
	}
	if err := m.writer.Put(ctx, key, bytes.NewReader(data), "text/csv"); err != nil {
		return fmt.Errorf("s3blob: mirror upload %s: %w", name, err)
	}
	return nil
}

// Download returns the mirrored copy of name. Missing objects yield an
// error wrapping domain.ErrNotFound.
func (m *Mirror) Download(ctx context.Context, name string) ([]byte, error) {
	body, err := m.reader.Get(ctx, m.Key(name))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: mirror read %s: %w", name, err)
	}
	return data, nil
}

// Fetch implements domain.RemoteSource.
func (m *Mirror) Fetch(ctx context.Context, name string) ([]byte, error) {
	return m.Download(ctx, name)
}
