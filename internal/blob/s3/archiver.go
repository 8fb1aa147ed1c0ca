package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// FillArchiveStore provides read access to fills for archival purposes.
type FillArchiveStore interface {
	// ListBefore returns all fills transacted strictly before the given
	// cutoff time.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Fill, error)
}

// FillArchiver serializes old fills to JSONL and uploads them.
//
// Deletion of the archived fills from the primary store is not performed
// here; that is a separate step once the archive has been verified.
type FillArchiver struct {
	writer domain.BlobWriter
	fills  FillArchiveStore
	prefix string
}

// NewFillArchiver creates a FillArchiver.
func NewFillArchiver(writer domain.BlobWriter, fills FillArchiveStore, prefix string) *FillArchiver {
	return &FillArchiver{writer: writer, fills: fills, prefix: prefix}
}

// ArchiveFills queries all fills before the cutoff, serializes them to
// JSONL, and uploads them under archive/fills/YYYY-MM/. It returns
// the number of archived fills.
func (a *FillArchiver) ArchiveFills(ctx context.Context, before time.Time) (int64, error) {
	fills, err := a.fills.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive fills query: %w", err)
	}
	if len(fills) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(fills)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive fills marshal: %w", err)
	}

	key := path.Join(a.prefix, archivePath("fills", before))
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive fills upload: %w", err)
	}

	return int64(len(fills)), nil
}

// archivePath builds the key for an archive file, partitioned by the
// year-month of the cutoff time. Each run writes its own object.
//
//	archive/fills/2025-01/20250115T030000Z.jsonl
func archivePath(kind string, before time.Time) string {
	before = before.UTC()
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, before.Format("2006-01"), before.Format("20060102T150405Z"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
