package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/paritybot/paritybot/internal/domain"
)

// opportunityArchiveStore is the narrow slice of the opportunity store the
// archiver needs: time-ranged reads plus the matching delete.
type opportunityArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ArbOpportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveImpl implements domain.Archiver by moving aged opportunity rows out
// of the primary store: query everything older than the cutoff, serialize to
// JSONL, upload to S3, and only then delete the archived rows. A failed
// upload leaves the database untouched.
type ArchiveImpl struct {
	writer domain.BlobWriter
	store  opportunityArchiveStore
	logger *slog.Logger
}

// NewArchiver creates an ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, store opportunityArchiveStore, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		store:  store,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOpportunities archives every opportunity detected strictly before
// the cutoff to archive/opportunities/YYYY-MM.jsonl and deletes the archived
// rows. It returns the number of records moved.
func (a *ArchiveImpl) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(opps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities marshal: %w", err)
	}

	path := archivePath("opportunities", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities upload: %w", err)
	}

	deleted, err := a.store.DeleteBefore(ctx, before)
	if err != nil {
		// The upload succeeded, so the data is safe; surface the failed
		// cleanup for the next run to retry.
		return int64(len(opps)), fmt.Errorf("s3blob: archive opportunities cleanup: %w", err)
	}

	a.logger.Info("archived opportunities",
		slog.String("path", path),
		slog.Int("count", len(opps)),
		slog.Int64("deleted", deleted),
		slog.Time("before", before))

	return int64(len(opps)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/opportunities/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
