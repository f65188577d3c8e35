package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/paritybot/paritybot/internal/domain"
)

type fakeBlobWriter struct {
	puts map[string][]byte
	err  error
}

func (f *fakeBlobWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if f.err != nil {
		return f.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[path] = body
	return nil
}

func (f *fakeBlobWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	return f.Put(ctx, path, data, "")
}

type fakeArchiveStore struct {
	opps      []domain.ArbOpportunity
	listErr   error
	deleteErr error
	deleted   bool
}

func (f *fakeArchiveStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ArbOpportunity, error) {
	return f.opps, f.listErr
}

func (f *fakeArchiveStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deleted = true
	return int64(len(f.opps)), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveOpportunitiesMovesRows(t *testing.T) {
	cutoff := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeArchiveStore{opps: []domain.ArbOpportunity{
		{ID: "a", MarketID: "m1", Direction: domain.ArbBuyBoth},
		{ID: "b", MarketID: "m2", Direction: domain.ArbSellBoth},
	}}
	writer := &fakeBlobWriter{}
	arch := NewArchiver(writer, store, testLogger())

	moved, err := arch.ArchiveOpportunities(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveOpportunities: %v", err)
	}
	if moved != 2 {
		t.Errorf("moved = %d, want 2", moved)
	}
	if !store.deleted {
		t.Error("rows were not deleted after upload")
	}

	body, ok := writer.puts["archive/opportunities/2026-08.jsonl"]
	if !ok {
		t.Fatalf("archive object missing, puts = %v", writer.puts)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 2 {
		t.Errorf("jsonl lines = %d, want 2", len(lines))
	}
	if !bytes.Contains(body, []byte(`"m1"`)) {
		t.Errorf("archive body missing market id: %s", body)
	}
}

func TestArchiveOpportunitiesEmptyIsNoop(t *testing.T) {
	writer := &fakeBlobWriter{}
	arch := NewArchiver(writer, &fakeArchiveStore{}, testLogger())

	moved, err := arch.ArchiveOpportunities(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveOpportunities: %v", err)
	}
	if moved != 0 {
		t.Errorf("moved = %d, want 0", moved)
	}
	if len(writer.puts) != 0 {
		t.Errorf("unexpected uploads: %v", writer.puts)
	}
}

func TestArchiveOpportunitiesUploadFailureKeepsRows(t *testing.T) {
	store := &fakeArchiveStore{opps: []domain.ArbOpportunity{{ID: "a"}}}
	writer := &fakeBlobWriter{err: errors.New("bucket gone")}
	arch := NewArchiver(writer, store, testLogger())

	if _, err := arch.ArchiveOpportunities(context.Background(), time.Now()); err == nil {
		t.Fatal("want upload error")
	}
	if store.deleted {
		t.Error("rows deleted despite failed upload")
	}
}

func TestArchiveOpportunitiesCleanupFailureReported(t *testing.T) {
	store := &fakeArchiveStore{
		opps:      []domain.ArbOpportunity{{ID: "a"}},
		deleteErr: errors.New("lock timeout"),
	}
	arch := NewArchiver(&fakeBlobWriter{}, store, testLogger())

	moved, err := arch.ArchiveOpportunities(context.Background(), time.Now())
	if err == nil {
		t.Fatal("want cleanup error")
	}
	if moved != 1 {
		t.Errorf("moved = %d, want 1 (upload succeeded)", moved)
	}
}
