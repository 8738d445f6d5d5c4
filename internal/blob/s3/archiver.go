package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// multipartThreshold is the payload size above which archive uploads switch
// to the multipart path.
const multipartThreshold = 16 * 1024 * 1024

// multipartPartSize is the part size used for large archive uploads.
const multipartPartSize int64 = 8 * 1024 * 1024

// The archiver only needs the time-ranged query from each store, not the
// full interfaces, so it declares exactly what it calls.

// PositionArchiveStore provides read access to settled positions for
// archival.
type PositionArchiveStore interface {
	// ListSettledBefore returns positions settled strictly before the cutoff.
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Position, error)
}

// TradeLogArchiveStore provides read access to the trade log for archival.
type TradeLogArchiveStore interface {
	// ListBefore returns trade records settled strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error)
}

// UploadVerifier confirms an uploaded archive object is actually readable
// before the caller is allowed to treat the rows as safe to delete.
type UploadVerifier interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// ArchiveImpl implements domain.Archiver. It queries the stores for records
// older than the cutoff, serializes them to JSONL, uploads the file, verifies
// the upload, and records the event in the audit log.
//
// Deletion of the archived rows from Postgres is intentionally NOT performed
// here. The pipeline runs that as a separate step after a successful archive.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	verifier  UploadVerifier
	positions PositionArchiveStore
	trades    TradeLogArchiveStore
	audit     domain.AuditStore
}

// NewArchiver wires the uploader against the stores it drains.
func NewArchiver(
	writer domain.BlobWriter,
	verifier UploadVerifier,
	positions PositionArchiveStore,
	trades TradeLogArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		verifier:  verifier,
		positions: positions,
		trades:    trades,
		audit:     audit,
	}
}

// ArchivePositions uploads all positions settled before the cutoff to
// archive/positions/YYYY-MM.jsonl and returns the number of archived
// records. A zero count with nil error means there was nothing to archive.
func (a *ArchiveImpl) ArchivePositions(ctx context.Context, before time.Time) (int64, error) {
	positions, err := a.positions.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions query: %w", err)
	}
	return uploadArchive(ctx, a, "positions", before, positions)
}

// ArchiveTradeLog uploads all trade records settled before the cutoff to
// archive/trade_log/YYYY-MM.jsonl and returns the number of archived
// records.
func (a *ArchiveImpl) ArchiveTradeLog(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trade log query: %w", err)
	}
	return uploadArchive(ctx, a, "trade_log", before, records)
}

// uploadArchive serializes the records to JSONL, writes them to the archive
// path for the kind, verifies the object exists, and audit-logs the event.
// Large payloads go through the multipart path.
func uploadArchive[T any](ctx context.Context, a *ArchiveImpl, kind string, before time.Time, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := archivePath(kind, before)
	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	ok, err := a.verifier.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s verify: %w", kind, err)
	}
	if !ok {
		return 0, fmt.Errorf("s3blob: archive %s verify: object %s missing after upload", kind, path)
	}

	count := int64(len(records))

	if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
	}

	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff.
//
//	archive/positions/2026-08.jsonl
//	archive/trade_log/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL renders records as newline-delimited JSON, one compact
// object per line.
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

var _ domain.Archiver = (*ArchiveImpl)(nil)
