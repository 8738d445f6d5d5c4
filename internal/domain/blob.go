package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes one stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobReader retrieves objects from cold storage.
type BlobReader interface {
	// Get streams one object. The caller closes the reader.
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	// List enumerates objects under a prefix.
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	// Exists reports whether an object is present without fetching it.
	Exists(ctx context.Context, path string) (bool, error)
}

// BlobWriter uploads objects to cold storage.
type BlobWriter interface {
	// Put uploads a single object in one request.
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	// PutMultipart streams a large object in parts of partSize bytes.
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver drains settled rows out of PostgreSQL into cold storage.
type Archiver interface {
	ArchivePositions(ctx context.Context, before time.Time) (int64, error)
	ArchiveTradeLog(ctx context.Context, before time.Time) (int64, error)
}
