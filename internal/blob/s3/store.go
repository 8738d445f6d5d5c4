package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// minPartSize is the S3 minimum for multipart upload parts (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// Store reads and writes archive objects in the client's bucket. It
// implements both domain.BlobReader and domain.BlobWriter so the archiver
// can upload, verify, and re-download through one value.
type Store struct {
	client *s3.Client
	bucket string
}

// NewStore creates a Store over the client's bucket.
func NewStore(c *Client) *Store {
	return &Store{client: c.s3, bucket: c.bucket}
}

// Get streams the object at path. The caller closes the returned reader.
// Missing objects map to domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	switch {
	case isNotFound(err):
		return nil, fmt.Errorf("s3blob: get %s: %w", path, domain.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("s3blob: get %s: %w", path, err)
	}
	return out.Body, nil
}

// List returns metadata for every object under prefix, following the
// listing to its last page.
func (s *Store) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var infos []domain.BlobInfo
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list prefix %s: %w", prefix, err)
		}
		infos = append(infos, blobInfos(page.Contents)...)
	}
	return infos, nil
}

// blobInfos converts one listing page. ListObjectsV2 does not return
// ContentType, so that field stays empty.
func blobInfos(objects []types.Object) []domain.BlobInfo {
	infos := make([]domain.BlobInfo, 0, len(objects))
	for _, obj := range objects {
		info := domain.BlobInfo{
			Path: aws.ToString(obj.Key),
			Size: aws.ToInt64(obj.Size),
		}
		if obj.LastModified != nil {
			info.LastModified = *obj.LastModified
		}
		infos = append(infos, info)
	}
	return infos
}

// Exists reports whether an object exists at path. The archiver checks this
// before it deletes the rows an upload was built from.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	switch {
	case isNotFound(err):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("s3blob: exists %s: %w", path, err)
	}
	return true, nil
}

// Put uploads data in a single PutObject request. Monthly archive files are
// normally small enough for this path.
func (s *Store) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", path, err)
	}
	return nil
}

// PutMultipart uploads data through the multipart manager, which splits the
// payload into concurrently uploaded parts. partSize is in bytes and is
// clamped to the S3 minimum of 5 MiB.
func (s *Store) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	if partSize < minPartSize {
		partSize = minPartSize
	}

	up := manager.NewUploader(s.client, func(u *manager.Uploader) {
		u.PartSize = partSize
	})
	if _, err := up.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
		Body:   data,
	}); err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", path, err)
	}
	return nil
}

// isNotFound reports whether err means the object does not exist. GetObject
// returns NoSuchKey, HeadObject a generic NotFound, and some compatible
// providers only a bare 404.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}

	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}

	var httpErr interface{ HTTPStatusCode() int }
	return errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == 404
}

var (
	_ domain.BlobReader = (*Store)(nil)
	_ domain.BlobWriter = (*Store)(nil)
)
