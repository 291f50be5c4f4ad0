package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/local/pdfchunk/internal/logger"
)

// Uploader stores an object under key. storage.Client implements it.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
}

// S3Sink uploads each chunk to <prefix>/<name> in a bucket.
type S3Sink struct {
	up     Uploader
	bucket string
	prefix string
}

// NewS3Sink returns a sink uploading through up. bucket is only used in
// the returned object URLs; the uploader is already bound to it.
func NewS3Sink(up Uploader, bucket, prefix string) *S3Sink {
	return &S3Sink{up: up, bucket: bucket, prefix: prefix}
}

// Emit uploads c.Doc. The bytes are copied before the upload starts.
func (s *S3Sink) Emit(ctx context.Context, c *Chunk) error {
	data, err := c.Doc.Bytes()
	if err != nil {
		return err
	}
	key := path.Join(s.prefix, c.Name)
	if err := s.up.Upload(ctx, key, bytes.NewReader(bytes.Clone(data)), "application/pdf"); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	logger.FromContext(ctx).Info().Str("bucket", s.bucket).Str("key", key).Int("bytes", len(data)).Msg("chunk uploaded")
	return nil
}

// URL returns the s3:// URL a chunk named name is uploaded to.
func (s *S3Sink) URL(name string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, path.Join(s.prefix, name))
}
