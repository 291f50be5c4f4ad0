package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfchunk/internal/config"
)

// TempPrefix names the temp files DownloadToFile creates; CleanupTemps
// matches on it.
const TempPrefix = "s3pdf-"

// Client wraps an S3 client bound to one bucket, with multipart transfer
// managers for both directions.
type Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucketName string
}

// NewClient creates a client from cfg. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func NewClient(ctx context.Context, cfg config.StorageConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is not configured")
	}
	loadOpts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsConf, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &Client{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		downloader: manager.NewDownloader(cli),
		bucketName: cfg.Bucket,
	}, nil
}

// Bucket returns the bucket the client is bound to.
func (c *Client) Bucket() string { return c.bucketName }

// Upload stores body under key.
func (c *Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	out, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Debug().Str("bucket", c.bucketName).Str("key", key).Str("location", out.Location).Msg("uploaded object")
	return nil
}

// DownloadToFile fetches key into a new temp file in dir and returns its
// path. The caller removes the file.
func (c *Client) DownloadToFile(ctx context.Context, key, dir string) (string, error) {
	f, err := os.CreateTemp(dir, TempPrefix+"*.pdf")
	if err != nil {
		return "", err
	}
	n, err := c.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to download from S3: %w", err)
	}
	log.Info().Str("bucket", c.bucketName).Str("key", key).Int64("bytes", n).Msg("downloaded object")
	return f.Name(), nil
}

// ParseS3URL splits s3://bucket/key. A bare key is returned with an empty
// bucket.
func ParseS3URL(ref string) (bucket, key string, err error) {
	if !strings.HasPrefix(ref, "s3://") {
		if ref == "" {
			return "", "", fmt.Errorf("empty object reference")
		}
		return "", strings.TrimPrefix(ref, "/"), nil
	}
	parts := strings.SplitN(strings.TrimPrefix(ref, "s3://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed s3 url %q", ref)
	}
	return parts[0], parts[1], nil
}
