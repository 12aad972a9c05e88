// Package objectstore publishes seed datasets to MinIO or any S3 compatible
// store.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const csvContentType = "text/csv"

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Region avoids a bucket-location round trip before presigning.
	Region string
}

type MinioPublisher struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

var _ ports.SeedPublisher = (*MinioPublisher)(nil)

func NewMinioPublisher(cfg Config, logger *slog.Logger) (*MinioPublisher, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioPublisher{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With("component", "seed_publisher", "bucket", cfg.Bucket),
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (p *MinioPublisher) EnsureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	p.logger.InfoContext(ctx, "bucket created")
	return nil
}

func (p *MinioPublisher) Publish(ctx context.Context, objectKey string, data []byte) error {
	start := time.Now()
	info, err := p.client.PutObject(ctx, p.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: csvContentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectKey, err)
	}
	p.logger.InfoContext(ctx, "seed dataset uploaded",
		"object", objectKey,
		"size", info.Size,
		"duration", time.Since(start),
	)
	return nil
}

func (p *MinioPublisher) PresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := p.client.PresignedGetObject(ctx, p.bucket, objectKey, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", objectKey, err)
	}
	return u.String(), nil
}
