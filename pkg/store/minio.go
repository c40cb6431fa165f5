package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds the connection settings for an S3-compatible store.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStore implements Store on an S3-compatible object store. Revisions
// are object ETags. S3 has no conditional put, so Put verifies the ETag
// immediately before writing; the check narrows the lost-update window to
// the stat-then-put gap instead of closing it. Deployments that need a
// strict guarantee should use the Redis or HTTP backend.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore creates a MinIO-backed store and ensures the bucket exists.
func NewMinIOStore(cfg MinIOConfig) (*MinIOStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing endpoint")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}

	s := &MinIOStore{client: mc, bucket: cfg.Bucket}

	// ensure bucket exists (idempotent)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

// Get returns the payload and ETag stored under key.
func (s *MinIOStore) Get(ctx context.Context, key string) (string, string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", "", fmt.Errorf("minio get %s: %w", key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("minio stat %s: %w", key, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", "", fmt.Errorf("minio read %s: %w", key, err)
	}
	return string(data), info.ETag, nil
}

// Put stores text under key after verifying the current ETag.
func (s *MinIOStore) Put(ctx context.Context, key, text, prevRev string) (string, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	switch {
	case err != nil && minio.ToErrorResponse(err).Code == "NoSuchKey":
		if prevRev != "" {
			return "", ErrRevisionMismatch
		}
	case err != nil:
		return "", fmt.Errorf("minio stat %s: %w", key, err)
	default:
		if info.ETag != prevRev {
			return "", ErrRevisionMismatch
		}
	}

	upload, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader([]byte(text)), int64(len(text)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("minio put %s: %w", key, err)
	}
	return upload.ETag, nil
}
