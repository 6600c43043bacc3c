// Package minio adapts the MinIO S3 client to CortexDB's blob store
// contract: per-collection buckets, record-scoped object paths, and presigned
// download URLs.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cortexdb/cortexdb/internal/config"
)

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Config contains connection settings for the object store.
type Config struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	Region     string
	PresignTTL time.Duration
}

// FromAppConfig maps the application minio section onto a store config.
func FromAppConfig(cfg config.MinioConfig) Config {
	return Config{
		Endpoint:   cfg.Endpoint,
		AccessKey:  cfg.AccessKey,
		SecretKey:  cfg.SecretKey,
		UseSSL:     cfg.UseSSL,
		Region:     cfg.Region,
		PresignTTL: cfg.PresignTTL,
	}
}

// Store wraps one shared MinIO client.
type Store struct {
	client     *minio.Client
	region     string
	presignTTL time.Duration
}

// Object is a downloaded blob. The caller owns the reader and must close it.
type Object struct {
	io.ReadCloser
	ContentType string
	Size        int64
}

// New builds the object store client. The constructor does not dial; use
// Health to verify connectivity.
func New(cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	presignTTL := cfg.PresignTTL
	if presignTTL <= 0 {
		presignTTL = time.Hour
	}
	return &Store{client: client, region: cfg.Region, presignTTL: presignTTL}, nil
}

// Health verifies the endpoint answers an authenticated request.
func (s *Store) Health(ctx context.Context) error {
	if _, err := s.client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("minio health check: %w", err)
	}
	return nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

// Upload stores one object.
func (s *Store) Upload(ctx context.Context, bucket, path string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, path, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	return nil
}

// Download opens one object for streaming. Missing objects map to
// ErrNotFound.
func (s *Store) Download(ctx context.Context, bucket, path string) (*Object, error) {
	obj, err := s.client.GetObject(ctx, bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", bucket, path, err)
	}

	// GetObject is lazy; Stat issues the request and surfaces a missing key.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("download %s/%s: %w", bucket, path, ErrNotFound)
		}
		return nil, fmt.Errorf("download %s/%s: %w", bucket, path, err)
	}

	return &Object{ReadCloser: obj, ContentType: info.ContentType, Size: info.Size}, nil
}

// Remove deletes one object. Removing a missing object is not an error.
func (s *Store) Remove(ctx context.Context, bucket, path string) error {
	if err := s.client.RemoveObject(ctx, bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s/%s: %w", bucket, path, err)
	}
	return nil
}

// PresignedGetURL returns a time-limited download URL for one object.
func (s *Store) PresignedGetURL(ctx context.Context, bucket, path string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, path, s.presignTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, path, err)
	}
	return u.String(), nil
}
